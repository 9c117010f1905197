// SPDX-License-Identifier: MIT

// Package heightmap implements the rectangular float grid with a
// world-coordinate offset and scale (component C): a flat
// contiguous buffer with stride-based indexing rather than a
// hash-map-per-cell, per the deliberate re-architecture documented in
// SPEC_FULL.md's design notes. Byte layout grounded on the teacher's
// own fixed-header-then-payload idiom (internal/pointstore mirrors
// cmd/qrank-builder's titles.go sequential writer).
package heightmap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mnlk/terrastrokes/internal/pipeline"
	"github.com/mnlk/terrastrokes/internal/storage"
)

// Grid is a row-major, stride-indexed buffer of float64 cells.
type Grid struct {
	Width, Height int
	Cells         []float64 // len == Width*Height, row-major: cells[j*Width+i]
}

// NewGrid allocates a width×height grid, all cells initialized to v.
func NewGrid(width, height int, v float64) *Grid {
	g := &Grid{Width: width, Height: height, Cells: make([]float64, width*height)}
	if v != 0 {
		for i := range g.Cells {
			g.Cells[i] = v
		}
	}
	return g
}

// At returns the cell at column i, row j.
func (g *Grid) At(i, j int) float64 { return g.Cells[j*g.Width+i] }

// Set writes the cell at column i, row j.
func (g *Grid) Set(i, j int, v float64) { g.Cells[j*g.Width+i] = v }

// HeightMap is the world-referenced elevation grid: cell (i,j) is the
// elevation sample at world coordinate (xoffset+i*scale, yoffset+j*scale).
type HeightMap struct {
	XOffset float64
	YOffset float64
	Scale   float64
	Grid    *Grid
}

// MaxX is the world x-coordinate of the grid's right edge.
func (h *HeightMap) MaxX() float64 { return h.XOffset + h.Scale*float64(h.Grid.Width) }

// MaxY is the world y-coordinate of the grid's top edge.
func (h *HeightMap) MaxY() float64 { return h.YOffset + h.Scale*float64(h.Grid.Height) }

// WorldXY converts grid indices to world coordinates.
func (h *HeightMap) WorldXY(i, j int) (x, y float64) {
	return h.XOffset + float64(i)*h.Scale, h.YOffset + float64(j)*h.Scale
}

// Validate checks the invariants from SPEC_FULL.md/spec.md §3: positive
// scale, a grid at least 2×2, and no remaining NaN cells.
func (h *HeightMap) Validate() error {
	if h.Scale <= 0 {
		return pipeline.Wrap(pipeline.Invariant, "", fmt.Errorf("scale must be > 0, got %v", h.Scale))
	}
	if h.Grid.Width < 2 || h.Grid.Height < 2 {
		return pipeline.Wrap(pipeline.Invariant, "", fmt.Errorf("grid must be at least 2x2, got %dx%d", h.Grid.Width, h.Grid.Height))
	}
	for _, v := range h.Grid.Cells {
		if math.IsNaN(v) {
			return pipeline.Wrap(pipeline.Invariant, "", fmt.Errorf("NaN cell escaped synthesis"))
		}
	}
	return nil
}

// Encode serializes h as three little-endian f64 header fields
// (xoffset, yoffset, scale) followed by width, height (u64) and the
// row-major f64 cells.
func Encode(w io.Writer, h *HeightMap) error {
	var hdr [24]byte
	binary.LittleEndian.PutUint64(hdr[0:8], math.Float64bits(h.XOffset))
	binary.LittleEndian.PutUint64(hdr[8:16], math.Float64bits(h.YOffset))
	binary.LittleEndian.PutUint64(hdr[16:24], math.Float64bits(h.Scale))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[0:8], uint64(h.Grid.Width))
	binary.LittleEndian.PutUint64(dims[8:16], uint64(h.Grid.Height))
	if _, err := w.Write(dims[:]); err != nil {
		return err
	}
	buf := make([]byte, 8*len(h.Grid.Cells))
	for i, v := range h.Grid.Cells {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// Decode reads back a HeightMap written by Encode.
func Decode(r io.Reader) (*HeightMap, error) {
	var hdr [24]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	h := &HeightMap{
		XOffset: math.Float64frombits(binary.LittleEndian.Uint64(hdr[0:8])),
		YOffset: math.Float64frombits(binary.LittleEndian.Uint64(hdr[8:16])),
		Scale:   math.Float64frombits(binary.LittleEndian.Uint64(hdr[16:24])),
	}
	var dims [16]byte
	if _, err := io.ReadFull(r, dims[:]); err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	width := int(binary.LittleEndian.Uint64(dims[0:8]))
	height := int(binary.LittleEndian.Uint64(dims[8:16]))
	buf := make([]byte, 8*width*height)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	cells := make([]float64, width*height)
	for i := range cells {
		cells[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	h.Grid = &Grid{Width: width, Height: height, Cells: cells}
	return h, nil
}

// Save writes h to path on s.
func Save(s storage.Storage, path string, h *HeightMap) error {
	f, err := s.Create(path)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	return Encode(f, h)
}

// Load reads a HeightMap from path on s.
func Load(s storage.Storage, path string) (*HeightMap, error) {
	f, err := s.Open(path)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	return Decode(f)
}
