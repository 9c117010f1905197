// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mnlk/terrastrokes/internal/blocks"
	"github.com/mnlk/terrastrokes/internal/cache"
	"github.com/mnlk/terrastrokes/internal/cliffs"
	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/contour"
	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/knolls"
	"github.com/mnlk/terrastrokes/internal/metrics"
	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/smoothjoin"
	"github.com/mnlk/terrastrokes/internal/storage"
	"github.com/mnlk/terrastrokes/internal/synth"
	"github.com/mnlk/terrastrokes/internal/vegetation"
)

// Workspace file names. Every stage command reads/writes within the
// tile's own temp directory; only dxf.bin/png/pgw files carrying the
// tile's name prefix are written out to the batch directory for the
// merge stages to pick up.
const (
	fileInputPoints  = "input.xyz.bin"
	fileGroundModel  = "ground.hmap"
	fileNudgedModel  = "ground_nudged.hmap"
	fileFineContours = "fine_contours.dxf.bin"
	fileDetected     = "detected.dxf.bin"
	fileDotCandidate = "dotknoll_candidates.dxf.bin"
	fileDotknolls    = "dotknolls.dxf.bin"
	fileContours     = "contours.dxf.bin"
	fileCliffs       = "cliffs.dxf.bin"
	fileVegePNG      = "vegetation.png"
	fileVegePGW      = "vegetation.pgw"
	fileBlocksPNG    = "blocks.png"
	fileBlocksPGW    = "blocks.pgw"
)

func loadContourLines2(s storage.Storage, path string) ([][]geometry.Point2, error) {
	stack, err := geometry.Load(s, path, config.Version)
	if err != nil {
		return nil, err
	}
	var out [][]geometry.Point2
	for _, g := range stack.Data {
		if g.Polylines2 != nil {
			out = append(out, g.Polylines2.Lines...)
		}
	}
	return out, nil
}

func saveStack(s storage.Storage, path string, bounds geometry.Bounds, data []geometry.Geometry) error {
	return geometry.Save(s, path, geometry.New(config.Version, bounds, data))
}

func boundsOf(h *heightmap.HeightMap) geometry.Bounds {
	return geometry.Bounds{XMin: h.XOffset, XMax: h.MaxX(), YMin: h.YOffset, YMax: h.MaxY()}
}

// cmdXyzKnolls synthesizes the ground heightmap from the tile's
// ingested points and traces the fine-interval contour set
// knolldetector will reconstruct loops from.
func cmdXyzKnolls(s storage.Storage, cfg *config.Config) error {
	comp := cache.New(s, fileInputPoints, fileGroundModel+".cache", config.Version, func(h *xxhash.Digest) {
		fmt.Fprintf(h, "%v|%v", cfg.ScaleFactor, cfg.WaterClass)
	})
	guard := comp.NeedsRecompute()
	if guard == nil {
		return nil
	}

	r, err := pointstore.Open(s, fileInputPoints)
	if err != nil {
		return err
	}
	defer pointstore.MustClose(r)

	h, err := synth.FromPoints(r, cfg.ScaleFactor, cfg.WaterClass)
	if err != nil {
		return err
	}
	if err := heightmap.Save(s, fileGroundModel, h); err != nil {
		return err
	}

	fineInterval := cfg.ContourInterval * 0.3
	lines := contour.Extract(h, fineInterval)
	if err := saveStack(s, fileFineContours, boundsOf(h), []geometry.Geometry{{Polylines2: lines}}); err != nil {
		return err
	}
	return guard.Finalize()
}

// cmdKnolldetector runs the full component-H pipeline: merge the fine
// contour set into closed loops, keep the elevation-consistent ones,
// select the top/candidate hierarchy, nudge the grid and persist both
// the nudged heightmap and the sidecar pin/dot-candidate records.
func cmdKnolldetector(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileGroundModel)
	if err != nil {
		return err
	}
	lines, err := loadContourLines2(s, fileFineContours)
	if err != nil {
		return err
	}

	fineInterval := cfg.ContourInterval * 0.3
	halfInterval := cfg.ContourInterval / 2

	closed := knolls.MergeClosed(lines, true)
	consistent := knolls.ConsistentLoops(h, closed, fineInterval)
	survivors := knolls.SelectHierarchy(consistent, halfInterval, cfg.ScaleFactor)
	pins := knolls.Pins(survivors)
	nudged := knolls.Nudge(h, pins, cfg.ContourInterval)

	if err := heightmap.Save(s, fileNudgedModel, nudged); err != nil {
		return err
	}

	detected := &geometry.Points{}
	for _, p := range pins {
		detected.Push(p.Centroid.X, p.Centroid.Y, geometry.Dotknoll)
	}
	if err := saveStack(s, fileDetected, boundsOf(nudged), []geometry.Geometry{{Points: detected}}); err != nil {
		return err
	}

	rejected := knolls.RejectedSmallLoops(h, closed, fineInterval, survivors)
	candidates := &geometry.Points{}
	for _, d := range rejected {
		class := geometry.Udepression
		if d.IsKnoll {
			class = geometry.Dotknoll
		}
		candidates.Push(d.X, d.Y, class)
	}
	return saveStack(s, fileDotCandidate, boundsOf(nudged), []geometry.Geometry{{Points: candidates}})
}

// cmdDotknolls rasterizes the final contour stack and classifies each
// dot-knoll/u-depression candidate by whether it collides with an
// already-drawn line.
func cmdDotknolls(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileNudgedModel)
	if err != nil {
		h, err = heightmap.Load(s, fileGroundModel)
		if err != nil {
			return err
		}
	}

	candStack, err := geometry.Load(s, fileDotCandidate, config.Version)
	if err != nil {
		return err
	}
	var dots []knolls.DotknollRecord
	for _, g := range candStack.Data {
		if g.Points == nil {
			continue
		}
		for i, p := range g.Points.XY {
			dots = append(dots, knolls.DotknollRecord{X: p.X, Y: p.Y, IsKnoll: g.Points.Class[i] == geometry.Dotknoll})
		}
	}

	lines3 := &geometry.Polylines3{}
	if contoursStack, err := geometry.Load(s, fileContours, config.Version); err == nil {
		for _, g := range contoursStack.Data {
			if g.Polylines3 != nil {
				lines3.Lines = append(lines3.Lines, g.Polylines3.Lines...)
			}
		}
	} else if lines2, err := loadContourLines2(s, fileFineContours); err == nil {
		for _, l := range lines2 {
			l3 := make([]geometry.Point3, len(l))
			for i, p := range l {
				l3[i] = geometry.Point3{X: p.X, Y: p.Y}
			}
			lines3.Lines = append(lines3.Lines, l3)
		}
	}

	points := knolls.Dotknolls(h, lines3, dots, h.Scale)
	return saveStack(s, fileDotknolls, boundsOf(h), []geometry.Geometry{{Points: points}})
}

// cmdSmoothjoin re-traces the fine contour set from the nudged grid,
// re-merges it without the vertex cap, splits short closed loops off as
// dot-knoll candidates (not persisted here), decimates and smooths the
// survivors, and writes the final, elevation-annotated contour stack.
// Every written line gets a non-depression classification: depression
// loops are not told apart at this stage.
func cmdSmoothjoin(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileNudgedModel)
	if err != nil {
		h, err = heightmap.Load(s, fileGroundModel)
		if err != nil {
			return err
		}
	}

	fineInterval := cfg.ContourInterval * 0.3
	lines := contour.Extract(h, fineInterval).Lines
	merged := smoothjoin.Merge(lines)
	polylines, _ := smoothjoin.Classify(h, merged, fineInterval, cfg.DepressionLength, 0.5)

	out := &geometry.Polylines3{}
	for _, pl := range polylines {
		decimated := smoothjoin.Decimate(h, pl.Points)
		smoothed := smoothjoin.Smooth(decimated, pl.Closed, 1.0, 0.3)
		line3 := make([]geometry.Point3, len(smoothed))
		for i, p := range smoothed {
			line3[i] = geometry.Point3{X: p.X, Y: p.Y, Z: pl.Elev}
		}
		class := smoothjoin.FinalClass(pl.Elev, false, cfg.ContourInterval, cfg.IndexContours)
		out.Push(line3, class)
	}

	return saveStack(s, fileContours, boundsOf(h), []geometry.Geometry{{Polylines3: out}})
}

// cmdMakeCliffs traces steepness-threshold boundaries over the nudged
// grid and writes them as Cliff2/3/4-classified lines.
func cmdMakeCliffs(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileNudgedModel)
	if err != nil {
		h, err = heightmap.Load(s, fileGroundModel)
		if err != nil {
			return err
		}
	}
	lines := cliffs.Detect(h)
	return saveStack(s, fileCliffs, boundsOf(h), []geometry.Geometry{{Polylines2: lines}})
}

// cmdMakeVege accumulates the tile's points into the vegetation grids
// and renders the green/yellow/undergrowth composite.
func cmdMakeVege(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileGroundModel)
	if err != nil {
		return err
	}
	r, err := pointstore.Open(s, fileInputPoints)
	if err != nil {
		return err
	}
	defer pointstore.MustClose(r)

	grids := vegetation.NewGrids(cfg, h)
	for {
		chunk, err := r.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		for _, rec := range chunk {
			grids.Accumulate(rec)
		}
	}

	dc := grids.Render(cfg.ScaleFactorDPI)
	if err := writePNGFile(s, fileVegePNG, dc.Image()); err != nil {
		return err
	}
	return vegetation.WritePGW(s, fileVegePGW, h, cfg.ScaleFactorDPI)
}

// cmdBlocks rasterizes the high-return obstruction mask over the
// ground model.
func cmdBlocks(s storage.Storage, cfg *config.Config) error {
	h, err := heightmap.Load(s, fileGroundModel)
	if err != nil {
		return err
	}
	r, err := pointstore.Open(s, fileInputPoints)
	if err != nil {
		return err
	}
	defer pointstore.MustClose(r)
	records, err := r.All()
	if err != nil {
		return err
	}

	img := blocks.Detect(h, records, cfg.WaterClass, h.Scale)
	if err := writePNGFile(s, fileBlocksPNG, img); err != nil {
		return err
	}
	return writeWorldFile(s, fileBlocksPGW, h.Scale/2, h.XOffset, h.MaxY())
}

// processTile runs the whole per-tile pipeline against a freshly
// ingested point set: xyzknolls, knolldetector, dotknolls, smoothjoin,
// makecliffs, makevege and blocks, in the data-flow order SPEC_FULL.md
// lays out (points -> F -> G -> H -> G again -> I, with C/statistics
// independently feeding J and K).
func processTile(batch, s storage.Storage, cfg *config.Config, inputPath string) error {
	tile := tileName(inputPath)

	records, err := ingestPoints(batch, inputPath)
	if err != nil {
		return err
	}
	metrics.AddPoints(tile, len(records))
	if err := writeXYZBin(s, records, fileInputPoints); err != nil {
		return err
	}

	stages := []struct {
		name string
		run  func(storage.Storage, *config.Config) error
	}{
		{"xyzknolls", cmdXyzKnolls},
		{"knolldetector", cmdKnolldetector},
		{"dotknolls", cmdDotknolls},
		{"smoothjoin", cmdSmoothjoin},
		{"makecliffs", cmdMakeCliffs},
		{"makevege", cmdMakeVege},
		{"blocks", cmdBlocks},
	}
	for _, stage := range stages {
		if err := metrics.Time(stage.name, func() error { return stage.run(s, cfg) }); err != nil {
			return fmt.Errorf("%s: %w", stage.name, err)
		}
	}

	return publishTile(s, batch, tile)
}

// publishTile copies this tile's mergeable artifacts from its temp
// workspace into the batch directory under the tile-prefixed names
// DxfMerge/PngMerge scan for. Artifacts a given run didn't produce
// (e.g. no cliffs detected) are silently skipped.
func publishTile(s, batch storage.Storage, name string) error {
	artifacts := []struct{ local, suffix string }{
		{fileContours, "contours.dxf.bin"},
		{fileCliffs, "cliffs.dxf.bin"},
		{fileDotknolls, "dotknolls.dxf.bin"},
		{fileDetected, "detected.dxf.bin"},
	}
	for _, a := range artifacts {
		if err := copyAcross(s, batch, a.local, name+"_"+a.suffix); err != nil {
			return err
		}
	}
	rasters := []struct{ localPNG, localPGW, suffix string }{
		{fileVegePNG, fileVegePGW, "vegetation"},
		{fileBlocksPNG, fileBlocksPGW, "blocks"},
	}
	for _, r := range rasters {
		if err := copyAcross(s, batch, r.localPNG, name+"_"+r.suffix+".png"); err != nil {
			return err
		}
		if err := copyAcross(s, batch, r.localPGW, name+"_"+r.suffix+".pgw"); err != nil {
			return err
		}
	}
	return nil
}

func copyAcross(from, to storage.Storage, localPath, dstPath string) error {
	if !from.Exists(localPath) {
		return nil
	}
	r, err := from.Open(localPath)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := to.Create(dstPath)
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = io.Copy(w, r)
	return err
}

// tileName derives the batch-wide artifact prefix from the tile's
// input file path: the base name with its extension(s) stripped.
func tileName(inputPath string) string {
	base := filepath.Base(inputPath)
	for _, ext := range []string{".xyz.bin", ".xyz", ".las", ".laz"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// processZip extracts a zipped shapefile/xyz bundle and processes the
// first recognised point file it contains.
func processZip(batch, s storage.Storage, cfg *config.Config, archive string, extra []string) error {
	if err := batch.ExtractZip(archive, "."); err != nil {
		return err
	}
	entries, err := batch.List(".")
	if err != nil {
		return err
	}
	for _, e := range entries {
		lower := strings.ToLower(e)
		if strings.HasSuffix(lower, ".xyz") || strings.HasSuffix(lower, ".xyz.bin") {
			return processTile(batch, s, cfg, e)
		}
	}
	return fmt.Errorf("no .xyz/.xyz.bin entry found in %s", archive)
}
