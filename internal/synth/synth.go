// SPDX-License-Identifier: MIT

// Package synth builds a heightmap grid from a point store by
// averaging ground/water returns into cells and infilling the gaps
// (component F). Grounded on the original tool's xyz2heightmap in
// contours.rs: two-pass bounds-then-accumulation, cross-scan infill,
// a 3x3-neighbourhood fallback, row/column carry-fill, and the
// documented +1.0 origin shift preserved for bit-compatibility with
// the legacy coordinate frame (see DESIGN.md's Open Question decisions).
package synth

import (
	"errors"
	"math"

	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pipeline"
	"github.com/mnlk/terrastrokes/internal/pointstore"
)

var errNaNEscaped = errors.New("heightmap should not have any NaNs after synthesis")

// accum is a running (sum, count) pair for one cell's ground/water
// returns.
type accum struct {
	sum   float64
	count int
}

// FromPoints synthesizes a HeightMap from the records in r. scale is
// the configured scale factor s; the resulting cell size is 2s. A
// point is accumulated when its classification is 2 (ground) or
// waterClass.
func FromPoints(r *pointstore.Reader, scale float64, waterClass uint8) (*heightmap.HeightMap, error) {
	cell := 2.0 * scale

	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)

	records, err := r.All()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.X < xmin {
			xmin = rec.X
		}
		if rec.X > xmax {
			xmax = rec.X
		}
		if rec.Y < ymin {
			ymin = rec.Y
		}
		if rec.Y > ymax {
			ymax = rec.Y
		}
	}

	xmin = math.Floor(xmin/cell) * cell
	ymin = math.Floor(ymin/cell) * cell

	w := int(math.Ceil((xmax - xmin) / cell))
	h := int(math.Ceil((ymax - ymin) / cell))

	accWidth, accHeight := w+2, h+2
	accs := make([]accum, accWidth*accHeight)
	at := func(x, y int) *accum { return &accs[y*accWidth+x] }

	for _, rec := range records {
		if rec.Classification != 2 && rec.Classification != waterClass {
			continue
		}
		idxX := int(math.Floor((rec.X - xmin) / cell))
		idxY := int(math.Floor((rec.Y - ymin) / cell))
		a := at(idxX, idxY)
		a.sum += float64(rec.Z)
		a.count++
	}

	gridWidth, gridHeight := w+1, h+1
	avg := heightmap.NewGrid(gridWidth, gridHeight, math.NaN())
	for x := 0; x < gridWidth; x++ {
		for y := 0; y < gridHeight; y++ {
			a := at(x, y)
			if a.count > 0 {
				avg.Set(x, y, a.sum/float64(a.count))
			}
		}
	}

	crossScanFill(avg, w, h)
	neighborhoodFill(avg, w, h)
	carryFill(avg, w, h)

	for _, v := range avg.Cells {
		if math.IsNaN(v) {
			return nil, pipeline.Wrap(pipeline.Invariant, "", errNaNEscaped)
		}
	}

	return &heightmap.HeightMap{
		XOffset: xmin + 1.0,
		YOffset: ymin + 1.0,
		Scale:   cell,
		Grid:    avg,
	}, nil
}

// crossScanFill walks outward from each NaN cell along its row and
// column to find the nearest finite neighbour in each direction,
// linearly interpolating along whichever axes bracket it and
// averaging the two axis estimates when both exist.
func crossScanFill(avg *heightmap.Grid, w, h int) {
	for x := 0; x <= w; x++ {
		for y := 0; y <= h; y++ {
			if !math.IsNaN(avg.At(x, y)) {
				continue
			}
			i1, i2 := x, x
			j1, j2 := y, y
			for i1 > 0 && math.IsNaN(avg.At(i1, y)) {
				i1--
			}
			for i2 < w && math.IsNaN(avg.At(i2, y)) {
				i2++
			}
			for j1 > 0 && math.IsNaN(avg.At(x, j1)) {
				j1--
			}
			for j2 < h && math.IsNaN(avg.At(x, j2)) {
				j2++
			}

			val1, val2 := math.NaN(), math.NaN()
			if !math.IsNaN(avg.At(i1, y)) && !math.IsNaN(avg.At(i2, y)) && i2 != i1 {
				val1 = (float64(i2-x)*avg.At(i1, y) + float64(x-i1)*avg.At(i2, y)) / float64(i2-i1)
			}
			if !math.IsNaN(avg.At(x, j1)) && !math.IsNaN(avg.At(x, j2)) && j2 != j1 {
				val2 = (float64(j2-y)*avg.At(x, j1) + float64(y-j1)*avg.At(x, j2)) / float64(j2-j1)
			}

			switch {
			case !math.IsNaN(val1) && !math.IsNaN(val2):
				avg.Set(x, y, (val1+val2)/2.0)
			case !math.IsNaN(val1):
				avg.Set(x, y, val1)
			case !math.IsNaN(val2):
				avg.Set(x, y, val2)
			}
		}
	}
}

// neighborhoodFill takes the mean of each still-NaN cell's non-NaN
// 3x3 neighbourhood, for the corners cross-scan fill could not reach.
func neighborhoodFill(avg *heightmap.Grid, w, h int) {
	for x := 0; x <= w; x++ {
		for y := 0; y <= h; y++ {
			if !math.IsNaN(avg.At(x, y)) {
				continue
			}
			var sum float64
			var c int
			for ii := -1; ii <= 1; ii++ {
				for jj := -1; jj <= 1; jj++ {
					xi, yi := x+ii, y+jj
					if xi < 0 || yi < 0 || xi > w || yi > h {
						continue
					}
					if v := avg.At(xi, yi); !math.IsNaN(v) {
						sum += v
						c++
					}
				}
			}
			if c > 0 {
				avg.Set(x, y, sum/float64(c))
			}
		}
	}
}

// carryFill copies the nearest valid value down each column then back
// up, for whatever the first two passes still missed.
func carryFill(avg *heightmap.Grid, w, h int) {
	for x := 0; x <= w; x++ {
		for y := 1; y <= h; y++ {
			if math.IsNaN(avg.At(x, y)) {
				avg.Set(x, y, avg.At(x, y-1))
			}
		}
		for yy := 1; yy <= h; yy++ {
			y := h - yy
			if math.IsNaN(avg.At(x, y)) {
				avg.Set(x, y, avg.At(x, y+1))
			}
		}
	}
}
