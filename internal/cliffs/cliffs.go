// SPDX-License-Identifier: MIT

// Package cliffs detects steep terrain (component L's "makecliffs"
// stage) by reducing the nudged heightmap to a per-cell steepness
// grid and reusing the Marching Squares tracer from internal/contour
// against fixed steepness thresholds instead of elevation levels. No
// original cliffs.rs source was retrieved for this tool (lib.rs
// references the module but the file itself was filtered out of the
// reference pack), so the threshold tiers and steepness statistic are
// grounded on knolls.rs's 3x3 elevation-range steepness counter
// (mirrored already in internal/smoothjoin) rather than transcribed
// from an original implementation.
package cliffs

import (
	"math"

	"github.com/mnlk/terrastrokes/internal/contour"
	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

// Thresholds on the 3x3 elevation range (world units) a cell's
// neighbourhood must clear to count as Cliff2 (steep bank), Cliff3
// (steeper, only drawn where Cliff2 survives) and Cliff4 (a
// near-vertical face).
const (
	cliff2Range = 1.0
	cliff3Range = 2.0
	cliff4Range = 3.5
)

// steepnessGrid builds a grid parallel to h whose cells hold the
// 3x3 neighbourhood elevation range centred on each cell, the same
// statistic internal/smoothjoin.steepness3x3 sources from a single
// point: here it's precomputed over the whole grid once so the
// Marching Squares tracer in internal/contour can run over it as if
// it were an elevation field.
func steepnessGrid(h *heightmap.HeightMap) *heightmap.Grid {
	g := h.Grid
	out := &heightmap.Grid{Width: g.Width, Height: g.Height, Cells: make([]float64, len(g.Cells))}
	for i := 0; i < g.Width; i++ {
		for j := 0; j < g.Height; j++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			for di := -1; di <= 1; di++ {
				for dj := -1; dj <= 1; dj++ {
					ii, jj := i+di, j+dj
					if ii < 0 || jj < 0 || ii >= g.Width || jj >= g.Height {
						continue
					}
					v := g.At(ii, jj)
					if v < lo {
						lo = v
					}
					if v > hi {
						hi = v
					}
				}
			}
			if math.IsInf(lo, 1) {
				lo, hi = 0, 0
			}
			out.Set(i, j, hi-lo)
		}
	}
	return out
}

// Detect traces steepness-threshold contours over h's nudged grid and
// returns them classified into the three cliff tiers, each tier
// requiring at least the previous tier's threshold so Cliff4 lines
// are a subset of Cliff3 which are a subset of Cliff2 in their
// underlying steepness field.
func Detect(h *heightmap.HeightMap) *geometry.Polylines2 {
	steep := steepnessGrid(h)
	steepMap := &heightmap.HeightMap{XOffset: h.XOffset, YOffset: h.YOffset, Scale: h.Scale, Grid: steep}

	out := &geometry.Polylines2{}
	tiers := []struct {
		threshold float64
		class     geometry.Classification
	}{
		{cliff2Range, geometry.Cliff2},
		{cliff3Range, geometry.Cliff3},
		{cliff4Range, geometry.Cliff4},
	}
	for _, tier := range tiers {
		traced := contour.TraceLevel(steepMap, tier.threshold)
		for _, l := range traced.Lines {
			out.Push(l, tier.class)
		}
	}
	return out
}
