// SPDX-License-Identifier: MIT

package cliffs

import (
	"testing"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

func rampHeightMap(steepSide bool) *heightmap.HeightMap {
	g := heightmap.NewGrid(20, 20, 0)
	for i := 0; i < g.Width; i++ {
		for j := 0; j < g.Height; j++ {
			v := 0.0
			if i >= 10 {
				if steepSide {
					v = 10.0 // sheer step: 10m jump at i==10
				} else {
					v = float64(i-10) * 0.05 // gentle slope
				}
			}
			g.Set(i, j, v)
		}
	}
	return &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
}

func TestDetectFindsStepButNotGentleSlope(t *testing.T) {
	steep := Detect(rampHeightMap(true))
	if len(steep.Lines) == 0 {
		t.Fatal("expected cliff lines along the sheer step")
	}

	gentle := Detect(rampHeightMap(false))
	if len(gentle.Lines) != 0 {
		t.Fatalf("expected no cliff lines on a gentle 0.05/cell slope, got %d", len(gentle.Lines))
	}
}

func TestDetectTiersAllPresentAcrossSheerStep(t *testing.T) {
	lines := Detect(rampHeightMap(true))
	seen := map[geometry.Classification]bool{}
	for _, c := range lines.Class {
		seen[c] = true
	}
	for _, want := range []geometry.Classification{geometry.Cliff2, geometry.Cliff3, geometry.Cliff4} {
		if !seen[want] {
			t.Errorf("expected a %s line across a 10m step, found none", want.LayerName())
		}
	}
}
