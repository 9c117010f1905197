// SPDX-License-Identifier: MIT

package contour

import (
	"math"
	"testing"

	"github.com/mnlk/terrastrokes/internal/heightmap"
)

func flatHeightMap(value float64, width, height int) *heightmap.HeightMap {
	g := heightmap.NewGrid(width, height, value)
	return &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
}

func TestPlaneEmitsNoPolylines(t *testing.T) {
	h := flatHeightMap(10.0, 20, 20)
	lines := Extract(h, 5.0)
	if len(lines.Lines) != 0 {
		t.Fatalf("expected zero polylines over a constant plane, got %d", len(lines.Lines))
	}
}

func coneHeightMap(size int) *heightmap.HeightMap {
	g := heightmap.NewGrid(size, size, 0)
	cx, cy := float64(size)/2, float64(size)/2
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			r := math.Hypot(float64(i)-cx, float64(j)-cy)
			g.Set(i, j, 10-r)
		}
	}
	return &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
}

func TestConeEmitsNonEmptyPolylines(t *testing.T) {
	h := coneHeightMap(20)
	lines := Extract(h, 2.0)
	if len(lines.Lines) == 0 {
		t.Fatal("expected at least one polyline over a cone")
	}
	for _, line := range lines.Lines {
		if len(line) == 0 {
			t.Fatal("found an empty polyline")
		}
	}
}

func TestExtractVerticesWithinBounds(t *testing.T) {
	h := coneHeightMap(20)
	lines := Extract(h, 2.0)
	xmin, xmax := h.XOffset, h.MaxX()
	ymin, ymax := h.YOffset, h.MaxY()
	for _, line := range lines.Lines {
		for _, p := range line {
			if p.X < xmin-1e-6 || p.X > xmax+1e-6 || p.Y < ymin-1e-6 || p.Y > ymax+1e-6 {
				t.Fatalf("vertex %v out of bounds [%v,%v]x[%v,%v]", p, xmin, xmax, ymin, ymax)
			}
		}
	}
}

func TestFenceProperty(t *testing.T) {
	for _, val := range []float64{4.999, 5.0, 5.001, 9.98, 10.0} {
		got := fence(val, 5.0, 0.05)
		nearestMultiple := math.Round(got/5.0) * 5.0
		if math.Abs(got-nearestMultiple) < 0.05-1e-9 && got != val {
			t.Fatalf("fence(%v) = %v still within tolerance of a grid level", val, got)
		}
	}
}
