// SPDX-License-Identifier: MIT

package smoothjoin

import (
	"math"
	"testing"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

func straightLine(n int) []geometry.Point2 {
	out := make([]geometry.Point2, n)
	for i := range out {
		out[i] = geometry.Point2{X: float64(i), Y: 0}
	}
	return out
}

func TestSmoothPreservesStraightLine(t *testing.T) {
	line := straightLine(20)
	smoothed := Smooth(line, false, 1.0, 0.5)
	for i, p := range smoothed {
		if math.Abs(p.Y) > 1e-9 {
			t.Fatalf("point %d drifted off a straight line: %v", i, p)
		}
	}
	// endpoints of an open line are untouched by the moving average.
	if smoothed[0] != line[0] || smoothed[len(smoothed)-1] != line[len(line)-1] {
		t.Fatal("open-line endpoints should be unchanged by smoothing")
	}
}

func TestSmoothIsIdempotentOnAlreadySmoothLine(t *testing.T) {
	line := straightLine(20)
	once := Smooth(line, false, 1.0, 0.5)
	twice := Smooth(once, false, 1.0, 0.5)
	for i := range once {
		if math.Abs(once[i].X-twice[i].X) > 1e-9 || math.Abs(once[i].Y-twice[i].Y) > 1e-9 {
			t.Fatalf("re-smoothing an already-smooth straight line changed point %d: %v -> %v", i, once[i], twice[i])
		}
	}
}

func TestDecimateShortLineUnchanged(t *testing.T) {
	line := straightLine(50)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: heightmap.NewGrid(60, 10, 10.0)}
	out := Decimate(h, line)
	if len(out) != len(line) {
		t.Fatalf("expected no decimation under the 101 threshold, got %d from %d", len(out), len(line))
	}
}

func TestDecimateDropsFlatInteriorPoints(t *testing.T) {
	line := straightLine(150)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: heightmap.NewGrid(160, 10, 10.0)}
	out := Decimate(h, line)
	if len(out) >= len(line) {
		t.Fatalf("expected decimation to shrink a long flat line, got %d from %d", len(out), len(line))
	}
	if out[0] != line[0] || out[len(out)-1] != line[len(line)-1] {
		t.Fatal("decimation must keep the endpoints")
	}
}

func TestFinalClassIndexVsIntermed(t *testing.T) {
	if got := FinalClass(20.0, false, 5.0, 4); got != geometry.ContourIndex {
		t.Fatalf("expected ContourIndex at a multiple of 4 intervals, got %v", got)
	}
	if got := FinalClass(5.0, false, 5.0, 4); got != geometry.Contour {
		t.Fatalf("expected plain Contour off the index step, got %v", got)
	}
	if got := FinalClass(2.5, false, 5.0, 4); got != geometry.ContourIntermed {
		t.Fatalf("expected ContourIntermed at a half-interval step, got %v", got)
	}
	if got := FinalClass(20.0, true, 5.0, 4); got != geometry.DepressionIndex {
		t.Fatalf("expected DepressionIndex, got %v", got)
	}
}

func TestMergeReassemblesWithoutCap(t *testing.T) {
	a := []geometry.Point2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	b := []geometry.Point2{{X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}}
	closed := Merge([][]geometry.Point2{a, b})
	if len(closed) != 1 {
		t.Fatalf("expected the two open chains to merge into one closed loop, got %d", len(closed))
	}
}
