// SPDX-License-Identifier: MIT

package knolls

import (
	"math"
	"testing"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

func square(cx, cy, r float64) []geometry.Point2 {
	return []geometry.Point2{
		{X: cx - r, Y: cy - r},
		{X: cx + r, Y: cy - r},
		{X: cx + r, Y: cy + r},
		{X: cx - r, Y: cy + r},
		{X: cx - r, Y: cy - r},
	}
}

func TestMergeClosedJoinsSplitSegments(t *testing.T) {
	ring := square(5, 5, 2)
	// split the ring into two open chains sharing endpoints
	a := append([]geometry.Point2(nil), ring[0:3]...)
	b := append([]geometry.Point2(nil), ring[2:5]...)

	closed := MergeClosed([][]geometry.Point2{a, b}, true)
	if len(closed) != 1 {
		t.Fatalf("expected one closed loop, got %d", len(closed))
	}
	if len(closed[0]) < 5 {
		t.Fatalf("merged loop too short: %v", closed[0])
	}
}

func TestMergeClosedRejectsOversizedLoop(t *testing.T) {
	var long []geometry.Point2
	for i := 0; i < maxMergedVertices+10; i++ {
		long = append(long, geometry.Point2{X: float64(i), Y: 0})
	}
	long = append(long, long[0])
	closed := MergeClosed([][]geometry.Point2{long}, true)
	if len(closed) != 0 {
		t.Fatalf("expected oversized loop to be rejected, got %d", len(closed))
	}
}

func TestPointInPolygon(t *testing.T) {
	ring := square(0, 0, 1)
	if !PointInPolygon(ring, 0, 0) {
		t.Fatal("expected centre to be inside")
	}
	if PointInPolygon(ring, 5, 5) {
		t.Fatal("expected far point to be outside")
	}
}

// TestConsistentLoopsKeepsMoundAndPitLoops builds a flat grid with a
// single raised cell at the centre of one square loop and a single
// lowered cell at the centre of a second loop of identical shape, and
// checks that both loops survive as consistent.
func TestConsistentLoopsKeepsMoundAndPitLoops(t *testing.T) {
	g := heightmap.NewGrid(21, 21, 10.0)
	g.Set(5, 5, 15.0)  // mound under first loop's centre
	g.Set(15, 15, 5.0) // pit under second loop's centre
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}

	moundLoop := square(5, 5, 2)
	pitLoop := square(15, 15, 2)

	loops := ConsistentLoops(h, [][]geometry.Point2{moundLoop, pitLoop}, 1.0)
	if len(loops) != 2 {
		t.Fatalf("expected both loops to be consistent, got %d", len(loops))
	}
}

func TestSelectHierarchyPicksTops(t *testing.T) {
	g := heightmap.NewGrid(21, 21, 10.0)
	g.Set(5, 5, 15.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
	loop := square(5, 5, 2)

	loops := ConsistentLoops(h, [][]geometry.Point2{loop}, 1.0)
	survivors := SelectHierarchy(loops, 2.5, 1.0)
	if len(survivors) != 1 || !survivors[0].IsTop {
		t.Fatalf("expected a single top survivor, got %+v", survivors)
	}
}

func TestNudgeProducesNoNaN(t *testing.T) {
	g := heightmap.NewGrid(15, 15, 10.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
	pin := Pin{Centroid: geometry.Point2{X: 7, Y: 7}, Outline: square(7, 7, 2), Elev: 10.3, TopElev: 12.0}

	out := Nudge(h, []Pin{pin}, 5.0)
	for _, v := range out.Grid.Cells {
		if math.IsNaN(v) {
			t.Fatal("nudge introduced a NaN cell")
		}
	}
}

func TestDotknollsDemotesDotsNearLines(t *testing.T) {
	g := heightmap.NewGrid(21, 21, 10.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}

	lines := &geometry.Polylines3{}
	lines.Push([]geometry.Point3{{X: 0, Y: 10, Z: 10}, {X: 20, Y: 10, Z: 10}}, geometry.ContourSimple)

	dots := []DotknollRecord{
		{X: 10, Y: 10, IsKnoll: true},  // sits right on the line: must be demoted
		{X: 5, Y: 5, IsKnoll: true},    // clear of the line and the raster edge: stays a clean knoll
		{X: 5, Y: 15, IsKnoll: false},  // clear of the line and the raster edge: stays a clean depression
	}

	pts := Dotknolls(h, lines, dots, 1.0)
	if len(pts.Class) != 3 {
		t.Fatalf("expected 3 classified points, got %d", len(pts.Class))
	}
	if pts.Class[0] != geometry.UglyDotknoll {
		t.Fatalf("expected dot on the line to be demoted to UglyDotknoll, got %v", pts.Class[0])
	}
	if pts.Class[1] != geometry.Dotknoll {
		t.Fatalf("expected clean dot to stay Dotknoll, got %v", pts.Class[1])
	}
	if pts.Class[2] != geometry.Udepression {
		t.Fatalf("expected clean dot to stay Udepression, got %v", pts.Class[2])
	}
}

func TestRejectedSmallLoopsClassifiesBySign(t *testing.T) {
	g := heightmap.NewGrid(21, 21, 10.0)
	g.Set(5, 5, 15.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
	loop := square(5, 5, 2)

	recs := RejectedSmallLoops(h, [][]geometry.Point2{loop}, 1.0, nil)
	if len(recs) != 1 || !recs[0].IsKnoll {
		t.Fatalf("expected one knoll-classified dot, got %+v", recs)
	}
}
