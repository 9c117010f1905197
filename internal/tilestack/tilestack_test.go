// SPDX-License-Identifier: MIT

package tilestack

import (
	"testing"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/storage"
)

func TestCropLinesContainedLineUnchanged(t *testing.T) {
	line := []geometry.Point2{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	out := CropLines([][]geometry.Point2{line}, 0, 0, 10, 10)
	if len(out) != 1 || len(out[0]) != 3 {
		t.Fatalf("expected the fully-contained line untouched, got %+v", out)
	}
}

func TestCropLinesCutsAtBoundaryKeepingAnchor(t *testing.T) {
	// line runs from outside (x<minx) through the box and back out
	line := []geometry.Point2{
		{X: -5, Y: 5}, {X: 1, Y: 5}, {X: 5, Y: 5}, {X: 9, Y: 5}, {X: 15, Y: 5},
	}
	out := CropLines([][]geometry.Point2{line}, 0, 0, 10, 10)
	if len(out) != 1 {
		t.Fatalf("expected exactly one cropped segment, got %d", len(out))
	}
	// the segment should retain a point at or before the min edge (x<=0) as an anchor
	first := out[0][0]
	if first.X > 0 {
		t.Fatalf("expected an anchor point at or before the min edge, got %v", first)
	}
}

func TestCropLinesDropsFullyOutsideLine(t *testing.T) {
	line := []geometry.Point2{{X: -5, Y: -5}, {X: -4, Y: -4}}
	out := CropLines([][]geometry.Point2{line}, 0, 0, 10, 10)
	if len(out) != 0 {
		t.Fatalf("expected a fully outside line to be dropped, got %+v", out)
	}
}

func TestCropPointsFiltersOutOfBounds(t *testing.T) {
	pts := &geometry.Points{}
	pts.Push(5, 5, geometry.Dotknoll)
	pts.Push(-5, -5, geometry.Dotknoll)
	out := CropPoints(pts, 0, 0, 10, 10)
	if len(out.XY) != 1 {
		t.Fatalf("expected one surviving point, got %d", len(out.XY))
	}
}

func TestDxfMergeCombinesSuffixes(t *testing.T) {
	mem := storage.NewMemory()
	lines := &geometry.Polylines2{}
	lines.Push([]geometry.Point2{{X: 0, Y: 0}, {X: 1, Y: 1}}, geometry.Contour)
	lines.Push([]geometry.Point2{{X: 2, Y: 2}, {X: 3, Y: 3}}, geometry.ContourIntermed)
	stack := geometry.New("v1", geometry.Bounds{XMax: 10, YMax: 10}, []geometry.Geometry{{Polylines2: lines}})
	if err := geometry.Save(mem, "tile1_contours.dxf.bin", stack); err != nil {
		t.Fatal(err)
	}

	if err := DxfMerge(mem, ".", "v1"); err != nil {
		t.Fatal(err)
	}
	if !mem.Exists("merged_contours.dxf.bin") {
		t.Fatal("expected merged_contours.dxf.bin to be written")
	}
	if !mem.Exists("merged.dxf.bin") {
		t.Fatal("expected merged.dxf.bin to be written")
	}

	combined, err := geometry.Load(mem, "merged.dxf.bin", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(combined.Data) != 1 || len(combined.Data[0].Polylines2.Lines) != 1 {
		t.Fatalf("expected the combined file's contour layer to drop the intermediate line, got %+v", combined.Data)
	}
}

// TestDxfMergeDedupesSeamLines checks that two tiles whose overlap
// buffers both drew the exact same boundary contour collapse to a
// single line in merged_contours.dxf.bin, via dedupeSeamFragments.
func TestDxfMergeDedupesSeamLines(t *testing.T) {
	mem := storage.NewMemory()

	seam := []geometry.Point2{{X: 10, Y: 0}, {X: 10, Y: 5}, {X: 10, Y: 10}}
	tile1 := &geometry.Polylines2{}
	tile1.Push(seam, geometry.Contour)
	tile1.Push([]geometry.Point2{{X: 0, Y: 0}, {X: 1, Y: 1}}, geometry.Contour)
	stack1 := geometry.New("v1", geometry.Bounds{XMax: 10, YMax: 10}, []geometry.Geometry{{Polylines2: tile1}})
	if err := geometry.Save(mem, "tile1_contours.dxf.bin", stack1); err != nil {
		t.Fatal(err)
	}

	tile2 := &geometry.Polylines2{}
	tile2.Push(append([]geometry.Point2(nil), seam...), geometry.Contour) // same seam, redrawn by the neighbouring tile
	stack2 := geometry.New("v1", geometry.Bounds{XMax: 20, YMax: 10}, []geometry.Geometry{{Polylines2: tile2}})
	if err := geometry.Save(mem, "tile2_contours.dxf.bin", stack2); err != nil {
		t.Fatal(err)
	}

	if err := DxfMerge(mem, ".", "v1"); err != nil {
		t.Fatal(err)
	}

	merged, err := geometry.Load(mem, "merged_contours.dxf.bin", "v1")
	if err != nil {
		t.Fatal(err)
	}
	var lineCount int
	for _, g := range merged.Data {
		if g.Polylines2 != nil {
			lineCount += len(g.Polylines2.Lines)
		}
	}
	if lineCount != 2 {
		t.Fatalf("expected the duplicate seam line to collapse, leaving 2 lines, got %d", lineCount)
	}
}
