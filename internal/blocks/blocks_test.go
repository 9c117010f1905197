// SPDX-License-Identifier: MIT

package blocks

import (
	"testing"

	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pointstore"
)

func TestDetectFlagsHighSingleReturn(t *testing.T) {
	g := heightmap.NewGrid(20, 20, 100.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}

	var records []pointstore.Record
	for _, dx := range []float64{0, 0.5, 1.0, 1.5, 2.0} {
		for _, dy := range []float64{0, 0.5, 1.0, 1.5, 2.0} {
			records = append(records, pointstore.Record{
				X: 9 + dx, Y: 9 + dy, Z: 105, Classification: 5, ReturnNumber: 1, NumberOfReturns: 1,
			})
		}
	}
	records = append(records,
		pointstore.Record{X: 5, Y: 5, Z: 100.5, Classification: 2, ReturnNumber: 1, NumberOfReturns: 1}, // ground, not a block
		pointstore.Record{X: 2, Y: 2, Z: 105, Classification: 5, ReturnNumber: 1, NumberOfReturns: 2},   // multi-return, not a block
	)

	img := Detect(h, records, 9, 1.0)
	b := img.Bounds()
	if b.Dx() != 40 || b.Dy() != 40 {
		t.Fatalf("expected a 40x40 canvas, got %dx%d", b.Dx(), b.Dy())
	}

	foundDark := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 0x8000 && g < 0x8000 && bl < 0x8000 {
				foundDark = true
			}
		}
	}
	if !foundDark {
		t.Fatal("expected at least one dark pixel from the flagged high return")
	}
}

func TestDetectEmptyInputIsAllWhite(t *testing.T) {
	g := heightmap.NewGrid(10, 10, 100.0)
	h := &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
	img := Detect(h, nil, 9, 1.0)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 0xf000 || g < 0xf000 || bl < 0xf000 {
				t.Fatalf("expected an all-white canvas with no points, found a dark pixel at (%d,%d)", x, y)
			}
		}
	}
}
