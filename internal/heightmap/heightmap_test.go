// SPDX-License-Identifier: MIT

package heightmap

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	h := &HeightMap{
		XOffset: 3.0,
		YOffset: -5.0,
		Scale:   1.5,
		Grid:    &Grid{Width: 2, Height: 2, Cells: []float64{1, 2, 3, 4}},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, h); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.XOffset != h.XOffset || got.YOffset != h.YOffset || got.Scale != h.Scale {
		t.Fatalf("header mismatch: %+v", got)
	}
	if got.Grid.Width != h.Grid.Width || got.Grid.Height != h.Grid.Height {
		t.Fatalf("dims mismatch: %dx%d", got.Grid.Width, got.Grid.Height)
	}
	for i := range h.Grid.Cells {
		if got.Grid.Cells[i] != h.Grid.Cells[i] {
			t.Fatalf("cell %d = %v, want %v", i, got.Grid.Cells[i], h.Grid.Cells[i])
		}
	}
}

func TestMaxXMaxY(t *testing.T) {
	h := &HeightMap{XOffset: 0, YOffset: 0, Scale: 2, Grid: NewGrid(5, 3, 0)}
	if h.MaxX() != 10 {
		t.Fatalf("MaxX() = %v, want 10", h.MaxX())
	}
	if h.MaxY() != 6 {
		t.Fatalf("MaxY() = %v, want 6", h.MaxY())
	}
}

func TestValidateRejectsNaN(t *testing.T) {
	g := NewGrid(2, 2, 0)
	g.Set(0, 0, nan())
	h := &HeightMap{Scale: 1, Grid: g}
	if err := h.Validate(); err == nil {
		t.Fatal("expected Validate to reject a NaN cell")
	}
}

func nan() float64 {
	var z float64
	return z / z
}
