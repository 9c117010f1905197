// SPDX-License-Identifier: MIT

package synth

import (
	"math"
	"testing"

	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/storage"
)

func buildPointStore(t *testing.T, records []pointstore.Record) *pointstore.Reader {
	t.Helper()
	mem := storage.NewMemory()
	w, err := pointstore.Create(mem, "p.xyz.bin")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := pointstore.Open(mem, "p.xyz.bin")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestFromPointsNoNaNs(t *testing.T) {
	var recs []pointstore.Record
	for x := 0.0; x < 20; x += 2 {
		for y := 0.0; y < 20; y += 2 {
			recs = append(recs, pointstore.Record{X: x, Y: y, Z: float32(10 - x/4), Classification: 2})
		}
	}
	r := buildPointStore(t, recs)
	h, err := FromPoints(r, 1.0, 9)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range h.Grid.Cells {
		if math.IsNaN(v) {
			t.Fatal("found NaN cell after synthesis")
		}
	}
	wantMaxX := h.XOffset + h.Scale*float64(h.Grid.Width)
	if math.Abs(h.MaxX()-wantMaxX) > 1e-9 {
		t.Fatalf("MaxX invariant violated: %v vs %v", h.MaxX(), wantMaxX)
	}
}

func TestFromPointsSparseStillFills(t *testing.T) {
	recs := []pointstore.Record{
		{X: 0, Y: 0, Z: 10, Classification: 2},
		{X: 18, Y: 18, Z: 12, Classification: 9},
	}
	r := buildPointStore(t, recs)
	h, err := FromPoints(r, 1.0, 9)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range h.Grid.Cells {
		if math.IsNaN(v) {
			t.Fatal("found NaN cell after synthesis with only two sparse points")
		}
	}
}
