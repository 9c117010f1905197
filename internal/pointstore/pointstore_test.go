// SPDX-License-Identifier: MIT

package pointstore

import (
	"testing"

	"github.com/mnlk/terrastrokes/internal/storage"
)

func TestWriteReadRoundTrip(t *testing.T) {
	mem := storage.NewMemory()
	w, err := Create(mem, "points.xyz.bin")
	if err != nil {
		t.Fatal(err)
	}
	want := []Record{
		{X: 1, Y: 2, Z: 3, Classification: 2, NumberOfReturns: 1, ReturnNumber: 1},
		{X: -12, Y: -3, Z: 40, Classification: 9, NumberOfReturns: 2, ReturnNumber: 1},
	}
	for _, r := range want {
		if err := w.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(mem, "points.xyz.bin")
	if err != nil {
		t.Fatal(err)
	}
	if r.NRecords() != 2 {
		t.Fatalf("NRecords() = %d, want 2", r.NRecords())
	}
	minX, maxX, minY, maxY, minZ, maxZ := r.Bounds()
	if minX != -12 || maxX != 1 || minY != -3 || maxY != 2 || minZ != 3 || maxZ != 40 {
		t.Fatalf("bounds = %v %v %v %v %v %v, want -12 1 -3 2 3 40", minX, maxX, minY, maxY, minZ, maxZ)
	}

	got, err := r.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReaderRejectsBadMagic(t *testing.T) {
	mem := storage.NewMemory()
	f, _ := mem.Create("bad.bin")
	f.Write([]byte("NOPE0000000000000000000000000000000000000000000000000000000"))
	f.Close()

	if _, err := Open(mem, "bad.bin"); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestWriterCloseIdempotent(t *testing.T) {
	mem := storage.NewMemory()
	w, err := Create(mem, "empty.bin")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestNextChunkExhaustion(t *testing.T) {
	mem := storage.NewMemory()
	w, _ := Create(mem, "points.xyz.bin")
	for i := 0; i < 5; i++ {
		w.Write(Record{X: float64(i), Y: float64(i), Z: float32(i)})
	}
	w.Close()

	r, err := Open(mem, "points.xyz.bin")
	if err != nil {
		t.Fatal(err)
	}
	chunk, err := r.NextChunk()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunk) != 5 {
		t.Fatalf("got %d records, want 5", len(chunk))
	}
	if _, err := r.NextChunk(); err == nil {
		t.Fatal("expected EOF after exhausting advertised count")
	}
}
