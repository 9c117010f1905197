// SPDX-License-Identifier: MIT

package storage

import (
	"io"
	"testing"
)

func TestResolvePath(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"folder/../folder2", []string{"folder2"}, false},
		{"./folder/folder2", []string{"folder", "folder2"}, false},
		{"folder/folder2/../folder3", []string{"folder", "folder3"}, false},
		{"../a", nil, true},
	}
	for _, c := range cases {
		got, err := resolvePath(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("resolvePath(%q): want error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("resolvePath(%q): unexpected error: %v", c.in, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("resolvePath(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("resolvePath(%q) = %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory()
	if err := m.CreateDirAll("tiles/a"); err != nil {
		t.Fatal(err)
	}
	w, err := m.Create("tiles/a/data.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !m.Exists("tiles/a/data.bin") {
		t.Fatal("expected file to exist after write")
	}
	r, err := m.Open("tiles/a/data.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

// TestMemoryCopyOnWrite ensures a reader that opened a file before a
// concurrent overwrite keeps reading the bytes it originally saw,
// since each write commits a fresh slot rather than mutating one in
// place.
func TestMemoryCopyOnWrite(t *testing.T) {
	m := NewMemory()
	w, _ := m.Create("f.txt")
	w.Write([]byte("version1"))
	w.Close()

	r, err := m.Open("f.txt")
	if err != nil {
		t.Fatal(err)
	}

	w2, _ := m.Create("f.txt")
	w2.Write([]byte("version2-longer"))
	w2.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	if string(got) != "version1" {
		t.Fatalf("reader saw %q, want stable snapshot %q", got, "version1")
	}

	r2, err := m.Open("f.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	got2, _ := io.ReadAll(r2)
	if string(got2) != "version2-longer" {
		t.Fatalf("new open saw %q, want %q", got2, "version2-longer")
	}
}

func TestMemoryObjectStore(t *testing.T) {
	m := NewMemory()
	type point struct{ X, Y float64 }
	if err := WriteObject(m, "meta/origin.obj", point{X: 1, Y: 2}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadObject[point](m, "meta/origin.obj")
	if err != nil {
		t.Fatal(err)
	}
	if got.X != 1 || got.Y != 2 {
		t.Fatalf("got %+v", got)
	}
	if _, err := ReadObject[point](m, "meta/missing.obj"); err != ErrObjectNotFound {
		t.Fatalf("want ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryRemoveDirAll(t *testing.T) {
	m := NewMemory()
	m.CreateDirAll("a/b")
	w, _ := m.Create("a/b/f.txt")
	w.Write([]byte("x"))
	w.Close()

	if err := m.RemoveDirAll("a/b"); err != nil {
		t.Fatal(err)
	}
	if m.Exists("a/b/f.txt") {
		t.Fatal("expected file to be gone after RemoveDirAll")
	}
}
