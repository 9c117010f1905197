// SPDX-License-Identifier: MIT

package cache

import (
	"os"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mnlk/terrastrokes/internal/storage"
)

func withStubMtime(t *testing.T, ts time.Time) {
	t.Helper()
	orig := inputMtime
	inputMtime = func(path string) (time.Time, error) { return ts, nil }
	t.Cleanup(func() { inputMtime = orig })
}

func TestCacheSafety(t *testing.T) {
	mem := storage.NewMemory()
	w, _ := mem.Create("input.bin")
	w.Write([]byte("hello"))
	w.Close()

	withStubMtime(t, time.Unix(1000, 0))

	deps := func(h *xxhash.Digest) { h.WriteString("v1") }

	c := New(mem, "input.bin", "input.bin.cachetag", "0.1.0", deps)
	g := c.NeedsRecompute()
	if g == nil {
		t.Fatal("expected a guard on first run (no tag yet)")
	}
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}

	c2 := New(mem, "input.bin", "input.bin.cachetag", "0.1.0", deps)
	if g2 := c2.NeedsRecompute(); g2 != nil {
		t.Fatal("expected nil guard: nothing changed")
	}

	c3 := New(mem, "input.bin", "input.bin.cachetag", "0.1.0", func(h *xxhash.Digest) { h.WriteString("v2") })
	if g3 := c3.NeedsRecompute(); g3 == nil {
		t.Fatal("expected a guard: dependency fingerprint changed")
	}

	os.Setenv("NO_CACHE", "1")
	defer os.Unsetenv("NO_CACHE")
	c4 := New(mem, "input.bin", "input.bin.cachetag", "0.1.0", deps)
	if g4 := c4.NeedsRecompute(); g4 == nil {
		t.Fatal("expected a guard: NO_CACHE set")
	}
}
