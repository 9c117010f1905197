// SPDX-License-Identifier: MIT

// Package cache implements the dependency-hash computation cache
// (component E): a small tag file next to each intermediate product
// recording hash(version, dependency fingerprint, input path, input
// mtime, full input content hash). Grounded on the guard-pattern API
// of the original tool's cache.rs (CachedComputation/ComputationGuard),
// expressed in the teacher's check-then-write sidecar idiom
// (cmd/osmviews-builder/stats.go's stats-file read/write pair).
package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mnlk/terrastrokes/internal/storage"
)

// Computation ties an input artifact to the cache tag file that
// records whether it is still fresh.
type Computation struct {
	s           Storage
	depsHash    uint64
	inputPath   string
	cachePath   string
	toolVersion string
}

// Storage is the subset of storage.Storage a Computation needs; kept
// narrow so callers can pass a storage.Storage directly.
type Storage interface {
	Exists(path string) bool
	ReadToString(path string) (string, error)
	Create(path string) (storage.WriteSeekCloser, error)
	Open(path string) (storage.ReadSeekCloser, error)
	FileSize(path string) (int64, error)
}

// New builds a Computation reading inputPath and writing its freshness
// tag to cachePath, with a dependency fingerprint folded from the
// bytes written by deps (stage parameters, upstream artifact names,
// whatever the caller considers load-bearing).
func New(s Storage, inputPath, cachePath, toolVersion string, deps func(h *xxhash.Digest)) *Computation {
	h := xxhash.New()
	deps(h)
	return &Computation{
		s:           s,
		depsHash:    h.Sum64(),
		inputPath:   inputPath,
		cachePath:   cachePath,
		toolVersion: toolVersion,
	}
}

// Guard is returned by NeedsRecompute when the computation must run;
// call Finalize once the fresh output has been written.
type Guard struct {
	s      Storage
	path   string
	newTag string
	hasTag bool
}

// NeedsRecompute returns a non-nil Guard when the cache is stale or
// bypassed, or nil when the caller may skip the computation entirely.
// It never returns an error: any failure reading cache state is
// treated as "needs recompute", matching the original's fail-open
// behaviour (a warning, not a fatal).
func (c *Computation) NeedsRecompute() *Guard {
	if _, set := os.LookupEnv("NO_CACHE"); set {
		return &Guard{s: c.s, path: c.cachePath}
	}
	expectedTag, err := c.expectedTag()
	if err != nil {
		return &Guard{s: c.s, path: c.cachePath}
	}
	if !c.s.Exists(c.cachePath) {
		return &Guard{s: c.s, path: c.cachePath, newTag: expectedTag, hasTag: true}
	}
	existing, err := c.s.ReadToString(c.cachePath)
	if err != nil {
		return &Guard{s: c.s, path: c.cachePath, newTag: expectedTag, hasTag: true}
	}
	if existing == expectedTag {
		return nil
	}
	return &Guard{s: c.s, path: c.cachePath, newTag: expectedTag, hasTag: true}
}

func (c *Computation) expectedTag() (string, error) {
	statPath := c.inputPath
	if d, ok := c.s.(*storage.Disk); ok {
		statPath = filepath.Join(d.Root, filepath.FromSlash(c.inputPath))
	}
	mtime, err := inputMtime(statPath)
	if err != nil {
		return "", err
	}
	contentHash, err := contentHash(c.s, c.inputPath)
	if err != nil {
		return "", err
	}

	h := xxhash.New()
	fmt.Fprint(h, c.toolVersion)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], c.depsHash)
	h.Write(b[:])
	fmt.Fprint(h, c.inputPath)
	binary.LittleEndian.PutUint64(b[:], uint64(mtime.UnixNano()))
	h.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], contentHash)
	h.Write(b[:])
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// inputMtime is a package variable so tests can stub file modification
// time without touching the real filesystem clock.
var inputMtime = func(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func contentHash(s Storage, path string) (uint64, error) {
	f, err := s.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return h.Sum64(), nil
}

// Finalize writes the fresh tag, signalling the computation completed
// successfully. A failure to write is returned to the caller; without
// a tag the next run simply recomputes again.
func (g *Guard) Finalize() error {
	if !g.hasTag {
		return nil
	}
	f, err := g.s.Create(g.path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(g.newTag))
	return err
}
