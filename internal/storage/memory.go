// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"strings"
	"sync"

	"github.com/orcaman/writerseeker"
)

// Memory is the Storage variant backed by an in-process path trie,
// guarded by a single RWMutex. Grounded on the original tool's
// MemoryFileSystem: every write replaces a file's slot rather than
// mutating it in place, so a reader that already opened a file keeps
// reading the bytes it saw at Open time even if another goroutine
// overwrites the path immediately after (copy-on-write).
type Memory struct {
	mu      sync.RWMutex
	root    *memDir
	objects map[string]any
}

type memDir struct {
	dirs  map[string]*memDir
	files map[string]*memFile
}

func newMemDir() *memDir {
	return &memDir{dirs: map[string]*memDir{}, files: map[string]*memFile{}}
}

// memFile is immutable once stored; a write stores a fresh *memFile
// rather than appending to an existing one.
type memFile struct {
	data []byte
}

// NewMemory returns an empty Memory-backed Storage.
func NewMemory() *Memory {
	return &Memory{root: newMemDir(), objects: map[string]any{}}
}

// resolvePath normalizes a slash-separated path into its component
// list, resolving "." and ".." segments against an empty-rooted stack.
// A ".." that would escape the root is an error. Mirrors the original
// tool's MemoryFileSystem::resolve_path.
func resolvePath(path string) ([]string, error) {
	var stack []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			// no-op
		case "..":
			if len(stack) == 0 {
				return nil, fmt.Errorf("storage: path %q escapes root", path)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	return stack, nil
}

func (m *Memory) lookupDir(parts []string, create bool) (*memDir, error) {
	d := m.root
	for _, p := range parts {
		next, ok := d.dirs[p]
		if !ok {
			if !create {
				return nil, errors.New("storage: no such directory")
			}
			next = newMemDir()
			d.dirs[p] = next
		}
		d = next
	}
	return d, nil
}

func (m *Memory) CreateDirAll(path string) error {
	parts, err := resolvePath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err = m.lookupDir(parts, true)
	return err
}

func (m *Memory) List(path string) ([]string, error) {
	parts, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, err := m.lookupDir(parts, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(d.dirs)+len(d.files))
	for name := range d.dirs {
		out = append(out, joinParts(append(append([]string{}, parts...), name)))
	}
	for name := range d.files {
		out = append(out, joinParts(append(append([]string{}, parts...), name)))
	}
	return out, nil
}

func joinParts(parts []string) string { return strings.Join(parts, "/") }

func (m *Memory) split(path string) (dirParts []string, name string, err error) {
	parts, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return nil, "", errors.New("storage: empty path")
	}
	return parts[:len(parts)-1], parts[len(parts)-1], nil
}

func (m *Memory) Exists(path string) bool {
	dirParts, name, err := m.split(path)
	if err != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, err := m.lookupDir(dirParts, false)
	if err != nil {
		return false
	}
	if _, ok := d.files[name]; ok {
		return true
	}
	_, ok := d.dirs[name]
	return ok
}

type memReader struct {
	*bytes.Reader
}

func (r *memReader) Close() error { return nil }

func (m *Memory) Open(path string) (ReadSeekCloser, error) {
	dirParts, name, err := m.split(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, err := m.lookupDir(dirParts, false)
	if err != nil {
		return nil, err
	}
	f, ok := d.files[name]
	if !ok {
		return nil, fmt.Errorf("storage: %q: no such file", path)
	}
	// Snapshot the slice header under the lock; memFile.data is never
	// mutated after it is stored, so the reader sees a stable view
	// even if the path is overwritten by a later write.
	return &memReader{bytes.NewReader(f.data)}, nil
}

// memWriter buffers into a writerseeker.WriterSeeker and commits a
// brand-new *memFile into the tree on Close, implementing
// copy-on-write: concurrent readers holding an already-Open handle on
// the old slot are unaffected.
type memWriter struct {
	m        *Memory
	dirParts []string
	name     string
	buf      *writerseeker.WriterSeeker
	closed   bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Seek(offset int64, whence int) (int64, error) {
	return w.buf.Seek(offset, whence)
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	data, err := readAllSeeker(w.buf)
	if err != nil {
		return err
	}
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	d, err := w.m.lookupDir(w.dirParts, true)
	if err != nil {
		return err
	}
	d.files[w.name] = &memFile{data: data}
	return nil
}

func readAllSeeker(ws *writerseeker.WriterSeeker) ([]byte, error) {
	r, err := ws.Reader()
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Memory) Create(path string) (WriteSeekCloser, error) {
	dirParts, name, err := m.split(path)
	if err != nil {
		return nil, err
	}
	return &memWriter{m: m, dirParts: dirParts, name: name, buf: &writerseeker.WriterSeeker{}}, nil
}

func (m *Memory) ReadToString(path string) (string, error) {
	r, err := m.Open(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (m *Memory) RemoveFile(path string) error {
	dirParts, name, err := m.split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.lookupDir(dirParts, false)
	if err != nil {
		return err
	}
	if _, ok := d.files[name]; !ok {
		return fmt.Errorf("storage: %q: no such file", path)
	}
	delete(d.files, name)
	return nil
}

func (m *Memory) RemoveDirAll(path string) error {
	dirParts, name, err := m.split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(dirParts) == 0 && name == "" {
		m.root = newMemDir()
		return nil
	}
	d, err := m.lookupDir(dirParts, false)
	if err != nil {
		return err
	}
	delete(d.dirs, name)
	return nil
}

func (m *Memory) FileSize(path string) (int64, error) {
	dirParts, name, err := m.split(path)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, err := m.lookupDir(dirParts, false)
	if err != nil {
		return 0, err
	}
	f, ok := d.files[name]
	if !ok {
		return 0, fmt.Errorf("storage: %q: no such file", path)
	}
	return int64(len(f.data)), nil
}

func (m *Memory) Copy(from, to string) error {
	r, err := m.Open(from)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := m.Create(to)
	if err != nil {
		return err
	}
	defer w.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func (m *Memory) ReadImagePNG(path string) (image.Image, error) {
	r, err := m.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	return img, err
}

func (m *Memory) ReadShapefile(path string) (ReadSeekCloser, error) {
	return m.Open(path)
}

// ExtractZip is unsupported in-memory: nothing in the pipeline stages
// unzips into a scratch Memory tree (only Disk workspaces receive
// downloaded archives), so this capability is not exercised here.
func (m *Memory) ExtractZip(archive, target string) error {
	return ErrUnsupported
}

func (m *Memory) storeObject(path string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = v
}

func (m *Memory) loadObject(path string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.objects[path]
	return v, ok
}
