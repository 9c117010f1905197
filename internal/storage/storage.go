// SPDX-License-Identifier: MIT

// Package storage provides a uniform read/write/list abstraction over
// either a real directory tree or an in-memory tree, plus typed object
// persistence on top of either. It is grounded on the teacher's
// storage layer (cmd/qrank-builder/main.go, cmd/osmviews-builder/storage.go),
// generalized from "an S3 bucket" to "any of {disk, memory, S3}" behind
// one capability interface.
package storage

import (
	"encoding/gob"
	"errors"
	"image"
	"io"
)

// ErrUnsupported is returned by a Storage variant for a capability it
// does not implement (the Remote variant only implements the subset
// needed for batch-output publishing).
var ErrUnsupported = errors.New("storage: capability not supported by this variant")

// ReadSeekCloser is what Open returns: buffered, seekable, safe to hand
// to another goroutine.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// WriteSeekCloser is what Create returns: buffered and seekable so the
// XYZ record-store Writer (internal/pointstore) can rewind and
// finalize its header.
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Storage is the capability set every stage depends on. All paths are
// relative to the storage root.
type Storage interface {
	CreateDirAll(path string) error
	List(path string) ([]string, error)
	Exists(path string) bool
	Open(path string) (ReadSeekCloser, error)
	Create(path string) (WriteSeekCloser, error)
	ReadToString(path string) (string, error)
	RemoveFile(path string) error
	RemoveDirAll(path string) error
	FileSize(path string) (int64, error)
	Copy(from, to string) error
	ReadImagePNG(path string) (image.Image, error)
	ReadShapefile(path string) (ReadSeekCloser, error)
	ExtractZip(archive, target string) error
}

// objectStore is implemented by variants that can shortcut typed
// object persistence by storing the Go value directly, with no
// serialization. Memory implements it; Disk and Remote fall back to
// gob encoding in WriteObject/ReadObject below.
type objectStore interface {
	storeObject(path string, v any)
	loadObject(path string) (any, bool)
}

// WriteObject persists v at path. Memory-backed storage stores the
// value directly (copy-on-write, no encoding); other variants gob-encode
// it straight into a file created at path (no temporary file, no
// rename), using gob rather than the teacher's json.Marshal
// (cmd/osmviews-builder/stats.go) since these sidecars are
// Go-internal, not meant to be read by other tools.
func WriteObject[T any](s Storage, path string, v T) error {
	if os, ok := s.(objectStore); ok {
		os.storeObject(path, v)
		return nil
	}
	f, err := s.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(v)
}

// ReadObject reads back a value written with WriteObject.
func ReadObject[T any](s Storage, path string) (T, error) {
	var zero T
	if os, ok := s.(objectStore); ok {
		if v, found := os.loadObject(path); found {
			tv, ok := v.(T)
			if !ok {
				return zero, errors.New("storage: object has unexpected type")
			}
			return tv, nil
		}
		return zero, ErrObjectNotFound
	}
	f, err := s.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	var v T
	if err := gob.NewDecoder(f).Decode(&v); err != nil {
		return zero, err
	}
	return v, nil
}

// ErrObjectNotFound is returned by ReadObject when the path has never
// been written in a Memory-backed store.
var ErrObjectNotFound = errors.New("storage: object not found")
