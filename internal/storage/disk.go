// SPDX-License-Identifier: MIT

package storage

import (
	"archive/zip"
	"bufio"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
)

const bufferSize = 1 << 20 // 1 MiB, matches the teacher's buffered-reader sizing

// Disk is the Storage variant backed by the host filesystem, rooted at
// a base directory (normally a tile's temporary workspace).
type Disk struct {
	Root string
}

// NewDisk returns a Disk-backed Storage rooted at root. The caller is
// responsible for creating root itself via CreateDirAll(".").
func NewDisk(root string) *Disk {
	return &Disk{Root: root}
}

func (d *Disk) abs(path string) string {
	return filepath.Join(d.Root, filepath.FromSlash(path))
}

func (d *Disk) CreateDirAll(path string) error {
	return os.MkdirAll(d.abs(path), 0o755)
}

func (d *Disk) List(path string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(path))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(path, e.Name()))
	}
	return out, nil
}

func (d *Disk) Exists(path string) bool {
	_, err := os.Stat(d.abs(path))
	return err == nil
}

type diskReader struct {
	*bufio.Reader
	f *os.File
}

func (r *diskReader) Read(p []byte) (int, error) { return r.Reader.Read(p) }
func (r *diskReader) Seek(offset int64, whence int) (int64, error) {
	n, err := r.f.Seek(offset, whence)
	if err == nil {
		r.Reader.Reset(r.f)
	}
	return n, err
}
func (r *diskReader) Close() error { return r.f.Close() }

func (d *Disk) Open(path string) (ReadSeekCloser, error) {
	f, err := os.Open(d.abs(path))
	if err != nil {
		return nil, err
	}
	return &diskReader{Reader: bufio.NewReaderSize(f, bufferSize), f: f}, nil
}

type diskWriter struct {
	*bufio.Writer
	f *os.File
}

func (w *diskWriter) Write(p []byte) (int, error) { return w.Writer.Write(p) }
func (w *diskWriter) Seek(offset int64, whence int) (int64, error) {
	if err := w.Writer.Flush(); err != nil {
		return 0, err
	}
	return w.f.Seek(offset, whence)
}
func (w *diskWriter) Close() error {
	if err := w.Writer.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (d *Disk) Create(path string) (WriteSeekCloser, error) {
	f, err := os.Create(d.abs(path))
	if err != nil {
		return nil, err
	}
	return &diskWriter{Writer: bufio.NewWriterSize(f, bufferSize), f: f}, nil
}

func (d *Disk) ReadToString(path string) (string, error) {
	b, err := os.ReadFile(d.abs(path))
	return string(b), err
}

func (d *Disk) RemoveFile(path string) error   { return os.Remove(d.abs(path)) }
func (d *Disk) RemoveDirAll(path string) error { return os.RemoveAll(d.abs(path)) }

func (d *Disk) FileSize(path string) (int64, error) {
	fi, err := os.Stat(d.abs(path))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *Disk) Copy(from, to string) error {
	src, err := os.Open(d.abs(from))
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(d.abs(to))
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func (d *Disk) ReadImagePNG(path string) (image.Image, error) {
	f, err := os.Open(d.abs(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// ReadShapefile opens the raw .shp stream. Parsing shapefiles into map
// symbols is an out-of-scope collaborator (spec.md §1); this only
// satisfies the capability so callers can hand the stream to one.
func (d *Disk) ReadShapefile(path string) (ReadSeekCloser, error) {
	return d.Open(path)
}

// ExtractZip unpacks archive into target. Out-of-scope per spec.md §1
// beyond this capability existing; stdlib archive/zip is a reasonable
// default for a pass-through collaborator hook (no domain dependency in
// the retrieval pack exercises ZIP specifically).
func (d *Disk) ExtractZip(archive, target string) error {
	r, err := zip.OpenReader(d.abs(archive))
	if err != nil {
		return err
	}
	defer r.Close()

	targetAbs := d.abs(target)
	for _, f := range r.File {
		dest := filepath.Join(targetAbs, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
