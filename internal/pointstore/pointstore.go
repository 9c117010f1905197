// SPDX-License-Identifier: MIT

// Package pointstore implements the XYZ binary laser-record store: a
// magic-tagged, header-bearing sequential file of fixed 24-byte
// records. Grounded on the teacher's LinkWriter/titles.go buffered
// sequential-write idiom (cmd/qrank-builder/links.go, titles.go),
// generalized from "buffer then gzip" to "buffer, track running
// bounds, rewrite the header on Close".
package pointstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mnlk/terrastrokes/internal/pipeline"
	"github.com/mnlk/terrastrokes/internal/storage"
)

const (
	magic        = "XYZB"
	headerSize   = 8 + 6*8 // n_records + 6 f64 bounds
	recordSize   = 24
	chunkRecords = 1024
)

// Record is one laser return: the conventional LAS fields the
// pipeline keeps, x/y in full precision and z in single precision.
type Record struct {
	X               float64
	Y               float64
	Z               float32
	Classification  uint8
	NumberOfReturns uint8
	ReturnNumber    uint8
}

func (r Record) encode() [recordSize]byte {
	var b [recordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(r.X))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(r.Y))
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(r.Z))
	b[20] = r.Classification
	b[21] = r.NumberOfReturns
	b[22] = r.ReturnNumber
	// b[23] is the trailing pad byte, left zero.
	return b
}

func decodeRecord(b []byte) Record {
	return Record{
		X:               math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Y:               math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		Z:               math.Float32frombits(binary.LittleEndian.Uint32(b[16:20])),
		Classification:  b[20],
		NumberOfReturns: b[21],
		ReturnNumber:    b[22],
	}
}

// header is the fixed 56-byte block following the magic.
type header struct {
	NRecords                           uint64
	MinX, MaxX, MinY, MaxY, MinZ, MaxZ float64
}

func (h header) encode() [headerSize]byte {
	var b [headerSize]byte
	binary.LittleEndian.PutUint64(b[0:8], h.NRecords)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(h.MinX))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(h.MaxX))
	binary.LittleEndian.PutUint64(b[24:32], math.Float64bits(h.MinY))
	binary.LittleEndian.PutUint64(b[32:40], math.Float64bits(h.MaxY))
	binary.LittleEndian.PutUint64(b[40:48], math.Float64bits(h.MinZ))
	binary.LittleEndian.PutUint64(b[48:56], math.Float64bits(h.MaxZ))
	return b
}

func decodeHeader(b []byte) header {
	return header{
		NRecords: binary.LittleEndian.Uint64(b[0:8]),
		MinX:     math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		MaxX:     math.Float64frombits(binary.LittleEndian.Uint64(b[16:24])),
		MinY:     math.Float64frombits(binary.LittleEndian.Uint64(b[24:32])),
		MaxY:     math.Float64frombits(binary.LittleEndian.Uint64(b[32:40])),
		MinZ:     math.Float64frombits(binary.LittleEndian.Uint64(b[40:48])),
		MaxZ:     math.Float64frombits(binary.LittleEndian.Uint64(b[48:56])),
	}
}

// Writer accumulates records into a buffered, seekable sink, tracking
// a running header that is finalized on Close. The header is reserved
// with placeholder bytes on the first write and rewritten in place
// once the true bounds and count are known.
type Writer struct {
	w      storage.WriteSeekCloser
	buf    *bufio.Writer
	hdr    header
	wrote  bool
	closed bool
}

// NewWriter wraps w, an already-open seekable sink, as an XYZ record
// writer.
func NewWriter(w storage.WriteSeekCloser) *Writer {
	return &Writer{
		w:   w,
		buf: bufio.NewWriterSize(w, chunkRecords*recordSize),
		hdr: header{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1), MinZ: math.Inf(1), MaxZ: math.Inf(-1)},
	}
}

// Create opens path on s and returns a Writer over it.
func Create(s storage.Storage, path string) (*Writer, error) {
	f, err := s.Create(path)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, path, err)
	}
	return NewWriter(f), nil
}

func (w *Writer) reserveHeader() error {
	if _, err := w.buf.Write([]byte(magic)); err != nil {
		return err
	}
	var placeholder [headerSize]byte
	_, err := w.buf.Write(placeholder[:])
	return err
}

// Write appends r, updating the running header.
func (w *Writer) Write(r Record) error {
	if !w.wrote {
		if err := w.reserveHeader(); err != nil {
			return pipeline.Wrap(pipeline.Io, "", err)
		}
		w.wrote = true
	}
	b := r.encode()
	if _, err := w.buf.Write(b[:]); err != nil {
		return pipeline.Wrap(pipeline.Io, "", err)
	}
	w.hdr.NRecords++
	if r.X < w.hdr.MinX {
		w.hdr.MinX = r.X
	}
	if r.X > w.hdr.MaxX {
		w.hdr.MaxX = r.X
	}
	if r.Y < w.hdr.MinY {
		w.hdr.MinY = r.Y
	}
	if r.Y > w.hdr.MaxY {
		w.hdr.MaxY = r.Y
	}
	z := float64(r.Z)
	if z < w.hdr.MinZ {
		w.hdr.MinZ = z
	}
	if z > w.hdr.MaxZ {
		w.hdr.MaxZ = z
	}
	return nil
}

// Close finalizes the header and closes the sink. It is idempotent:
// a second call is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.wrote {
		if err := w.reserveHeader(); err != nil {
			return pipeline.Wrap(pipeline.Io, "", err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return pipeline.Wrap(pipeline.Io, "", err)
	}
	if _, err := w.w.Seek(int64(len(magic)), io.SeekStart); err != nil {
		return pipeline.Wrap(pipeline.Io, "", err)
	}
	hb := w.hdr.encode()
	if _, err := w.w.Write(hb[:]); err != nil {
		return pipeline.Wrap(pipeline.Io, "", err)
	}
	return w.w.Close()
}

// Closer is satisfied by *Writer and *Reader; used by callers that defer
// a best-effort close and want to surface an otherwise-silent failure.
type Closer interface {
	Close() error
}

// MustClose closes c, panicking on failure. Used where a caller would
// otherwise drop a Writer or Reader without checking Close's error —
// mirrors the "panic acceptable, logging preferred" drop-time contract.
func MustClose(c Closer) {
	if err := c.Close(); err != nil {
		panic(fmt.Sprintf("pointstore: close failed: %v", err))
	}
}

// Reader validates the magic and header on open and exposes records in
// chunks. It is non-seekable: callers consume it front to back.
type Reader struct {
	r       io.Reader
	hdr     header
	read    uint64
	nameErr string
}

// Open validates path's magic and header and returns a Reader.
func Open(s storage.Storage, path string) (*Reader, error) {
	f, err := s.Open(path)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, path, err)
	}
	return NewReader(f, path)
}

// NewReader wraps r, positioned at the start of an XYZ file.
func NewReader(r io.Reader, artifact string) (*Reader, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, pipeline.Wrap(pipeline.Io, artifact, err)
	}
	if string(m[:]) != magic {
		return nil, pipeline.Wrap(pipeline.InvalidInput, artifact, fmt.Errorf("bad magic %q", m))
	}
	var hb [headerSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, pipeline.Wrap(pipeline.InvalidInput, artifact, err)
	}
	return &Reader{r: r, hdr: decodeHeader(hb[:]), nameErr: artifact}, nil
}

// NRecords returns the record count recorded in the header.
func (r *Reader) NRecords() uint64 { return r.hdr.NRecords }

// Close closes the underlying stream when it is an io.Closer (as the
// handle Open obtains from storage is); otherwise it does nothing.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Bounds returns the coordinate-wise min/max recorded in the header.
func (r *Reader) Bounds() (minX, maxX, minY, maxY, minZ, maxZ float64) {
	return r.hdr.MinX, r.hdr.MaxX, r.hdr.MinY, r.hdr.MaxY, r.hdr.MinZ, r.hdr.MaxZ
}

// NextChunk returns up to 1024 records, or io.EOF once the header's
// advertised count is exhausted.
func (r *Reader) NextChunk() ([]Record, error) {
	if r.read >= r.hdr.NRecords {
		return nil, io.EOF
	}
	n := uint64(chunkRecords)
	if remaining := r.hdr.NRecords - r.read; remaining < n {
		n = remaining
	}
	buf := make([]byte, int(n)*recordSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, pipeline.Wrap(pipeline.Io, r.nameErr, err)
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = decodeRecord(buf[i*recordSize : (i+1)*recordSize])
	}
	r.read += n
	return out, nil
}

// All drains the reader into a single slice. Convenience for stages
// that need every record in memory at once (heightmap synthesis).
func (r *Reader) All() ([]Record, error) {
	var out []Record
	for {
		chunk, err := r.NextChunk()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}
