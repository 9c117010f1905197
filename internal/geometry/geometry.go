// SPDX-License-Identifier: MIT

// Package geometry implements the vector/DXF container (component D):
// a versioned envelope holding a tagged union of Points, Polylines2
// and Polylines3, each entry carrying a Classification that maps to a
// fixed DXF layer. Grounded on the original tool's geometry.rs
// (BinaryDxf/Geometry/Points/Polylines, its ClassificationToLayer
// trait and textual DXF emission format strings), expressed with the
// teacher's length-prefixed binary encoding idiom
// (cmd/qrank-builder/linktarget.go), with fixed-width little-endian u32
// counts and lengths rather than varints, instead of serde.
package geometry

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/andybalholm/brotli"

	"github.com/mnlk/terrastrokes/internal/pipeline"
	"github.com/mnlk/terrastrokes/internal/storage"
)

// Classification is the closed enumeration of entity kinds, each
// mapped to a fixed DXF layer name. Must fit in one byte.
type Classification uint8

const (
	ContourSimple Classification = iota
	Contour
	ContourIndex
	ContourIntermed
	ContourIndexIntermed
	Depression
	DepressionIndex
	DepressionIntermed
	DepressionIndexIntermed
	Dotknoll
	Udepression
	UglyDotknoll
	UglyUdepression
	Cliff2
	Cliff3
	Cliff4
)

// LayerName returns the DXF layer a classification is emitted into.
func (c Classification) LayerName() string {
	switch c {
	case ContourSimple:
		return "cont"
	case Contour:
		return "contour"
	case ContourIndex:
		return "index"
	case ContourIntermed:
		return "contour_intermed"
	case ContourIndexIntermed:
		return "index_intermed"
	case Depression:
		return "depression"
	case DepressionIndex:
		return "depression_index"
	case DepressionIntermed:
		return "depression_intermed"
	case DepressionIndexIntermed:
		return "depression_index_intermed"
	case Dotknoll:
		return "knoll"
	case Udepression:
		return "udepression"
	case UglyDotknoll:
		return "uglyknoll"
	case UglyUdepression:
		return "uglyudepression"
	case Cliff2:
		return "cliff2"
	case Cliff3:
		return "cliff3"
	case Cliff4:
		return "cliff4"
	default:
		return "unknown"
	}
}

// Point2 is a world-coordinate vertex.
type Point2 struct{ X, Y float64 }

// Point3 additionally carries the elevation annotation final contours
// are emitted with.
type Point3 struct {
	X, Y, Z float64
}

// Points is a collection of classified points (water/building plots,
// knoll pins).
type Points struct {
	XY    []Point2
	Class []Classification
}

func (p *Points) Push(x, y float64, class Classification) {
	p.XY = append(p.XY, Point2{X: x, Y: y})
	p.Class = append(p.Class, class)
}

// Polylines2 is a collection of classified 2D polylines (raw contour
// output before elevation annotation).
type Polylines2 struct {
	Lines [][]Point2
	Class []Classification
}

func (p *Polylines2) Push(line []Point2, class Classification) {
	p.Lines = append(p.Lines, line)
	p.Class = append(p.Class, class)
}

// Polylines3 is a collection of classified, elevation-annotated
// polylines (the final smoothed/classified contour stack).
type Polylines3 struct {
	Lines [][]Point3
	Class []Classification
}

func (p *Polylines3) Push(line []Point3, class Classification) {
	p.Lines = append(p.Lines, line)
	p.Class = append(p.Class, class)
}

// kind tags the Geometry union on the wire.
type kind uint8

const (
	kindPoints kind = iota
	kindPolylines2
	kindPolylines3
)

// Geometry is a tagged union; exactly one of the three fields is set.
type Geometry struct {
	Points     *Points
	Polylines2 *Polylines2
	Polylines3 *Polylines3
}

func (g *Geometry) kind() kind {
	switch {
	case g.Points != nil:
		return kindPoints
	case g.Polylines2 != nil:
		return kindPolylines2
	default:
		return kindPolylines3
	}
}

// Bounds is the envelope's spatial extent, echoed into the DXF
// $EXTMIN/$EXTMAX header fields.
type Bounds struct {
	XMin, XMax, YMin, YMax float64
}

// Stack is the versioned envelope persisted as *.dxf.bin.
type Stack struct {
	Version string
	Bounds  Bounds
	Data    []Geometry
}

// New wraps data with the current tool version and bounds.
func New(version string, bounds Bounds, data []Geometry) *Stack {
	return &Stack{Version: version, Bounds: bounds, Data: data}
}

// --- binary encoding ---

func writeString(w io.Writer, s string) error {
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(s)))
	if _, err := w.Write(lb[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lb[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeF64(w io.Writer, v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	_, err := w.Write(b[:])
	return err
}

func readF64(r io.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// Encode serializes the stack: version string, four f64 bounds, an
// entry count, then each tagged Geometry entry.
func Encode(w io.Writer, s *Stack) error {
	if err := writeString(w, s.Version); err != nil {
		return err
	}
	for _, v := range []float64{s.Bounds.XMin, s.Bounds.XMax, s.Bounds.YMin, s.Bounds.YMax} {
		if err := writeF64(w, v); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(s.Data))); err != nil {
		return err
	}
	for _, g := range s.Data {
		if err := encodeGeometry(w, &g); err != nil {
			return err
		}
	}
	return nil
}

func encodeGeometry(w io.Writer, g *Geometry) error {
	k := g.kind()
	if _, err := w.Write([]byte{byte(k)}); err != nil {
		return err
	}
	switch k {
	case kindPoints:
		p := g.Points
		if err := writeU32(w, uint32(len(p.XY))); err != nil {
			return err
		}
		for i, pt := range p.XY {
			if err := writeF64(w, pt.X); err != nil {
				return err
			}
			if err := writeF64(w, pt.Y); err != nil {
				return err
			}
			if _, err := w.Write([]byte{byte(p.Class[i])}); err != nil {
				return err
			}
		}
	case kindPolylines2:
		p := g.Polylines2
		if err := writeU32(w, uint32(len(p.Lines))); err != nil {
			return err
		}
		for i, line := range p.Lines {
			if err := writeU32(w, uint32(len(line))); err != nil {
				return err
			}
			for _, pt := range line {
				if err := writeF64(w, pt.X); err != nil {
					return err
				}
				if err := writeF64(w, pt.Y); err != nil {
					return err
				}
			}
			if _, err := w.Write([]byte{byte(p.Class[i])}); err != nil {
				return err
			}
		}
	case kindPolylines3:
		p := g.Polylines3
		if err := writeU32(w, uint32(len(p.Lines))); err != nil {
			return err
		}
		for i, line := range p.Lines {
			if err := writeU32(w, uint32(len(line))); err != nil {
				return err
			}
			for _, pt := range line {
				if err := writeF64(w, pt.X); err != nil {
					return err
				}
				if err := writeF64(w, pt.Y); err != nil {
					return err
				}
				if err := writeF64(w, pt.Z); err != nil {
					return err
				}
			}
			if _, err := w.Write([]byte{byte(p.Class[i])}); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeGeometry(r io.Reader) (Geometry, error) {
	var kb [1]byte
	if _, err := io.ReadFull(r, kb[:]); err != nil {
		return Geometry{}, err
	}
	switch kind(kb[0]) {
	case kindPoints:
		n, err := readU32(r)
		if err != nil {
			return Geometry{}, err
		}
		p := &Points{XY: make([]Point2, n), Class: make([]Classification, n)}
		for i := range p.XY {
			x, err := readF64(r)
			if err != nil {
				return Geometry{}, err
			}
			y, err := readF64(r)
			if err != nil {
				return Geometry{}, err
			}
			var cb [1]byte
			if _, err := io.ReadFull(r, cb[:]); err != nil {
				return Geometry{}, err
			}
			p.XY[i] = Point2{X: x, Y: y}
			p.Class[i] = Classification(cb[0])
		}
		return Geometry{Points: p}, nil
	case kindPolylines2:
		n, err := readU32(r)
		if err != nil {
			return Geometry{}, err
		}
		p := &Polylines2{Lines: make([][]Point2, n), Class: make([]Classification, n)}
		for i := range p.Lines {
			m, err := readU32(r)
			if err != nil {
				return Geometry{}, err
			}
			line := make([]Point2, m)
			for j := range line {
				x, err := readF64(r)
				if err != nil {
					return Geometry{}, err
				}
				y, err := readF64(r)
				if err != nil {
					return Geometry{}, err
				}
				line[j] = Point2{X: x, Y: y}
			}
			var cb [1]byte
			if _, err := io.ReadFull(r, cb[:]); err != nil {
				return Geometry{}, err
			}
			p.Lines[i] = line
			p.Class[i] = Classification(cb[0])
		}
		return Geometry{Polylines2: p}, nil
	case kindPolylines3:
		n, err := readU32(r)
		if err != nil {
			return Geometry{}, err
		}
		p := &Polylines3{Lines: make([][]Point3, n), Class: make([]Classification, n)}
		for i := range p.Lines {
			m, err := readU32(r)
			if err != nil {
				return Geometry{}, err
			}
			line := make([]Point3, m)
			for j := range line {
				x, err := readF64(r)
				if err != nil {
					return Geometry{}, err
				}
				y, err := readF64(r)
				if err != nil {
					return Geometry{}, err
				}
				z, err := readF64(r)
				if err != nil {
					return Geometry{}, err
				}
				line[j] = Point3{X: x, Y: y, Z: z}
			}
			var cb [1]byte
			if _, err := io.ReadFull(r, cb[:]); err != nil {
				return Geometry{}, err
			}
			p.Lines[i] = line
			p.Class[i] = Classification(cb[0])
		}
		return Geometry{Polylines3: p}, nil
	default:
		return Geometry{}, fmt.Errorf("geometry: unknown tag %d", kb[0])
	}
}

// Decode reads back a Stack written by Encode, rejecting a version
// mismatch as stale so a caller knows to remove and recreate the file.
func Decode(r io.Reader, currentVersion string) (*Stack, error) {
	version, err := readString(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	if version != currentVersion {
		return nil, pipeline.Wrap(pipeline.Stale, "", fmt.Errorf("dxf.bin was created by version %q, current is %q", version, currentVersion))
	}
	xmin, err := readF64(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	xmax, err := readF64(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	ymin, err := readF64(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	ymax, err := readF64(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	n, err := readU32(r)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, "", err)
	}
	data := make([]Geometry, n)
	for i := range data {
		g, err := decodeGeometry(r)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.InvalidInput, "", err)
		}
		data[i] = g
	}
	return &Stack{Version: version, Bounds: Bounds{xmin, xmax, ymin, ymax}, Data: data}, nil
}

// Save writes s to path on store, brotli-compressed the way the
// teacher persists its own binary dumps.
func Save(store storage.Storage, path string, s *Stack) error {
	f, err := store.Create(path)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	bw := brotli.NewWriter(f)
	if err := Encode(bw, s); err != nil {
		return err
	}
	return bw.Close()
}

// Load reads a brotli-compressed Stack from path on store.
func Load(store storage.Storage, path, currentVersion string) (*Stack, error) {
	f, err := store.Open(path)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	return Decode(brotli.NewReader(f), currentVersion)
}

// --- textual DXF emission ---

// WriteDXF emits s as a textual DXF document: a HEADER section with
// $EXTMIN/$EXTMAX, an ENTITIES section with one POLYLINE/VERTEX.../SEQEND
// per line (height group codes added for Polylines3) or one POINT per
// plotted point, CRLF throughout.
func WriteDXF(w io.Writer, s *Stack) error {
	bw := bufio.NewWriter(w)
	crlf := "\r\n"

	fmt.Fprintf(bw, "  0%sSECTION%s  2%sHEADER%s", crlf, crlf, crlf, crlf)
	fmt.Fprintf(bw, "  9%s$EXTMIN%s 10%s%v%s 20%s%v%s", crlf, crlf, crlf, s.Bounds.XMin, crlf, crlf, s.Bounds.YMin, crlf)
	fmt.Fprintf(bw, "  9%s$EXTMAX%s 10%s%v%s 20%s%v%s", crlf, crlf, crlf, s.Bounds.XMax, crlf, crlf, s.Bounds.YMax, crlf)
	fmt.Fprintf(bw, "  0%sENDSEC%s", crlf, crlf)
	fmt.Fprintf(bw, "  0%sSECTION%s  2%sENTITIES%s  0%s", crlf, crlf, crlf, crlf, crlf)

	for _, g := range s.Data {
		switch {
		case g.Points != nil:
			for i, pt := range g.Points.XY {
				layer := g.Points.Class[i].LayerName()
				fmt.Fprintf(bw, "POINT%s  8%s%s%s 10%s%v%s 20%s%v%s 50%s0%s  0%s",
					crlf, crlf, layer, crlf, crlf, pt.X, crlf, crlf, pt.Y, crlf, crlf, crlf, crlf)
			}
		case g.Polylines2 != nil:
			for i, line := range g.Polylines2.Lines {
				layer := g.Polylines2.Class[i].LayerName()
				fmt.Fprintf(bw, "POLYLINE%s 66%s1%s  8%s%s%s  0%s", crlf, crlf, crlf, crlf, layer, crlf, crlf)
				for _, pt := range line {
					fmt.Fprintf(bw, "VERTEX%s  8%s%s%s 10%s%v%s 20%s%v%s  0%s",
						crlf, crlf, layer, crlf, crlf, pt.X, crlf, crlf, pt.Y, crlf, crlf)
				}
				fmt.Fprintf(bw, "SEQEND%s  0%s", crlf, crlf)
			}
		case g.Polylines3 != nil:
			for i, line := range g.Polylines3.Lines {
				layer := g.Polylines3.Class[i].LayerName()
				height := 0.0
				if len(line) > 0 {
					height = line[0].Z
				}
				fmt.Fprintf(bw, "POLYLINE%s 66%s1%s  8%s%s%s 38%s%v%s  0%s",
					crlf, crlf, crlf, crlf, layer, crlf, crlf, height, crlf, crlf)
				for _, pt := range line {
					fmt.Fprintf(bw, "VERTEX%s  8%s%s%s 10%s%v%s 20%s%v%s 30%s%v%s  0%s",
						crlf, crlf, layer, crlf, crlf, pt.X, crlf, crlf, pt.Y, crlf, crlf, pt.Z, crlf, crlf)
				}
				fmt.Fprintf(bw, "SEQEND%s  0%s", crlf, crlf)
			}
		}
	}

	fmt.Fprintf(bw, "ENDSEC%s  0%sEOF%s", crlf, crlf, crlf)
	return bw.Flush()
}
