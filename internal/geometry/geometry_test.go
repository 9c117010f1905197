// SPDX-License-Identifier: MIT

package geometry

import (
	"bytes"
	"strings"
	"testing"
)

func sample() *Stack {
	pl := &Polylines2{}
	pl.Push([]Point2{{X: 0, Y: 0}, {X: 1, Y: 1}}, ContourSimple)
	return New("0.1.0", Bounds{XMin: 0, XMax: 1, YMin: 0, YMax: 1}, []Geometry{{Polylines2: pl}})
}

func TestBinaryRoundTrip(t *testing.T) {
	s := sample()
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf, "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != s.Version {
		t.Fatalf("version mismatch: %q vs %q", got.Version, s.Version)
	}
	if len(got.Data) != 1 || got.Data[0].Polylines2 == nil {
		t.Fatalf("expected one Polylines2 entry, got %+v", got.Data)
	}
	line := got.Data[0].Polylines2.Lines[0]
	if len(line) != 2 || line[1] != (Point2{X: 1, Y: 1}) {
		t.Fatalf("line mismatch: %+v", line)
	}
}

func TestDecodeRejectsStaleVersion(t *testing.T) {
	s := sample()
	var buf bytes.Buffer
	Encode(&buf, s)
	if _, err := Decode(&buf, "9.9.9"); err == nil {
		t.Fatal("expected stale-version error")
	}
}

func TestWriteDXFShape(t *testing.T) {
	s := sample()
	var buf bytes.Buffer
	if err := WriteDXF(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"SECTION\r\n", "$EXTMIN\r\n", "POLYLINE\r\n", "VERTEX\r\n", "SEQEND\r\n", "ENDSEC\r\n", "EOF\r\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("DXF output missing %q", want)
		}
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("found a bare LF not part of a CRLF pair")
	}
}

func TestClassificationLayerNames(t *testing.T) {
	if Contour.LayerName() == "unknown" {
		t.Fatal("Contour should map to a known layer")
	}
	if Cliff4.LayerName() != "cliff4" {
		t.Fatalf("Cliff4 layer = %q", Cliff4.LayerName())
	}
}
