// SPDX-License-Identifier: MIT

// Package tilestack implements the per-tile-output crop, DXF merge and
// PNG merge collaborators (component L). Grounded on the original
// tool's crop.rs (bounding-box line/point cropping with one preceding
// anchor carried across the min edge) and merge.rs (per-suffix DXF
// concatenation with intermediate-contour filtering for the combined
// file, and world-file-driven PNG mosaicking).
package tilestack

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/pipeline"
	"github.com/mnlk/terrastrokes/internal/storage"
)

// CropLines prunes a polyline set to [minx,maxx]x[miny,maxy], cutting
// lines at the boundary rather than discarding them wholesale: a line
// exiting across the min edge keeps one point just outside as an
// anchor so the cut edge still renders to the boundary.
func CropLines(lines [][]geometry.Point2, minx, miny, maxx, maxy float64) [][]geometry.Point2 {
	var out [][]geometry.Point2
	for _, line := range lines {
		var poly []geometry.Point2
		var prev geometry.Point2
		havePrev := false
		inCount := 0

		flush := func() {
			if inCount > 1 {
				out = append(out, poly)
			}
			poly = nil
			inCount = 0
		}

		for _, p := range line {
			inside := p.X >= minx && p.X <= maxx && p.Y >= miny && p.Y <= maxy
			if inside {
				if havePrev && inCount == 0 && (prev.X < minx || prev.Y < miny) {
					poly = append(poly, prev)
					inCount++
				}
				poly = append(poly, p)
				inCount++
			} else if inCount > 1 {
				if p.X < minx || p.Y < miny {
					poly = append(poly, p)
				}
				flush()
			}
			prev = p
			havePrev = true
		}
		if inCount > 1 {
			out = append(out, poly)
		}
	}
	return out
}

// CropPoints keeps only the points falling inside [minx,maxx]x[miny,maxy].
func CropPoints(pts *geometry.Points, minx, miny, maxx, maxy float64) *geometry.Points {
	out := &geometry.Points{}
	for i, p := range pts.XY {
		if p.X >= minx && p.X <= maxx && p.Y >= miny && p.Y <= maxy {
			out.Push(p.X, p.Y, pts.Class[i])
		}
	}
	return out
}

// mergeSuffixes is the fixed, ordered list of per-tile DXF suffixes
// the combined stack is assembled from.
var mergeSuffixes = []string{
	"contours", "c2g", "basemap", "c3g", "formlines", "dotknolls", "detected",
	"cliffs",
}

// DxfMerge concatenates every tile's per-suffix BinaryDxf output into
// one merged file per suffix, plus a combined merged.dxf.bin with the
// contour suffix's intermediate-classified entries filtered out.
func DxfMerge(s storage.Storage, outDir string, version string) error {
	files, err := s.List(outDir)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, outDir, err)
	}

	bySuffix := map[string][]string{}
	for _, f := range files {
		for _, suffix := range mergeSuffixes {
			if strings.HasSuffix(f, "_"+suffix+".dxf.bin") {
				bySuffix[suffix] = append(bySuffix[suffix], f)
			}
		}
	}

	var firstBounds *geometry.Bounds
	var all []geometry.Geometry

	for _, suffix := range mergeSuffixes {
		matches := bySuffix[suffix]
		if len(matches) == 0 {
			continue
		}

		var geometries []geometry.Geometry
		for _, path := range matches {
			stack, err := geometry.Load(s, path, version)
			if err != nil {
				return err
			}
			if firstBounds == nil {
				b := stack.Bounds
				firstBounds = &b
			}
			geometries = append(geometries, stack.Data...)

			if suffix == "contours" {
				for _, g := range stack.Data {
					all = append(all, filterIntermediate(g))
				}
			} else {
				all = append(all, stack.Data...)
			}
		}

		if firstBounds == nil {
			continue
		}
		if suffix == "contours" {
			deduped, err := dedupeSeamFragments(geometries)
			if err != nil {
				return err
			}
			geometries = deduped
		}
		merged := geometry.New(version, *firstBounds, geometries)
		if err := geometry.Save(s, "merged_"+suffix+".dxf.bin", merged); err != nil {
			return err
		}
	}

	if firstBounds != nil {
		combined := geometry.New(version, *firstBounds, all)
		if err := geometry.Save(s, "merged.dxf.bin", combined); err != nil {
			return err
		}
	}
	return nil
}

// seamFragment is one contour polyline tagged with its sort key ahead
// of dedupeSeamFragments' external sort: a canonical, order-independent
// endpoint-pair key plus the classification, so two tiles that both
// drew the same seam line (their overlap buffers cover the same
// ground) land adjacent in the sorted stream and collide on key.
type seamFragment struct {
	key   [4]int64
	class geometry.Classification
	line  []geometry.Point2
}

func fragmentKey(line []geometry.Point2) [4]int64 {
	quant := func(p geometry.Point2) [2]int64 {
		return [2]int64{int64(math.Round(p.X * 1000)), int64(math.Round(p.Y * 1000))}
	}
	h, t := quant(line[0]), quant(line[len(line)-1])
	if h[0] > t[0] || (h[0] == t[0] && h[1] > t[1]) {
		h, t = t, h
	}
	return [4]int64{h[0], h[1], t[0], t[1]}
}

func (f seamFragment) ToBytes() []byte {
	buf := make([]byte, binary.MaxVarintLen64*(6+2*len(f.line)))
	n := 0
	for _, k := range f.key {
		n += binary.PutVarint(buf[n:], k)
	}
	n += binary.PutVarint(buf[n:], int64(f.class))
	n += binary.PutVarint(buf[n:], int64(len(f.line)))
	for _, p := range f.line {
		n += binary.PutVarint(buf[n:], int64(math.Round(p.X*1e6)))
		n += binary.PutVarint(buf[n:], int64(math.Round(p.Y*1e6)))
	}
	return buf[:n]
}

func seamFragmentFromBytes(b []byte) extsort.SortType {
	var f seamFragment
	n := 0
	for i := range f.key {
		v, nn := binary.Varint(b[n:])
		f.key[i] = v
		n += nn
	}
	class, nn := binary.Varint(b[n:])
	f.class = geometry.Classification(class)
	n += nn
	count, nn := binary.Varint(b[n:])
	n += nn
	f.line = make([]geometry.Point2, count)
	for i := range f.line {
		x, nn := binary.Varint(b[n:])
		n += nn
		y, nn := binary.Varint(b[n:])
		n += nn
		f.line[i] = geometry.Point2{X: float64(x) / 1e6, Y: float64(y) / 1e6}
	}
	return f
}

func seamFragmentLess(a, b extsort.SortType) bool {
	ka, kb := a.(seamFragment).key, b.(seamFragment).key
	if ka != kb {
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
	}
	return a.(seamFragment).class < b.(seamFragment).class
}

// dedupeSeamFragments removes duplicate contour lines that two
// adjacent tiles both emitted for the same ground seam; a line counts
// as a duplicate when its canonical endpoint pair and classification
// match, and interior vertices are not compared (their overlap
// buffers draw the same line independently before cropping). Unlike a
// single tile's head/tail merge, a full batch's combined contour
// fragment count can run into the millions, so the dedup scan goes
// through lanrat/extsort rather than an in-memory set: fragments are
// streamed through an external sort keyed by canonical endpoint pair
// and classification, and the consumer keeps only the first of each
// run of adjacent equal keys coming off the sorted channel. The sort
// order here is load-bearing, not decorative: the adjacency it
// produces is what lets the dedup pass be a single forward scan.
func dedupeSeamFragments(geometries []geometry.Geometry) ([]geometry.Geometry, error) {
	var out []geometry.Geometry
	var lines [][]geometry.Point2
	var classes []geometry.Classification
	total := 0
	for _, g := range geometries {
		if g.Polylines2 == nil {
			out = append(out, g)
			continue
		}
		total += len(g.Polylines2.Lines)
	}
	if total == 0 {
		return geometries, nil
	}

	ch := make(chan extsort.SortType, 1024)
	group, subCtx := errgroup.WithContext(context.Background())
	cfg := extsort.DefaultConfig()
	cfg.NumWorkers = runtime.NumCPU()
	sorter, outChan, errChan := extsort.New(ch, seamFragmentFromBytes, seamFragmentLess, cfg)

	group.Go(func() error {
		defer close(ch)
		for _, g := range geometries {
			if g.Polylines2 == nil {
				continue
			}
			for i, l := range g.Polylines2.Lines {
				if len(l) == 0 {
					continue
				}
				frag := seamFragment{key: fragmentKey(l), class: g.Polylines2.Class[i], line: l}
				select {
				case ch <- frag:
				case <-subCtx.Done():
					return subCtx.Err()
				}
			}
		}
		return nil
	})
	group.Go(func() error {
		sorter.Sort(context.Background()) // not subCtx, as per extsort docs
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var lastKey [4]int64
	var lastClass geometry.Classification
	haveLast := false
	for rec := range outChan {
		f := rec.(seamFragment)
		if haveLast && f.key == lastKey && f.class == lastClass {
			continue // duplicate seam line from an adjacent tile
		}
		lines = append(lines, f.line)
		classes = append(classes, f.class)
		lastKey, lastClass, haveLast = f.key, f.class, true
	}
	if err := <-errChan; err != nil {
		return nil, err
	}

	p := &geometry.Polylines2{Lines: lines, Class: classes}
	return append(out, geometry.Geometry{Polylines2: p}), nil
}

// filterIntermediate drops every entry classified as an intermediate
// contour/index, for the single merged.dxf.bin's contour layer.
func filterIntermediate(g geometry.Geometry) geometry.Geometry {
	isIntermed := func(c geometry.Classification) bool {
		return c == geometry.ContourIntermed || c == geometry.ContourIndexIntermed ||
			c == geometry.DepressionIntermed || c == geometry.DepressionIndexIntermed
	}
	switch {
	case g.Points != nil:
		out := &geometry.Points{}
		for i, p := range g.Points.XY {
			if !isIntermed(g.Points.Class[i]) {
				out.Push(p.X, p.Y, g.Points.Class[i])
			}
		}
		return geometry.Geometry{Points: out}
	case g.Polylines2 != nil:
		out := &geometry.Polylines2{}
		for i, l := range g.Polylines2.Lines {
			if !isIntermed(g.Polylines2.Class[i]) {
				out.Push(l, g.Polylines2.Class[i])
			}
		}
		return geometry.Geometry{Polylines2: out}
	default:
		out := &geometry.Polylines3{}
		for i, l := range g.Polylines3.Lines {
			if !isIntermed(g.Polylines3.Class[i]) {
				out.Push(l, g.Polylines3.Class[i])
			}
		}
		return geometry.Geometry{Polylines3: out}
	}
}

// worldFile is the parsed content of a .pgw sidecar.
type worldFile struct {
	pixelSize float64
	x, y      float64 // top-left world coordinate
}

func readWorldFile(s storage.Storage, path string) (*worldFile, error) {
	contents, err := s.ReadToString(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(contents, "\n")
	if len(lines) < 6 {
		return nil, pipeline.Wrap(pipeline.InvalidInput, path, fmt.Errorf("world file has fewer than 6 lines"))
	}
	pixelSize, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.InvalidInput, path, err)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(lines[4]), 64)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.InvalidInput, path, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lines[5]), 64)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.InvalidInput, path, err)
	}
	return &worldFile{pixelSize: pixelSize, x: x, y: y}, nil
}

// PngMerge stitches every PNG in pngFiles (with a matching .pgw
// sidecar) into a single image at 1/scale of native resolution,
// positioned by each tile's world-file origin, and writes
// outname.png/.jpg/.pgw/.jgw to s.
func PngMerge(s storage.Storage, pngFiles []string, outname string, scale float64) error {
	if len(pngFiles) == 0 {
		return nil
	}

	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)
	res := math.NaN()

	type tile struct {
		path string
		wf   *worldFile
		w, h int
	}
	var tiles []tile

	for _, p := range pngFiles {
		wfPath := strings.TrimSuffix(p, ".png") + ".pgw"
		if !s.Exists(wfPath) {
			continue
		}
		wf, err := readWorldFile(s, wfPath)
		if err != nil {
			return err
		}
		img, err := s.ReadImagePNG(p)
		if err != nil {
			return pipeline.Wrap(pipeline.Io, p, err)
		}
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if math.IsNaN(res) {
			res = wf.pixelSize
		}
		if wf.x < xmin {
			xmin = wf.x
		}
		if wf.x+float64(w)*res > xmax {
			xmax = wf.x + float64(w)*res
		}
		if wf.y > ymax {
			ymax = wf.y
		}
		if wf.y-float64(h)*res < ymin {
			ymin = wf.y - float64(h)*res
		}
		tiles = append(tiles, tile{path: p, wf: wf, w: w, h: h})
	}
	if len(tiles) == 0 {
		return nil
	}

	outW := int((xmax - xmin) / res / scale)
	outH := int((ymax - ymin) / res / scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	canvas := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: image.White}, image.Point{}, draw.Src)

	for _, t := range tiles {
		img, err := s.ReadImagePNG(t.path)
		if err != nil {
			return pipeline.Wrap(pipeline.Io, t.path, err)
		}
		thumbW := int(float64(t.w)/scale + 0.5)
		thumbH := int(float64(t.h)/scale + 0.5)
		thumb := thumbnail(img, thumbW, thumbH)

		ox := int((t.wf.x - xmin) / res / scale)
		oy := int((ymax - t.wf.y) / res / scale)
		draw.Draw(canvas, image.Rect(ox, oy, ox+thumbW, oy+thumbH), thumb, image.Point{}, draw.Over)
	}

	if err := writePNG(s, outname+".png", canvas); err != nil {
		return err
	}
	if err := writeJPEG(s, outname+".jpg", canvas); err != nil {
		return err
	}
	if err := writeWorldFile(s, outname+".pgw", res*scale, xmin, ymax); err != nil {
		return err
	}
	return s.Copy(outname+".pgw", outname+".jgw")
}

// thumbnail does simple nearest-neighbour downsampling, mirroring the
// original tool's use of a fast box thumbnail before mosaicking.
func thumbnail(src image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			out.Set(x, y, src.At(sx, sy))
		}
	}
	return out
}

func writePNG(s storage.Storage, path string, img image.Image) error {
	f, err := s.Create(path)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeJPEG(s storage.Storage, path string, img image.Image) error {
	f, err := s.Create(path)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

func writeWorldFile(s storage.Storage, path string, pixelSize, x, y float64) error {
	f, err := s.Create(path)
	if err != nil {
		return pipeline.Wrap(pipeline.Io, path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%v\r\n0\r\n0\r\n%v\r\n%v\r\n%v\r\n", pixelSize, -pixelSize, x, y)
	return err
}
