// SPDX-License-Identifier: MIT

// Package knolls implements knoll and U-depression detection and grid
// nudging (component H). Grounded on the original tool's knolls.rs:
// head/tail polyline reconstruction from the fine-interval contour
// set, point-in-polygon elevation-consistency tests, a hierarchical
// top/candidate selection with contours_ratio tie-breaking, and a
// steepness-weighted grid smoothing plus pin-based nudging pass.
package knolls

import (
	"math"
	"sort"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

const (
	maxMergedVertices = 121
	minLoopVertices   = 3
	minPerimeter      = 5.0
	candidateMinGap   = 0.1
	candidateMaxGap   = 4.6
	tieBreakRatio     = 1.75
	tieBreakGapFactor = 0.6
)

// endpointKey quantises a world coordinate to a merge-matching key
// (x1000), per the original tool's head/tail dictionaries.
func endpointKey(p geometry.Point2) [2]int64 {
	return [2]int64{int64(math.Round(p.X * 1000)), int64(math.Round(p.Y * 1000))}
}

// MergeClosed reassembles raw contour polylines into the longest
// possible chains by repeatedly joining a line's head or tail to
// another line's matching endpoint (tail-to-head, tail-to-tail,
// head-to-tail, head-to-head, reversing as needed), then returns only
// the closed loops (head == tail) whose length and perimeter clear
// the thresholds. When capVertices is true, lines longer than 121
// vertices are rejected outright (stage H1's behaviour); smoothjoin's
// re-run of this merge passes capVertices=false.
func MergeClosed(lines [][]geometry.Point2, capVertices bool) [][]geometry.Point2 {
	remaining := make([][]geometry.Point2, len(lines))
	copy(remaining, lines)

	for changed := true; changed; {
		changed = false
		heads := map[[2]int64]int{}
		tails := map[[2]int64]int{}
		for i, l := range remaining {
			if l == nil {
				continue
			}
			heads[endpointKey(l[0])] = i
			tails[endpointKey(l[len(l)-1])] = i
		}
		for i, l := range remaining {
			if l == nil || len(l) == 0 {
				continue
			}
			head, tail := endpointKey(l[0]), endpointKey(l[len(l)-1])
			if head == tail {
				continue // already closed
			}
			if j, ok := tails[tail]; ok && j != i && remaining[j] != nil {
				remaining[i] = joinTailToHead(l, reverse(remaining[j]))
				remaining[j] = nil
				changed = true
				break
			}
			if j, ok := heads[tail]; ok && j != i && remaining[j] != nil {
				remaining[i] = joinTailToHead(l, remaining[j])
				remaining[j] = nil
				changed = true
				break
			}
			if j, ok := tails[head]; ok && j != i && remaining[j] != nil {
				remaining[i] = joinTailToHead(remaining[j], l)
				remaining[j] = nil
				changed = true
				break
			}
			if j, ok := heads[head]; ok && j != i && remaining[j] != nil {
				remaining[i] = joinTailToHead(reverse(remaining[j]), l)
				remaining[j] = nil
				changed = true
				break
			}
		}
	}

	var closed [][]geometry.Point2
	for _, l := range remaining {
		if l == nil {
			continue
		}
		if capVertices && len(l) > maxMergedVertices {
			continue
		}
		if len(l) < minLoopVertices {
			continue
		}
		if endpointKey(l[0]) != endpointKey(l[len(l)-1]) {
			continue
		}
		if perimeter(l) < minPerimeter {
			continue
		}
		closed = append(closed, l)
	}
	return closed
}

func joinTailToHead(a, b []geometry.Point2) []geometry.Point2 {
	out := make([]geometry.Point2, 0, len(a)+len(b)-1)
	out = append(out, a...)
	out = append(out, b[1:]...)
	return out
}

func reverse(l []geometry.Point2) []geometry.Point2 {
	out := make([]geometry.Point2, len(l))
	for i, p := range l {
		out[len(l)-1-i] = p
	}
	return out
}

func perimeter(l []geometry.Point2) float64 {
	var p float64
	for i := 1; i < len(l); i++ {
		p += math.Hypot(l[i].X-l[i-1].X, l[i].Y-l[i-1].Y)
	}
	return p
}

// PointInPolygon is the even-odd ray-cast test against a closed ring.
func PointInPolygon(ring []geometry.Point2, x, y float64) bool {
	if len(ring) < 3 {
		return false
	}
	hit := false
	x0, y0 := ring[len(ring)-1].X, ring[len(ring)-1].Y
	for _, p := range ring {
		x1, y1 := p.X, p.Y
		if (y0 <= y && y < y1 || y1 <= y && y < y0) && x < (x1-x0)*(y-y0)/(y1-y0)+x0 {
			hit = !hit
		}
		x0, y0 = x1, y1
	}
	return hit
}

// sampleElevation picks a vertex of the loop aligned to an integer
// grid line (preferring x-axis alignment), samples the heightmap
// there, and rounds the result to a multiple of the fine contour
// interval (0.3*scale).
func sampleElevation(h *heightmap.HeightMap, loop []geometry.Point2, fineInterval float64) (center geometry.Point2, elev float64) {
	for _, p := range loop {
		gx := (p.X - h.XOffset) / h.Scale
		if math.Abs(gx-math.Round(gx)) < 1e-6 {
			center = p
			break
		}
	}
	if center == (geometry.Point2{}) {
		center = loop[0]
	}
	gx := (center.X - h.XOffset) / h.Scale
	gy := (center.Y - h.YOffset) / h.Scale
	ix, iy := clampIndex(int(math.Round(gx)), h.Grid.Width), clampIndex(int(math.Round(gy)), h.Grid.Height)
	raw := h.Grid.At(ix, iy)
	elev = math.Round(raw/fineInterval) * fineInterval
	return center, elev
}

func clampIndex(i, limit int) int {
	if i < 0 {
		return 0
	}
	if i >= limit {
		return limit - 1
	}
	return i
}

// Loop is one closed, elevation-sampled candidate.
type Loop struct {
	Ring   []geometry.Point2
	Center geometry.Point2
	Elev   float64
	IsTop  bool
	// TopElev is Elev of the Loop this one is a candidate of, 0 for tops.
	TopElev float64
}

// ConsistentLoops filters closed loops to those whose point-in-polygon
// parity at their sampled centre agrees with the sign of
// h_center-h_sample: a loop is a genuine local extremum, not an
// artefact of the merge.
func ConsistentLoops(h *heightmap.HeightMap, closed [][]geometry.Point2, fineInterval float64) []Loop {
	var out []Loop
	for _, ring := range closed {
		center, elev := sampleElevation(h, ring, fineInterval)
		gx := (center.X - h.XOffset) / h.Scale
		gy := (center.Y - h.YOffset) / h.Scale
		ix, iy := clampIndex(int(math.Round(gx)), h.Grid.Width), clampIndex(int(math.Round(gy)), h.Grid.Height)
		hCenter := h.Grid.At(ix, iy)
		inside := PointInPolygon(ring, center.X, center.Y)
		positiveExtremum := hCenter-elev >= 0
		if inside != positiveExtremum {
			continue
		}
		out = append(out, Loop{Ring: ring, Center: center, Elev: elev})
	}
	return out
}

// SelectHierarchy classifies consistent loops into tops (not contained
// by any higher loop) and, per top, the single best candidate whose
// elevation gap and containment satisfy the published heuristics.
// contoursRatio scales the tie-break thresholds (1.0 at the standard
// contour interval).
func SelectHierarchy(loops []Loop, halfInterval, contoursRatio float64) []Loop {
	sorted := append([]Loop(nil), loops...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Elev > sorted[j].Elev })

	isTop := make([]bool, len(sorted))
	for i := range sorted {
		contained := false
		for j := range sorted {
			if i == j || sorted[j].Elev <= sorted[i].Elev {
				continue
			}
			if PointInPolygon(sorted[j].Ring, sorted[i].Center.X, sorted[i].Center.Y) {
				contained = true
				break
			}
		}
		isTop[i] = !contained
	}

	var survivors []Loop
	for i := range sorted {
		if !isTop[i] {
			continue
		}
		top := sorted[i]
		top.IsTop = true
		survivors = append(survivors, top)

		var best *Loop
		var bestScore = math.Inf(1)
		for j := range sorted {
			if i == j {
				continue
			}
			gap := top.Elev - sorted[j].Elev
			if gap < candidateMinGap || gap > candidateMaxGap {
				continue
			}
			if !PointInPolygon(top.Ring, sorted[j].Center.X, sorted[j].Center.Y) {
				continue
			}
			score := (sorted[j].Elev/halfInterval+1)*halfInterval - sorted[j].Elev
			tieBreakBonus := 0.0
			if gap <= tieBreakRatio*contoursRatio && math.Abs(gap-tieBreakGapFactor*contoursRatio) < 1e-6 {
				tieBreakBonus = -1.0
			}
			if score+tieBreakBonus < bestScore {
				bestScore = score + tieBreakBonus
				cand := sorted[j]
				cand.TopElev = top.Elev
				best = &cand
			}
		}
		if best != nil {
			outside := true
			for _, other := range survivors {
				if other.Center == best.Center {
					continue
				}
				if PointInPolygon(other.Ring, best.Center.X, best.Center.Y) {
					outside = false
					break
				}
			}
			if outside {
				survivors = append(survivors, *best)
			}
		}
	}
	return survivors
}

// Pin is the sidecar record persisted for every surviving knoll: its
// centroid, closed outline and the elevations of the candidate and
// its enclosing top.
type Pin struct {
	Centroid geometry.Point2
	Outline  []geometry.Point2
	Elev     float64
	TopElev  float64
}

// Pins converts survivors into the detected.dxf.bin sidecar shape.
func Pins(survivors []Loop) []Pin {
	pins := make([]Pin, 0, len(survivors))
	for _, l := range survivors {
		if l.IsTop {
			continue
		}
		pins = append(pins, Pin{Centroid: l.Center, Outline: l.Ring, Elev: l.Elev, TopElev: l.TopElev})
	}
	return pins
}

// Nudge copies grid and applies stage-5 grid perturbation: a 5x5
// steepness-weighted smoothing pass followed by pin-based elevation
// bumps with bilinear halo attenuation, then re-fences at interval
// steps.
func Nudge(h *heightmap.HeightMap, pins []Pin, interval float64) *heightmap.HeightMap {
	g := &heightmap.Grid{Width: h.Grid.Width, Height: h.Grid.Height, Cells: append([]float64(nil), h.Grid.Cells...)}

	smoothed := append([]float64(nil), g.Cells...)
	for i := 0; i < g.Width; i++ {
		for j := 0; j < g.Height; j++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			var sum float64
			var c int
			for di := -2; di <= 2; di++ {
				for dj := -2; dj <= 2; dj++ {
					ii, jj := i+di, j+dj
					if ii < 0 || jj < 0 || ii >= g.Width || jj >= g.Height {
						continue
					}
					v := g.At(ii, jj)
					sum += v
					c++
					if v < lo {
						lo = v
					}
					if v > hi {
						hi = v
					}
				}
			}
			rng := hi - lo
			if rng >= 1.25 || c == 0 {
				continue
			}
			mean := sum / float64(c)
			blended := (mean*(1.25-rng) + g.At(i, j)*rng) / 1.25
			smoothed[j*g.Width+i] = blended
		}
	}
	g.Cells = smoothed

	for _, pin := range pins {
		step := stepTo(pin.Elev, interval)
		move1 := clamp((step-pin.Elev)*0.5, -interval/2, interval/2)
		move2 := move1 * 0.5

		nearestPinDist := nearestOtherPinDistance(pin, pins)
		haloRadius := clamp(nearestPinDist*0.8-1, 1, 12)

		for i := 0; i < g.Width; i++ {
			for j := 0; j < g.Height; j++ {
				x, y := h.WorldXY(i, j)
				if PointInPolygon(pin.Outline, x, y) {
					g.Set(i, j, g.At(i, j)+move1)
					continue
				}
				dx := math.Abs(x - pin.Centroid.X)
				dy := math.Abs(y - pin.Centroid.Y)
				if dx <= haloRadius && dy <= haloRadius {
					atten := (1.0 - dx/haloRadius) * (1.0 - dy/haloRadius)
					g.Set(i, j, g.At(i, j)+move2*atten)
				}
			}
		}
	}

	for i, v := range g.Cells {
		g.Cells[i] = fenceGrid(v, interval)
	}

	return &heightmap.HeightMap{XOffset: h.XOffset, YOffset: h.YOffset, Scale: h.Scale, Grid: g}
}

func fenceGrid(v, interval float64) float64 {
	temp := math.Floor(v/interval+0.5) * interval
	if math.Abs(v-temp) < 0.02 {
		if v-temp < 0 {
			return temp - 0.02
		}
		return temp + 0.02
	}
	return v
}

func stepTo(elev, interval float64) float64 {
	return math.Floor(elev/interval+1) * interval
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nearestOtherPinDistance(pin Pin, pins []Pin) float64 {
	best := math.Inf(1)
	for _, other := range pins {
		if other.Centroid == pin.Centroid {
			continue
		}
		d := math.Hypot(other.Centroid.X-pin.Centroid.X, other.Centroid.Y-pin.Centroid.Y)
		if d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 20
	}
	return best
}

// DotknollRecord is the dot-knoll candidate sidecar entry for every loop
// rejected as too small to survive as a full knoll/depression
// polyline: a single representative point plus whether it reads as a
// knoll (true) or a depression (false).
type DotknollRecord struct {
	X, Y    float64
	IsKnoll bool
}

// RejectedSmallLoops returns dot-knoll sidecar records for closed
// loops that were filtered out by ConsistentLoops/SelectHierarchy
// (too small to carry as a full contour) but still mark a genuine
// bump or dip: classification is the sign of h_center-elev.
func RejectedSmallLoops(h *heightmap.HeightMap, closed [][]geometry.Point2, fineInterval float64, survivors []Loop) []DotknollRecord {
	keep := map[[2]int64]bool{}
	for _, l := range survivors {
		keep[endpointKey(l.Center)] = true
	}

	var out []DotknollRecord
	for _, ring := range closed {
		center, elev := sampleElevation(h, ring, fineInterval)
		if keep[endpointKey(center)] {
			continue
		}
		gx := (center.X - h.XOffset) / h.Scale
		gy := (center.Y - h.YOffset) / h.Scale
		ix, iy := clampIndex(int(math.Round(gx)), h.Grid.Width), clampIndex(int(math.Round(gy)), h.Grid.Height)
		hCenter := h.Grid.At(ix, iy)
		out = append(out, DotknollRecord{X: center.X, Y: center.Y, IsKnoll: hCenter >= elev})
	}
	return out
}

// raster is a pixel-resolution boolean mask, black where any final
// contour line has been drawn across it.
type raster struct {
	width, height int
	black         []bool
}

func newRaster(width, height int) *raster {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &raster{width: width, height: height, black: make([]bool, width*height)}
}

func (r *raster) set(x, y int) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return
	}
	r.black[y*r.width+x] = true
}

// drawLine rasterizes the segment (x0,y0)-(x1,y1) via Bresenham's
// algorithm, matching the pixel-exact fill the original tool relies
// on to test "does any contour line cross this cell".
func (r *raster) drawLine(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		r.set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// anyBlack reports whether any pixel in the 7x7 window centred on
// (cx,cy) (offsets -3..+3 inclusive) is black, or whether the window
// runs off the raster edge — both count as "not ok" in the original
// tool's dot classification.
func (r *raster) anyBlack(cx, cy int) bool {
	for di := -3; di <= 3; di++ {
		for dj := -3; dj <= 3; dj++ {
			x, y := cx+di, cy+dj
			if x < 0 || y < 0 || x >= r.width || y >= r.height {
				return true
			}
			if r.black[y*r.width+x] {
				return true
			}
		}
	}
	return false
}

// Dotknolls rasterizes the final Polylines3 contour stack at
// scalefactor pixel resolution and classifies each dot-knoll/
// u-depression candidate by whether its neighbourhood already carries
// a drawn contour line: a dot whose 7x7 pixel window lies inside the
// raster and is clear of any line is plotted as a true
// knoll/u-depression dot; one whose window collides with an existing
// line or runs off the raster edge is demoted to the "ugly" variant.
func Dotknolls(h *heightmap.HeightMap, lines *geometry.Polylines3, dots []DotknollRecord, scalefactor float64) *geometry.Points {
	xstart, ystart := h.XOffset, h.YOffset
	xmax, ymax := h.Grid.Width-1, h.Grid.Height-1
	size := h.Scale

	toPixel := func(x, y float64) (int, int) {
		return int(math.Floor((x - xstart) / scalefactor)), int(math.Floor((y - ystart) / scalefactor))
	}

	width := int(float64(xmax) * size / scalefactor)
	height := int(float64(ymax) * size / scalefactor)
	img := newRaster(width, height)

	if lines != nil {
		for _, line := range lines.Lines {
			for i := 1; i < len(line); i++ {
				x0, y0 := toPixel(line[i-1].X, line[i-1].Y)
				x1, y1 := toPixel(line[i].X, line[i].Y)
				img.drawLine(x0, y0, x1, y1)
			}
		}
	}

	out := &geometry.Points{}
	for _, d := range dots {
		px, py := toPixel(d.X, d.Y)
		ok := !img.anyBlack(px, py)
		switch {
		case ok && d.IsKnoll:
			out.Push(d.X, d.Y, geometry.Dotknoll)
		case ok && !d.IsKnoll:
			out.Push(d.X, d.Y, geometry.Udepression)
		case !ok && d.IsKnoll:
			out.Push(d.X, d.Y, geometry.UglyDotknoll)
		default:
			out.Push(d.X, d.Y, geometry.UglyUdepression)
		}
	}
	return out
}
