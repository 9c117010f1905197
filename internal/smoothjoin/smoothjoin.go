// SPDX-License-Identifier: MIT

// Package smoothjoin merges the nudged contour set back into long
// polylines, decimates and smooths them, and assigns final
// classification (component I). Grounded on the original tool's
// knolls.rs merge/PIP machinery (reused from internal/knolls) and on
// spec.md §4.I's published decimation/smoothing/classification
// heuristics, which the retrieval pack's smoothing sources
// (contours.rs's fencing, knolls.rs's grid sampling) do not spell out
// verbatim but whose shape — a fixed-count moving-average pass plus a
// curviness correction against a wider moving average — follows the
// same three-point/six-point window idiom used throughout knolls.rs.
package smoothjoin

import (
	"math"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/knolls"
)

const (
	adaptiveDecimateMinLen = 101
	decimateSteepness      = 0.5
	decimateMinGap         = 4.0
	dotKnollMinLen         = 5
	dotKnollMaxLen         = 15
)

// Merge re-runs the stage-H1 head/tail merge without the vertex cap,
// since by this point the contour set has already been through
// nudging and the intermediate fragments are expected to close fully.
func Merge(lines [][]geometry.Point2) [][]geometry.Point2 {
	return knolls.MergeClosed(lines, false)
}

// steepness3x3 is the elevation range of the nudged grid's 3x3
// neighbourhood around the grid cell nearest (x,y).
func steepness3x3(h *heightmap.HeightMap, x, y float64) float64 {
	gx := int(math.Round((x - h.XOffset) / h.Scale))
	gy := int(math.Round((y - h.YOffset) / h.Scale))
	lo, hi := math.Inf(1), math.Inf(-1)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			ix, iy := gx+di, gy+dj
			if ix < 0 || iy < 0 || ix >= h.Grid.Width || iy >= h.Grid.Height {
				continue
			}
			v := h.Grid.At(ix, iy)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if math.IsInf(lo, 1) {
		return 0
	}
	return hi - lo
}

// Polyline is one merged, classified chain pending smoothing.
type Polyline struct {
	Points []geometry.Point2
	Elev   float64
	Closed bool
}

// DepressionDot is a rejected-as-small depression/knoll emitted as a
// sidecar point rather than a full polyline.
type DepressionDot struct {
	Centroid     geometry.Point2
	IsDepression bool
}

// Classify determines each merged polyline's canonical elevation, and
// splits short closed loops off into dot-knoll sidecar entries,
// leaving the rest for decimation/smoothing.
func Classify(h *heightmap.HeightMap, merged [][]geometry.Point2, fineInterval float64, depressionLength int, dotSteepnessThreshold float64) ([]Polyline, []DepressionDot) {
	var lines []Polyline
	var dots []DepressionDot

	for _, ring := range merged {
		center, elev := sampleElevationPublic(h, ring, fineInterval)
		closed := len(ring) > 1 && ring[0] == ring[len(ring)-1]

		if closed && len(ring) < depressionLength {
			gx := int(math.Round((center.X - h.XOffset) / h.Scale))
			gy := int(math.Round((center.Y - h.YOffset) / h.Scale))
			gx = clampIndex(gx, h.Grid.Width)
			gy = clampIndex(gy, h.Grid.Height)
			hCenter := h.Grid.At(gx, gy)
			isDepression := hCenter < elev

			steepSum := 0.0
			for _, p := range ring {
				steepSum += steepness3x3(h, p.X, p.Y)
			}
			avgSteep := steepSum / float64(len(ring))

			if avgSteep < dotSteepnessThreshold {
				dots = append(dots, DepressionDot{Centroid: center, IsDepression: isDepression})
				continue
			}
			if len(ring) >= dotKnollMinLen && len(ring) < dotKnollMaxLen {
				dots = append(dots, DepressionDot{Centroid: center, IsDepression: isDepression})
				continue
			}
		}

		lines = append(lines, Polyline{Points: ring, Elev: elev, Closed: closed})
	}
	return lines, dots
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

// sampleElevationPublic mirrors knolls.sampleElevation (unexported
// there): pick a grid-aligned vertex, sample the heightmap, round to
// the fine contour interval.
func sampleElevationPublic(h *heightmap.HeightMap, ring []geometry.Point2, fineInterval float64) (geometry.Point2, float64) {
	center := ring[0]
	for _, p := range ring {
		gx := (p.X - h.XOffset) / h.Scale
		if math.Abs(gx-math.Round(gx)) < 1e-6 {
			center = p
			break
		}
	}
	gx := clampIndex(int(math.Round((center.X-h.XOffset)/h.Scale)), h.Grid.Width)
	gy := clampIndex(int(math.Round((center.Y-h.YOffset)/h.Scale)), h.Grid.Height)
	raw := h.Grid.At(gx, gy)
	return center, math.Round(raw/fineInterval) * fineInterval
}

// Decimate drops interior points of lines longer than 101 vertices
// sitting in near-flat neighbourhoods (steepness < 0.5) as long as the
// distance back to the last kept point stays under 4 units.
func Decimate(h *heightmap.HeightMap, line []geometry.Point2) []geometry.Point2 {
	if len(line) <= adaptiveDecimateMinLen {
		return line
	}
	out := make([]geometry.Point2, 0, len(line))
	out = append(out, line[0])
	last := line[0]
	for i := 1; i < len(line)-1; i++ {
		p := line[i]
		steep := steepness3x3(h, p.X, p.Y)
		dist := math.Hypot(p.X-last.X, p.Y-last.Y)
		if steep < decimateSteepness && dist < decimateMinGap {
			continue
		}
		out = append(out, p)
		last = p
	}
	out = append(out, line[len(line)-1])
	return out
}

// Smooth runs three passes of the weighted three-point moving average
// p'_i = (p_{i-1} + p_i/(0.01+sigma) + p_{i+1}) / (2 + 1/(0.01+sigma)),
// then applies the curviness correction against the six-point moving
// average for interior vertices 3 <= i <= L-4.
func Smooth(line []geometry.Point2, closed bool, sigma, curviness float64) []geometry.Point2 {
	cur := append([]geometry.Point2(nil), line...)
	for pass := 0; pass < 3; pass++ {
		cur = onePass(cur, closed, sigma)
	}

	if curviness == 0 || len(line) < 8 {
		return cur
	}

	out := append([]geometry.Point2(nil), cur...)
	L := len(line)
	for i := 3; i <= L-4; i++ {
		orig6 := movingAverage6(line, i)
		smoothed6 := movingAverage6(cur, i)
		out[i].X = cur[i].X + (orig6.X-smoothed6.X)*curviness
		out[i].Y = cur[i].Y + (orig6.Y-smoothed6.Y)*curviness
	}
	return out
}

func onePass(line []geometry.Point2, closed bool, sigma float64) []geometry.Point2 {
	weight := 1.0 / (0.01 + sigma)
	denom := 2.0 + weight
	out := make([]geometry.Point2, len(line))
	for i := range line {
		if i == 0 || i == len(line)-1 {
			if closed {
				// tie both endpoints to the same smoothed value
				prev := line[len(line)-2]
				next := line[1]
				out[i] = geometry.Point2{
					X: (prev.X + line[i].X*weight + next.X) / denom,
					Y: (prev.Y + line[i].Y*weight + next.Y) / denom,
				}
			} else {
				out[i] = line[i]
			}
			continue
		}
		prev, next := line[i-1], line[i+1]
		out[i] = geometry.Point2{
			X: (prev.X + line[i].X*weight + next.X) / denom,
			Y: (prev.Y + line[i].Y*weight + next.Y) / denom,
		}
	}
	if closed {
		out[0] = out[len(out)-1]
	}
	return out
}

func movingAverage6(line []geometry.Point2, i int) geometry.Point2 {
	lo, hi := i-3, i+3
	if lo < 0 {
		lo = 0
	}
	if hi >= len(line) {
		hi = len(line) - 1
	}
	var sx, sy float64
	n := 0
	for k := lo; k <= hi; k++ {
		sx += line[k].X
		sy += line[k].Y
		n++
	}
	return geometry.Point2{X: sx / float64(n), Y: sy / float64(n)}
}

// FinalClass assigns a terminal Classification for a polyline at
// elevation elev: whether it is a depression (below its enclosing
// top) and whether it falls on an index or intermediate step.
func FinalClass(elev float64, isDepression bool, contourInterval float64, indexEvery int) geometry.Classification {
	steps := elev / contourInterval
	isIntermed := math.Abs(steps-math.Round(steps)) > 1e-6 // sits on a half-interval formline step
	isIndex := !isIntermed && indexEvery > 0 && math.Mod(math.Round(steps), float64(indexEvery)) == 0

	switch {
	case isDepression && isIndex:
		return geometry.DepressionIndex
	case isDepression && isIntermed:
		return geometry.DepressionIntermed
	case isDepression:
		return geometry.Depression
	case isIndex && isIntermed:
		return geometry.ContourIndexIntermed
	case isIndex:
		return geometry.ContourIndex
	case isIntermed:
		return geometry.ContourIntermed
	default:
		return geometry.Contour
	}
}
