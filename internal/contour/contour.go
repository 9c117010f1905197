// SPDX-License-Identifier: MIT

// Package contour implements cell-level Marching Squares contour
// extraction with fenced grid values and half-edge polyline assembly
// (component G). Grounded line-for-line on the original tool's
// heightmap2contours/check_obj_in in contours.rs: the 0.02 global
// fence, the 0.05 per-cell fence, the six ordered-pair crossing
// inequalities, and the (x,y,slot)-keyed half-edge walk that
// assembles segments into polylines.
package contour

import (
	"math"

	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
)

const (
	globalFenceTolerance = 0.02
	cellFenceTolerance   = 0.05
)

// fence pushes val away from the nearest multiple of v by tol if it
// lies within tol of it, to prevent topological knots at saddle or
// level-exact grid values.
func fence(val, v, tol float64) float64 {
	temp := math.Floor(val/v+0.5) * v
	if math.Abs(val-temp) < tol {
		if val-temp < 0 {
			return temp - tol
		}
		return temp + tol
	}
	return val
}

type coord struct{ x, y int64 }

type edgeKey struct {
	x, y int64
	slot uint8
}

// segment registers one Marching-Squares crossing as two half-edges,
// keyed on centi-unit-quantised endpoints with up to two outgoing
// half-edges per endpoint (slot 1 then slot 2).
func segment(order *[]edgeKey, curves map[edgeKey]coord, x1, y1, x2, y2 float64) {
	p1 := coord{x: int64(math.Floor(x1 * 100)), y: int64(math.Floor(y1 * 100))}
	p2 := coord{x: int64(math.Floor(x2 * 100)), y: int64(math.Floor(y2 * 100))}
	if p1 == p2 {
		return
	}

	k1 := edgeKey{x: p1.x, y: p1.y, slot: 1}
	if _, ok := curves[k1]; !ok {
		curves[k1] = p2
	} else {
		k1 = edgeKey{x: p1.x, y: p1.y, slot: 2}
		curves[k1] = p2
	}
	*order = append(*order, k1)

	k2 := edgeKey{x: p2.x, y: p2.y, slot: 1}
	if _, ok := curves[k2]; !ok {
		curves[k2] = p1
	} else {
		k2 = edgeKey{x: p2.x, y: p2.y, slot: 2}
		curves[k2] = p1
	}
	*order = append(*order, k2)
}

// walk assembles one polyline starting at the unclaimed half-edge k,
// alternating slot 1 then slot 2 for the forward continuation until
// it hits a dead end.
func walk(curves map[edgeKey]coord, k edgeKey) []geometry.Point2 {
	res := coord{x: k.x, y: k.y}
	var polyline []geometry.Point2
	polyline = append(polyline, geometry.Point2{X: float64(res.x) / 100.0, Y: float64(res.y) / 100.0})

	head, ok := curves[k]
	if !ok {
		return polyline
	}
	polyline = append(polyline, geometry.Point2{X: float64(head.x) / 100.0, Y: float64(head.y) / 100.0})
	delete(curves, k)

	clearReciprocal := func(h, r coord) {
		if v, ok := curves[edgeKey{x: h.x, y: h.y, slot: 1}]; ok && v == r {
			delete(curves, edgeKey{x: h.x, y: h.y, slot: 1})
		}
		if v, ok := curves[edgeKey{x: h.x, y: h.y, slot: 2}]; ok && v == r {
			delete(curves, edgeKey{x: h.x, y: h.y, slot: 2})
		}
	}
	clearReciprocal(head, res)

	for {
		k1 := edgeKey{x: head.x, y: head.y, slot: 1}
		if v, ok := curves[k1]; ok && v != res {
			res = head
			next := v
			polyline = append(polyline, geometry.Point2{X: float64(next.x) / 100.0, Y: float64(next.y) / 100.0})
			delete(curves, k1)
			head = next
			clearReciprocal(head, res)
			continue
		}
		k2 := edgeKey{x: head.x, y: head.y, slot: 2}
		if v, ok := curves[k2]; ok && v != res {
			res = head
			next := v
			polyline = append(polyline, geometry.Point2{X: float64(next.x) / 100.0, Y: float64(next.y) / 100.0})
			delete(curves, k2)
			head = next
			clearReciprocal(head, res)
			continue
		}
		break
	}
	return polyline
}

// thin drops even-indexed interior points in positions (5, L-5) for
// polylines longer than 12 vertices.
func thin(polyline []geometry.Point2) []geometry.Point2 {
	ldata := len(polyline) - 1
	if ldata <= 12 {
		return polyline
	}
	out := make([]geometry.Point2, 0, len(polyline))
	for i, p := range polyline {
		ii := i + 1
		if ii > 5 && ii < ldata-5 && ii%2 == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Extract runs Marching Squares over h at contour interval v,
// returning one Polylines2 in grid-local coordinates scaled back to
// world space, classified ContourSimple.
func Extract(h *heightmap.HeightMap, v float64) *geometry.Polylines2 {
	grid := &heightmap.Grid{Width: h.Grid.Width, Height: h.Grid.Height, Cells: append([]float64(nil), h.Grid.Cells...)}
	for i, val := range grid.Cells {
		grid.Cells[i] = fence(val, v, globalFenceTolerance)
	}

	hmin, hmax := math.Inf(1), math.Inf(-1)
	for _, val := range grid.Cells {
		if val < hmin {
			hmin = val
		}
		if val > hmax {
			hmax = val
		}
	}

	w := grid.Width - 1
	ht := grid.Height - 1
	xmin, ymin := h.XOffset, h.YOffset
	size := h.Scale

	lines := &geometry.Polylines2{}
	level := math.Floor(hmin/v) * v

	for level < hmax {
		order, curves := marchLevel(grid, w, ht, v, level)
		for _, k := range order {
			if _, ok := curves[k]; !ok {
				continue
			}
			polyline := walk(curves, k)
			polyline = thin(polyline)
			world := make([]geometry.Point2, len(polyline))
			for i, p := range polyline {
				world[i] = geometry.Point2{X: p.X*size + xmin, Y: p.Y*size + ymin}
			}
			lines.Push(world, geometry.ContourSimple)
		}
		level += v
	}

	return lines
}

// TraceLevel runs a single Marching Squares pass at level over h's
// grid with no global/cell fencing beyond what level itself provides,
// for collaborators that need one threshold boundary rather than the
// full stepped elevation stack Extract produces (internal/cliffs'
// steepness-threshold tracing).
func TraceLevel(h *heightmap.HeightMap, level float64) *geometry.Polylines2 {
	w := h.Grid.Width - 1
	ht := h.Grid.Height - 1
	xmin, ymin := h.XOffset, h.YOffset
	size := h.Scale

	lines := &geometry.Polylines2{}
	order, curves := marchLevel(h.Grid, w, ht, level, level)
	for _, k := range order {
		if _, ok := curves[k]; !ok {
			continue
		}
		polyline := walk(curves, k)
		polyline = thin(polyline)
		world := make([]geometry.Point2, len(polyline))
		for i, p := range polyline {
			world[i] = geometry.Point2{X: p.X*size + xmin, Y: p.Y*size + ymin}
		}
		lines.Push(world, geometry.ContourSimple)
	}
	return lines
}

// marchLevel runs one Marching Squares pass over every cell at the
// given level, returning the half-edge map and its insertion order.
func marchLevel(grid *heightmap.Grid, w, h int, v, level float64) ([]edgeKey, map[edgeKey]coord) {
	var order []edgeKey
	curves := map[edgeKey]coord{}

	for i := 1; i < w-1; i++ {
		for j := 2; j < h-1; j++ {
			a := grid.At(i, j)
			b := grid.At(i, j+1)
			c := grid.At(i+1, j)
			d := grid.At(i+1, j+1)

			if (a < level && b < level && c < level && d < level) ||
				(a > level && b > level && c > level && d > level) {
				continue
			}

			a = fence(a, v, cellFenceTolerance)
			b = fence(b, v, cellFenceTolerance)
			c = fence(c, v, cellFenceTolerance)
			d = fence(d, v, cellFenceTolerance)

			fi, fj := float64(i), float64(j)

			if a < b {
				if level < b && level > a {
					x1, y1 := fi, fj+(level-a)/(b-a)
					if level > c {
						x2, y2 := fi+(b-level)/(b-c), fj+(level-c)/(b-c)
						segment(&order, curves, x1, y1, x2, y2)
					} else if level < c {
						x2, y2 := fi+(level-a)/(c-a), fj
						segment(&order, curves, x1, y1, x2, y2)
					}
				}
			} else if b < a && level < a && level > b {
				x1, y1 := fi, fj+(a-level)/(a-b)
				if level < c {
					x2, y2 := fi+(level-b)/(c-b), fj+(c-level)/(c-b)
					segment(&order, curves, x1, y1, x2, y2)
				} else if level > c {
					x2, y2 := fi+(a-level)/(a-c), fj
					segment(&order, curves, x1, y1, x2, y2)
				}
			}

			if a < c {
				if level < c && level > a {
					x1, y1 := fi+(level-a)/(c-a), fj
					if level > b {
						x2, y2 := fi+(level-b)/(c-b), fj+(c-level)/(c-b)
						segment(&order, curves, x1, y1, x2, y2)
					}
				}
			} else if a > c && level < a && level > c {
				x1, y1 := fi+(a-level)/(a-c), fj
				if level < b {
					x2, y2 := fi+(b-level)/(b-c), fj+(level-c)/(b-c)
					segment(&order, curves, x1, y1, x2, y2)
				}
			}

			if c < d {
				if level < d && level > c {
					x1, y1 := fi+1.0, fj+(level-c)/(d-c)
					if level < b {
						x2, y2 := fi+(b-level)/(b-c), fj+(level-c)/(b-c)
						segment(&order, curves, x1, y1, x2, y2)
					} else if level > b {
						x2, y2 := fi+(level-b)/(d-b), fj+1.0
						segment(&order, curves, x1, y1, x2, y2)
					}
				}
			} else if c > d && level < c && level > d {
				x1, y1 := fi+1.0, fj+(c-level)/(c-d)
				if level > b {
					x2, y2 := fi+(level-b)/(c-b), fj+(c-level)/(c-b)
					segment(&order, curves, x1, y1, x2, y2)
				} else if level < b {
					x2, y2 := fi+(b-level)/(b-d), fj+1.0
					segment(&order, curves, x1, y1, x2, y2)
				}
			}

			if d < b {
				if level < b && level > d {
					x1, y1 := fi+(b-level)/(b-d), fj+1.0
					if level > c {
						x2, y2 := fi+(b-level)/(b-c), fj+(level-c)/(b-c)
						segment(&order, curves, x1, y1, x2, y2)
					}
				}
			} else if b < d && level < d && level > b {
				x1, y1 := fi+(level-b)/(d-b), fj+1.0
				if level < c {
					x2, y2 := fi+(level-b)/(c-b), fj+(c-level)/(c-b)
					segment(&order, curves, x1, y1, x2, y2)
				}
			}
		}
	}

	return order, curves
}
