// SPDX-License-Identifier: MIT

// Package blocks rasterizes the high-return obstruction mask
// (component K): 3x3 black squares wherever a non-ground, non-water
// return sits more than 2m above the coarse terrain and is the sole
// return of its pulse, drawn onto an opaque white canvas and median
// filtered. Grounded on the original tool's blocks.rs.
package blocks

import (
	"image"
	"image/color"
	"math"

	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pointstore"
)

const (
	heightThreshold = 2.0
	squareRadius    = 1 // 3x3 square centred on the return
	medianRadius    = 2
)

// Detect rasterizes one high-return obstruction mask for the tile
// spanned by h's grid: a cell is flagged when a point classified
// outside {ground, water} exceeds the coarse terrain height at its
// cell by more than 2m and is a single-return pulse.
func Detect(h *heightmap.HeightMap, records []pointstore.Record, waterClass uint8, scale float64) *image.RGBA {
	w := h.Grid.Width * 2
	ht := h.Grid.Height * 2
	if w < 1 {
		w = 1
	}
	if ht < 1 {
		ht = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, w, ht))
	fillWhite(img)

	for _, rec := range records {
		gx := int(math.Floor((rec.X - h.XOffset) / scale))
		gy := int(math.Floor((rec.Y - h.YOffset) / scale))
		if gx < 0 || gy < 0 || gx >= h.Grid.Width || gy >= h.Grid.Height {
			continue
		}
		terrain := h.Grid.At(gx, gy)

		isBlock := rec.Classification != 2 && rec.Classification != waterClass &&
			rec.NumberOfReturns == 1 && rec.ReturnNumber == 1 &&
			float64(rec.Z)-terrain > heightThreshold
		if !isBlock {
			continue
		}

		px := int((rec.X - h.XOffset) * 2)
		py := ht - int((rec.Y-h.YOffset)*2)
		drawSquare(img, px, py, squareRadius, color.RGBA{A: 0xff})
	}

	return medianFilterRGB(img, medianRadius)
}

func fillWhite(img *image.RGBA) {
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, white)
		}
	}
}

func drawSquare(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	b := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x, y := cx+dx, cy+dy
			if x < b.Min.X || y < b.Min.Y || x >= b.Max.X || y >= b.Max.Y {
				continue
			}
			img.SetRGBA(x, y, c)
		}
	}
}

// medianFilterRGB applies a square median filter over the rasterized
// canvas's luminance, matching the imageproc::filter::median_filter
// pass the original tool runs after compositing the block and
// transparency layers.
func medianFilterRGB(img *image.RGBA, radius int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	lum := func(x, y int) float64 {
		r, g, bl, _ := img.At(x, y).RGBA()
		return (float64(r) + float64(g) + float64(bl)) / 3
	}

	out := image.NewRGBA(b)
	window := make([]float64, 0, (2*radius+1)*(2*radius+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || yy < 0 || xx >= w || yy >= h {
						continue
					}
					window = append(window, lum(xx, yy))
				}
			}
			shade := uint8(median(window) / 0xffff * 0xff)
			out.SetRGBA(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 0xff})
		}
	}
	return out
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		k := i - 1
		for k >= 0 && sorted[k] > v {
			sorted[k+1] = sorted[k]
			k--
		}
		sorted[k+1] = v
	}
	if len(sorted) == 0 {
		return 0xffff
	}
	return sorted[len(sorted)/2]
}
