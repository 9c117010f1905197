// SPDX-License-Identifier: MIT

// Package vegetation rasterizes the green/yellow/undergrowth/water
// overlay from the point cloud and heightmap (component J). Grounded
// on the original tool's vegetation.rs block-grid accumulation and
// green-shade ladder, expressed with the teacher's fogleman/gg
// canvas idiom (cmd/plot-qrank-distribution draws its chart the same
// way: accumulate into a grid, then paint one gg.Context).
package vegetation

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/storage"
)

// blockCell accumulates per-cell statistics at the greendetectsize
// resolution.
type blockCell struct {
	topZ     float64
	firstHit float64
	gHit     float64
	greenHit float64
	highHit  float64
}

// Grids holds the three overlaid accumulation grids described in
// spec.md §4.J: the block grid (green), the 3m grid (yellow) and the
// step*block grid (undergrowth).
type Grids struct {
	cfg *config.Config
	h   *heightmap.HeightMap

	blockSize float64
	bw, bh    int
	block     []blockCell

	yellowSize float64
	yw, yh     int
	yHit       []float64
	yNoHit     []float64

	ugStep   int
	ugw, ugh int
	ug       []float64
	ugg      []float64
}

const undergrowthStep = 6
const yellowCellSize = 3.0
const epsilon = 1e-9

// NewGrids allocates the three accumulation grids spanning h's extent.
func NewGrids(cfg *config.Config, h *heightmap.HeightMap) *Grids {
	extentX := h.MaxX() - h.XOffset
	extentY := h.MaxY() - h.YOffset

	bw := int(math.Ceil(extentX/cfg.GreenDetectSize)) + 1
	bh := int(math.Ceil(extentY/cfg.GreenDetectSize)) + 1

	yw := int(math.Ceil(extentX/yellowCellSize)) + 1
	yh := int(math.Ceil(extentY/yellowCellSize)) + 1

	ugSize := cfg.GreenDetectSize * undergrowthStep
	ugw := int(math.Ceil(extentX/ugSize)) + 1
	ugh := int(math.Ceil(extentY/ugSize)) + 1

	return &Grids{
		cfg: cfg, h: h,
		blockSize: cfg.GreenDetectSize, bw: bw, bh: bh, block: make([]blockCell, bw*bh),
		yellowSize: yellowCellSize, yw: yw, yh: yh, yHit: make([]float64, yw*yh), yNoHit: make([]float64, yw*yh),
		ugStep: undergrowthStep, ugw: ugw, ugh: ugh, ug: make([]float64, ugw*ugh), ugg: make([]float64, ugw*ugh),
	}
}

func (g *Grids) blockIndex(x, y float64) (int, int) {
	i := clamp(int((x-g.h.XOffset)/g.blockSize), 0, g.bw-1)
	j := clamp(int((y-g.h.YOffset)/g.blockSize), 0, g.bh-1)
	return i, j
}

func (g *Grids) yellowIndex(x, y float64) (int, int) {
	i := clamp(int((x-g.h.XOffset)/g.yellowSize), 0, g.yw-1)
	j := clamp(int((y-g.h.YOffset)/g.yellowSize), 0, g.yh-1)
	return i, j
}

func (g *Grids) ugIndex(x, y float64) (int, int) {
	size := g.blockSize * float64(g.ugStep)
	i := clamp(int((x-g.h.XOffset)/size), 0, g.ugw-1)
	j := clamp(int((y-g.h.YOffset)/size), 0, g.ugh-1)
	return i, j
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// groundElevation bilinearly interpolates h at (x,y), offset by
// cfg.VegeZOffset.
func (g *Grids) groundElevation(x, y float64) float64 {
	gx := (x - g.h.XOffset) / g.h.Scale
	gy := (y - g.h.YOffset) / g.h.Scale
	ix, iy := int(math.Floor(gx)), int(math.Floor(gy))
	fx, fy := gx-float64(ix), gy-float64(iy)
	at := func(i, j int) float64 {
		i = clamp(i, 0, g.h.Grid.Width-1)
		j = clamp(j, 0, g.h.Grid.Height-1)
		return g.h.Grid.At(i, j)
	}
	v00, v10 := at(ix, iy), at(ix+1, iy)
	v01, v11 := at(ix, iy+1), at(ix+1, iy+1)
	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return top*(1-fy) + bottom*fy + g.cfg.VegeZOffset
}

// Accumulate folds one point-store record into all three grids.
func (g *Grids) Accumulate(r pointstore.Record) {
	ground := g.groundElevation(r.X, r.Y)
	height := float64(r.Z) - ground

	bi, bj := g.blockIndex(r.X, r.Y)
	cell := &g.block[bj*g.bw+bi]
	if float64(r.Z) > cell.topZ {
		cell.topZ = float64(r.Z)
	}

	isFirst := r.ReturnNumber == 1
	isLast := r.ReturnNumber == r.NumberOfReturns
	factor := 1.0
	if isFirst && isLast && g.cfg.FirstAndLastAsGround {
		factor = g.cfg.FirstAndLastFactor
	} else if isLast && !isFirst {
		factor = g.cfg.LastFactor
	}

	if isFirst {
		cell.firstHit++
	}
	if r.Classification == 2 || height < g.cfg.GreenGround {
		cell.gHit += factor
	} else {
		cell.greenHit += factor
	}
	if height > g.cfg.GreenHigh {
		cell.highHit += factor
	}

	yi, yj := g.yellowIndex(r.X, r.Y)
	yidx := yj*g.yw + yi
	isYellow := height > 0 && height < g.cfg.YellowHeight
	if g.cfg.YellowFirstLast || isFirst {
		if isYellow {
			g.yHit[yidx]++
		} else {
			g.yNoHit[yidx]++
		}
	}

	ui, uj := g.ugIndex(r.X, r.Y)
	uidx := uj*g.ugw + ui
	switch {
	case height > g.cfg.UndergrowthLimit2:
		g.ugg[uidx]++
	case height > g.cfg.UndergrowthLimit:
		g.ug[uidx]++
	}
}

// GreenValue computes the blended green intensity of block cell (i,j)
// per spec.md §4.J's formula, given the pre-computed mean first-hit
// count aveg across cells with ghit>1.
func (g *Grids) GreenValue(i, j int, aveg float64) float64 {
	c := g.block[j*g.bw+i]
	if c.gHit+c.greenHit < epsilon {
		return 0
	}
	base := c.greenHit / (c.gHit + c.greenHit + 1)
	highRatio := 0.0
	if c.gHit+c.greenHit+c.highHit > epsilon {
		highRatio = c.highHit / (c.gHit + c.greenHit + c.highHit)
	}
	topFactor := (1 - g.cfg.TopWeight) + g.cfg.TopWeight*highRatio
	volumeFactor := 1.0
	if aveg > epsilon {
		volumeFactor = math.Pow(1-g.cfg.PointVolumeFactor*c.firstHit/aveg, g.cfg.PointVolumeExponent)
	}
	return base * topFactor * volumeFactor
}

// AverageFirstHit computes aveg: the mean firsthit count over block
// cells whose ghit exceeds 1.
func (g *Grids) AverageFirstHit() float64 {
	var sum float64
	var n int
	for _, c := range g.block {
		if c.gHit > 1 {
			sum += c.firstHit
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// GreenShade picks the deepest shade in the zone-aware ladder whose
// threshold the value exceeds, or 0 (no green) if it clears none.
func GreenShade(ladder []float64, value float64) int {
	shade := 0
	for i, threshold := range ladder {
		if value > threshold {
			shade = i + 1
		}
	}
	return shade
}

// YellowAsserted reports whether the 2x2 window anchored at yellow
// cell (i,j) clears the configured yellow threshold.
func (g *Grids) YellowAsserted(i, j int) bool {
	var hit, noHit float64
	for di := 0; di <= 1; di++ {
		for dj := 0; dj <= 1; dj++ {
			ii, jj := i+di, j+dj
			if ii >= g.yw || jj >= g.yh {
				continue
			}
			idx := jj*g.yw + ii
			hit += g.yHit[idx]
			noHit += g.yNoHit[idx]
		}
	}
	return hit/(hit+noHit+epsilon) > g.cfg.YellowThreshold
}

// UndergrowthDensity reports the two-level cross-hatch density at
// undergrowth cell (i,j): 0 (none), 1 (light, past uglimit) or 2
// (dense, past uglimit2).
func (g *Grids) UndergrowthDensity(i, j int) int {
	idx := j*g.ugw + i
	ratio := g.ug[idx] / (g.ug[idx] + g.ugg[idx] + epsilon)
	switch {
	case ratio > g.cfg.UndergrowthLimit2:
		return 2
	case ratio > g.cfg.UndergrowthLimit:
		return 1
	default:
		return 0
	}
}

// Render paints the green/yellow/undergrowth overlay into one RGBA
// canvas at outputDPI pixels per metre (600/254/scalefactor per
// spec.md), applying the configured median filter to the green layer;
// the yellow layer is drawn without median filtering.
func (g *Grids) Render(outputDPI float64) *gg.Context {
	extentX := g.h.MaxX() - g.h.XOffset
	extentY := g.h.MaxY() - g.h.YOffset
	w := int(extentX * outputDPI)
	h := int(extentY * outputDPI)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	aveg := g.AverageFirstHit()
	greenField := make([]float64, g.bw*g.bh)
	for j := 0; j < g.bh; j++ {
		for i := 0; i < g.bw; i++ {
			greenField[j*g.bw+i] = g.GreenValue(i, j, aveg)
		}
	}
	greenField = medianFilter(greenField, g.bw, g.bh, g.cfg.MedianFilter)
	greenField = medianFilter(greenField, g.bw, g.bh, g.cfg.MedianFilter2)

	for j := 0; j < g.bh; j++ {
		for i := 0; i < g.bw; i++ {
			x0, y0 := float64(i)*g.blockSize*outputDPI, float64(j)*g.blockSize*outputDPI
			worldX, worldY := g.h.XOffset+float64(i)*g.blockSize, g.h.YOffset+float64(j)*g.blockSize
			ladder := g.cfg.ZoneShades(worldX, worldY)

			shadeIdx := GreenShade(ladder, greenField[j*g.bw+i])
			if shadeIdx == 0 {
				continue
			}
			shade := 1.0 - float64(shadeIdx)/float64(len(ladder)+1)
			dc.SetRGB(shade, 1, shade)
			dc.DrawRectangle(x0, y0, g.blockSize*outputDPI, g.blockSize*outputDPI)
			dc.Fill()
		}
	}

	for j := 0; j < g.yh; j++ {
		for i := 0; i < g.yw; i++ {
			if !g.YellowAsserted(i, j) {
				continue
			}
			dc.SetColor(color.RGBA{R: 0xff, G: 0xcc, B: 0x00, A: 0xff})
			x0, y0 := float64(i)*g.yellowSize*outputDPI, float64(j)*g.yellowSize*outputDPI
			dc.DrawRectangle(x0, y0, g.yellowSize*outputDPI, g.yellowSize*outputDPI)
			dc.Fill()
		}
	}

	for j := 0; j < g.ugh; j++ {
		for i := 0; i < g.ugw; i++ {
			density := g.UndergrowthDensity(i, j)
			if density == 0 {
				continue
			}
			drawCrossHatch(dc, g, i, j, outputDPI, density)
		}
	}

	return dc
}

func drawCrossHatch(dc *gg.Context, g *Grids, i, j int, outputDPI float64, density int) {
	size := g.blockSize * float64(g.ugStep) * outputDPI
	x0, y0 := float64(i)*size, float64(j)*size
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	spacing := size / float64(2+2*density)
	for x := x0; x < x0+size; x += spacing {
		dc.DrawLine(x, y0, x, y0+size)
		dc.Stroke()
	}
}

// medianFilter runs a square median filter of the given odd radius
// (0/negative disables it) over a row-major field.
func medianFilter(field []float64, w, h, radius int) []float64 {
	if radius <= 0 {
		return field
	}
	out := make([]float64, len(field))
	window := make([]float64, 0, (2*radius+1)*(2*radius+1))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			window = window[:0]
			for dj := -radius; dj <= radius; dj++ {
				for di := -radius; di <= radius; di++ {
					ii, jj := i+di, j+dj
					if ii < 0 || jj < 0 || ii >= w || jj >= h {
						continue
					}
					window = append(window, field[jj*w+ii])
				}
			}
			out[j*w+i] = median(window)
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
		return 0
	}
	return sorted[len(sorted)/2]
}

// WritePGW writes the world-file sidecar with pixel size 1/dpi and
// origin (xmin, ymax), the top-left corner of the raster.
func WritePGW(s storage.Storage, path string, h *heightmap.HeightMap, dpi float64) error {
	f, err := s.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	pixelSize := 1.0 / dpi
	_, err = fmt.Fprintf(f, "%v\r\n0.0\r\n0.0\r\n%v\r\n%v\r\n%v\r\n", pixelSize, -pixelSize, h.XOffset, h.MaxY())
	return err
}
