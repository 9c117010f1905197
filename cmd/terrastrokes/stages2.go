// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/contour"
	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/storage"
	"github.com/mnlk/terrastrokes/internal/synth"
)

// cmdXyz2Contours is the standalone ingest+contour utility: synthesize
// a heightmap at the configured scale factor from xyzfilein,
// optionally persist it to xyzfileout, and write its contour lines at
// the given interval to dxffile.
func cmdXyz2Contours(batch storage.Storage, cfg *config.Config, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("USAGE: xyz2contours [interval] [input file] [output file] [dxf file]")
	}
	interval, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	xyzfilein, xyzfileout, dxffile := args[1], args[2], args[3]

	records, err := ingestPoints(batch, xyzfilein)
	if err != nil {
		return err
	}
	tmpPath := xyzfilein + ".tmp.xyz.bin"
	if err := writeXYZBin(batch, records, tmpPath); err != nil {
		return err
	}
	defer batch.RemoveFile(tmpPath)
	r, err := pointstore.Open(batch, tmpPath)
	if err != nil {
		return err
	}
	defer pointstore.MustClose(r)
	h, err := synth.FromPoints(r, cfg.ScaleFactor, cfg.WaterClass)
	if err != nil {
		return err
	}

	if xyzfileout != "" && xyzfileout != "null" {
		if err := heightmap.Save(batch, xyzfileout, h); err != nil {
			return err
		}
	}

	lines := contour.Extract(h, interval)
	return saveStack(batch, dxffile, boundsOf(h), []geometry.Geometry{{Polylines2: lines}})
}

// cmdRender composites whatever tile artifacts exist (vegetation
// background, block overlay, final contour stack) into a single PNG,
// with straight north lines drawn at the given angle and spacing.
// Full map-symbol rendering from the vector stack is an out-of-scope
// collaborator (spec.md section 1); this only produces the raster
// preview the original tool calls a "quick map".
func cmdRender(s storage.Storage, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("USAGE: render [angle] [north line spacing] [nodepressions]")
	}
	angle, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	width, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	nodepressions := len(args) > 2 && args[2] == "nodepressions"

	h, err := heightmap.Load(s, fileGroundModel)
	if err != nil {
		return err
	}
	w := int(float64(h.Grid.Width) * h.Scale)
	ht := int(float64(h.Grid.Height) * h.Scale)
	if w < 1 {
		w = 1
	}
	if ht < 1 {
		ht = 1
	}

	var background image.Image
	if img, err := s.ReadImagePNG(fileVegePNG); err == nil {
		background = img
	}

	dc := gg.NewContext(w, ht)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	if background != nil {
		draw.Draw(dc.Image().(draw.Image), dc.Image().Bounds(), background, image.Point{}, draw.Over)
	}

	if blocksImg, err := s.ReadImagePNG(fileBlocksPNG); err == nil {
		draw.Draw(dc.Image().(draw.Image), blocksImg.Bounds(), blocksImg, image.Point{}, draw.Over)
	}

	if stack, err := geometry.Load(s, fileContours, config.Version); err == nil {
		dc.SetRGB(0.4, 0.2, 0)
		dc.SetLineWidth(1)
		for _, g := range stack.Data {
			if g.Polylines3 == nil {
				continue
			}
			for i, l := range g.Polylines3.Lines {
				if nodepressions && isDepressionClass(g.Polylines3.Class[i]) {
					continue
				}
				for j, p := range l {
					px, py := worldToPixel(h, p.X, p.Y, ht)
					if j == 0 {
						dc.MoveTo(px, py)
					} else {
						dc.LineTo(px, py)
					}
				}
				dc.Stroke()
			}
		}
	}

	drawNorthLines(dc, w, ht, angle, width)

	outname := "pullauta.png"
	return writePNGFile(s, outname, dc.Image())
}

func worldToPixel(h *heightmap.HeightMap, x, y float64, canvasHeight int) (float64, float64) {
	px := (x - h.XOffset) / h.Scale
	py := float64(canvasHeight) - (y-h.YOffset)/h.Scale
	return px, py
}

func isDepressionClass(c geometry.Classification) bool {
	switch c {
	case geometry.Depression, geometry.DepressionIndex, geometry.DepressionIntermed, geometry.DepressionIndexIntermed:
		return true
	default:
		return false
	}
}

// drawNorthLines strokes parallel lines at angle degrees from vertical,
// spaced width pixels apart across the canvas, the original tool's
// pnorthlinesangle/pnorthlineswidth overlay.
func drawNorthLines(dc *gg.Context, w, h int, angle, width float64) {
	if width <= 0 {
		return
	}
	dc.SetRGB(0, 0, 0.6)
	dc.SetLineWidth(0.3)
	rad := angle * math.Pi / 180
	dx, dy := math.Sin(rad), -math.Cos(rad)
	diag := math.Hypot(float64(w), float64(h))
	for offset := -diag; offset <= diag; offset += width {
		cx := float64(w)/2 + offset*math.Cos(rad)
		cy := float64(h)/2 + offset*math.Sin(rad)
		dc.MoveTo(cx-dx*diag, cy-dy*diag)
		dc.LineTo(cx+dx*diag, cy+dy*diag)
		dc.Stroke()
	}
}

// cmdStartThread processes whatever point input is already staged in
// this thread's workspace. Discovering and dispatching tiles across
// threads is the top-level batch scheduler, an out-of-scope
// collaborator (spec.md section 1); this only runs the per-tile
// pipeline once the input is in place.
func cmdStartThread(s storage.Storage, cfg *config.Config, thread string, args []string) error {
	if !s.Exists(fileInputPoints) {
		logger.Printf("thread %s: no %s staged; batch tile discovery is an external collaborator", thread, fileInputPoints)
		return nil
	}
	stages := []func(storage.Storage, *config.Config) error{
		cmdXyzKnolls, cmdKnolldetector, cmdDotknolls, cmdSmoothjoin, cmdMakeCliffs, cmdMakeVege, cmdBlocks,
	}
	for _, stage := range stages {
		if err := stage(s, cfg); err != nil {
			return err
		}
	}
	return nil
}
