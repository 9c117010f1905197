// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/geometry"
	"github.com/mnlk/terrastrokes/internal/storage"
	"github.com/mnlk/terrastrokes/internal/tilestack"
)

func cmdDxfMerge(batch storage.Storage, cfg *config.Config) error {
	return tilestack.DxfMerge(batch, ".", config.Version)
}

// pngFilesWithSuffix lists every *_<suffix>.png in the batch directory,
// the input tilestack.PngMerge wants; sidecars are not checked here.
func pngFilesWithSuffix(batch storage.Storage, suffix string) ([]string, error) {
	entries, err := batch.List(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e, "_"+suffix+".png") {
			out = append(out, e)
		}
	}
	return out, nil
}

func cmdPngMerge(batch storage.Storage, scale float64, depressions bool) error {
	suffix := "blocks"
	outname := "merged_blocks"
	if depressions {
		outname = "merged_blocks_depr"
	}
	files, err := pngFilesWithSuffix(batch, suffix)
	if err != nil {
		return err
	}
	return tilestack.PngMerge(batch, files, outname, scale)
}

func cmdPngMergeVege(batch storage.Storage, scale float64) error {
	files, err := pngFilesWithSuffix(batch, "vegetation")
	if err != nil {
		return err
	}
	return tilestack.PngMerge(batch, files, "merged_vegetation", scale)
}

func parseCropArgs(args []string) (in, out string, minx, miny, maxx, maxy float64, err error) {
	if len(args) < 6 {
		err = fmt.Errorf("USAGE: <in> <out> <minx> <miny> <maxx> <maxy>")
		return
	}
	in, out = args[0], args[1]
	vals := make([]float64, 4)
	for i := range vals {
		vals[i], err = strconv.ParseFloat(args[2+i], 64)
		if err != nil {
			return
		}
	}
	minx, miny, maxx, maxy = vals[0], vals[1], vals[2], vals[3]
	return
}

func cmdPolylineDxfCrop(batch storage.Storage, args []string) error {
	in, out, minx, miny, maxx, maxy, err := parseCropArgs(args)
	if err != nil {
		return err
	}
	stack, err := geometry.Load(batch, in, config.Version)
	if err != nil {
		return err
	}
	var data []geometry.Geometry
	for _, g := range stack.Data {
		switch {
		case g.Polylines2 != nil:
			out2 := &geometry.Polylines2{}
			cropped := tilestack.CropLines(g.Polylines2.Lines, minx, miny, maxx, maxy)
			for i, l := range cropped {
				class := geometry.Contour
				if i < len(g.Polylines2.Class) {
					class = g.Polylines2.Class[i]
				}
				out2.Push(l, class)
			}
			data = append(data, geometry.Geometry{Polylines2: out2})
		default:
			data = append(data, g)
		}
	}
	return geometry.Save(batch, out, geometry.New(config.Version, stack.Bounds, data))
}

func cmdPointDxfCrop(batch storage.Storage, args []string) error {
	in, out, minx, miny, maxx, maxy, err := parseCropArgs(args)
	if err != nil {
		return err
	}
	stack, err := geometry.Load(batch, in, config.Version)
	if err != nil {
		return err
	}
	var data []geometry.Geometry
	for _, g := range stack.Data {
		if g.Points == nil {
			data = append(data, g)
			continue
		}
		data = append(data, geometry.Geometry{Points: tilestack.CropPoints(g.Points, minx, miny, maxx, maxy)})
	}
	return geometry.Save(batch, out, geometry.New(config.Version, stack.Bounds, data))
}
