// SPDX-License-Identifier: MIT

// terrastrokes is the tile-processing command line tool: given a
// classified point cloud (or an already-ingested xyz.bin record
// store), it runs the full height-model/contour/knoll/vegetation/
// block pipeline and writes the per-tile dxf.bin/png/pgw artifacts a
// batch scheduler later merges across tiles. Grounded on the original
// tool's main.rs argument shape (an optional leading numeric thread
// id, then either a subcommand or an input file path) and on the
// teacher's flag-parse-then-dispatch cmd/qrank-builder/main.go.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/storage"
)

var logger *log.Logger

func main() {
	configPath := flag.String("config", "", "path to a JSON config file overriding the defaults")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus /metrics on this address for the duration of the run")
	flag.Parse()
	args := flag.Args()

	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Printf("metrics server on %s stopped: %v", *metricsAddr, err)
			}
		}()
	}

	cfg := config.Default()
	if *configPath != "" {
		if err := loadConfigFile(*configPath, cfg); err != nil {
			logger.Fatalf("loading %s: %v", *configPath, err)
		}
	}

	thread := ""
	if len(args) > 0 {
		if _, err := strconv.Atoi(strings.TrimSpace(args[0])); err == nil {
			thread = args[0]
			args = args[1:]
		}
	}

	var command string
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	tmpdir := "temp" + thread
	if err := os.MkdirAll(tmpdir, 0o755); err != nil {
		logger.Fatalf("creating workspace %s: %v", tmpdir, err)
	}
	s := storage.NewDisk(tmpdir)
	batch := storage.NewDisk(".")

	lower := strings.ToLower(command)
	switch {
	case command == "":
		fmt.Println("terrastrokes: USAGE: terrastrokes [thread id] <subcommand | input file>")
		return

	case command == "blocks":
		mustRun("blocks", cmdBlocks(s, cfg))
	case command == "dotknolls":
		mustRun("dotknolls", cmdDotknolls(s, cfg))
	case command == "knolldetector":
		mustRun("knolldetector", cmdKnolldetector(s, cfg))
	case command == "xyzknolls":
		mustRun("xyzknolls", cmdXyzKnolls(s, cfg))
	case command == "makecliffs":
		mustRun("makecliffs", cmdMakeCliffs(s, cfg))
	case command == "makevege":
		mustRun("makevege", cmdMakeVege(s, cfg))
	case command == "smoothjoin":
		mustRun("smoothjoin", cmdSmoothjoin(s, cfg))
	case command == "dxfmerge":
		mustRun("dxfmerge", cmdDxfMerge(batch, cfg))
	case command == "merge":
		scale := argFloat(args, 0, 1.0)
		mustRun("merge", cmdDxfMerge(batch, cfg))
		mustRun("merge.pngmergevege", cmdPngMergeVege(batch, scale))
	case command == "pngmerge":
		scale := argFloat(args, 0, 4.0)
		mustRun("pngmerge", cmdPngMerge(batch, scale, false))
	case command == "pngmergedepr":
		scale := argFloat(args, 0, 4.0)
		mustRun("pngmergedepr", cmdPngMerge(batch, scale, true))
	case command == "pngmergevege":
		scale := argFloat(args, 0, 1.0)
		mustRun("pngmergevege", cmdPngMergeVege(batch, scale))
	case command == "polylinedxfcrop":
		mustRun("polylinedxfcrop", cmdPolylineDxfCrop(batch, args))
	case command == "pointdxfcrop":
		mustRun("pointdxfcrop", cmdPointDxfCrop(batch, args))
	case command == "xyz2contours":
		mustRun("xyz2contours", cmdXyz2Contours(batch, cfg, args))
	case command == "render":
		mustRun("render", cmdRender(s, cfg, args))
	case command == "internal2xyz":
		mustRun("internal2xyz", cmdInternal2XYZ(batch, args))
	case command == "startthread":
		mustRun("startthread", cmdStartThread(s, cfg, thread, args))
	case command == "publish":
		mustRun("publish", cmdPublish(batch, args))

	case strings.HasSuffix(lower, ".zip"):
		mustRun("process_zip", processZip(batch, s, cfg, command, args))
	case strings.HasSuffix(lower, ".las"), strings.HasSuffix(lower, ".laz"):
		logger.Printf("%s: LAS/LAZ ingestion is not implemented; convert to .xyz or .xyz.bin first", command)
	case strings.HasSuffix(lower, ".xyz"), strings.HasSuffix(lower, ".xyz.bin"):
		mustRun("process_tile", processTile(batch, s, cfg, command))

	default:
		logger.Fatalf("unrecognised command or input file: %q", command)
	}
}

func mustRun(stage string, err error) {
	if err != nil {
		logger.Fatalf("%s: %v", stage, err)
	}
}

func argFloat(args []string, i int, def float64) float64 {
	if i >= len(args) {
		return def
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return def
	}
	return v
}
