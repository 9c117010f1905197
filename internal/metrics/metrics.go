// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors shared across
// pipeline stages, registered the way the teacher's cmd/qrank-webserver
// exposes its own registry via promhttp.Handler: a package-level
// MustRegister at init, scraped by the batch scheduler (out-of-scope
// collaborator) over whatever address the entry point binds /metrics to.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StageDuration records wall-clock time spent in each named
	// pipeline stage (xyzknolls, knolldetector, dotknolls, smoothjoin,
	// makecliffs, makevege, blocks), across every tile processed by
	// this run.
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "terrastrokes",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock time spent in each pipeline stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// TilePoints counts classified points ingested per tile, the
	// per-tile point-count instrumentation the processing stages feed
	// off of.
	TilePoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terrastrokes",
		Name:      "tile_points_total",
		Help:      "Classified points ingested, labelled by tile.",
	}, []string{"tile"})
)

func init() {
	prometheus.MustRegister(StageDuration, TilePoints)
}

// Time runs fn under the named stage, recording its duration in
// StageDuration regardless of whether fn returns an error.
func Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

// AddPoints records n classified points ingested for tile.
func AddPoints(tile string, n int) {
	TilePoints.WithLabelValues(tile).Add(float64(n))
}
