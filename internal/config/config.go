// SPDX-License-Identifier: MIT

// Package config holds the tunable parameters shared by every pipeline
// stage. Loading it from a file and from CLI flags is a collaborator
// concern (see cmd/terrastrokes); this package only defines the struct
// and sane defaults.
package config

// Version is the tool version folded into cache tags and into the
// BinaryDxf (geometry Stack) envelope so stale artifacts from a
// previous release are rejected rather than silently reused. The
// heightmap encoding carries no version.
const Version = "0.1.0"

// Zone overrides the green-shade ladder for a named administrative or
// survey region. See SPEC_FULL.md's vegetation zone-table supplement.
type Zone struct {
	Name        string
	Polygon     [][2]float64 // closed ring, world coordinates
	GreenShades []float64
}

// Config is the full set of tunable parameters threaded through the
// pipeline. Every stage takes a *Config; none of them mutate it.
type Config struct {
	Processes int

	// Contour shape.
	ContourInterval float64
	ScaleFactor     float64
	IndexContours   int
	Formline        float64

	// Classification codes (ASPRS LAS conventions).
	WaterClass    uint8
	BuildingClass uint8

	// Vegetation rasterizer tuning (see SPEC_FULL.md §4.J).
	GreenDetectSize      float64
	YellowHeight         float64
	YellowThreshold      float64
	GreenGround          float64
	PointVolumeFactor    float64
	PointVolumeExponent  float64
	GreenHigh            float64
	TopWeight            float64
	GreenShades          []float64
	Zones                []Zone
	VegeZOffset          float64
	UndergrowthLimit     float64
	UndergrowthLimit2    float64
	Addition             float64
	FirstAndLastAsGround bool
	FirstAndLastFactor   float64
	LastFactor           float64
	YellowFirstLast      bool
	VegeThin             int
	VegeBitmode          bool
	MedianFilter         int
	MedianFilter2        int
	ScaleFactorDPI       float64

	// Knoll/depression detection.
	DepressionLength int

	// Cache behaviour.
	NoCache bool

	OutputDXF bool
}

// Default returns the parameter set the original cartography tool ships
// with, before any CLI or config-file overrides are applied.
func Default() *Config {
	return &Config{
		Processes:           1,
		ContourInterval:     5.0,
		ScaleFactor:         1.0,
		IndexContours:       4,
		Formline:            0,
		WaterClass:          9,
		BuildingClass:       6,
		GreenDetectSize:     9,
		YellowHeight:        0.9,
		YellowThreshold:     0.9,
		GreenGround:         0.25,
		PointVolumeFactor:   0.1,
		PointVolumeExponent: 1,
		GreenHigh:           2,
		TopWeight:           0.8,
		GreenShades:         []float64{0.01, 0.2, 0.4, 0.65, 0.9},
		VegeZOffset:         0,
		UndergrowthLimit:    0.35,
		UndergrowthLimit2:   0.55,
		Addition:            0.2,
		FirstAndLastFactor:  0.5,
		LastFactor:          0.9,
		VegeThin:            0,
		MedianFilter:        0,
		MedianFilter2:       0,
		ScaleFactorDPI:      1,
		DepressionLength:    15,
	}
}

// ZoneShades returns the green-shade ladder in effect at world
// coordinate (x, y): the first zone whose polygon contains the point,
// or the default ladder if none match or no zones are configured.
func (c *Config) ZoneShades(x, y float64) []float64 {
	for _, z := range c.Zones {
		if pointInRing(z.Polygon, x, y) {
			return z.GreenShades
		}
	}
	return c.GreenShades
}

// pointInRing is the standard even-odd ray cast test against a closed
// polygon ring (first point need not repeat as last).
func pointInRing(ring [][2]float64, x, y float64) bool {
	if len(ring) < 3 {
		return false
	}
	hit := false
	x0, y0 := ring[len(ring)-1][0], ring[len(ring)-1][1]
	for _, p := range ring {
		x1, y1 := p[0], p[1]
		if (y0 <= y && y < y1 || y1 <= y && y < y0) && x < (x1-x0)*(y-y0)/(y1-y0)+x0 {
			hit = !hit
		}
		x0, y0 = x1, y1
	}
	return hit
}
