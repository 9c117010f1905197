// SPDX-License-Identifier: MIT

package vegetation

import (
	"testing"

	"github.com/mnlk/terrastrokes/internal/config"
	"github.com/mnlk/terrastrokes/internal/heightmap"
	"github.com/mnlk/terrastrokes/internal/pointstore"
	"github.com/mnlk/terrastrokes/internal/storage"
)

func testHeightMap() *heightmap.HeightMap {
	g := heightmap.NewGrid(20, 20, 100.0)
	return &heightmap.HeightMap{XOffset: 0, YOffset: 0, Scale: 1, Grid: g}
}

func TestAccumulateGroundVsGreen(t *testing.T) {
	cfg := config.Default()
	h := testHeightMap()
	g := NewGrids(cfg, h)

	g.Accumulate(pointstore.Record{X: 5, Y: 5, Z: 100.1, Classification: 2, ReturnNumber: 1, NumberOfReturns: 1})
	g.Accumulate(pointstore.Record{X: 5, Y: 5, Z: 103.0, Classification: 5, ReturnNumber: 1, NumberOfReturns: 1})

	i, j := g.blockIndex(5, 5)
	cell := g.block[j*g.bw+i]
	if cell.gHit == 0 {
		t.Fatal("expected the ground-classified point to register as ghit")
	}
	if cell.greenHit == 0 {
		t.Fatal("expected the elevated point to register as greenhit")
	}
}

func TestGreenShadePicksDeepest(t *testing.T) {
	ladder := []float64{0.1, 0.3, 0.6}
	if got := GreenShade(ladder, 0.05); got != 0 {
		t.Fatalf("expected no shade below first threshold, got %d", got)
	}
	if got := GreenShade(ladder, 0.45); got != 2 {
		t.Fatalf("expected shade index 2, got %d", got)
	}
	if got := GreenShade(ladder, 0.9); got != 3 {
		t.Fatalf("expected deepest shade index 3, got %d", got)
	}
}

func TestYellowAssertedOverThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.YellowThreshold = 0.5
	h := testHeightMap()
	g := NewGrids(cfg, h)

	for i := 0; i < 10; i++ {
		g.yHit[0] += 9
		g.yNoHit[0] += 1
	}
	if !g.YellowAsserted(0, 0) {
		t.Fatal("expected a 9:1 hit ratio to clear the 0.5 threshold")
	}
}

func TestUndergrowthDensityLevels(t *testing.T) {
	cfg := config.Default()
	h := testHeightMap()
	g := NewGrids(cfg, h)
	g.ug[0] = 1
	g.ugg[0] = 1
	if d := g.UndergrowthDensity(0, 0); d != 1 {
		t.Fatalf("expected light undergrowth density, got %d", d)
	}
	g.ugg[0] = 0
	if d := g.UndergrowthDensity(0, 0); d != 2 {
		t.Fatalf("expected dense undergrowth density, got %d", d)
	}
}

func TestWritePGWWritesNonEmptyFile(t *testing.T) {
	mem := storage.NewMemory()
	h := testHeightMap()
	if err := WritePGW(mem, "tile.pgw", h, 600.0); err != nil {
		t.Fatal(err)
	}
	contents, err := mem.ReadToString("tile.pgw")
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) == 0 {
		t.Fatal("expected non-empty pgw contents")
	}
}

func TestMedianFilterSmoothsOutlier(t *testing.T) {
	field := []float64{
		0, 0, 0,
		0, 9, 0,
		0, 0, 0,
	}
	out := medianFilter(field, 3, 3, 1)
	if out[4] != 0 {
		t.Fatalf("expected the lone outlier to be smoothed away by the median filter, got %v", out[4])
	}
}
