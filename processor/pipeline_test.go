package processor

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/net/context"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

// syntheticPair builds a before/after raster pair where the central
// quarter of the scene loses its green signal.
func syntheticPair() (*raster.Raster, *raster.Raster) {
	geot := [6]float64{30.0, 0.01, 0, 0.0, 0, -0.01}
	before := raster.New(3, 40, 40, geot, "EPSG:4326")
	after := raster.New(3, 40, 40, geot, "EPSG:4326")

	for i := 0; i < 40*40; i++ {
		before.Data[0][i] = 400 // red
		before.Data[1][i] = 1600
		before.Data[2][i] = 400
		after.Data[0][i] = 400
		after.Data[1][i] = 1600
		after.Data[2][i] = 400
	}
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			i := y*40 + x
			after.Data[0][i] = 1600
			after.Data[1][i] = 400
		}
	}
	return before, after
}

func pipelineTestRegion(t *testing.T) *raster.Region {
	t.Helper()
	reg, err := raster.NewRegion([][2]float64{
		{30.0, -0.4}, {30.4, -0.4}, {30.4, 0.0}, {30.0, 0.0},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	area, err := raster.PlanarArea(reg)
	if err != nil {
		t.Fatal(err)
	}
	reg.AreaM2 = area
	return reg
}

func TestPipelineRunProducesArtifacts(t *testing.T) {
	before, after := syntheticPair()
	reg := pipelineTestRegion(t)

	params := DefaultPipelineParams()
	params.MinPatchPixels = 10
	pipeline, err := NewPipeline(params)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	outDir := filepath.Join(t.TempDir(), "analysis")
	result, err := pipeline.Run(context.Background(), before, after, reg, outDir)
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}

	for _, name := range []string{
		FileBeforeImage, FileAfterImage, FileOverlay, FileLegend,
		FileProbability, FileMask, FileMetrics, FileReport,
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	rec := result.Metrics
	if rec.DeforestedPixels == 0 {
		t.Error("cleared block not detected")
	}
	if rec.DeforestedPixels > rec.TotalPixels {
		t.Errorf("deforested pixels exceed total: %d > %d", rec.DeforestedPixels, rec.TotalPixels)
	}
	if rec.LargestPatchM2 > rec.DeforestedAreaM2 {
		t.Errorf("largest patch exceeds total deforested area: %v > %v", rec.LargestPatchM2, rec.DeforestedAreaM2)
	}
	if rec.TotalAreaM2 != reg.AreaM2 {
		t.Errorf("total area: expected %v, actual %v", reg.AreaM2, rec.TotalAreaM2)
	}

	// metrics.json round-trips to the same record.
	data, err := os.ReadFile(filepath.Join(outDir, FileMetrics))
	if err != nil {
		t.Fatal(err)
	}
	var onDisk MetricsRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("metrics.json does not parse: %v", err)
	}
	if onDisk.DeforestedPixels != rec.DeforestedPixels {
		t.Errorf("metrics.json mismatch: %d != %d", onDisk.DeforestedPixels, rec.DeforestedPixels)
	}

	for _, stage := range []string{"align", "normalize", "detect", "postprocess", "metrics", "render"} {
		if _, ok := result.StageDurations[stage]; !ok {
			t.Errorf("missing stage timing: %s", stage)
		}
	}
}

func TestPipelineRunIdempotent(t *testing.T) {
	before, after := syntheticPair()
	reg := pipelineTestRegion(t)

	params := DefaultPipelineParams()
	params.MinPatchPixels = 10
	pipeline, err := NewPipeline(params)
	if err != nil {
		t.Fatal(err)
	}

	dirs := []string{
		filepath.Join(t.TempDir(), "first"),
		filepath.Join(t.TempDir(), "second"),
	}
	var records [2]*MetricsRecord
	for i, dir := range dirs {
		result, err := pipeline.Run(context.Background(), before, after, reg, dir)
		if err != nil {
			t.Fatalf("pipeline run %d failed: %v", i, err)
		}
		records[i] = result.Metrics
	}

	// Identical inputs must produce bit-identical probability, mask and
	// metrics artifacts.
	for _, name := range []string{FileProbability, FileMask, FileMetrics} {
		first, err := os.ReadFile(filepath.Join(dirs[0], name))
		if err != nil {
			t.Fatal(err)
		}
		second, err := os.ReadFile(filepath.Join(dirs[1], name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("%s differs between identical runs", name)
		}
	}
	if *records[0] != *records[1] {
		t.Errorf("metrics differ between identical runs: %+v vs %+v", records[0], records[1])
	}
}

func TestPipelineRunRejectsDisjointRegion(t *testing.T) {
	before, after := syntheticPair()
	reg, err := raster.NewRegion([][2]float64{
		{50.0, 10.0}, {50.4, 10.0}, {50.4, 10.4}, {50.0, 10.4},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pipeline, err := NewPipeline(DefaultPipelineParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pipeline.Run(context.Background(), before, after, reg, t.TempDir()); err == nil {
		t.Fatal("expected error for region outside the raster extent")
	}
}

func TestPipelineRunHonorsCancel(t *testing.T) {
	before, after := syntheticPair()
	reg := pipelineTestRegion(t)

	pipeline, err := NewPipeline(DefaultPipelineParams())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pipeline.Run(ctx, before, after, reg, t.TempDir()); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
