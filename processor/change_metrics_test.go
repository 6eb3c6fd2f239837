package processor

import (
	"math"
	"testing"
)

func TestComputeMetrics(t *testing.T) {
	// 40 deforested pixels at 10m pixels over a 1 km2 region.
	mask := NewBinaryMask(10, 10)
	for y := 0; y < 5; y++ {
		for x := 0; x < 8; x++ {
			mask.Data[y*10+x] = 1
		}
	}
	rec := ComputeMetrics(mask, 10, 1e6)

	if rec.DeforestedPixels != 40 {
		t.Errorf("deforested pixels: expected 40, actual %d", rec.DeforestedPixels)
	}
	if rec.DeforestedAreaM2 != 4000 {
		t.Errorf("deforested area: expected 4000, actual %v", rec.DeforestedAreaM2)
	}
	if rec.DeforestedAreaHectares != 0.4 {
		t.Errorf("deforested hectares: expected 0.4, actual %v", rec.DeforestedAreaHectares)
	}
	if rec.ForestLossPercentage != 0.4 {
		t.Errorf("loss percentage: expected 0.4, actual %v", rec.ForestLossPercentage)
	}
	if rec.NumberOfPatches != 1 {
		t.Errorf("patches: expected 1, actual %d", rec.NumberOfPatches)
	}
	if rec.LargestPatchM2 != 4000 {
		t.Errorf("largest patch: expected 4000, actual %v", rec.LargestPatchM2)
	}
	if rec.IntactForestM2 != 6000 {
		t.Errorf("intact area: expected 6000, actual %v", rec.IntactForestM2)
	}
	if rec.TotalPixels != 100 {
		t.Errorf("total pixels: expected 100, actual %d", rec.TotalPixels)
	}
	if rec.TotalAreaHectares != 100 {
		t.Errorf("total hectares: expected 100, actual %v", rec.TotalAreaHectares)
	}
}

func TestComputeMetricsEmptyMask(t *testing.T) {
	mask := NewBinaryMask(10, 10)
	rec := ComputeMetrics(mask, 10, 1e6)

	if rec.DeforestedAreaM2 != 0 || rec.ForestLossPercentage != 0 {
		t.Errorf("empty mask: expected zero loss, actual %v / %v%%",
			rec.DeforestedAreaM2, rec.ForestLossPercentage)
	}
	if rec.NumberOfPatches != 0 || rec.LargestPatchM2 != 0 {
		t.Errorf("empty mask: expected no patches, actual %d / %v",
			rec.NumberOfPatches, rec.LargestPatchM2)
	}
	if rec.IntactForestM2 != 10000 {
		t.Errorf("intact area: expected 10000, actual %v", rec.IntactForestM2)
	}
}

func TestComputeMetricsZeroAreaGuard(t *testing.T) {
	mask := NewBinaryMask(4, 4)
	mask.Data[0] = 1
	rec := ComputeMetrics(mask, 10, 0)
	if math.IsNaN(rec.ForestLossPercentage) || math.IsInf(rec.ForestLossPercentage, 0) {
		t.Fatalf("percentage must be finite, actual %v", rec.ForestLossPercentage)
	}
	if rec.ForestLossPercentage != 0 {
		t.Errorf("zero total area: expected 0%%, actual %v", rec.ForestLossPercentage)
	}
}

func TestComputeMetricsLargestOfSeveralPatches(t *testing.T) {
	mask := maskFromRows([]string{
		"11000000",
		"11000000",
		"00000111",
		"00000111",
		"00000111",
	})
	rec := ComputeMetrics(mask, 10, 1e6)
	if rec.NumberOfPatches != 2 {
		t.Fatalf("patches: expected 2, actual %d", rec.NumberOfPatches)
	}
	if rec.LargestPatchM2 != 900 {
		t.Errorf("largest patch: expected 900, actual %v", rec.LargestPatchM2)
	}
}
