package raster

import (
	"math"
	"testing"
)

func TestBilinearSample(t *testing.T) {
	data := []float64{
		0, 10,
		20, 30,
	}
	cases := []struct {
		fx, fy   float64
		expected float64
	}{
		{0, 0, 0},
		{1, 1, 30},
		{0.5, 0, 5},
		{0, 0.5, 10},
		{0.5, 0.5, 15},
		{-1, -1, 0},  // clamped
		{5, 5, 30},   // clamped
	}
	for _, c := range cases {
		if got := BilinearSample(data, 2, 2, c.fx, c.fy); got != c.expected {
			t.Errorf("BilinearSample(%v, %v): expected %v, actual %v", c.fx, c.fy, c.expected, got)
		}
	}
}

func TestResampleBilinearIdentity(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out := ResampleBilinear(data, 3, 3, 3, 3)
	for i := range data {
		if out[i] != data[i] {
			t.Errorf("identity resample changed pixel %d: %v -> %v", i, data[i], out[i])
		}
	}
}

func TestResampleBilinearUpscale(t *testing.T) {
	data := []float64{0, 100}
	out := ResampleBilinear(data, 2, 1, 4, 1)
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, actual %d", len(out))
	}
	// Values must stay within the input range and increase
	// monotonically along the gradient.
	for i, v := range out {
		if v < 0 || v > 100 {
			t.Errorf("resampled value %d out of range: %v", i, v)
		}
		if i > 0 && v < out[i-1] {
			t.Errorf("resampled gradient not monotonic at %d: %v < %v", i, v, out[i-1])
		}
	}
}

func TestAlignPairSameGrid(t *testing.T) {
	geot := [6]float64{30.0, 0.1, 0, 0.0, 0, -0.1}
	a := New(3, 4, 4, geot, "EPSG:4326")
	b := New(3, 4, 4, geot, "EPSG:4326")

	first, second, err := AlignPair(a, b)
	if err != nil {
		t.Fatalf("AlignPair failed: %v", err)
	}
	if first != a || second != b {
		t.Error("same-grid pair should be returned unchanged")
	}
}

func TestAlignPairResamplesSecond(t *testing.T) {
	// Same CRS, grids offset by half a pixel: the second raster holds a
	// constant field, so resampling must reproduce that constant.
	a := New(1, 4, 4, [6]float64{30.0, 0.1, 0, 0.0, 0, -0.1}, "EPSG:4326")
	b := New(1, 5, 5, [6]float64{29.95, 0.1, 0, 0.05, 0, -0.1}, "EPSG:4326")
	for i := range b.Data[0] {
		b.Data[0][i] = 7.5
	}

	first, second, err := AlignPair(a, b)
	if err != nil {
		t.Fatalf("AlignPair failed: %v", err)
	}
	if first != a {
		t.Error("first raster must define the target grid")
	}
	if second.Width != a.Width || second.Height != a.Height {
		t.Fatalf("aligned shape: expected %dx%d, actual %dx%d", a.Width, a.Height, second.Width, second.Height)
	}
	if !second.SameGrid(a) {
		t.Error("aligned raster must share the first raster's grid")
	}
	for i, v := range second.Data[0] {
		if math.Abs(v-7.5) > 1e-9 {
			t.Errorf("constant field not preserved at %d: %v", i, v)
		}
	}
}

func TestAlignPairBandMismatch(t *testing.T) {
	a := New(3, 4, 4, [6]float64{30.0, 0.1, 0, 0.0, 0, -0.1}, "EPSG:4326")
	b := New(1, 5, 5, [6]float64{29.95, 0.1, 0, 0.05, 0, -0.1}, "EPSG:4326")
	if _, _, err := AlignPair(a, b); err == nil {
		t.Fatal("expected band count mismatch error")
	}
}
