package processor

import (
	"testing"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

func newTestRaster(bands, w, h int) *raster.Raster {
	return raster.New(bands, w, h, [6]float64{30.0, 0.1, 0, 0.0, 0, -0.1}, "EPSG:4326")
}

func TestNormalizeAllNoData(t *testing.T) {
	r := newTestRaster(3, 4, 4)
	img, err := Normalize(r, DefaultNormalizeParams())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i, v := range img.Pix {
		if v != 0 {
			t.Fatalf("no-data raster produced non-black pixel at %d: %d", i, v)
		}
	}
}

func TestNormalizeZeroSpread(t *testing.T) {
	// Every valid pixel has the same value, so the percentile spread
	// collapses and normalization falls back to v/(pHigh+eps), which
	// maps the constant to full brightness.
	r := newTestRaster(3, 4, 4)
	for b := 0; b < 3; b++ {
		for i := range r.Data[b] {
			r.Data[b][i] = 100
		}
	}
	img, err := Normalize(r, DefaultNormalizeParams())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i, v := range img.Pix {
		if v != 255 {
			t.Fatalf("constant raster: expected 255 at %d, actual %d", i, v)
		}
	}
}

func TestNormalizeKeepsNoDataBlack(t *testing.T) {
	r := newTestRaster(3, 4, 4)
	for b := 0; b < 3; b++ {
		for i := range r.Data[b] {
			r.Data[b][i] = float64(100 + i)
		}
	}
	// One no-data pixel: zero across all channels.
	for b := 0; b < 3; b++ {
		r.Data[b][5] = 0
	}

	img, err := Normalize(r, DefaultNormalizeParams())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for c := 0; c < 3; c++ {
		if img.Pix[5*3+c] != 0 {
			t.Errorf("no-data pixel channel %d not black: %d", c, img.Pix[5*3+c])
		}
	}
	// Valid pixels span the full range after the stretch.
	var sawBright bool
	for i := 0; i < 16; i++ {
		if i == 5 {
			continue
		}
		if img.Pix[i*3] > 200 {
			sawBright = true
		}
	}
	if !sawBright {
		t.Error("percentile stretch produced no bright pixels")
	}
}

func TestNormalizeMonotonic(t *testing.T) {
	r := newTestRaster(3, 8, 8)
	for b := 0; b < 3; b++ {
		for i := range r.Data[b] {
			r.Data[b][i] = float64(i + 1)
		}
	}
	img, err := Normalize(r, DefaultNormalizeParams())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 1; i < 64; i++ {
		if img.Pix[i*3] < img.Pix[(i-1)*3] {
			t.Fatalf("normalization not monotonic at %d: %d < %d", i, img.Pix[i*3], img.Pix[(i-1)*3])
		}
	}
}

func TestNormalizeNeedsThreeBands(t *testing.T) {
	r := newTestRaster(1, 4, 4)
	if _, err := Normalize(r, DefaultNormalizeParams()); err == nil {
		t.Fatal("expected error for single-band raster")
	}
}
