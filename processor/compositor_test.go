package processor

import (
	"image"
	"image/color"
	"testing"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

func overlayTestRegion(t *testing.T) *raster.Region {
	t.Helper()
	reg, err := raster.NewRegion([][2]float64{
		{30.0, -0.8}, {30.8, -0.8}, {30.8, 0.0}, {30.0, 0.0},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestComposeOverlayTriClass(t *testing.T) {
	const size = 8
	base := NewImageRGB(size, size)
	fillRGB(base, 100, 100, 100)

	prob := NewProbabilityMap(size, size)
	for i := range prob.Data {
		prob.Data[i] = 0.1
	}
	prob.Data[3*size+3] = 0.9 // deforestation
	prob.Data[3*size+4] = 0.5 // degradation

	out := ComposeOverlay(base, prob, overlayTestRegion(t), DefaultCompositorParams())
	rgba, ok := out.(*image.RGBA)
	if !ok {
		t.Fatalf("expected *image.RGBA, actual %T", out)
	}

	// Boundary lines hug the bbox edges; pixels at distance >= 2 from
	// every edge keep their class color.
	check := func(x, y int, r, g, b uint8, what string) {
		c := rgba.RGBAAt(x, y)
		if c.R != r || c.G != g || c.B != b {
			t.Errorf("%s at (%d,%d): expected (%d,%d,%d), actual (%d,%d,%d)",
				what, x, y, r, g, b, c.R, c.G, c.B)
		}
		if c.A != 255 {
			t.Errorf("%s at (%d,%d): output not opaque, alpha %d", what, x, y, c.A)
		}
	}

	// Red at alpha 153 over gray 100: 100*102/255 + 255*153/255.
	check(3, 3, 193, 40, 40, "deforestation pixel")
	// Yellow at alpha 128 over gray 100.
	check(4, 3, 178, 178, 50, "degradation pixel")
	// Green at alpha 77 over gray 100.
	check(4, 4, 70, 147, 70, "intact pixel")
}

func TestComposeOverlayTransparentIntactKeepsBase(t *testing.T) {
	const size = 8
	base := NewImageRGB(size, size)
	fillRGB(base, 100, 100, 100)
	prob := NewProbabilityMap(size, size)

	params := DefaultCompositorParams()
	params.Colors.Intact = color.RGBA{} // fully transparent
	out := ComposeOverlay(base, prob, overlayTestRegion(t), params)
	c := out.(*image.RGBA).RGBAAt(4, 4)
	if c.R != 100 || c.G != 100 || c.B != 100 {
		t.Errorf("transparent intact band should keep the base color, actual (%d,%d,%d)", c.R, c.G, c.B)
	}
}

func TestComposeOverlayResamplesProbMap(t *testing.T) {
	base := NewImageRGB(8, 8)
	fillRGB(base, 100, 100, 100)

	// Probability map at half resolution, all deforestation.
	prob := NewProbabilityMap(4, 4)
	for i := range prob.Data {
		prob.Data[i] = 0.9
	}

	out := ComposeOverlay(base, prob, overlayTestRegion(t), DefaultCompositorParams())
	if out.Bounds().Dx() != 8 || out.Bounds().Dy() != 8 {
		t.Fatalf("output shape: expected 8x8, actual %v", out.Bounds())
	}
	c := out.(*image.RGBA).RGBAAt(4, 4)
	if c.R != 193 {
		t.Errorf("resampled overlay: expected red 193 at (4,4), actual %d", c.R)
	}
}

func TestComposeOverlayDrawsBoundary(t *testing.T) {
	base := NewImageRGB(8, 8)
	fillRGB(base, 100, 100, 100)
	prob := NewProbabilityMap(8, 8)

	out := ComposeOverlay(base, prob, overlayTestRegion(t), DefaultCompositorParams())
	c := out.(*image.RGBA).RGBAAt(0, 0)
	if c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("boundary corner: expected white, actual (%d,%d,%d)", c.R, c.G, c.B)
	}
}

func TestComposeOverlayDownscale(t *testing.T) {
	base := NewImageRGB(16, 16)
	fillRGB(base, 100, 100, 100)
	prob := NewProbabilityMap(16, 16)

	params := DefaultCompositorParams()
	params.MaxDimension = 8
	out := ComposeOverlay(base, prob, overlayTestRegion(t), params)
	if out.Bounds().Dx() != 8 || out.Bounds().Dy() != 8 {
		t.Errorf("downscaled shape: expected 8x8, actual %v", out.Bounds())
	}
}

func TestRenderLegend(t *testing.T) {
	img := RenderLegend(DefaultCompositorParams())
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 200 {
		t.Fatalf("legend shape: expected 300x200, actual %v", img.Bounds())
	}
	// White background in an untouched corner.
	c := img.(*image.RGBA).RGBAAt(299, 199)
	if c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("legend background: expected white, actual (%d,%d,%d)", c.R, c.G, c.B)
	}
}
