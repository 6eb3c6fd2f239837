package processor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/transform"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

// OverlayColors are the RGBA colors of the three probability bands and
// the region boundary. An alpha of 0 leaves the base image untouched
// for that band.
type OverlayColors struct {
	Deforestation color.RGBA
	Degradation   color.RGBA
	Intact        color.RGBA
	Boundary      color.RGBA
}

func DefaultOverlayColors() OverlayColors {
	return OverlayColors{
		Deforestation: color.RGBA{255, 0, 0, 153},   // red, 60% opacity
		Degradation:   color.RGBA{255, 255, 0, 128}, // yellow, 50% opacity
		Intact:        color.RGBA{0, 255, 0, 77},    // green, 30% opacity
		Boundary:      color.RGBA{255, 255, 255, 255},
	}
}

// CompositorParams configure the overlay rendering.
type CompositorParams struct {
	DeforestationThreshold float64 // probability > this: deforestation band
	DegradationThreshold   float64 // probability > this: degradation band
	Colors                 OverlayColors
	MaxDimension           int // downscale output when larger; 0 disables
}

func DefaultCompositorParams() CompositorParams {
	return CompositorParams{
		DeforestationThreshold: 0.7,
		DegradationThreshold:   0.4,
		Colors:                 DefaultOverlayColors(),
	}
}

// ComposeOverlay renders the tri-class change overlay onto the after
// image and draws the region boundary on top. The probability map is
// bilinearly resampled when its shape differs from the base image.
// The result is flattened to opaque RGB.
func ComposeOverlay(base *ImageRGB, prob *ProbabilityMap, reg *raster.Region, params CompositorParams) image.Image {
	width, height := base.Width, base.Height

	probData := prob.Data
	if prob.Width != width || prob.Height != height {
		probData = raster.ResampleBilinear(prob.Data, prob.Width, prob.Height, width, height)
	}

	out := base.ToImage()
	for i := 0; i < width*height; i++ {
		var c color.RGBA
		switch {
		case probData[i] > params.DeforestationThreshold:
			c = params.Colors.Deforestation
		case probData[i] > params.DegradationThreshold:
			c = params.Colors.Degradation
		default:
			c = params.Colors.Intact
		}
		if c.A == 0 {
			continue
		}
		// Straight alpha blend of the overlay color over the base.
		a := float64(c.A) / 255.0
		out.Pix[i*4] = blend(out.Pix[i*4], c.R, a)
		out.Pix[i*4+1] = blend(out.Pix[i*4+1], c.G, a)
		out.Pix[i*4+2] = blend(out.Pix[i*4+2], c.B, a)
	}

	drawBoundary(out, reg, params.Colors.Boundary)

	if params.MaxDimension > 0 && (width > params.MaxDimension || height > params.MaxDimension) {
		scale := float64(params.MaxDimension) / float64(maxInt(width, height))
		dw := int(float64(width) * scale)
		dh := int(float64(height) * scale)
		return transform.Resize(out, dw, dh, transform.Linear)
	}
	return out
}

func blend(base, overlay uint8, alpha float64) uint8 {
	return uint8(float64(base)*(1-alpha) + float64(overlay)*alpha + 0.5)
}

// drawBoundary projects every boundary vertex into pixel space with a
// direct linear mapping from the region's own bounding box and renders
// the rings as connected polylines. Y is flipped because image rows
// increase downward. Holes are drawn thinner than the exterior.
func drawBoundary(img *image.RGBA, reg *raster.Region, c color.RGBA) {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	lonSpan := reg.MaxLon - reg.MinLon
	latSpan := reg.MaxLat - reg.MinLat
	if lonSpan <= 0 || latSpan <= 0 {
		return
	}
	toPixel := func(lon, lat float64) (int, int) {
		px := int((lon - reg.MinLon) / lonSpan * float64(width))
		py := int((reg.MaxLat - lat) / latSpan * float64(height))
		return px, py
	}

	drawRing := func(ring [][2]float64, thickness int) {
		for i := 0; i < len(ring)-1; i++ {
			x0, y0 := toPixel(ring[i][0], ring[i][1])
			x1, y1 := toPixel(ring[i+1][0], ring[i+1][1])
			drawLine(img, x0, y0, x1, y1, c, thickness)
		}
	}

	drawRing(reg.Exterior, 3)
	for _, hole := range reg.Holes {
		drawRing(hole, 2)
	}
}

// drawLine rasterizes a thick line segment with Bresenham stepping.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA, thickness int) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	errAcc := dx + dy
	half := thickness / 2

	for {
		for oy := -half; oy <= half; oy++ {
			for ox := -half; ox <= half; ox++ {
				p := image.Pt(x0+ox, y0+oy)
				if p.In(img.Bounds()) {
					img.SetRGBA(p.X, p.Y, c)
				}
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x0 += sx
		}
		if e2 <= dx {
			errAcc += dx
			y0 += sy
		}
	}
}

// RenderLegend produces a small standalone image explaining the
// overlay color coding.
func RenderLegend(params CompositorParams) image.Image {
	const legendWidth, legendHeight = 300, 200

	img := image.NewRGBA(image.Rect(0, 0, legendWidth, legendHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawLabel(img, 10, 20, "Change Detection Legend", color.RGBA{0, 0, 0, 255})

	entries := []struct {
		c     color.RGBA
		label string
	}{
		{params.Colors.Deforestation, "Deforestation (>70%)"},
		{params.Colors.Degradation, "Degradation (40-70%)"},
		{params.Colors.Intact, "Intact Forest (<40%)"},
		{params.Colors.Boundary, "Forest Boundary"},
	}

	y := 40
	for _, e := range entries {
		box := image.Rect(10, y, 40, y+20)
		draw.Draw(img, box, image.NewUniform(flattenColor(e.c)), image.Point{}, draw.Src)
		drawRect(img, box, outlineColor(e.c))
		drawLabel(img, 50, y+14, e.label, color.RGBA{0, 0, 0, 255})
		y += 35
	}
	return img
}

// outlineColor darkens a class color in Lab space so the legend box
// border stays visible regardless of the configured fill.
func outlineColor(c color.RGBA) color.RGBA {
	cf, ok := colorful.MakeColor(color.NRGBA{c.R, c.G, c.B, 255})
	if !ok {
		return color.RGBA{0, 0, 0, 255}
	}
	dark := cf.BlendLab(colorful.Color{}, 0.6).Clamped()
	r, g, b := dark.RGB255()
	return color.RGBA{r, g, b, 255}
}

// flattenColor composites a translucent class color over white, the
// legend background.
func flattenColor(c color.RGBA) color.RGBA {
	a := float64(c.A) / 255.0
	return color.RGBA{
		R: blend(255, c.R, a),
		G: blend(255, c.G, a),
		B: blend(255, c.B, a),
		A: 255,
	}
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
