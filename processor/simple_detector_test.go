package processor

import (
	"strings"
	"testing"
)

// fillRGB paints every pixel of an image with one color.
func fillRGB(img *ImageRGB, r, g, b uint8) {
	for i := 0; i < img.Width*img.Height; i++ {
		img.Pix[i*3] = r
		img.Pix[i*3+1] = g
		img.Pix[i*3+2] = b
	}
}

func TestIndexDetectorVegetationLoss(t *testing.T) {
	const size = 16
	before := NewImageRGB(size, size)
	after := NewImageRGB(size, size)

	// Healthy vegetation everywhere before; the central 8x8 block turns
	// bare afterwards.
	fillRGB(before, 50, 200, 50)
	fillRGB(after, 50, 200, 50)
	for y := 4; y < 12; y++ {
		for x := 4; x < 12; x++ {
			i := y*size + x
			after.Pix[i*3] = 200
			after.Pix[i*3+1] = 50
		}
	}

	d, err := NewIndexDetector("", 2)
	if err != nil {
		t.Fatalf("NewIndexDetector failed: %v", err)
	}
	prob, err := d.Detect(before, after)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	center := prob.Data[8*size+8]
	if center < 0.7 {
		t.Errorf("center of cleared block: expected high probability, actual %v", center)
	}
	corner := prob.Data[0]
	if corner > 0.2 {
		t.Errorf("unchanged corner: expected low probability, actual %v", corner)
	}
	for i, p := range prob.Data {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range at %d: %v", i, p)
		}
	}
}

func TestIndexDetectorVegetationGainClampsToZero(t *testing.T) {
	before := NewImageRGB(4, 4)
	after := NewImageRGB(4, 4)
	fillRGB(before, 200, 50, 50) // bare
	fillRGB(after, 50, 200, 50)  // regrowth

	d, err := NewIndexDetector("", 0)
	if err != nil {
		t.Fatal(err)
	}
	prob, err := d.Detect(before, after)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for i, p := range prob.Data {
		if p != 0 {
			t.Errorf("vegetation gain should clamp to 0 at %d, actual %v", i, p)
		}
	}
}

func TestIndexDetectorCustomExpression(t *testing.T) {
	d, err := NewIndexDetector("(green - red) / (green + red + 0.001)", 0)
	if err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}

	before := NewImageRGB(2, 2)
	after := NewImageRGB(2, 2)
	fillRGB(before, 0, 255, 0)
	fillRGB(after, 255, 0, 0)
	prob, err := d.Detect(before, after)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for i, p := range prob.Data {
		if p != 1 {
			t.Errorf("full vegetation loss should saturate at 1 at %d, actual %v", i, p)
		}
	}
}

func TestIndexDetectorCustomExpressionMatchesBuiltin(t *testing.T) {
	builtin, err := NewIndexDetector("", 0)
	if err != nil {
		t.Fatal(err)
	}
	custom, err := NewIndexDetector("(green - red) / (green + red + 0.00000001)", 0)
	if err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}

	before := NewImageRGB(4, 4)
	after := NewImageRGB(4, 4)
	for i := 0; i < 16; i++ {
		before.Pix[i*3] = uint8(10 * i)
		before.Pix[i*3+1] = uint8(255 - 10*i)
		before.Pix[i*3+2] = 40
		after.Pix[i*3] = uint8(255 - 10*i)
		after.Pix[i*3+1] = uint8(10 * i)
		after.Pix[i*3+2] = 40
	}

	expected, err := builtin.Detect(before, after)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	actual, err := custom.Detect(before, after)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	// The expression engine works in float32, so allow for its
	// precision.
	for i := range expected.Data {
		diff := expected.Data[i] - actual.Data[i]
		if diff < -1e-5 || diff > 1e-5 {
			t.Errorf("probability diverged at %d: expected %v, actual %v", i, expected.Data[i], actual.Data[i])
		}
	}
}

func TestIndexDetectorRejectsUnknownVariable(t *testing.T) {
	_, err := NewIndexDetector("(nir - red) / (nir + red)", 2)
	if err == nil {
		t.Fatal("expected error for unknown variable")
	}
	if !strings.Contains(err.Error(), "unknown variable") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIndexDetectorShapeMismatch(t *testing.T) {
	d, err := NewIndexDetector("", 2)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Detect(NewImageRGB(4, 4), NewImageRGB(8, 8))
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if !strings.Contains(err.Error(), "dimensions don't match") {
		t.Errorf("unexpected error: %v", err)
	}
}
