package processor

import (
	"fmt"
	"image"
)

// ImageRGB is an 8-bit, 3-channel visualization image produced by the
// normalization stage. Pixels are interleaved R,G,B.
type ImageRGB struct {
	Pix    []uint8
	Width  int
	Height int
}

func NewImageRGB(width, height int) *ImageRGB {
	return &ImageRGB{Pix: make([]uint8, width*height*3), Width: width, Height: height}
}

// Floats returns the image as per-channel float64 planes scaled into
// [0,1], the form consumed by the detectors.
func (img *ImageRGB) Floats() [][]float64 {
	n := img.Width * img.Height
	chans := make([][]float64, 3)
	for c := range chans {
		chans[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		chans[0][i] = float64(img.Pix[i*3]) / 255.0
		chans[1][i] = float64(img.Pix[i*3+1]) / 255.0
		chans[2][i] = float64(img.Pix[i*3+2]) / 255.0
	}
	return chans
}

// ToImage converts to an opaque stdlib RGBA image.
func (img *ImageRGB) ToImage() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		dst.Pix[i*4] = img.Pix[i*3]
		dst.Pix[i*4+1] = img.Pix[i*3+1]
		dst.Pix[i*4+2] = img.Pix[i*3+2]
		dst.Pix[i*4+3] = 0xff
	}
	return dst
}

// ProbabilityMap holds per-pixel change likelihood in [0,1]. It is
// produced once per detection run and never mutated afterwards.
type ProbabilityMap struct {
	Data   []float64
	Width  int
	Height int
}

func NewProbabilityMap(width, height int) *ProbabilityMap {
	return &ProbabilityMap{Data: make([]float64, width*height), Width: width, Height: height}
}

// BinaryMask is the thresholded, denoised change classification, one
// {0,1} value per pixel of the aligned grid.
type BinaryMask struct {
	Data   []uint8
	Width  int
	Height int
}

func NewBinaryMask(width, height int) *BinaryMask {
	return &BinaryMask{Data: make([]uint8, width*height), Width: width, Height: height}
}

// Sum returns the number of pixels valued 1.
func (m *BinaryMask) Sum() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

func shapeCheck(before, after *ImageRGB) error {
	if before.Width != after.Width || before.Height != after.Height {
		return fmt.Errorf("image dimensions don't match: %dx%d vs %dx%d",
			before.Width, before.Height, after.Width, after.Height)
	}
	return nil
}
