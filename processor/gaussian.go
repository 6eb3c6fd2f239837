package processor

import "math"

// gaussianKernel builds a normalized 1-D Gaussian. The kernel is
// truncated at 4 sigma on each side.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Round(4 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflectIndex mirrors an out-of-range index back into [0, n).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// gaussianSmooth applies a separable Gaussian convolution over a 2-D
// float array with reflective boundaries. The input is not modified.
func gaussianSmooth(data []float64, width, height int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	// Horizontal pass.
	tmp := make([]float64, len(data))
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * data[row+reflectIndex(x+k, width)]
			}
			tmp[row+x] = acc
		}
	}

	// Vertical pass.
	out := make([]float64, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * tmp[reflectIndex(y+k, height)*width+x]
			}
			out[y*width+x] = acc
		}
	}
	return out
}
