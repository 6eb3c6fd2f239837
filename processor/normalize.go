package processor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

// NormalizeParams control the percentile stretch applied before
// converting a raster to an 8-bit visualization image.
type NormalizeParams struct {
	PercentileLow  float64
	PercentileHigh float64
	Gamma          float64
}

func DefaultNormalizeParams() NormalizeParams {
	return NormalizeParams{PercentileLow: 1, PercentileHigh: 99, Gamma: 1.3}
}

// Normalize maps a multi-band raster with unknown numeric range (raw
// digital numbers or physical reflectance) to an 8-bit RGB image.
// Pixels that are zero across all three channels are treated as
// no-data: they are excluded from the percentile statistics and stay
// black in the output, including after gamma correction. The first
// three bands are taken as R, G, B.
func Normalize(r *raster.Raster, params NormalizeParams) (*ImageRGB, error) {
	if r.Bands() < 3 {
		return nil, fmt.Errorf("raster has only %d bands, need at least 3", r.Bands())
	}

	n := r.Width * r.Height
	valid := make([]bool, n)
	numValid := 0
	for i := 0; i < n; i++ {
		if r.Data[0][i]+r.Data[1][i]+r.Data[2][i] > 0 {
			valid[i] = true
			numValid++
		}
	}

	out := NewImageRGB(r.Width, r.Height)
	if numValid == 0 {
		return out, nil
	}

	gammaExp := 1.0 / params.Gamma
	validVals := make([]float64, 0, numValid)
	for c := 0; c < 3; c++ {
		band := r.Data[c]

		validVals = validVals[:0]
		for i := 0; i < n; i++ {
			if valid[i] {
				validVals = append(validVals, band[i])
			}
		}
		sort.Float64s(validVals)
		pLow := stat.Quantile(params.PercentileLow/100, stat.LinInterp, validVals, nil)
		pHigh := stat.Quantile(params.PercentileHigh/100, stat.LinInterp, validVals, nil)
		spread := pHigh - pLow

		for i := 0; i < n; i++ {
			if !valid[i] {
				continue
			}
			var v float64
			if spread > 0 {
				v = (band[i] - pLow) / spread
			} else {
				v = band[i] / (pHigh + 1e-6)
			}
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			v = math.Pow(v, gammaExp)
			out.Pix[i*3+c] = uint8(math.Round(v * 255))
		}
	}
	return out, nil
}
