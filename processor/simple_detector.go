package processor

import (
	"fmt"

	goeval "github.com/edisonguo/govaluate"
)

const defaultIndexEpsilon = 1e-8

// IndexDetector is the closed-form heuristic variant: a vegetation
// index is computed per image, the index difference is mapped to a
// loss probability, and the map is Gaussian-smoothed to suppress
// pixel-level speckle. Vegetation gain clamps to zero, never negative.
type IndexDetector struct {
	expr  *goeval.EvaluableExpression
	sigma float64
}

// NewIndexDetector builds the heuristic detector. An empty expression
// selects the built-in index (green - red) / (green + red + 1e-8);
// a custom expression may reference the variables red, green and blue,
// each already scaled into [0,1].
func NewIndexDetector(expression string, sigma float64) (*IndexDetector, error) {
	d := &IndexDetector{sigma: sigma}
	if expression != "" {
		expr, err := goeval.NewEvaluableExpression(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid index expression %q: %v", expression, err)
		}
		for _, token := range expr.Tokens() {
			if token.Kind == goeval.VARIABLE {
				name, ok := token.Value.(string)
				if !ok || (name != "red" && name != "green" && name != "blue") {
					return nil, fmt.Errorf("unknown variable in index expression: %v", token.Value)
				}
			}
		}
		d.expr = expr
	}
	return d, nil
}

func (d *IndexDetector) Name() string {
	return DetectorHeuristic
}

func (d *IndexDetector) Detect(before, after *ImageRGB) (*ProbabilityMap, error) {
	if err := shapeCheck(before, after); err != nil {
		return nil, err
	}

	viBefore, err := d.vegetationIndex(before)
	if err != nil {
		return nil, err
	}
	viAfter, err := d.vegetationIndex(after)
	if err != nil {
		return nil, err
	}

	prob := NewProbabilityMap(before.Width, before.Height)
	for i := range prob.Data {
		// Negative change means vegetation loss.
		p := -(viAfter[i] - viBefore[i]) * 2
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		prob.Data[i] = p
	}

	prob.Data = gaussianSmooth(prob.Data, prob.Width, prob.Height, d.sigma)
	return prob, nil
}

func (d *IndexDetector) vegetationIndex(img *ImageRGB) ([]float64, error) {
	n := img.Width * img.Height
	vi := make([]float64, n)

	if d.expr == nil {
		for i := 0; i < n; i++ {
			red := float64(img.Pix[i*3]) / 255.0
			green := float64(img.Pix[i*3+1]) / 255.0
			vi[i] = (green - red) / (green + red + defaultIndexEpsilon)
		}
		return vi, nil
	}

	// The expression engine computes numerics as float32, so the
	// parameters go in as float32 and the result comes back as one.
	params := make(map[string]interface{}, 3)
	for i := 0; i < n; i++ {
		params["red"] = float32(img.Pix[i*3]) / 255.0
		params["green"] = float32(img.Pix[i*3+1]) / 255.0
		params["blue"] = float32(img.Pix[i*3+2]) / 255.0
		res, err := d.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("index expression evaluation failed: %v", err)
		}
		switch v := res.(type) {
		case float32:
			vi[i] = float64(v)
		case float64:
			vi[i] = v
		default:
			return nil, fmt.Errorf("index expression returned non-numeric value: %v", res)
		}
	}
	return vi, nil
}
