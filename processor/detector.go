package processor

import (
	"fmt"
)

// Detector consumes two aligned, normalized images of identical shape
// and produces a per-pixel change probability map in [0,1]. The two
// implementations are selected by configuration at pipeline
// construction; the rest of the pipeline is detector-agnostic.
type Detector interface {
	Name() string
	Detect(before, after *ImageRGB) (*ProbabilityMap, error)
}

const (
	DetectorHeuristic = "heuristic"
	DetectorLearned   = "learned"
)

// DetectorOptions carries the configurable knobs of both detector
// variants.
type DetectorOptions struct {
	Variant         string
	IndexExpression string  // heuristic: custom vegetation index, govaluate syntax
	SmoothingSigma  float64 // heuristic: Gaussian sigma in pixels
	ModelPath       string  // learned: weight file
	TileSize        int     // learned: network input size
}

// NewDetector constructs the configured detector variant. An
// unavailable learned model is reported as an error; the engine never
// substitutes the heuristic on its own.
func NewDetector(opts DetectorOptions) (Detector, error) {
	switch opts.Variant {
	case DetectorHeuristic, "":
		sigma := opts.SmoothingSigma
		if sigma <= 0 {
			sigma = 2
		}
		return NewIndexDetector(opts.IndexExpression, sigma)
	case DetectorLearned:
		tileSize := opts.TileSize
		if tileSize <= 0 {
			tileSize = 256
		}
		return NewChangeNetDetector(opts.ModelPath, tileSize)
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", opts.Variant)
	}
}
