package processor

import (
	"fmt"
	"math"
)

// ChangeNetDetector is the learned variant: a dual-branch encoder with
// shared weights extracts multi-scale features from the before and
// after images, feature differences are computed at every scale, and a
// decoder with skip connections carrying the per-scale differences
// emits a single-channel sigmoid probability per pixel.
//
// Inference over images larger than the network input runs in
// overlapping sliding-window tiles with 50% stride; overlapping
// predictions are accumulated together with a per-pixel count buffer
// and divided once after all tiles are merged. Images smaller than the
// tile size are reflect-padded up to size and the pad is cropped off
// the returned map.
type ChangeNetDetector struct {
	weights  *changeNetWeights
	tileSize int
	stride   int
}

func NewChangeNetDetector(modelPath string, tileSize int) (*ChangeNetDetector, error) {
	weights, err := loadChangeNetWeights(modelPath)
	if err != nil {
		return nil, fmt.Errorf("change detection model unavailable: %v", err)
	}
	return &ChangeNetDetector{
		weights:  weights,
		tileSize: tileSize,
		stride:   tileSize / 2,
	}, nil
}

func (d *ChangeNetDetector) Name() string {
	return DetectorLearned
}

func (d *ChangeNetDetector) Detect(before, after *ImageRGB) (*ProbabilityMap, error) {
	if err := shapeCheck(before, after); err != nil {
		return nil, err
	}

	fmBefore := imageToFeatureMap(before)
	fmAfter := imageToFeatureMap(after)

	h, w := before.Height, before.Width
	padH, padW := 0, 0
	if h < d.tileSize || w < d.tileSize {
		padH = maxInt(0, d.tileSize-h)
		padW = maxInt(0, d.tileSize-w)
		fmBefore = reflectPad(fmBefore, padH, padW)
		fmAfter = reflectPad(fmAfter, padH, padW)
	}
	ph, pw := fmBefore.H, fmBefore.W

	full := NewProbabilityMap(w, h)
	if ph == d.tileSize && pw == d.tileSize {
		tileProb := d.forward(fmBefore, fmAfter)
		for y := 0; y < h; y++ {
			copy(full.Data[y*w:(y+1)*w], tileProb[y*pw:y*pw+w])
		}
		return full, nil
	}

	// Arena-style aggregation: a same-shaped accumulator and count
	// buffer, divided once at the end so rounding is order-independent.
	acc := make([]float64, ph*pw)
	count := make([]float64, ph*pw)

	for _, oy := range tileOffsets(ph, d.tileSize, d.stride) {
		for _, ox := range tileOffsets(pw, d.tileSize, d.stride) {
			tb := cropFeatureMap(fmBefore, ox, oy, d.tileSize)
			ta := cropFeatureMap(fmAfter, ox, oy, d.tileSize)
			tileProb := d.forward(tb, ta)
			for ty := 0; ty < d.tileSize; ty++ {
				dst := (oy+ty)*pw + ox
				src := ty * d.tileSize
				for tx := 0; tx < d.tileSize; tx++ {
					acc[dst+tx] += tileProb[src+tx]
					count[dst+tx]++
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*pw + x
			if count[i] > 0 {
				full.Data[y*w+x] = acc[i] / count[i]
			}
		}
	}
	return full, nil
}

// tileOffsets returns the window origins along one dimension. The
// final window is pinned to the far edge so the whole image is covered.
func tileOffsets(size, tile, stride int) []int {
	var offsets []int
	for o := 0; o+tile <= size; o += stride {
		offsets = append(offsets, o)
	}
	if len(offsets) == 0 || offsets[len(offsets)-1]+tile < size {
		offsets = append(offsets, size-tile)
	}
	return offsets
}

// forward runs the network on one tile pair and returns the sigmoid
// probability plane.
func (d *ChangeNetDetector) forward(before, after *featureMap) []float64 {
	w := d.weights

	fB, s1B, s2B, s3B := d.encode(before)
	fA, s1A, s2A, s3A := d.encode(after)

	x := subtract(fA, fB)
	x = conv2D(x, &w.dec4, true)

	x = upsample2(x)
	x = concatChannels(x, subtract(s3A, s3B))
	x = conv2D(x, &w.dec3a, true)
	x = conv2D(x, &w.dec3b, true)

	x = upsample2(x)
	x = concatChannels(x, subtract(s2A, s2B))
	x = conv2D(x, &w.dec2a, true)
	x = conv2D(x, &w.dec2b, true)

	x = upsample2(x)
	x = concatChannels(x, subtract(s1A, s1B))
	x = conv2D(x, &w.dec1a, true)
	x = conv2D(x, &w.dec1b, true)

	out := conv2D(x, &w.head, false)
	prob := make([]float64, out.H*out.W)
	for i := range prob {
		prob[i] = 1.0 / (1.0 + math.Exp(-out.Data[i]))
	}
	return prob
}

// encode runs the shared encoder, returning the bottleneck features
// and the three skip tensors from coarse to fine resolution.
func (d *ChangeNetDetector) encode(in *featureMap) (f, skip1, skip2, skip3 *featureMap) {
	w := d.weights

	x := conv2D(in, &w.enc1a, true)
	x = conv2D(x, &w.enc1b, true)
	skip1 = x
	x = maxPool2(x)

	x = conv2D(x, &w.enc2a, true)
	x = conv2D(x, &w.enc2b, true)
	skip2 = x
	x = maxPool2(x)

	x = conv2D(x, &w.enc3a, true)
	x = conv2D(x, &w.enc3b, true)
	skip3 = x
	x = maxPool2(x)

	x = conv2D(x, &w.enc4a, true)
	x = conv2D(x, &w.enc4b, true)
	return x, skip1, skip2, skip3
}

// featureMap is a channel-major activation tensor.
type featureMap struct {
	C, H, W int
	Data    []float64 // Data[(c*H+y)*W+x]
}

func newFeatureMap(c, h, w int) *featureMap {
	return &featureMap{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

func imageToFeatureMap(img *ImageRGB) *featureMap {
	fm := newFeatureMap(3, img.Height, img.Width)
	n := img.Width * img.Height
	for i := 0; i < n; i++ {
		fm.Data[i] = float64(img.Pix[i*3]) / 255.0
		fm.Data[n+i] = float64(img.Pix[i*3+1]) / 255.0
		fm.Data[2*n+i] = float64(img.Pix[i*3+2]) / 255.0
	}
	return fm
}

// conv2D applies a same-padded convolution with optional ReLU.
func conv2D(in *featureMap, layer *convLayer, relu bool) *featureMap {
	out := newFeatureMap(layer.OutC, in.H, in.W)
	k := layer.K
	half := k / 2
	for oc := 0; oc < layer.OutC; oc++ {
		outPlane := out.Data[oc*in.H*in.W : (oc+1)*in.H*in.W]
		for y := 0; y < in.H; y++ {
			for x := 0; x < in.W; x++ {
				acc := layer.B[oc]
				for ic := 0; ic < layer.InC; ic++ {
					inPlane := in.Data[ic*in.H*in.W : (ic+1)*in.H*in.W]
					wOff := ((oc*layer.InC + ic) * k) * k
					for ky := 0; ky < k; ky++ {
						sy := y + ky - half
						if sy < 0 || sy >= in.H {
							continue
						}
						rowOff := sy * in.W
						for kx := 0; kx < k; kx++ {
							sx := x + kx - half
							if sx < 0 || sx >= in.W {
								continue
							}
							acc += layer.W[wOff+ky*k+kx] * inPlane[rowOff+sx]
						}
					}
				}
				if relu && acc < 0 {
					acc = 0
				}
				outPlane[y*in.W+x] = acc
			}
		}
	}
	return out
}

func maxPool2(in *featureMap) *featureMap {
	oh, ow := in.H/2, in.W/2
	out := newFeatureMap(in.C, oh, ow)
	for c := 0; c < in.C; c++ {
		inPlane := in.Data[c*in.H*in.W : (c+1)*in.H*in.W]
		outPlane := out.Data[c*oh*ow : (c+1)*oh*ow]
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				v := inPlane[2*y*in.W+2*x]
				if w := inPlane[2*y*in.W+2*x+1]; w > v {
					v = w
				}
				if w := inPlane[(2*y+1)*in.W+2*x]; w > v {
					v = w
				}
				if w := inPlane[(2*y+1)*in.W+2*x+1]; w > v {
					v = w
				}
				outPlane[y*ow+x] = v
			}
		}
	}
	return out
}

// upsample2 doubles both spatial dimensions with nearest-neighbor
// replication.
func upsample2(in *featureMap) *featureMap {
	oh, ow := in.H*2, in.W*2
	out := newFeatureMap(in.C, oh, ow)
	for c := 0; c < in.C; c++ {
		inPlane := in.Data[c*in.H*in.W : (c+1)*in.H*in.W]
		outPlane := out.Data[c*oh*ow : (c+1)*oh*ow]
		for y := 0; y < oh; y++ {
			srcRow := (y / 2) * in.W
			dstRow := y * ow
			for x := 0; x < ow; x++ {
				outPlane[dstRow+x] = inPlane[srcRow+x/2]
			}
		}
	}
	return out
}

func subtract(a, b *featureMap) *featureMap {
	out := newFeatureMap(a.C, a.H, a.W)
	for i := range out.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out
}

func concatChannels(a, b *featureMap) *featureMap {
	out := newFeatureMap(a.C+b.C, a.H, a.W)
	copy(out.Data, a.Data)
	copy(out.Data[len(a.Data):], b.Data)
	return out
}

func cropFeatureMap(in *featureMap, ox, oy, size int) *featureMap {
	out := newFeatureMap(in.C, size, size)
	for c := 0; c < in.C; c++ {
		inPlane := in.Data[c*in.H*in.W : (c+1)*in.H*in.W]
		outPlane := out.Data[c*size*size : (c+1)*size*size]
		for y := 0; y < size; y++ {
			copy(outPlane[y*size:(y+1)*size], inPlane[(oy+y)*in.W+ox:(oy+y)*in.W+ox+size])
		}
	}
	return out
}

// reflectPad extends the bottom and right edges by mirroring, matching
// the padding applied before single-tile inference on small inputs.
func reflectPad(in *featureMap, padH, padW int) *featureMap {
	oh, ow := in.H+padH, in.W+padW
	out := newFeatureMap(in.C, oh, ow)
	for c := 0; c < in.C; c++ {
		inPlane := in.Data[c*in.H*in.W : (c+1)*in.H*in.W]
		outPlane := out.Data[c*oh*ow : (c+1)*oh*ow]
		for y := 0; y < oh; y++ {
			sy := reflectIndex(y, in.H)
			for x := 0; x < ow; x++ {
				outPlane[y*ow+x] = inPlane[sy*in.W+reflectIndex(x, in.W)]
			}
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
