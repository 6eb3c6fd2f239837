package processor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Weight file layout: the magic string "FWCD", a uint32 version, then
// every convolution layer in network order. Each layer is three uint32
// values (outC, inC, kernel) followed by outC*inC*kernel*kernel float32
// weights and outC float32 biases, all little-endian.
const (
	weightsMagic   = "FWCD"
	weightsVersion = 1
)

type convLayer struct {
	OutC, InC, K int
	W            []float64
	B            []float64
}

type changeNetWeights struct {
	enc1a, enc1b convLayer
	enc2a, enc2b convLayer
	enc3a, enc3b convLayer
	enc4a, enc4b convLayer
	dec4         convLayer
	dec3a, dec3b convLayer
	dec2a, dec2b convLayer
	dec1a, dec1b convLayer
	head         convLayer
}

// layerSpec pins the expected shape of every layer so a truncated or
// mismatched weight file fails fast instead of producing garbage.
type layerSpec struct {
	name      string
	outC, inC int
	kernel    int
	dst       func(*changeNetWeights) *convLayer
}

var changeNetLayout = []layerSpec{
	{"enc1a", 32, 3, 3, func(w *changeNetWeights) *convLayer { return &w.enc1a }},
	{"enc1b", 32, 32, 3, func(w *changeNetWeights) *convLayer { return &w.enc1b }},
	{"enc2a", 64, 32, 3, func(w *changeNetWeights) *convLayer { return &w.enc2a }},
	{"enc2b", 64, 64, 3, func(w *changeNetWeights) *convLayer { return &w.enc2b }},
	{"enc3a", 128, 64, 3, func(w *changeNetWeights) *convLayer { return &w.enc3a }},
	{"enc3b", 128, 128, 3, func(w *changeNetWeights) *convLayer { return &w.enc3b }},
	{"enc4a", 256, 128, 3, func(w *changeNetWeights) *convLayer { return &w.enc4a }},
	{"enc4b", 256, 256, 3, func(w *changeNetWeights) *convLayer { return &w.enc4b }},
	{"dec4", 256, 256, 3, func(w *changeNetWeights) *convLayer { return &w.dec4 }},
	{"dec3a", 128, 384, 3, func(w *changeNetWeights) *convLayer { return &w.dec3a }},
	{"dec3b", 128, 128, 3, func(w *changeNetWeights) *convLayer { return &w.dec3b }},
	{"dec2a", 64, 192, 3, func(w *changeNetWeights) *convLayer { return &w.dec2a }},
	{"dec2b", 64, 64, 3, func(w *changeNetWeights) *convLayer { return &w.dec2b }},
	{"dec1a", 32, 96, 3, func(w *changeNetWeights) *convLayer { return &w.dec1a }},
	{"dec1b", 32, 32, 3, func(w *changeNetWeights) *convLayer { return &w.dec1b }},
	{"head", 1, 32, 1, func(w *changeNetWeights) *convLayer { return &w.head }},
}

func loadChangeNetWeights(path string) (*changeNetWeights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading weight file header: %v", err)
	}
	if string(magic) != weightsMagic {
		return nil, fmt.Errorf("not a change-net weight file: %s", path)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != weightsVersion {
		return nil, fmt.Errorf("unsupported weight file version: %d", version)
	}

	weights := &changeNetWeights{}
	for _, spec := range changeNetLayout {
		layer, err := readConvLayer(r)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %v", spec.name, err)
		}
		if layer.OutC != spec.outC || layer.InC != spec.inC || layer.K != spec.kernel {
			return nil, fmt.Errorf("layer %s: expected shape (%d,%d,%d), file has (%d,%d,%d)",
				spec.name, spec.outC, spec.inC, spec.kernel, layer.OutC, layer.InC, layer.K)
		}
		*spec.dst(weights) = layer
	}
	return weights, nil
}

func readConvLayer(r io.Reader) (convLayer, error) {
	var dims [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return convLayer{}, err
	}
	outC, inC, k := int(dims[0]), int(dims[1]), int(dims[2])
	if outC <= 0 || inC <= 0 || k <= 0 || outC > 4096 || inC > 4096 || k > 16 {
		return convLayer{}, fmt.Errorf("implausible layer dimensions: %v", dims)
	}

	w, err := readFloat32s(r, outC*inC*k*k)
	if err != nil {
		return convLayer{}, err
	}
	b, err := readFloat32s(r, outC)
	if err != nil {
		return convLayer{}, err
	}
	return convLayer{OutC: outC, InC: inC, K: k, W: w, B: b}, nil
}

func readFloat32s(r io.Reader, n int) ([]float64, error) {
	raw := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}
