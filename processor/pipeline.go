package processor

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/net/context"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
	"github.com/pradyuth050804/geosentinel-forestwatch/utils"
)

// Artifact filenames written into the analysis output directory.
const (
	FileBeforeImage = "forest_Tprev.png"
	FileAfterImage  = "forest_T0.png"
	FileOverlay     = "deforestation_highlight.png"
	FileLegend      = "legend.png"
	FileProbability = "change_probability.bin"
	FileMask        = "change_mask.bin"
	FileMetrics     = "metrics.json"
	FileReport      = "report.txt"
)

// PipelineParams are the full stage configuration of one analysis run.
type PipelineParams struct {
	Normalize          NormalizeParams
	Detector           DetectorOptions
	DetectionThreshold float64
	MinPatchPixels     int
	Compositor         CompositorParams
	PixelSizeMeters    float64
	ReportTemplateFile string // empty: built-in template
}

func DefaultPipelineParams() PipelineParams {
	return PipelineParams{
		Normalize:          DefaultNormalizeParams(),
		Detector:           DetectorOptions{Variant: DetectorHeuristic},
		DetectionThreshold: 0.5,
		MinPatchPixels:     50,
		Compositor:         DefaultCompositorParams(),
		PixelSizeMeters:    10,
	}
}

// PipelineResult references the artifacts of a completed run.
type PipelineResult struct {
	Metrics        *MetricsRecord
	OutputDir      string
	StageDurations map[string]time.Duration
}

// Pipeline runs the full detection sequence synchronously: clip, align,
// normalize, detect, post-process, measure, render. It owns no
// goroutines; concurrency belongs to the caller.
type Pipeline struct {
	params   PipelineParams
	detector Detector
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	detector, err := NewDetector(params.Detector)
	if err != nil {
		return nil, err
	}
	return &Pipeline{params: params, detector: detector}, nil
}

func (p *Pipeline) DetectorName() string {
	return p.detector.Name()
}

// Run executes every stage over the before/after raster pair within the
// region boundary and writes all artifacts under outDir. metrics.json
// is written last via a temp file and rename, so a partially written
// metrics file never exists on disk.
func (p *Pipeline) Run(ctx context.Context, before, after *raster.Raster, reg *raster.Region, outDir string) (*PipelineResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	result := &PipelineResult{
		OutputDir:      outDir,
		StageDurations: map[string]time.Duration{},
	}
	timer := func(stage string, start time.Time) {
		result.StageDurations[stage] = time.Since(start)
	}

	// Clip and align.
	start := time.Now()
	beforeClip, err := raster.Clip(before, reg)
	if err != nil {
		return nil, fmt.Errorf("clipping before raster: %v", err)
	}
	afterClip, err := raster.Clip(after, reg)
	if err != nil {
		return nil, fmt.Errorf("clipping after raster: %v", err)
	}
	beforeClip, afterClip, err = raster.AlignPair(beforeClip, afterClip)
	if err != nil {
		return nil, fmt.Errorf("aligning rasters: %v", err)
	}
	timer("align", start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Normalize to 8-bit RGB.
	start = time.Now()
	beforeImg, err := Normalize(beforeClip, p.params.Normalize)
	if err != nil {
		return nil, fmt.Errorf("normalizing before raster: %v", err)
	}
	afterImg, err := Normalize(afterClip, p.params.Normalize)
	if err != nil {
		return nil, fmt.Errorf("normalizing after raster: %v", err)
	}
	timer("normalize", start)

	if err := imaging.Save(beforeImg.ToImage(), filepath.Join(outDir, FileBeforeImage)); err != nil {
		return nil, err
	}
	if err := imaging.Save(afterImg.ToImage(), filepath.Join(outDir, FileAfterImage)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Detect.
	start = time.Now()
	prob, err := p.detector.Detect(beforeImg, afterImg)
	if err != nil {
		return nil, fmt.Errorf("%s detector: %v", p.detector.Name(), err)
	}
	timer("detect", start)
	if err := writeProbability(filepath.Join(outDir, FileProbability), prob); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Post-process.
	start = time.Now()
	mask := Binarize(prob, p.params.DetectionThreshold)
	RemoveSmallPatches(mask, p.params.MinPatchPixels)
	timer("postprocess", start)
	if err := writeMask(filepath.Join(outDir, FileMask), mask); err != nil {
		return nil, err
	}

	// Measure.
	start = time.Now()
	result.Metrics = ComputeMetrics(mask, p.params.PixelSizeMeters, reg.AreaM2)
	timer("metrics", start)

	// Render.
	start = time.Now()
	overlay := ComposeOverlay(afterImg, prob, reg, p.params.Compositor)
	if err := imaging.Save(overlay, filepath.Join(outDir, FileOverlay)); err != nil {
		return nil, err
	}
	if err := imaging.Save(RenderLegend(p.params.Compositor), filepath.Join(outDir, FileLegend)); err != nil {
		return nil, err
	}
	timer("render", start)

	if err := p.writeReport(filepath.Join(outDir, FileReport), result.Metrics); err != nil {
		return nil, err
	}
	if err := writeMetricsFile(filepath.Join(outDir, FileMetrics), result.Metrics); err != nil {
		return nil, err
	}
	return result, nil
}

// writeMetricsFile writes metrics.json atomically. The metrics file
// doubles as the cache marker for a completed analysis, so it must
// never exist half-written.
func writeMetricsFile(path string, rec *MetricsRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Probability and mask dumps share a minimal header: uint32 width,
// uint32 height, little-endian, followed by the row-major samples
// (float32 for probabilities, one byte per pixel for the mask).
func writeProbability(path string, prob *ProbabilityMap) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(prob.Width), uint32(prob.Height)}); err != nil {
		return err
	}
	vals := make([]float32, len(prob.Data))
	for i, v := range prob.Data {
		vals[i] = float32(v)
	}
	if err := binary.Write(w, binary.LittleEndian, vals); err != nil {
		return err
	}
	return w.Flush()
}

func writeMask(path string, mask *BinaryMask) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(mask.Width), uint32(mask.Height)}); err != nil {
		return err
	}
	if _, err := w.Write(mask.Data); err != nil {
		return err
	}
	return w.Flush()
}

const reportTemplate = `Forest Change Analysis Report
=============================

Total area analysed:   {{printf "%.2f" .TotalAreaHectares}} ha ({{printf "%.0f" .TotalAreaM2}} m2)
Deforested area:       {{printf "%.2f" .DeforestedAreaHectares}} ha ({{printf "%.0f" .DeforestedAreaM2}} m2)
Forest loss:           {{printf "%.2f" .ForestLossPercentage}} %
Intact forest:         {{printf "%.2f" .IntactForestHectares}} ha

Patches detected:      {{.NumberOfPatches}}
Largest patch:         {{printf "%.2f" .LargestPatchHectares}} ha

Pixel size:            {{printf "%.0f" .PixelSizeMeters}} m
Pixels analysed:       {{.TotalPixels}} ({{.DeforestedPixels}} flagged)
`

func (p *Pipeline) writeReport(path string, rec *MetricsRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if p.params.ReportTemplateFile != "" {
		return utils.ExecuteWriteTemplateFile(f, rec, p.params.ReportTemplateFile)
	}
	tpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return err
	}
	return tpl.Execute(f, rec)
}
