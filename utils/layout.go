package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// AnalysisDirName is the on-disk layout of one analysis: a directory
// keyed by the two acquisition dates. Running the same date pair again
// reuses this directory, and a metrics.json inside it marks the run
// complete.
func AnalysisDirName(beforeDate, afterDate string) string {
	return fmt.Sprintf("analysis_%s_to_%s", beforeDate, afterDate)
}

// AnalysisDir joins the output root with the per-analysis directory.
func AnalysisDir(outputRoot, beforeDate, afterDate string) string {
	return filepath.Join(outputRoot, AnalysisDirName(beforeDate, afterDate))
}

// HasCachedMetrics reports whether a prior run of this analysis
// completed. Partial runs never leave a metrics.json behind, so its
// presence is the completion marker.
func HasCachedMetrics(analysisDir string) bool {
	info, err := os.Stat(filepath.Join(analysisDir, "metrics.json"))
	return err == nil && !info.IsDir()
}
