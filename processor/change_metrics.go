package processor

// MetricsRecord is the flat analytical output of one detection run.
// Every field is a finite number: any division with a potentially zero
// divisor falls back to 0 instead of propagating NaN.
type MetricsRecord struct {
	DeforestedAreaM2       float64 `json:"deforested_area_m2"`
	DeforestedAreaHectares float64 `json:"deforested_area_hectares"`
	ForestLossPercentage   float64 `json:"forest_loss_percentage"`
	NumberOfPatches        int     `json:"number_of_patches"`
	LargestPatchM2         float64 `json:"largest_patch_m2"`
	LargestPatchHectares   float64 `json:"largest_patch_hectares"`
	IntactForestM2         float64 `json:"intact_forest_m2"`
	IntactForestHectares   float64 `json:"intact_forest_hectares"`
	TotalAreaM2            float64 `json:"total_area_m2"`
	TotalAreaHectares      float64 `json:"total_area_hectares"`
	PixelSizeMeters        float64 `json:"pixel_size_meters"`
	TotalPixels            int     `json:"total_pixels"`
	DeforestedPixels       int     `json:"deforested_pixels"`
}

const m2PerHectare = 10000.0

// ComputeMetrics reduces a binary change mask to area and patch
// statistics. pixelSizeM is the ground size of one pixel edge in
// meters; totalAreaM2 is the projected area of the region boundary.
func ComputeMetrics(mask *BinaryMask, pixelSizeM, totalAreaM2 float64) *MetricsRecord {
	pixelAreaM2 := pixelSizeM * pixelSizeM
	deforestedPixels := mask.Sum()
	deforestedAreaM2 := float64(deforestedPixels) * pixelAreaM2

	percentage := 0.0
	if totalAreaM2 > 0 {
		percentage = deforestedAreaM2 / totalAreaM2 * 100
	}

	_, sizes := labelComponents(mask)
	largestPatchM2 := 0.0
	for _, s := range sizes {
		if area := float64(s) * pixelAreaM2; area > largestPatchM2 {
			largestPatchM2 = area
		}
	}

	totalPixels := mask.Width * mask.Height
	intactAreaM2 := float64(totalPixels-deforestedPixels) * pixelAreaM2

	return &MetricsRecord{
		DeforestedAreaM2:       deforestedAreaM2,
		DeforestedAreaHectares: deforestedAreaM2 / m2PerHectare,
		ForestLossPercentage:   percentage,
		NumberOfPatches:        len(sizes),
		LargestPatchM2:         largestPatchM2,
		LargestPatchHectares:   largestPatchM2 / m2PerHectare,
		IntactForestM2:         intactAreaM2,
		IntactForestHectares:   intactAreaM2 / m2PerHectare,
		TotalAreaM2:            totalAreaM2,
		TotalAreaHectares:      totalAreaM2 / m2PerHectare,
		PixelSizeMeters:        pixelSizeM,
		TotalPixels:            totalPixels,
		DeforestedPixels:       deforestedPixels,
	}
}
