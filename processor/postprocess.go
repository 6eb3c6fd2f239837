package processor

// Binarize thresholds a probability map: probability strictly greater
// than the threshold becomes 1.
func Binarize(prob *ProbabilityMap, threshold float64) *BinaryMask {
	mask := NewBinaryMask(prob.Width, prob.Height)
	for i, p := range prob.Data {
		if p > threshold {
			mask.Data[i] = 1
		}
	}
	return mask
}

// RemoveSmallPatches zeroes connected components whose pixel count is
// below minSize. Connectivity is 8-neighbor, consistent with the patch
// labeling used for the area metrics. This is a single cleanup pass:
// no re-growth, no merging.
func RemoveSmallPatches(mask *BinaryMask, minSize int) {
	labels, sizes := labelComponents(mask)
	if len(sizes) == 0 {
		return
	}
	for i, l := range labels {
		if l > 0 && sizes[l-1] < minSize {
			mask.Data[i] = 0
		}
	}
}

// labelComponents assigns a 1-based label to every 8-connected
// component of set pixels and returns the per-label pixel counts.
// Flood fill over an explicit queue, no recursion.
func labelComponents(mask *BinaryMask) ([]int32, []int) {
	w, h := mask.Width, mask.Height
	labels := make([]int32, w*h)
	var sizes []int

	var queue []int
	next := int32(0)
	for start := range mask.Data {
		if mask.Data[start] == 0 || labels[start] != 0 {
			continue
		}
		next++
		size := 0
		queue = queue[:0]
		queue = append(queue, start)
		labels[start] = next
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			y := idx / w
			x := idx % w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if mask.Data[n] != 0 && labels[n] == 0 {
						labels[n] = next
						queue = append(queue, n)
					}
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}
