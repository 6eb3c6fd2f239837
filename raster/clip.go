package raster

import (
	"fmt"
	"math"
)

// Clip crops a raster to the bounding geometry of a region. The
// polygon is reprojected into the raster's CRS when the two references
// differ, never the raster into the polygon's. Pixels outside the
// polygon but inside its bounding box are preserved; any pixel touched
// by the bounding geometry is included. Returns an error when the
// region does not overlap the raster extent.
func Clip(r *Raster, reg *Region) (*Raster, error) {
	minX, minY, maxX, maxY := reg.MinLon, reg.MinLat, reg.MaxLon, reg.MaxLat
	if r.CRS != reg.CRS {
		ring, err := ProjectRing(reg.Exterior, r.CRS)
		if err != nil {
			return nil, fmt.Errorf("cannot project region into %s: %v", r.CRS, err)
		}
		minX, minY = ring[0][0], ring[0][1]
		maxX, maxY = ring[0][0], ring[0][1]
		for _, v := range ring {
			minX = math.Min(minX, v[0])
			maxX = math.Max(maxX, v[0])
			minY = math.Min(minY, v[1])
			maxY = math.Max(maxY, v[1])
		}
	}

	// Upper-left and lower-right corners of the bounding box in pixel
	// space. North-up rasters have a negative GeoT[5], so maxY maps to
	// the smaller row.
	c0, r0, err := r.GeoToPixel(minX, maxY)
	if err != nil {
		return nil, err
	}
	c1, r1, err := r.GeoToPixel(maxX, minY)
	if err != nil {
		return nil, err
	}
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	if r0 > r1 {
		r0, r1 = r1, r0
	}

	// All-touched: expand fractional pixel coverage outward.
	colMin := int(math.Floor(c0))
	rowMin := int(math.Floor(r0))
	colMax := int(math.Ceil(c1))
	rowMax := int(math.Ceil(r1))

	if colMin < 0 {
		colMin = 0
	}
	if rowMin < 0 {
		rowMin = 0
	}
	if colMax > r.Width {
		colMax = r.Width
	}
	if rowMax > r.Height {
		rowMax = r.Height
	}

	if colMin >= colMax || rowMin >= rowMax {
		return nil, fmt.Errorf("region does not overlap raster extent (%s)", r.CRS)
	}

	width := colMax - colMin
	height := rowMax - rowMin

	originX, originY := r.PixelToGeo(float64(colMin), float64(rowMin))
	geot := r.GeoT
	geot[0] = originX
	geot[3] = originY

	out := New(r.Bands(), width, height, geot, r.CRS)
	out.NoData = r.NoData
	for b := range r.Data {
		for row := 0; row < height; row++ {
			srcOff := (row+rowMin)*r.Width + colMin
			dstOff := row * width
			copy(out.Data[b][dstOff:dstOff+width], r.Data[b][srcOff:srcOff+width])
		}
	}
	return out, nil
}
