package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// Raster is a banded grid of float64 samples tied to a geographic
// coordinate system via an affine geotransform. The geotransform uses
// the GDAL convention:
//
//	geoX = GeoT[0] + col*GeoT[1] + row*GeoT[2]
//	geoY = GeoT[3] + col*GeoT[4] + row*GeoT[5]
//
// All bands share the same grid. Rasters are immutable once produced
// by a pipeline stage.
type Raster struct {
	Data   [][]float64 // Data[band][row*Width+col]
	Width  int
	Height int
	GeoT   [6]float64
	CRS    string // e.g. "EPSG:4326", "EPSG:32644"
	NoData float64
}

func New(bands, width, height int, geot [6]float64, crs string) *Raster {
	data := make([][]float64, bands)
	for i := range data {
		data[i] = make([]float64, width*height)
	}
	return &Raster{Data: data, Width: width, Height: height, GeoT: geot, CRS: crs}
}

func (r *Raster) Bands() int {
	return len(r.Data)
}

// PixelToGeo maps a pixel coordinate to the geographic coordinate of
// its upper-left corner.
func (r *Raster) PixelToGeo(col, row float64) (float64, float64) {
	x := r.GeoT[0] + col*r.GeoT[1] + row*r.GeoT[2]
	y := r.GeoT[3] + col*r.GeoT[4] + row*r.GeoT[5]
	return x, y
}

// GeoToPixel is the inverse of PixelToGeo for north-up rasters. The
// rotation terms GeoT[2] and GeoT[4] must be zero.
func (r *Raster) GeoToPixel(x, y float64) (float64, float64, error) {
	if r.GeoT[2] != 0 || r.GeoT[4] != 0 {
		return 0, 0, fmt.Errorf("rotated geotransforms are not supported: %v", r.GeoT)
	}
	if r.GeoT[1] == 0 || r.GeoT[5] == 0 {
		return 0, 0, fmt.Errorf("degenerate geotransform: %v", r.GeoT)
	}
	col := (x - r.GeoT[0]) / r.GeoT[1]
	row := (y - r.GeoT[3]) / r.GeoT[5]
	return col, row, nil
}

// SameGrid reports whether two rasters share shape, geotransform and CRS.
func (r *Raster) SameGrid(other *Raster) bool {
	if r.Width != other.Width || r.Height != other.Height || r.CRS != other.CRS {
		return false
	}
	for i := range r.GeoT {
		if r.GeoT[i] != other.GeoT[i] {
			return false
		}
	}
	return true
}

// Bounds returns the geographic extent (minX, minY, maxX, maxY) of the
// raster in its own CRS.
func (r *Raster) Bounds() (float64, float64, float64, float64) {
	x0, y0 := r.PixelToGeo(0, 0)
	x1, y1 := r.PixelToGeo(float64(r.Width), float64(r.Height))
	minX, maxX := x0, x1
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := y0, y1
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}

// Region is the area-of-interest boundary: a closed exterior ring of
// (lon, lat) vertices plus optional interior rings (holes), with its
// bounding box and precomputed planar area. Read-only after creation.
type Region struct {
	Exterior [][2]float64
	Holes    [][][2]float64
	MinLon   float64
	MinLat   float64
	MaxLon   float64
	MaxLat   float64
	AreaM2   float64
	CRS      string
}

// NewRegion closes the exterior ring if needed and computes the
// bounding box. Area is left to the caller (it requires projection).
func NewRegion(exterior [][2]float64, holes [][][2]float64) (*Region, error) {
	if len(exterior) < 3 {
		return nil, fmt.Errorf("region exterior ring needs at least 3 vertices, got %d", len(exterior))
	}
	exterior = closeRing(exterior)
	for i := range holes {
		holes[i] = closeRing(holes[i])
	}

	reg := &Region{Exterior: exterior, Holes: holes, CRS: "EPSG:4326"}
	reg.MinLon, reg.MinLat = exterior[0][0], exterior[0][1]
	reg.MaxLon, reg.MaxLat = exterior[0][0], exterior[0][1]
	for _, v := range exterior {
		if v[0] < reg.MinLon {
			reg.MinLon = v[0]
		}
		if v[0] > reg.MaxLon {
			reg.MaxLon = v[0]
		}
		if v[1] < reg.MinLat {
			reg.MinLat = v[1]
		}
		if v[1] > reg.MaxLat {
			reg.MaxLat = v[1]
		}
	}
	return reg, nil
}

func closeRing(ring [][2]float64) [][2]float64 {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		ring = append(ring, first)
	}
	return ring
}

// ExtractEPSGCode parses an SRS string of the form "EPSG:NNNN" and
// returns the numeric EPSG code.
func ExtractEPSGCode(srs string) (int, error) {
	if !strings.HasPrefix(strings.ToUpper(srs), "EPSG:") {
		return -1, fmt.Errorf("unsupported SRS: %s", srs)
	}
	return strconv.Atoi(srs[5:])
}
