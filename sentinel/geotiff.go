package sentinel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukeroth/gdal"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

// ReadRGBRaster opens a Sentinel-2 .SAFE product and stacks the 10m
// visible bands into an RGB raster: B04 (red), B03 (green), B02
// (blue). The geotransform and projection come from the red band; the
// other bands must share its grid.
func ReadRGBRaster(safeDir string) (*raster.Raster, error) {
	var out *raster.Raster
	for i, band := range []string{"B04", "B03", "B02"} {
		path, err := locateBand(safeDir, band)
		if err != nil {
			return nil, err
		}
		ds, err := gdal.Open(path, gdal.ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %v", path, err)
		}

		xSize := ds.RasterXSize()
		ySize := ds.RasterYSize()
		if out == nil {
			geot := ds.GeoTransform()
			epsg, err := epsgFromWKT(ds.Projection())
			if err != nil {
				ds.Close()
				return nil, fmt.Errorf("%s: %v", path, err)
			}
			out = raster.New(3, xSize, ySize, geot, fmt.Sprintf("EPSG:%d", epsg))
		} else if xSize != out.Width || ySize != out.Height {
			ds.Close()
			return nil, fmt.Errorf("band %s grid %dx%d does not match %dx%d", band, xSize, ySize, out.Width, out.Height)
		}

		rb := ds.RasterBand(1)
		if err := rb.IO(gdal.RWFlag(gdal.Read), 0, 0, xSize, ySize, out.Data[i], xSize, ySize, 0, 0); err != nil {
			ds.Close()
			return nil, fmt.Errorf("reading %s: %v", path, err)
		}
		ds.Close()
	}
	return out, nil
}

// locateBand finds one band image under the granule. L2A products keep
// the 10m resolution set under IMG_DATA/R10m with a _10m suffix; L1C
// products keep the bands directly under IMG_DATA.
func locateBand(safeDir, band string) (string, error) {
	granules, err := filepath.Glob(filepath.Join(safeDir, "GRANULE", "*"))
	if err != nil || len(granules) == 0 {
		return "", fmt.Errorf("no GRANULE directory in %s", safeDir)
	}

	patterns := []string{
		filepath.Join("IMG_DATA", "R10m", "*_"+band+"_10m.jp2"),
		filepath.Join("IMG_DATA", "*_"+band+".jp2"),
	}
	for _, granule := range granules {
		info, err := os.Stat(granule)
		if err != nil || !info.IsDir() {
			continue
		}
		for _, pattern := range patterns {
			matches, _ := filepath.Glob(filepath.Join(granule, pattern))
			if len(matches) > 0 {
				return matches[0], nil
			}
		}
	}
	return "", fmt.Errorf("band %s not found in %s", band, safeDir)
}

// epsgFromWKT pulls the horizontal EPSG code out of a projection WKT
// string. The last AUTHORITY clause names the full CRS.
func epsgFromWKT(wkt string) (int, error) {
	idx := strings.LastIndex(wkt, `AUTHORITY["EPSG","`)
	if idx < 0 {
		return 0, fmt.Errorf("projection WKT carries no EPSG authority: %.80s", wkt)
	}
	rest := wkt[idx+len(`AUTHORITY["EPSG","`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return 0, fmt.Errorf("malformed AUTHORITY clause in projection WKT")
	}
	code := 0
	if _, err := fmt.Sscanf(rest[:end], "%d", &code); err != nil {
		return 0, fmt.Errorf("invalid EPSG code %q in projection WKT", rest[:end])
	}
	return code, nil
}
