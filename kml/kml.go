package kml

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	geo "github.com/nci/geometry"

	"github.com/pradyuth050804/geosentinel-forestwatch/raster"
)

// ParseFile reads a KML document and returns the first polygon in it
// as a region boundary with its planar area computed.
func ParseFile(path string) (*raster.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return reg, nil
}

// Parse extracts the boundary polygon from KML. The first coordinates
// block of the first Polygon is the exterior ring; coordinates inside
// innerBoundaryIs elements become holes. Rings are repaired before
// use: consecutive duplicate vertices are dropped, open rings are
// closed, and a self-intersecting exterior is replaced by its convex
// hull.
func Parse(r io.Reader) (*raster.Region, error) {
	exterior, holes, err := extractRings(r)
	if err != nil {
		return nil, err
	}
	if exterior == nil {
		return nil, fmt.Errorf("no polygon coordinates found in KML")
	}

	exterior, err = repairRing(exterior)
	if err != nil {
		return nil, fmt.Errorf("exterior ring: %v", err)
	}

	var keptHoles [][][2]float64
	for _, hole := range holes {
		repaired, err := repairRing(hole)
		if err != nil {
			// A malformed hole degrades the boundary, it does not
			// invalidate it.
			continue
		}
		keptHoles = append(keptHoles, repaired)
	}

	reg, err := raster.NewRegion(exterior, keptHoles)
	if err != nil {
		return nil, err
	}
	area, err := raster.PlanarArea(reg)
	if err != nil {
		return nil, err
	}
	reg.AreaM2 = area
	return reg, nil
}

// extractRings walks the XML token stream, so both namespaced
// (http://www.opengis.net/kml/2.2) and namespace-free documents parse.
// Only the first Polygon contributes.
func extractRings(r io.Reader) (exterior [][2]float64, holes [][][2]float64, err error) {
	dec := xml.NewDecoder(r)
	inInner := false
	polygonDone := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed KML: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "innerBoundaryIs":
				inInner = true
			case "coordinates":
				if polygonDone {
					continue
				}
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, nil, fmt.Errorf("malformed KML coordinates: %v", err)
				}
				ring, err := parseCoordinates(text)
				if err != nil {
					return nil, nil, err
				}
				if exterior == nil && !inInner {
					exterior = ring
				} else if inInner {
					holes = append(holes, ring)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "innerBoundaryIs":
				inInner = false
			case "Polygon":
				if exterior != nil {
					polygonDone = true
				}
			}
		}
	}
	return exterior, holes, nil
}

// parseCoordinates splits a KML coordinate string into (lon, lat)
// pairs. Each whitespace-separated tuple is lon,lat or lon,lat,alt;
// altitude is discarded.
func parseCoordinates(text string) ([][2]float64, error) {
	var ring [][2]float64
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid KML coordinate tuple: %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %v", parts[0], err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %v", parts[1], err)
		}
		ring = append(ring, [2]float64{lon, lat})
	}
	return ring, nil
}

// Feature renders a region as a GeoJSON Feature, the interchange form
// used for request logging and inspection endpoints.
func Feature(reg *raster.Region) (geo.Feature, error) {
	rings := make([][][2]float64, 0, 1+len(reg.Holes))
	rings = append(rings, reg.Exterior)
	rings = append(rings, reg.Holes...)

	doc := map[string]interface{}{
		"type": "Feature",
		"geometry": map[string]interface{}{
			"type":        "Polygon",
			"coordinates": rings,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return geo.Feature{}, err
	}
	var feat geo.Feature
	if err := json.Unmarshal(data, &feat); err != nil {
		return geo.Feature{}, fmt.Errorf("Problem unmarshalling GeoJSON object: %v", err)
	}
	return feat, nil
}
