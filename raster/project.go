package raster

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid constants and the UTM scale factor.
const (
	semiMajor = 6378137.0
	flattening = 1.0 / 298.257223563
	utmScale   = 0.9996
	utmFalseE  = 500000.0
	utmFalseN  = 10000000.0
)

var (
	e2  = flattening * (2 - flattening)
	e4  = e2 * e2
	e6  = e4 * e2
	ep2 = e2 / (1 - e2)
)

// UTMZoneEPSG returns the EPSG code of the WGS84 UTM zone containing
// the given longitude/latitude.
func UTMZoneEPSG(lon, lat float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	if lat < 0 {
		return 32700 + zone
	}
	return 32600 + zone
}

func utmZoneFromEPSG(epsg int) (int, bool, error) {
	if epsg >= 32601 && epsg <= 32660 {
		return epsg - 32600, true, nil
	}
	if epsg >= 32701 && epsg <= 32760 {
		return epsg - 32700, false, nil
	}
	return 0, false, fmt.Errorf("EPSG:%d is not a WGS84 UTM zone", epsg)
}

func centralMeridian(zone int) float64 {
	return float64(zone*6-183) * math.Pi / 180
}

func meridionalArc(phi float64) float64 {
	return semiMajor * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// forwardUTM projects a WGS84 lon/lat (degrees) into UTM easting and
// northing for the given zone.
func forwardUTM(lon, lat float64, zone int, north bool) (float64, float64) {
	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180
	lam0 := centralMeridian(zone)

	sinPhi, cosPhi, tanPhi := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	n := semiMajor / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * (lam - lam0)
	m := meridionalArc(phi)

	easting := utmScale*n*(a+(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120) + utmFalseE
	northing := utmScale * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	if !north {
		northing += utmFalseN
	}
	return easting, northing
}

// inverseUTM converts UTM easting/northing back to WGS84 lon/lat in
// degrees.
func inverseUTM(easting, northing float64, zone int, north bool) (float64, float64) {
	x := easting - utmFalseE
	y := northing
	if !north {
		y -= utmFalseN
	}

	m := y / utmScale
	mu := m / (semiMajor * (1 - e2/4 - 3*e4/64 - 5*e6/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu + (3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1, tanPhi1 := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := semiMajor / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := semiMajor * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * utmScale)

	phi := phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lam := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	lat := phi * 180 / math.Pi
	lon := (centralMeridian(zone) + lam) * 180 / math.Pi
	return lon, lat
}

// Transform converts a coordinate from one CRS to another. Supported
// references are EPSG:4326 and the WGS84 UTM zones, which covers the
// Sentinel-2 product grids.
func Transform(x, y float64, srcCRS, dstCRS string) (float64, float64, error) {
	if srcCRS == dstCRS {
		return x, y, nil
	}

	srcEPSG, err := ExtractEPSGCode(srcCRS)
	if err != nil {
		return 0, 0, err
	}
	dstEPSG, err := ExtractEPSGCode(dstCRS)
	if err != nil {
		return 0, 0, err
	}
	if srcEPSG == dstEPSG {
		return x, y, nil
	}

	lon, lat := x, y
	if srcEPSG != 4326 {
		zone, north, err := utmZoneFromEPSG(srcEPSG)
		if err != nil {
			return 0, 0, err
		}
		lon, lat = inverseUTM(x, y, zone, north)
	}
	if dstEPSG == 4326 {
		return lon, lat, nil
	}

	zone, north, err := utmZoneFromEPSG(dstEPSG)
	if err != nil {
		return 0, 0, err
	}
	e, n := forwardUTM(lon, lat, zone, north)
	return e, n, nil
}

// ProjectRing projects a lon/lat ring into the given CRS.
func ProjectRing(ring [][2]float64, dstCRS string) ([][2]float64, error) {
	out := make([][2]float64, len(ring))
	for i, v := range ring {
		x, y, err := Transform(v[0], v[1], "EPSG:4326", dstCRS)
		if err != nil {
			return nil, err
		}
		out[i] = [2]float64{x, y}
	}
	return out, nil
}

// PlanarArea computes the area of the region in square meters. The
// rings are projected into the UTM zone of the region centroid so the
// shoelace sum operates on locally accurate planar coordinates; hole
// areas are subtracted.
func PlanarArea(reg *Region) (float64, error) {
	midLon := (reg.MinLon + reg.MaxLon) / 2
	midLat := (reg.MinLat + reg.MaxLat) / 2
	crs := fmt.Sprintf("EPSG:%d", UTMZoneEPSG(midLon, midLat))

	ext, err := ProjectRing(reg.Exterior, crs)
	if err != nil {
		return 0, err
	}
	area := math.Abs(shoelace(ext))
	for _, hole := range reg.Holes {
		h, err := ProjectRing(hole, crs)
		if err != nil {
			return 0, err
		}
		area -= math.Abs(shoelace(h))
	}
	if area < 0 {
		area = 0
	}
	return area, nil
}

func shoelace(ring [][2]float64) float64 {
	sum := 0.0
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}
