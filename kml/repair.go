package kml

import (
	"fmt"
	"sort"
)

// repairRing cleans up a digitized ring so downstream geometry can
// trust it: consecutive duplicate vertices are removed, the closing
// vertex is dropped (closure is restored by the region constructor),
// and a self-intersecting ring is replaced by its convex hull. Hand
// drawn KML boundaries cross themselves often enough that rejecting
// them outright would make the importer useless.
func repairRing(ring [][2]float64) ([][2]float64, error) {
	ring = dedupeConsecutive(ring)
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("needs at least 3 distinct vertices, got %d", len(ring))
	}
	if selfIntersects(ring) {
		hull := convexHull(ring)
		if len(hull) < 3 {
			return nil, fmt.Errorf("degenerate ring: all vertices collinear")
		}
		return hull, nil
	}
	return ring, nil
}

func dedupeConsecutive(ring [][2]float64) [][2]float64 {
	out := ring[:0:0]
	for _, v := range ring {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

// selfIntersects tests every pair of non-adjacent edges of the closed
// ring. Quadratic, fine at boundary-polygon vertex counts.
func selfIntersects(ring [][2]float64) bool {
	n := len(ring)
	edge := func(i int) ([2]float64, [2]float64) {
		return ring[i], ring[(i+1)%n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges, including the last-first wrap.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			a1, a2 := edge(i)
			b1, b2 := edge(j)
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 [2]float64) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

func cross(o, a, b [2]float64) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(a, b, p [2]float64) bool {
	return minF(a[0], b[0]) <= p[0] && p[0] <= maxF(a[0], b[0]) &&
		minF(a[1], b[1]) <= p[1] && p[1] <= maxF(a[1], b[1])
}

// convexHull computes the hull with the monotone chain algorithm and
// returns it counter-clockwise without the closing vertex.
func convexHull(points [][2]float64) [][2]float64 {
	pts := make([][2]float64, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	var lower [][2]float64
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper [][2]float64
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
