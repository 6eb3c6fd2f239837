package kml

import "testing"

func TestRepairRingDedupes(t *testing.T) {
	ring := [][2]float64{
		{0, 0}, {0, 0}, {1, 0}, {1, 1}, {1, 1}, {0, 1}, {0, 0},
	}
	out, err := repairRing(ring)
	if err != nil {
		t.Fatalf("repairRing failed: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("expected 4 distinct vertices, actual %d", len(out))
	}
}

func TestRepairRingTooFewVertices(t *testing.T) {
	if _, err := repairRing([][2]float64{{0, 0}, {1, 1}, {0, 0}}); err == nil {
		t.Fatal("expected error for degenerate ring")
	}
}

func TestRepairRingBowtieFallsBackToHull(t *testing.T) {
	// A self-intersecting bowtie collapses to the hull of its vertices.
	bowtie := [][2]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}}
	out, err := repairRing(bowtie)
	if err != nil {
		t.Fatalf("repairRing failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("hull vertices: expected 4, actual %d", len(out))
	}
	if selfIntersects(out) {
		t.Error("repaired ring still self-intersects")
	}
}

func TestRepairRingKeepsValidConcave(t *testing.T) {
	// Concave but simple: must pass through untouched, not get
	// convexified.
	ring := [][2]float64{{0, 0}, {4, 0}, {4, 4}, {2, 1}, {0, 4}}
	out, err := repairRing(ring)
	if err != nil {
		t.Fatalf("repairRing failed: %v", err)
	}
	if len(out) != 5 {
		t.Errorf("valid concave ring modified: %v", out)
	}
}

func TestSelfIntersects(t *testing.T) {
	square := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	if selfIntersects(square) {
		t.Error("square reported as self-intersecting")
	}
	bowtie := [][2]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}}
	if !selfIntersects(bowtie) {
		t.Error("bowtie not reported as self-intersecting")
	}
}

func TestConvexHull(t *testing.T) {
	points := [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {1, 1}}
	hull := convexHull(points)
	if len(hull) != 4 {
		t.Fatalf("hull of square plus interior point: expected 4 vertices, actual %d", len(hull))
	}
	for _, v := range hull {
		if v == [2]float64{1, 1} {
			t.Error("interior point ended up on the hull")
		}
	}
}
