package kml

import (
	"strings"
	"testing"
)

const simpleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>Test Area</name>
      <Polygon>
        <outerBoundaryIs>
          <LinearRing>
            <coordinates>
              30.0,-0.8,0 30.8,-0.8,0 30.8,0.0,0 30.0,0.0,0 30.0,-0.8,0
            </coordinates>
          </LinearRing>
        </outerBoundaryIs>
        <innerBoundaryIs>
          <LinearRing>
            <coordinates>
              30.3,-0.5 30.5,-0.5 30.5,-0.3 30.3,-0.3 30.3,-0.5
            </coordinates>
          </LinearRing>
        </innerBoundaryIs>
      </Polygon>
    </Placemark>
  </Document>
</kml>`

func TestParsePolygonWithHole(t *testing.T) {
	reg, err := Parse(strings.NewReader(simpleKML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(reg.Exterior) != 5 {
		t.Errorf("exterior vertices: expected 5 (closed), actual %d", len(reg.Exterior))
	}
	if len(reg.Holes) != 1 {
		t.Fatalf("holes: expected 1, actual %d", len(reg.Holes))
	}
	if reg.MinLon != 30.0 || reg.MaxLon != 30.8 || reg.MinLat != -0.8 || reg.MaxLat != 0.0 {
		t.Errorf("bbox: actual (%v, %v, %v, %v)", reg.MinLon, reg.MinLat, reg.MaxLon, reg.MaxLat)
	}
	if reg.AreaM2 <= 0 {
		t.Errorf("area must be positive, actual %v", reg.AreaM2)
	}
	// The exterior square is about 0.8x0.8 degrees near the equator;
	// the hole removes a fraction of it.
	if reg.AreaM2 > 0.8*0.8*111320*111320 {
		t.Errorf("area larger than the bounding square: %v", reg.AreaM2)
	}
}

func TestParseNoNamespace(t *testing.T) {
	kmlDoc := `<kml><Document><Placemark><Polygon><outerBoundaryIs><LinearRing>
	<coordinates>10.0,50.0 10.1,50.0 10.1,50.1 10.0,50.1</coordinates>
	</LinearRing></outerBoundaryIs></Polygon></Placemark></Document></kml>`
	reg, err := Parse(strings.NewReader(kmlDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(reg.Holes) != 0 {
		t.Errorf("expected no holes, actual %d", len(reg.Holes))
	}
	if reg.AreaM2 <= 0 {
		t.Errorf("area must be positive, actual %v", reg.AreaM2)
	}
}

func TestParseNoPolygon(t *testing.T) {
	kmlDoc := `<kml><Document><Placemark><Point><coordinates>10,50</coordinates></Point></Placemark></Document></kml>`
	_, err := Parse(strings.NewReader(kmlDoc))
	if err == nil {
		t.Fatal("expected error for KML without polygon")
	}
}

func TestParseMalformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader("<kml><Polygon>"))
	if err == nil {
		t.Fatal("expected error for truncated XML")
	}
}

func TestParseOnlyFirstPolygon(t *testing.T) {
	kmlDoc := `<kml><Document>
	<Polygon><outerBoundaryIs><LinearRing>
	<coordinates>10.0,50.0 10.1,50.0 10.1,50.1 10.0,50.1</coordinates>
	</LinearRing></outerBoundaryIs></Polygon>
	<Polygon><outerBoundaryIs><LinearRing>
	<coordinates>20.0,60.0 20.1,60.0 20.1,60.1 20.0,60.1</coordinates>
	</LinearRing></outerBoundaryIs></Polygon>
	</Document></kml>`
	reg, err := Parse(strings.NewReader(kmlDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if reg.MinLon != 10.0 || reg.MaxLon != 10.1 {
		t.Errorf("second polygon leaked into boundary: bbox (%v, %v)", reg.MinLon, reg.MaxLon)
	}
}

func TestFeatureRoundTrip(t *testing.T) {
	reg, err := Parse(strings.NewReader(simpleKML))
	if err != nil {
		t.Fatal(err)
	}
	feat, err := Feature(reg)
	if err != nil {
		t.Fatalf("Feature failed: %v", err)
	}
	if feat.Type != "Feature" {
		t.Errorf("feature type: expected Feature, actual %q", feat.Type)
	}
}
