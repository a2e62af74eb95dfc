package geo

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

func TestDocument(t *testing.T) {
	shapes := []Shape{
		{
			ID:          7,
			City:        "Москва",
			DepCoord:    "POINT(37.583333 55.7)",
			RouteCoords: "LINESTRING(37.5 55.7, 30.3 59.9)",
		},
		{ID: 8, DestCoord: "POINT(30.3 59.9)"},
		{ID: 9, DepCoord: "not wkt"},
	}

	doc := Document("Flights", shapes)
	if doc.Namespace != kmlNamespace || doc.Document.Name != "Flights" {
		t.Errorf("header = %q / %q", doc.Namespace, doc.Document.Name)
	}

	pms := doc.Document.Placemarks
	if len(pms) != 3 {
		t.Fatalf("got %d placemarks, want 3", len(pms))
	}

	dep := pms[0]
	if dep.Point == nil || dep.Point.Coordinates != "37.583333,55.700000,0" {
		t.Errorf("departure point = %+v", dep.Point)
	}
	if dep.StyleURL != "#departure" || dep.Description != "Москва" {
		t.Errorf("departure = %+v", dep)
	}

	route := pms[1]
	if route.LineString == nil || route.Point != nil {
		t.Fatalf("route geometry = %+v / %+v", route.LineString, route.Point)
	}
	if route.LineString.Coordinates != "37.500000,55.700000,0 30.300000,59.900000,0" {
		t.Errorf("route coordinates = %q", route.LineString.Coordinates)
	}

	if pms[2].Name != "8 destination" || pms[2].Description != "" {
		t.Errorf("destination = %+v", pms[2])
	}
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	doc := Document("Flights", []Shape{{ID: 1, DepCoord: "POINT(37.5 55.7)"}})
	if err := WriteKML(&buf, doc); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, xml.Header) {
		t.Errorf("missing XML header: %q", out[:40])
	}
	for _, want := range []string{
		`<kml xmlns="http://www.opengis.net/kml/2.2">`,
		"<coordinates>37.500000,55.700000,0</coordinates>",
		"<styleUrl>#departure</styleUrl>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<LineString>") {
		t.Error("point-only document has a LineString")
	}

	var back KML
	if err := xml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if len(back.Document.Placemarks) != 1 {
		t.Errorf("round trip placemarks = %d", len(back.Document.Placemarks))
	}
}
