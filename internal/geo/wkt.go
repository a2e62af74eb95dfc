// Package geo builds and reads the well-known-text geometry stored with each
// flight: POINT for departure/destination and LINESTRING for the route.
//
// Points are orb.Point values, which are [lon, lat]. The text form keeps that
// order: longitude first.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// MinRoutePoints is the number of waypoints a route needs to be drawn.
const MinRoutePoints = 2

// LatLon returns the orb point for a decoded latitude/longitude pair.
func LatLon(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Point formats p as POINT(lon lat).
func Point(p orb.Point) string {
	return "POINT(" + coord(p) + ")"
}

// LineString formats points as LINESTRING(lon1 lat1, lon2 lat2, ...) in the
// given order. Fewer than MinRoutePoints points gives "".
func LineString(points []orb.Point) string {
	if len(points) < MinRoutePoints {
		return ""
	}

	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = coord(p)
	}
	return "LINESTRING(" + strings.Join(parts, ", ") + ")"
}

func coord(p orb.Point) string {
	return strconv.FormatFloat(p.Lon(), 'f', -1, 64) + " " + strconv.FormatFloat(p.Lat(), 'f', -1, 64)
}

// Parse reads a POINT or LINESTRING back into an orb geometry.
func Parse(text string) (orb.Geometry, error) {
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("parse wkt %q: %w", text, err)
	}

	switch g.(type) {
	case orb.Point, orb.LineString:
		return g, nil
	default:
		return nil, fmt.Errorf("parse wkt %q: unsupported geometry %s", text, g.GeoJSONType())
	}
}
