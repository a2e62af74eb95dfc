package geo

import (
	"github.com/paulmach/orb/geojson"
)

// Feature kinds set as the "kind" property on exported features.
const (
	KindDeparture   = "departure"
	KindDestination = "destination"
	KindRoute       = "route"
)

// Shape is the geometry of one stored flight as WKT columns.
type Shape struct {
	ID          int64
	City        string
	DepCoord    string
	DestCoord   string
	RouteCoords string
}

// Features converts a flight's geometry columns to GeoJSON features: one for
// the departure point, one for the destination and one for the route, each
// only when present. Unparseable columns are skipped.
func Features(s Shape) []*geojson.Feature {
	var out []*geojson.Feature

	add := func(text, kind string) {
		if text == "" {
			return
		}
		g, err := Parse(text)
		if err != nil {
			return
		}
		f := geojson.NewFeature(g)
		f.Properties["flight_id"] = s.ID
		f.Properties["kind"] = kind
		if kind == KindDeparture && s.City != "" {
			f.Properties["city"] = s.City
		}
		out = append(out, f)
	}

	add(s.DepCoord, KindDeparture)
	add(s.DestCoord, KindDestination)
	add(s.RouteCoords, KindRoute)

	return out
}

// FeatureCollection gathers the features of all shapes.
func FeatureCollection(shapes []Shape) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range shapes {
		for _, f := range Features(s) {
			fc.Append(f)
		}
	}
	return fc
}
