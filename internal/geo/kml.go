package geo

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// KML 2.2 documents for Google Earth and other viewers. Only the elements
// needed for flight points and routes are modelled.
// https://developers.google.com/kml/documentation/kmlreference

const kmlNamespace = "http://www.opengis.net/kml/2.2"

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name    `xml:"kml"`
	Namespace string      `xml:"xmlns,attr"`
	Document  KMLDocument `xml:"Document"`
}

// KMLDocument contains the document metadata and features.
type KMLDocument struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	Styles      []KMLStyle     `xml:"Style,omitempty"`
	Placemarks  []KMLPlacemark `xml:"Placemark"`
}

// KMLStyle defines how points and lines of a kind are drawn.
type KMLStyle struct {
	ID        string        `xml:"id,attr"`
	IconStyle *KMLIconStyle `xml:"IconStyle,omitempty"`
	LineStyle *KMLLineStyle `xml:"LineStyle,omitempty"`
}

// KMLIconStyle sets the point icon.
type KMLIconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  KMLIcon `xml:"Icon"`
}

// KMLIcon specifies the icon image.
type KMLIcon struct {
	Href string `xml:"href"`
}

// KMLLineStyle sets the route colour (aabbggrr) and width.
type KMLLineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// KMLPlacemark is one point or route. Exactly one geometry is set.
type KMLPlacemark struct {
	Name         string           `xml:"name"`
	Description  string           `xml:"description,omitempty"`
	StyleURL     string           `xml:"styleUrl,omitempty"`
	Point        *KMLPoint        `xml:"Point,omitempty"`
	LineString   *KMLLineString   `xml:"LineString,omitempty"`
	ExtendedData *KMLExtendedData `xml:"ExtendedData,omitempty"`
}

// KMLPoint holds "lon,lat,alt".
type KMLPoint struct {
	Coordinates string `xml:"coordinates"`
}

// KMLLineString holds space separated "lon,lat,alt" tuples.
type KMLLineString struct {
	Tessellate  int    `xml:"tessellate"`
	Coordinates string `xml:"coordinates"`
}

// KMLExtendedData holds custom data associated with a placemark.
type KMLExtendedData struct {
	Data []KMLData `xml:"Data"`
}

// KMLData is a single named value.
type KMLData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Document builds a KML document with one placemark per present geometry
// column of every shape, styled by kind. Unparseable columns are skipped.
func Document(name string, shapes []Shape) KML {
	var placemarks []KMLPlacemark
	for _, s := range shapes {
		add := func(text, kind string) {
			if text == "" {
				return
			}
			g, err := Parse(text)
			if err != nil {
				return
			}
			pm := KMLPlacemark{
				Name:     fmt.Sprintf("%d %s", s.ID, kind),
				StyleURL: "#" + kind,
				ExtendedData: &KMLExtendedData{Data: []KMLData{
					{Name: "flight_id", Value: strconv.FormatInt(s.ID, 10)},
					{Name: "kind", Value: kind},
				}},
			}
			if s.City != "" {
				pm.Description = s.City
				pm.ExtendedData.Data = append(pm.ExtendedData.Data, KMLData{Name: "city", Value: s.City})
			}
			switch g := g.(type) {
			case orb.Point:
				pm.Point = &KMLPoint{Coordinates: kmlCoord(g)}
			case orb.LineString:
				parts := make([]string, len(g))
				for i, p := range g {
					parts[i] = kmlCoord(p)
				}
				pm.LineString = &KMLLineString{Tessellate: 1, Coordinates: strings.Join(parts, " ")}
			}
			placemarks = append(placemarks, pm)
		}

		add(s.DepCoord, KindDeparture)
		add(s.DestCoord, KindDestination)
		add(s.RouteCoords, KindRoute)
	}

	return KML{
		Namespace: kmlNamespace,
		Document: KMLDocument{
			Name:        name,
			Description: fmt.Sprintf("%d flights", len(shapes)),
			Styles: []KMLStyle{
				{ID: KindDeparture, IconStyle: &KMLIconStyle{Scale: 0.8, Icon: KMLIcon{Href: "http://maps.google.com/mapfiles/kml/paddle/grn-circle.png"}}},
				{ID: KindDestination, IconStyle: &KMLIconStyle{Scale: 0.8, Icon: KMLIcon{Href: "http://maps.google.com/mapfiles/kml/paddle/red-circle.png"}}},
				{ID: KindRoute, LineStyle: &KMLLineStyle{Color: "ff0000ff", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}
}

// WriteKML writes doc with the XML header.
func WriteKML(w io.Writer, doc KML) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// kmlCoord formats p as lon,lat,0.
func kmlCoord(p orb.Point) string {
	return strconv.FormatFloat(p.Lon(), 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat(), 'f', 6, 64) + ",0"
}
