// Package flight defines the normalized flight record produced from telegrams
// and the rule for merging the records of one spreadsheet row.
package flight

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Record is one normalized flight. Empty strings and nil pointers mean unset.
type Record struct {
	FlightID  string
	UAVType   string
	RegNumber string

	Date     *civil.Date
	DepTime  *civil.Time
	ArrTime  *civil.Time
	Duration *time.Duration

	DepCoord    string // POINT(lon lat)
	DestCoord   string // POINT(lon lat)
	RouteCoords string // LINESTRING(lon lat, ...), at least two points

	MinAlt *int // hundreds of feet
	MaxAlt *int

	City string
}

// Defaults returns the record every telegram starts from: all fields unset,
// a zero duration and the given city.
//
// Duration is zero rather than unset so stored flights always carry a numeric
// duration. Downstream aggregates will see these as zero-length flights.
func Defaults(city string) Record {
	var zero time.Duration
	return Record{
		Duration: &zero,
		City:     city,
	}
}

// IsZero reports whether every field is unset.
func (r Record) IsZero() bool {
	return r.FlightID == "" && r.UAVType == "" && r.RegNumber == "" &&
		r.Date == nil && r.DepTime == nil && r.ArrTime == nil && r.Duration == nil &&
		r.DepCoord == "" && r.DestCoord == "" && r.RouteCoords == "" &&
		r.MinAlt == nil && r.MaxAlt == nil && r.City == ""
}

// FormatDuration renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// recordJSON is the wire form handed to storage and printed by the CLI.
// date is always present, null when the telegrams carried no date.
type recordJSON struct {
	FlightID    string      `json:"flight_id,omitempty"`
	UAVType     string      `json:"uav_type,omitempty"`
	RegNumber   string      `json:"reg_number,omitempty"`
	Date        *civil.Date `json:"date"`
	DepTime     *civil.Time `json:"dep_time,omitempty"`
	ArrTime     *civil.Time `json:"arr_time,omitempty"`
	Duration    string      `json:"duration,omitempty"`
	DepCoord    string      `json:"dep_coord,omitempty"`
	DestCoord   string      `json:"dest_coord,omitempty"`
	RouteCoords string      `json:"route_coords,omitempty"`
	MinAlt      *int        `json:"min_alt,omitempty"`
	MaxAlt      *int        `json:"max_alt,omitempty"`
	City        string      `json:"city,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		FlightID:    r.FlightID,
		UAVType:     r.UAVType,
		RegNumber:   r.RegNumber,
		Date:        r.Date,
		DepTime:     r.DepTime,
		ArrTime:     r.ArrTime,
		DepCoord:    r.DepCoord,
		DestCoord:   r.DestCoord,
		RouteCoords: r.RouteCoords,
		MinAlt:      r.MinAlt,
		MaxAlt:      r.MaxAlt,
		City:        r.City,
	}
	if r.Duration != nil {
		out.Duration = FormatDuration(*r.Duration)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*r = Record{
		FlightID:    in.FlightID,
		UAVType:     in.UAVType,
		RegNumber:   in.RegNumber,
		Date:        in.Date,
		DepTime:     in.DepTime,
		ArrTime:     in.ArrTime,
		DepCoord:    in.DepCoord,
		DestCoord:   in.DestCoord,
		RouteCoords: in.RouteCoords,
		MinAlt:      in.MinAlt,
		MaxAlt:      in.MaxAlt,
		City:        in.City,
	}
	if in.Duration != "" {
		d, err := ParseDuration(in.Duration)
		if err != nil {
			return err
		}
		r.Duration = &d
	}
	return nil
}

// ParseDuration reads an HH:MM:SS duration.
func ParseDuration(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("parse duration %q: out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}
