package telegram

import (
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/paulmach/orb"

	"flightsheet/internal/geo"
)

var fixedNow = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

const fullTelegram = "(SHR-ZZZZZ -ZZZZ0930 -M0050/M0150 /ZONA 5542N037350E/ " +
	"-ZZZZ1010 -DEP/5542N03735E DEST/5955N03018E DOF/240115 " +
	"OPR/TEST REG/RA0123G TYP/MQ9 SID/ABC123 RMK/ROUTE 5542N03735E 5601N03800E)"

func TestExtractFullTelegram(t *testing.T) {
	e := newTestExtractor(t)
	r := e.Extract(fullTelegram, "Москва")

	if r.FlightID != "ABC123" {
		t.Errorf("FlightID = %q, want ABC123", r.FlightID)
	}
	if r.UAVType != "MQ9" {
		t.Errorf("UAVType = %q, want MQ9", r.UAVType)
	}
	if r.RegNumber != "RA0123G" {
		t.Errorf("RegNumber = %q, want RA0123G", r.RegNumber)
	}
	if r.Date == nil || r.Date.String() != "2024-01-15" {
		t.Errorf("Date = %v, want 2024-01-15", r.Date)
	}
	if r.DepTime == nil || r.DepTime.String() != "09:30:00" {
		t.Errorf("DepTime = %v, want 09:30:00", r.DepTime)
	}
	if r.ArrTime == nil || r.ArrTime.String() != "10:10:00" {
		t.Errorf("ArrTime = %v, want 10:10:00", r.ArrTime)
	}
	if r.Duration == nil || *r.Duration != 40*time.Minute {
		t.Errorf("Duration = %v, want 40m", r.Duration)
	}
	if r.MinAlt == nil || *r.MinAlt != 50 {
		t.Errorf("MinAlt = %v, want 50", r.MinAlt)
	}
	if r.MaxAlt == nil || *r.MaxAlt != 150 {
		t.Errorf("MaxAlt = %v, want 150", r.MaxAlt)
	}
	if r.City != "Москва" {
		t.Errorf("City = %q", r.City)
	}

	assertPoint(t, "DepCoord", r.DepCoord, 55.7, 37+35.0/60)
	assertPoint(t, "DestCoord", r.DestCoord, 59+55.0/60, 30.3)

	// Waypoints are every 5-digit-longitude token in order: the DEP and DEST
	// markers also count, plus the two remark points. 5542N037350E is not a
	// waypoint because the longitude run is 6 digits followed by E.
	want := []orb.Point{
		geo.LatLon(55.7, 37+35.0/60),
		geo.LatLon(59+55.0/60, 30.3),
		geo.LatLon(55.7, 37+35.0/60),
		geo.LatLon(56+1.0/60, 38),
	}
	if r.RouteCoords != geo.LineString(want) {
		t.Errorf("RouteCoords = %q, want %q", r.RouteCoords, geo.LineString(want))
	}
}

func TestExtractSpecExample(t *testing.T) {
	e := newTestExtractor(t)
	r := e.Extract("...SID/ABC123 TYP/MQ9 DOF/240115 DEP/5542N03735E DEST/5955N03018E -M0050/M0150 ZZZZ0930 ZZZZ1010...", "Москва")

	if !strings.HasPrefix(r.DepCoord, "POINT(37.58") || !strings.HasSuffix(r.DepCoord, " 55.7)") {
		t.Errorf("DepCoord = %q", r.DepCoord)
	}
	if r.DestCoord == "" || r.DestCoord == r.DepCoord {
		t.Errorf("DestCoord = %q", r.DestCoord)
	}
	if r.Duration == nil || *r.Duration != 40*time.Minute {
		t.Errorf("Duration = %v", r.Duration)
	}
	if r.RouteCoords == "" {
		t.Error("DEP and DEST tokens should form a two-point route")
	}
}

func TestExtractEmptyTelegram(t *testing.T) {
	e := newTestExtractor(t)
	r := e.Extract("", "Самара")

	if r.City != "Самара" {
		t.Errorf("City = %q", r.City)
	}
	if r.Duration == nil || *r.Duration != 0 {
		t.Errorf("Duration = %v, want default 0", r.Duration)
	}
	if r.FlightID != "" || r.Date != nil || r.DepTime != nil || r.MinAlt != nil || r.RouteCoords != "" {
		t.Errorf("unexpected fields: %+v", r)
	}
}

func TestExtractTimes(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name     string
		text     string
		dep      string
		arr      string
		duration *time.Duration
	}{
		{
			name:     "rollover",
			text:     "DOF/240115 ZZZZ2350 ZZZZ0010",
			dep:      "23:50:00",
			arr:      "00:10:00",
			duration: dur(20 * time.Minute),
		},
		{
			name:     "no date uses clock",
			text:     "ZZZZ0800 ZZZZ0915",
			dep:      "08:00:00",
			arr:      "09:15:00",
			duration: dur(75 * time.Minute),
		},
		{
			name:     "departure only keeps zero duration",
			text:     "ZZZZ0800",
			dep:      "08:00:00",
			duration: dur(0),
		},
		{
			name:     "invalid departure keeps zero duration",
			text:     "ZZZZ2500 ZZZZ0915",
			arr:      "09:15:00",
			duration: dur(0),
		},
		{
			name:     "five digit marks",
			text:     "ZZZZ08001 ZZZZ09152",
			dep:      "08:00:00",
			arr:      "09:15:00",
			duration: dur(75 * time.Minute),
		},
		{
			name:     "third mark ignored",
			text:     "ZZZZ0800 ZZZZ0900 ZZZZ1000",
			dep:      "08:00:00",
			arr:      "09:00:00",
			duration: dur(time.Hour),
		},
		{
			name:     "no marks keeps default",
			text:     "DOF/240115",
			duration: dur(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.Extract(tt.text, "")
			if got := timeString(r.DepTime); got != tt.dep {
				t.Errorf("DepTime = %q, want %q", got, tt.dep)
			}
			if got := timeString(r.ArrTime); got != tt.arr {
				t.Errorf("ArrTime = %q, want %q", got, tt.arr)
			}
			switch {
			case tt.duration == nil && r.Duration != nil:
				t.Errorf("Duration = %v, want unset", *r.Duration)
			case tt.duration != nil && r.Duration == nil:
				t.Errorf("Duration unset, want %v", *tt.duration)
			case tt.duration != nil && *r.Duration != *tt.duration:
				t.Errorf("Duration = %v, want %v", *r.Duration, *tt.duration)
			}
		})
	}
}

func TestExtractAltitude(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		text     string
		min, max int
		ok       bool
	}{
		{"-M0050/M0150", 50, 150, true},
		{"X -M0000/M0030 Y", 0, 30, true},
		{"-M050/M0150", 0, 0, false},
		{"-M0050 M0150", 0, 0, false},
		{"M0050/M0150", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := e.Extract(tt.text, "")
			if !tt.ok {
				if r.MinAlt != nil || r.MaxAlt != nil {
					t.Errorf("got %v/%v, want unset", r.MinAlt, r.MaxAlt)
				}
				return
			}
			if r.MinAlt == nil || r.MaxAlt == nil {
				t.Fatalf("altitudes unset")
			}
			if *r.MinAlt != tt.min || *r.MaxAlt != tt.max {
				t.Errorf("got %d/%d, want %d/%d", *r.MinAlt, *r.MaxAlt, tt.min, tt.max)
			}
		})
	}
}

func TestExtractIdentifiers(t *testing.T) {
	e := newTestExtractor(t)

	r := e.Extract("REG/RA-0123 TYP/Орлан10 SID/7700123", "")
	if r.RegNumber != "RA" {
		t.Errorf("RegNumber = %q, want RA (stops at dash)", r.RegNumber)
	}
	if r.UAVType != "Орлан10" {
		t.Errorf("UAVType = %q, want Орлан10", r.UAVType)
	}
	if r.FlightID != "7700123" {
		t.Errorf("FlightID = %q", r.FlightID)
	}

	r = e.Extract("SID/ TYP/", "")
	if r.FlightID != "" || r.UAVType != "" {
		t.Errorf("empty markers should not match: %+v", r)
	}
}

func TestExtractDate(t *testing.T) {
	e := newTestExtractor(t)

	if r := e.Extract("DOF/240230", ""); r.Date != nil {
		t.Errorf("invalid date should be dropped, got %s", r.Date)
	}
	if r := e.Extract("DOF/24011", ""); r.Date != nil {
		t.Errorf("short date should not match, got %s", r.Date)
	}
	if r := e.Extract("DOF/2401159", ""); r.Date == nil || r.Date.String() != "2024-01-15" {
		t.Errorf("Date = %v, want first six digits", r.Date)
	}
}

func TestExtractPoints(t *testing.T) {
	e := newTestExtractor(t)

	t.Run("five digit latitude does not decode", func(t *testing.T) {
		r := e.Extract("DEP/55420N03735E", "")
		if r.DepCoord != "" {
			t.Errorf("DepCoord = %q, want unset", r.DepCoord)
		}
	})

	t.Run("four digit longitude does not decode", func(t *testing.T) {
		r := e.Extract("DEST/5542N3735E", "")
		if r.DestCoord != "" {
			t.Errorf("DestCoord = %q, want unset", r.DestCoord)
		}
	})

	t.Run("southern western hemisphere", func(t *testing.T) {
		r := e.Extract("DEP/5542S03735W", "")
		assertPoint(t, "DepCoord", r.DepCoord, -55.7, -(37 + 35.0/60))
	})

	t.Run("dep and dest are separate", func(t *testing.T) {
		r := e.Extract("DEST/5955N03018E", "")
		if r.DepCoord != "" {
			t.Errorf("DepCoord = %q, DEST/ must not satisfy DEP/", r.DepCoord)
		}
		assertPoint(t, "DestCoord", r.DestCoord, 59+55.0/60, 30.3)
	})
}

func TestExtractRoute(t *testing.T) {
	e := newTestExtractor(t)

	if r := e.Extract("5542N03735E", ""); r.RouteCoords != "" {
		t.Errorf("single waypoint should give no route, got %q", r.RouteCoords)
	}

	r := e.Extract("5601N03800E 5542N03735E 5542X03735E", "")
	want := geo.LineString([]orb.Point{geo.LatLon(56+1.0/60, 38), geo.LatLon(55.7, 37+35.0/60)})
	if !strings.HasPrefix(want, "LINESTRING(38 56.01666") {
		t.Fatalf("unexpected formatting %q", want)
	}
	if r.RouteCoords != want {
		t.Errorf("RouteCoords = %q, want %q", r.RouteCoords, want)
	}
}

// Extraction has no hidden state: the same input always gives the same record.
func TestExtractDeterministic(t *testing.T) {
	e := newTestExtractor(t)
	first := e.Extract(fullTelegram, "Москва")
	for i := 0; i < 5; i++ {
		again := e.Extract(fullTelegram, "Москва")
		if again.RouteCoords != first.RouteCoords || *again.Duration != *first.Duration ||
			again.DepCoord != first.DepCoord || *again.Date != *first.Date {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestTrace(t *testing.T) {
	e := newTestExtractor(t)
	traces := e.Trace("SID/X1 ZZZZ0930 ZZZZ1010")

	byName := map[string]int{}
	for _, tr := range traces {
		byName[tr.Name] = len(tr.Captures)
	}
	if byName[fmtFlightID] != 1 {
		t.Errorf("flight_id captures = %d", byName[fmtFlightID])
	}
	if byName[fmtTime] != 2 {
		t.Errorf("time captures = %d", byName[fmtTime])
	}
	if byName[fmtAltitude] != 0 {
		t.Errorf("altitude captures = %d", byName[fmtAltitude])
	}
	if len(traces) != len(Formats) {
		t.Errorf("got %d traces, want %d", len(traces), len(Formats))
	}
}

func assertPoint(t *testing.T, field, wkt string, lat, lon float64) {
	t.Helper()
	g, err := geo.Parse(wkt)
	if err != nil {
		t.Fatalf("%s = %q: %v", field, wkt, err)
	}
	p, ok := g.(orb.Point)
	if !ok {
		t.Fatalf("%s = %q is not a point", field, wkt)
	}
	if math.Abs(p.Lat()-lat) > 1e-9 || math.Abs(p.Lon()-lon) > 1e-9 {
		t.Errorf("%s = %q, want lat %s lon %s", field, wkt,
			strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64))
	}
}

func timeString(v *civil.Time) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func dur(d time.Duration) *time.Duration { return &d }
