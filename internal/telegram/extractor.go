package telegram

import (
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/paulmach/orb"

	"flightsheet/internal/flight"
	"flightsheet/internal/geo"
	"flightsheet/internal/patterns"
)

// Extractor turns one telegram into a flight record.
type Extractor struct {
	compiler *patterns.Compiler
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the clock used for the "today" date when a telegram has time
// marks but no DOF/ date.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New compiles the telegram formats.
func New(opts ...Option) (*Extractor, error) {
	c := patterns.NewCompiler(Formats, nil)
	if err := c.Compile(); err != nil {
		return nil, err
	}

	e := &Extractor{compiler: c, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Default extractor singleton.
var (
	defaultExtractor *Extractor
	defaultOnce      sync.Once
	defaultErr       error
)

// Default returns the shared extractor using the wall clock.
func Default() (*Extractor, error) {
	defaultOnce.Do(func() {
		defaultExtractor, defaultErr = New()
	})
	return defaultExtractor, defaultErr
}

// Extract reads every recognised field out of text. city is the resolved
// city of the spreadsheet row and becomes the record's City.
//
// Each field comes from its own probe; a malformed token leaves only that
// field unset.
func (e *Extractor) Extract(text, city string) flight.Record {
	r := flight.Defaults(city)

	r.MinAlt, r.MaxAlt = e.altitudeBand(text)
	r.RouteCoords = geo.LineString(e.waypoints(text))

	r.FlightID = e.identifier(text, fmtFlightID)
	r.UAVType = e.identifier(text, fmtUAVType)
	r.RegNumber = e.identifier(text, fmtRegNumber)
	r.Date = e.flightDate(text)

	if dep, arr, ok := e.timeMarks(text); ok {
		r.DepTime, r.ArrTime = dep, arr
		date := civil.DateOf(e.now())
		if r.Date != nil {
			date = *r.Date
		}
		if d := patterns.FlightDuration(dep, arr, date); d != nil {
			r.Duration = d
		}
	}

	r.DepCoord = e.point(text, fmtDepPoint)
	r.DestCoord = e.point(text, fmtDestPoint)

	return r
}

// Trace reports what every probe captured in text.
func (e *Extractor) Trace(text string) []patterns.FormatTrace {
	return e.compiler.Trace(text)
}

// altitudeBand returns both bounds or neither.
func (e *Extractor) altitudeBand(text string) (lo, hi *int) {
	m := e.compiler.Find(text, fmtAltitude)
	if m == nil {
		return nil, nil
	}

	minAlt, err := strconv.Atoi(m.Captures["min"])
	if err != nil {
		return nil, nil
	}
	maxAlt, err := strconv.Atoi(m.Captures["max"])
	if err != nil {
		return nil, nil
	}
	return &minAlt, &maxAlt
}

// waypoints decodes every waypoint token in order of appearance. Tokens that
// do not decode are dropped.
func (e *Extractor) waypoints(text string) []orb.Point {
	var points []orb.Point
	for _, c := range e.compiler.FindAllMatches(text, fmtWaypoint) {
		lat, lon, ok := patterns.DecodeCoordinate(c["coord"])
		if !ok {
			continue
		}
		points = append(points, geo.LatLon(lat, lon))
	}
	return points
}

func (e *Extractor) identifier(text, format string) string {
	return e.compiler.Find(text, format).GetCapture("value", "")
}

func (e *Extractor) flightDate(text string) *civil.Date {
	m := e.compiler.Find(text, fmtDate)
	if m == nil {
		return nil
	}
	return patterns.ParseDate6(m.Captures["date"])
}

// timeMarks returns the departure and arrival marks. ok is false when the
// telegram has no time mark at all.
func (e *Extractor) timeMarks(text string) (dep, arr *civil.Time, ok bool) {
	marks := e.compiler.FindAllMatches(text, fmtTime)
	if len(marks) == 0 {
		return nil, nil, false
	}

	dep = patterns.NormalizeTime(marks[0]["time"])
	if len(marks) > 1 {
		arr = patterns.NormalizeTime(marks[1]["time"])
	}
	return dep, arr, true
}

// point returns the WKT point for the DEP/ or DEST/ marker, or "".
func (e *Extractor) point(text, format string) string {
	m := e.compiler.Find(text, format)
	if m == nil {
		return ""
	}
	lat, lon, ok := patterns.DecodeCoordinate(m.Captures["coord"])
	if !ok {
		return ""
	}
	return geo.Point(geo.LatLon(lat, lon))
}
