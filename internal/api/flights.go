package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"flightsheet/internal/geo"
	"flightsheet/internal/importer"
	"flightsheet/internal/sheet"
	"flightsheet/internal/storage"
)

// topLimit is the number of groups returned by /flights/top.
const topLimit = 10

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flights, err := s.store.ListFlights(r.Context(), page)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if flights == nil {
		flights = []storage.Flight{}
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid flight id")
		return
	}

	f, err := s.store.GetFlight(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "Flight not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// TypeResponse is one entry of /flights/types.
type TypeResponse struct {
	UAVType string `json:"uav_type"`
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Distinct(r.Context(), "uav_type")
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]TypeResponse, len(values))
	for i, v := range values {
		out[i] = TypeResponse{UAVType: v}
	}
	writeJSON(w, http.StatusOK, out)
}

// CityResponse is one entry of /flights/cities.
type CityResponse struct {
	City string `json:"city"`
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Distinct(r.Context(), "city")
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]CityResponse, len(values))
	for i, v := range values {
		out[i] = CityResponse{City: v}
	}
	writeJSON(w, http.StatusOK, out)
}

// StatsResponse is the body of /flights/stats.
type StatsResponse struct {
	TotalPeriod int64 `json:"totalPeriod"`
	TotalYear   int64 `json:"totalYear"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	period, err := s.store.Count(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	year, err := s.store.CountYear(r.Context(), s.now().Year())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{TotalPeriod: period, TotalYear: year})
}

func (s *Server) handleYearly(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := s.store.Monthly(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]storage.Bucket, len(buckets))
	for i, b := range buckets {
		out[i] = storage.Bucket{Name: storage.MonthLabel(b.Name), Count: b.Count}
	}
	writeJSON(w, http.StatusOK, out)
}

// MonthResponse is one entry of /flights/monthly.
type MonthResponse struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := s.store.Monthly(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]MonthResponse, len(buckets))
	for i, b := range buckets {
		out[i] = MonthResponse{Month: b.Name, Count: b.Count}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	by, err := storage.ParseGroupBy(r.URL.Query().Get("groupBy"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "groupBy must be one of city, uav_type, date")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := s.store.Top(r.Context(), by, f, topLimit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []storage.Bucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

// shapes loads the geometry of one page of flights. Without an explicit limit
// the page is storage.MaxLimit long.
func (s *Server) shapes(w http.ResponseWriter, r *http.Request) ([]geo.Shape, bool) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if r.URL.Query().Get("limit") == "" {
		page.Limit = storage.MaxLimit
	}

	flights, err := s.store.ListFlights(r.Context(), page)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	return FlightShapes(flights), true
}

// FlightShapes extracts the geometry columns of stored flights.
func FlightShapes(flights []storage.Flight) []geo.Shape {
	shapes := make([]geo.Shape, len(flights))
	for i, f := range flights {
		shapes[i] = geo.Shape{
			ID:          f.ID,
			City:        f.Record.City,
			DepCoord:    f.Record.DepCoord,
			DestCoord:   f.Record.DestCoord,
			RouteCoords: f.Record.RouteCoords,
		}
	}
	return shapes
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	shapes, ok := s.shapes(w, r)
	if !ok {
		return
	}

	fc := geo.FeatureCollection(shapes)
	b, err := fc.MarshalJSON()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleKML(w http.ResponseWriter, r *http.Request) {
	shapes, ok := s.shapes(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.WriteHeader(http.StatusOK)
	if err := geo.WriteKML(w, geo.Document("Flights", shapes)); err != nil {
		s.logger.Warn("write kml", "error", err)
	}
}

// UploadResponse is the body returned after a successful upload.
type UploadResponse struct {
	Status       string `json:"status"`
	RowsInserted int    `json:"rows_inserted"`
	ImportID     string `json:"import_id"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeError(w, http.StatusNotImplemented, "Uploads are disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Form field \"file\" is required")
		return
	}
	defer file.Close()

	table, err := sheet.Read(file, header.Filename, sheet.Options{})
	if errors.Is(err, sheet.ErrUnsupportedFormat) {
		writeError(w, http.StatusBadRequest, "Unsupported file type (use .xlsx or .csv)")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read table: "+err.Error())
		return
	}
	defer closeTable(table)

	sum, err := s.importer.Import(r.Context(), table)
	if errors.Is(err, importer.ErrNoRecords) {
		writeError(w, http.StatusBadRequest, "File is empty or no flight data could be extracted")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:       "success",
		RowsInserted: sum.Inserted,
		ImportID:     sum.ImportID.String(),
	})
}

// parsePage reads skip and limit. limit is clamped to storage.MaxLimit.
func parsePage(r *http.Request) (storage.Page, error) {
	q := r.URL.Query()
	var p storage.Page
	var err error
	if v := q.Get("skip"); v != "" {
		if p.Skip, err = strconv.Atoi(v); err != nil || p.Skip < 0 {
			return p, fmt.Errorf("invalid skip %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil || p.Limit < 1 {
			return p, fmt.Errorf("invalid limit %q", v)
		}
	}
	return p.Normalize(), nil
}

// parseFilter reads uav_type, city, startDate and endDate.
func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		UAVType: q.Get("uav_type"),
		City:    q.Get("city"),
	}
	var err error
	if f.Start, err = parseDate(q.Get("startDate")); err != nil {
		return f, fmt.Errorf("invalid startDate: %w", err)
	}
	if f.End, err = parseDate(q.Get("endDate")); err != nil {
		return f, fmt.Errorf("invalid endDate: %w", err)
	}
	return f, nil
}

// parseDate accepts YYYY-MM-DD, optionally followed by a time part which is
// ignored.
func parseDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
