// Package storage persists flight records and answers the reporting queries
// served by the API.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"flightsheet/internal/flight"
)

// Backend names accepted by Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database connection settings.
type Config struct {
	Driver     string           `yaml:"driver"`
	SQLitePath string           `yaml:"sqlite_path"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver:     DriverSQLite,
		SQLitePath: "flights.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "dashboard",
			User:     "postgres",
			Password: "",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "flights",
			User:     "default",
			Password: "",
		},
	}
}

// Store is the relational flight store. PostgresDB and SQLiteDB implement it.
type Store interface {
	CreateSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, importID uuid.UUID, records []flight.Record) (int, error)

	ListFlights(ctx context.Context, p Page) ([]Flight, error)
	GetFlight(ctx context.Context, id int64) (*Flight, error)
	Distinct(ctx context.Context, column string) ([]string, error)
	Count(ctx context.Context, f Filter) (int64, error)
	CountYear(ctx context.Context, year int) (int64, error)
	Monthly(ctx context.Context, f Filter) ([]Bucket, error)
	Top(ctx context.Context, by GroupBy, f Filter, limit int) ([]Bucket, error)

	Close() error
}

// Open opens the backend named by cfg.Driver. The schema is not created.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return pg, nil
	case DriverSQLite, "":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Flight is a stored record.
type Flight struct {
	ID       int64
	ImportID uuid.UUID
	Record   flight.Record
}

// MarshalJSON renders the record's own fields plus id and import_id.
func (f Flight) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(f.Record)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	fields["id"], _ = json.Marshal(f.ID)
	if f.ImportID != uuid.Nil {
		fields["import_id"], _ = json.Marshal(f.ImportID.String())
	}
	return json.Marshal(fields)
}

// Page selects a window of ListFlights results.
type Page struct {
	Skip  int
	Limit int
}

// Page limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Normalize clamps p into the accepted range.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Filter narrows counting and grouping queries. Zero fields do not filter.
// Start and End are inclusive flight dates.
type Filter struct {
	UAVType string
	City    string
	Start   *civil.Date
	End     *civil.Date
}

// where renders the filter as an SQL condition. ph returns the placeholder for
// the n-th (1-based) argument and date encodes a date argument for the driver.
func (f Filter) where(ph func(n int) string, date func(civil.Date) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}

	if f.UAVType != "" {
		add("uav_type = %s", f.UAVType)
	}
	if f.City != "" {
		add("city = %s", f.City)
	}
	if f.Start != nil {
		add("flight_date >= %s", date(*f.Start))
	}
	if f.End != nil {
		add("flight_date <= %s", date(*f.End))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Bucket is one group of a Monthly or Top result.
type Bucket struct {
	Name  string `json:"name"`
	Count int64  `json:"value"`
}

// GroupBy selects the grouping column of Top.
type GroupBy string

// Supported groupings.
const (
	GroupCity    GroupBy = "city"
	GroupUAVType GroupBy = "uav_type"
	GroupMonth   GroupBy = "date"
)

// ErrInvalidGroup is returned for an unknown GroupBy value.
var ErrInvalidGroup = errors.New("invalid group")

// ParseGroupBy validates s. An empty string selects GroupMonth.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case "":
		return GroupMonth, nil
	case GroupCity, GroupUAVType, GroupMonth:
		return g, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrInvalidGroup)
	}
}

// distinctColumns are the columns Distinct accepts.
var distinctColumns = map[string]bool{
	"uav_type": true,
	"city":     true,
}

// ErrInvalidColumn is returned by Distinct for columns it does not serve.
var ErrInvalidColumn = errors.New("invalid column")

func checkDistinct(column string) error {
	if !distinctColumns[column] {
		return fmt.Errorf("%s: %w", column, ErrInvalidColumn)
	}
	return nil
}

// nullString maps empty and whitespace-only strings to NULL.
func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func fromNull(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func altToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func altFromFloat(v *float64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// timeOfDay converts a civil time to the duration since midnight.
func timeOfDay(t civil.Time) time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

// civilTime is the inverse of timeOfDay.
func civilTime(d time.Duration) civil.Time {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return civil.Time{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(d)}
}

// MonthLabel renders a YYYY-MM bucket name as a short month name ("Jan").
// Unparseable names are returned unchanged.
func MonthLabel(yyyymm string) string {
	t, err := time.Parse("2006-01", yyyymm)
	if err != nil {
		return yyyymm
	}
	return t.Format("Jan")
}
