package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"flightsheet/internal/flight"
)

// SQLiteDB stores flights in a local SQLite file. Geometries are kept as WKT
// text.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path and creates
// the schema.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	d := &SQLiteDB{db: db}
	if err := d.CreateSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the flights table and indices.
func (d *SQLiteDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flights (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		import_id       TEXT,
		flight_id       TEXT,
		uav_type        TEXT,
		reg_number      TEXT,
		flight_date     TEXT,
		dep_time        TEXT,
		arr_time        TEXT,
		duration_s      INTEGER,
		dep_coord       TEXT,
		dest_coord      TEXT,
		route_coords    TEXT,
		min_alt         REAL,
		max_alt         REAL,
		city            TEXT,
		created_at      TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(flight_date);
	CREATE INDEX IF NOT EXISTS idx_flights_city ON flights(city);
	CREATE INDEX IF NOT EXISTS idx_flights_uav_type ON flights(uav_type);
	CREATE INDEX IF NOT EXISTS idx_flights_import ON flights(import_id);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertBatch stores records in a single transaction. Empty strings are
// stored as NULL.
func (d *SQLiteDB) InsertBatch(ctx context.Context, importID uuid.UUID, records []flight.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flights (
			import_id, flight_id, uav_type, reg_number, flight_date, dep_time, arr_time, duration_s,
			dep_coord, dest_coord, route_coords, min_alt, max_alt, city
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			importID.String(), nullString(r.FlightID), nullString(r.UAVType), nullString(r.RegNumber),
			sqliteDate(r.Date), sqliteTime(r.DepTime), sqliteTime(r.ArrTime), sqliteDuration(r.Duration),
			nullString(r.DepCoord), nullString(r.DestCoord), nullString(r.RouteCoords),
			altToFloat(r.MinAlt), altToFloat(r.MaxAlt), nullString(r.City),
		)
		if err != nil {
			return 0, fmt.Errorf("insert flight %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

const sqliteFlightColumns = `id, import_id, flight_id, uav_type, reg_number, flight_date, dep_time, arr_time, duration_s,
	dep_coord, dest_coord, route_coords, min_alt, max_alt, city`

// ListFlights returns one page of flights in insertion order.
func (d *SQLiteDB) ListFlights(ctx context.Context, p Page) ([]Flight, error) {
	p = p.Normalize()
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+sqliteFlightColumns+` FROM flights ORDER BY id LIMIT ? OFFSET ?`, p.Limit, p.Skip)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanSQLiteFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flights: %w", err)
	}
	return flights, nil
}

// GetFlight returns the flight with the given id, or nil if none exists.
func (d *SQLiteDB) GetFlight(ctx context.Context, id int64) (*Flight, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+sqliteFlightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanSQLiteFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flight: %w", err)
	}
	return &f, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFlight(row scanner) (Flight, error) {
	var (
		f                            Flight
		importID                     sql.NullString
		flightID, uavType, reg, city sql.NullString
		date, dep, arr               sql.NullString
		duration                     sql.NullInt64
		depCoord, destCoord, route   sql.NullString
		minAlt, maxAlt               sql.NullFloat64
	)
	err := row.Scan(&f.ID, &importID, &flightID, &uavType, &reg, &date, &dep, &arr, &duration,
		&depCoord, &destCoord, &route, &minAlt, &maxAlt, &city)
	if err != nil {
		return Flight{}, err
	}

	if importID.Valid {
		if id, err := uuid.Parse(importID.String); err == nil {
			f.ImportID = id
		}
	}
	f.Record = flight.Record{
		FlightID:    flightID.String,
		UAVType:     uavType.String,
		RegNumber:   reg.String,
		DepCoord:    depCoord.String,
		DestCoord:   destCoord.String,
		RouteCoords: route.String,
		City:        city.String,
	}
	if date.Valid {
		v, err := civil.ParseDate(date.String)
		if err != nil {
			return Flight{}, fmt.Errorf("flight %d date: %w", f.ID, err)
		}
		f.Record.Date = &v
	}
	if f.Record.DepTime, err = parseSQLiteTime(dep); err != nil {
		return Flight{}, fmt.Errorf("flight %d dep_time: %w", f.ID, err)
	}
	if f.Record.ArrTime, err = parseSQLiteTime(arr); err != nil {
		return Flight{}, fmt.Errorf("flight %d arr_time: %w", f.ID, err)
	}
	if duration.Valid {
		v := time.Duration(duration.Int64) * time.Second
		f.Record.Duration = &v
	}
	if minAlt.Valid {
		f.Record.MinAlt = altFromFloat(&minAlt.Float64)
	}
	if maxAlt.Valid {
		f.Record.MaxAlt = altFromFloat(&maxAlt.Float64)
	}
	return f, nil
}

// Distinct returns the distinct non-null values of column, sorted.
func (d *SQLiteDB) Distinct(ctx context.Context, column string) ([]string, error) {
	if err := checkDistinct(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM flights WHERE %s IS NOT NULL ORDER BY %s", column, column, column)
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}

// Count returns the number of flights matching f.
func (d *SQLiteDB) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := f.where(questionMark, sqliteDateArg)
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// CountYear returns the number of flights dated in year.
func (d *SQLiteDB) CountYear(ctx context.Context, year int) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM flights WHERE strftime('%Y', flight_date) = ?", fmt.Sprintf("%04d", year)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flights in %d: %w", year, err)
	}
	return n, nil
}

// Monthly counts dated flights matching f per YYYY-MM, oldest first.
func (d *SQLiteDB) Monthly(ctx context.Context, f Filter) ([]Bucket, error) {
	where, args := f.where(questionMark, sqliteDateArg)
	query := `SELECT strftime('%Y-%m', flight_date) AS month, COUNT(*) FROM flights` +
		andDated(where) + ` GROUP BY month ORDER BY month`
	return d.buckets(ctx, query, args...)
}

// Top returns the limit largest groups of flights matching f.
func (d *SQLiteDB) Top(ctx context.Context, by GroupBy, f Filter, limit int) ([]Bucket, error) {
	where, args := f.where(questionMark, sqliteDateArg)

	var query string
	switch by {
	case GroupCity, GroupUAVType:
		query = fmt.Sprintf(`SELECT COALESCE(%s, '') AS name, COUNT(*) AS n FROM flights%s GROUP BY name`, by, where)
	case GroupMonth:
		query = `SELECT strftime('%Y-%m', flight_date) AS name, COUNT(*) AS n FROM flights` + andDated(where) + ` GROUP BY name`
	default:
		return nil, fmt.Errorf("%q: %w", by, ErrInvalidGroup)
	}
	query += fmt.Sprintf(" ORDER BY n DESC, name LIMIT %d", limit)

	return d.buckets(ctx, query, args...)
}

func (d *SQLiteDB) buckets(ctx context.Context, query string, args ...any) ([]Bucket, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Name, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return out, nil
}

func sqliteDateArg(d civil.Date) any {
	return d.String()
}

func sqliteDate(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func sqliteTime(t *civil.Time) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func sqliteDuration(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(*d / time.Second)
}

func parseSQLiteTime(s sql.NullString) (*civil.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := civil.ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
