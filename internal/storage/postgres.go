package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"flightsheet/internal/flight"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PostgresDB stores flights in PostgreSQL with PostGIS geography columns.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostGIS extension and the flights table.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS postgis;

	CREATE TABLE IF NOT EXISTS flights (
		id              BIGSERIAL PRIMARY KEY,
		import_id       UUID,
		flight_id       TEXT,
		uav_type        TEXT,
		reg_number      TEXT,
		flight_date     DATE,
		dep_time        TIME,
		arr_time        TIME,
		duration        INTERVAL,
		dep_coord       geography(POINT, 4326),
		dest_coord      geography(POINT, 4326),
		route_coords    geography(LINESTRING, 4326),
		min_alt         DOUBLE PRECISION,
		max_alt         DOUBLE PRECISION,
		city            TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(flight_date);
	CREATE INDEX IF NOT EXISTS idx_flights_city ON flights(city);
	CREATE INDEX IF NOT EXISTS idx_flights_uav_type ON flights(uav_type);
	CREATE INDEX IF NOT EXISTS idx_flights_import ON flights(import_id);
	CREATE INDEX IF NOT EXISTS idx_flights_route ON flights USING GIST(route_coords);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertBatch stores records in one round trip. Empty strings are stored as
// NULL and WKT text becomes geography.
func (d *PostgresDB) InsertBatch(ctx context.Context, importID uuid.UUID, records []flight.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO flights (
			import_id, flight_id, uav_type, reg_number, flight_date, dep_time, arr_time, duration,
			dep_coord, dest_coord, route_coords, min_alt, max_alt, city
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			ST_GeogFromText($9::text), ST_GeogFromText($10::text), ST_GeogFromText($11::text),
			$12, $13, $14
		)`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			importID, nullString(r.FlightID), nullString(r.UAVType), nullString(r.RegNumber),
			pgDate(r.Date), pgTime(r.DepTime), pgTime(r.ArrTime), pgInterval(r.Duration),
			nullString(r.DepCoord), nullString(r.DestCoord), nullString(r.RouteCoords),
			altToFloat(r.MinAlt), altToFloat(r.MaxAlt), nullString(r.City),
		)
	}

	br := d.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("insert flight %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return len(records), fmt.Errorf("close batch: %w", err)
	}
	return len(records), nil
}

const pgFlightColumns = `id, import_id, flight_id, uav_type, reg_number, flight_date, dep_time, arr_time, duration,
	ST_AsText(dep_coord), ST_AsText(dest_coord), ST_AsText(route_coords), min_alt, max_alt, city`

// ListFlights returns one page of flights in insertion order.
func (d *PostgresDB) ListFlights(ctx context.Context, p Page) ([]Flight, error) {
	p = p.Normalize()
	rows, err := d.pool.Query(ctx,
		`SELECT `+pgFlightColumns+` FROM flights ORDER BY id LIMIT $1 OFFSET $2`, p.Limit, p.Skip)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanPostgresFlight(rows)
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
func (d *PostgresDB) GetFlight(ctx context.Context, id int64) (*Flight, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+pgFlightColumns+` FROM flights WHERE id = $1`, id)
	f, err := scanPostgresFlight(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flight: %w", err)
	}
	return &f, nil
}

func scanPostgresFlight(row pgx.Row) (Flight, error) {
	var (
		f                          Flight
		importID                   pgtype.UUID
		flightID, uavType, reg     *string
		date                       pgtype.Date
		dep, arr                   pgtype.Time
		duration                   pgtype.Interval
		depCoord, destCoord, route *string
		minAlt, maxAlt             *float64
		city                       *string
	)
	err := row.Scan(&f.ID, &importID, &flightID, &uavType, &reg, &date, &dep, &arr, &duration,
		&depCoord, &destCoord, &route, &minAlt, &maxAlt, &city)
	if err != nil {
		return Flight{}, err
	}

	if importID.Valid {
		f.ImportID = uuid.UUID(importID.Bytes)
	}
	f.Record = flight.Record{
		FlightID:    fromNull(flightID),
		UAVType:     fromNull(uavType),
		RegNumber:   fromNull(reg),
		DepCoord:    fromNull(depCoord),
		DestCoord:   fromNull(destCoord),
		RouteCoords: fromNull(route),
		MinAlt:      altFromFloat(minAlt),
		MaxAlt:      altFromFloat(maxAlt),
		City:        fromNull(city),
	}
	if date.Valid {
		d := civil.DateOf(date.Time)
		f.Record.Date = &d
	}
	if dep.Valid {
		t := civilTime(time.Duration(dep.Microseconds) * time.Microsecond)
		f.Record.DepTime = &t
	}
	if arr.Valid {
		t := civilTime(time.Duration(arr.Microseconds) * time.Microsecond)
		f.Record.ArrTime = &t
	}
	if duration.Valid {
		v := time.Duration(duration.Microseconds)*time.Microsecond +
			time.Duration(duration.Days)*24*time.Hour
		f.Record.Duration = &v
	}
	return f, nil
}

// Distinct returns the distinct non-null values of column, sorted.
func (d *PostgresDB) Distinct(ctx context.Context, column string) ([]string, error) {
	if err := checkDistinct(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM flights WHERE %s IS NOT NULL ORDER BY %s", column, column, column)
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect distinct %s: %w", column, err)
	}
	return values, nil
}

// Count returns the number of flights matching f.
func (d *PostgresDB) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := f.where(dollar, pgDateArg)
	var n int64
	if err := d.pool.QueryRow(ctx, "SELECT count(*) FROM flights"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// CountYear returns the number of flights dated in year.
func (d *PostgresDB) CountYear(ctx context.Context, year int) (int64, error) {
	var n int64
	err := d.pool.QueryRow(ctx,
		"SELECT count(*) FROM flights WHERE EXTRACT(YEAR FROM flight_date) = $1", year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flights in %d: %w", year, err)
	}
	return n, nil
}

// Monthly counts dated flights matching f per YYYY-MM, oldest first.
func (d *PostgresDB) Monthly(ctx context.Context, f Filter) ([]Bucket, error) {
	where, args := f.where(dollar, pgDateArg)
	query := `SELECT to_char(flight_date, 'YYYY-MM') AS month, count(*) FROM flights` +
		andDated(where) + ` GROUP BY month ORDER BY month`
	return d.buckets(ctx, query, args...)
}

// Top returns the limit largest groups of flights matching f.
func (d *PostgresDB) Top(ctx context.Context, by GroupBy, f Filter, limit int) ([]Bucket, error) {
	where, args := f.where(dollar, pgDateArg)

	var query string
	switch by {
	case GroupCity, GroupUAVType:
		query = fmt.Sprintf(`SELECT COALESCE(%s, '') AS name, count(*) AS n FROM flights%s GROUP BY name`, by, where)
	case GroupMonth:
		query = `SELECT to_char(flight_date, 'YYYY-MM') AS name, count(*) AS n FROM flights` + andDated(where) + ` GROUP BY name`
	default:
		return nil, fmt.Errorf("%q: %w", by, ErrInvalidGroup)
	}
	query += fmt.Sprintf(" ORDER BY n DESC, name LIMIT %d", limit)

	return d.buckets(ctx, query, args...)
}

func (d *PostgresDB) buckets(ctx context.Context, query string, args ...any) ([]Bucket, error) {
	rows, err := d.pool.Query(ctx, query, args...)
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

// andDated extends a filter clause so only dated flights are grouped.
func andDated(where string) string {
	if where == "" {
		return " WHERE flight_date IS NOT NULL"
	}
	return where + " AND flight_date IS NOT NULL"
}

func pgDateArg(d civil.Date) any {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func pgDate(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func pgTime(t *civil.Time) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: timeOfDay(*t).Microseconds(), Valid: true}
}

func pgInterval(d *time.Duration) pgtype.Interval {
	if d == nil {
		return pgtype.Interval{}
	}
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}
