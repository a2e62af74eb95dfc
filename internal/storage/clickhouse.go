package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"flightsheet/internal/flight"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouseDB is an append-only analytics mirror of imported flights.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the flights table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS flights (
			import_id       UUID,
			flight_id       String,
			uav_type        LowCardinality(String),
			reg_number      String,
			flight_date     Nullable(Date),
			dep_time        String,
			arr_time        String,
			duration_s      Nullable(Int64),
			dep_coord       String,
			dest_coord      String,
			route_coords    String,
			min_alt         Nullable(Float64),
			max_alt         Nullable(Float64),
			city            LowCardinality(String),
			inserted_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(inserted_at)
		ORDER BY (city, inserted_at)
		SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Name identifies the mirror in logs.
func (d *ClickHouseDB) Name() string { return "clickhouse" }

// Write appends an import to the mirror in one batch.
func (d *ClickHouseDB) Write(ctx context.Context, importID uuid.UUID, records []flight.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO flights (import_id, flight_id, uav_type, reg_number, flight_date, dep_time, arr_time,
			duration_s, dep_coord, dest_coord, route_coords, min_alt, max_alt, city)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		var date *time.Time
		if r.Date != nil {
			t := r.Date.In(time.UTC)
			date = &t
		}
		var duration *int64
		if r.Duration != nil {
			s := int64(*r.Duration / time.Second)
			duration = &s
		}

		err := batch.Append(importID, r.FlightID, r.UAVType, r.RegNumber, date,
			civilString(r.DepTime), civilString(r.ArrTime), duration,
			r.DepCoord, r.DestCoord, r.RouteCoords, altToFloat(r.MinAlt), altToFloat(r.MaxAlt), r.City)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Count returns the number of mirrored flights matching f.
func (d *ClickHouseDB) Count(ctx context.Context, f Filter) (uint64, error) {
	where, args := f.where(questionMark, clickhouseDateArg)
	var n uint64
	if err := d.conn.QueryRow(ctx, "SELECT count() FROM flights"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// Monthly counts dated flights matching f per YYYY-MM, oldest first.
func (d *ClickHouseDB) Monthly(ctx context.Context, f Filter) ([]Bucket, error) {
	where, args := f.where(questionMark, clickhouseDateArg)
	query := `SELECT formatDateTime(assumeNotNull(flight_date), '%Y-%m') AS month, count() FROM flights` +
		andDated(where) + ` GROUP BY month ORDER BY month`
	return d.buckets(ctx, query, args...)
}

// Top returns the limit largest groups of mirrored flights matching f.
func (d *ClickHouseDB) Top(ctx context.Context, by GroupBy, f Filter, limit int) ([]Bucket, error) {
	where, args := f.where(questionMark, clickhouseDateArg)

	var query string
	switch by {
	case GroupCity, GroupUAVType:
		query = fmt.Sprintf(`SELECT toString(%s) AS name, count() AS n FROM flights%s GROUP BY name`, by, where)
	case GroupMonth:
		query = `SELECT formatDateTime(assumeNotNull(flight_date), '%Y-%m') AS name, count() AS n FROM flights` +
			andDated(where) + ` GROUP BY name`
	default:
		return nil, fmt.Errorf("%q: %w", by, ErrInvalidGroup)
	}
	query += fmt.Sprintf(" ORDER BY n DESC, name LIMIT %d", limit)

	return d.buckets(ctx, query, args...)
}

func (d *ClickHouseDB) buckets(ctx context.Context, query string, args ...any) ([]Bucket, error) {
	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var (
			name  string
			count uint64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, Bucket{Name: name, Count: int64(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return out, nil
}

func clickhouseDateArg(d civil.Date) any {
	return d.In(time.UTC)
}

func civilString(t *civil.Time) string {
	if t == nil {
		return ""
	}
	return t.String()
}
