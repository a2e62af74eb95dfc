// Package ingest turns a table of telegrams into flight records, one per
// spreadsheet row.
package ingest

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"flightsheet/internal/flight"
	"flightsheet/internal/regions"
	"flightsheet/internal/sheet"
	"flightsheet/internal/telegram"
)

// Result is one emitted record and the data row it came from.
type Result struct {
	Row    int // 0-based data row index
	Line   int // 1-based line in the source file
	Record flight.Record
}

// Stats summarises one pass over a table.
type Stats struct {
	Rows      int64 // data rows read
	Skipped   int64 // rows without a non-blank telegram cell
	Emitted   int64 // records produced
	Telegrams int64 // non-blank cells decoded
}

type counters struct {
	rows, skipped, emitted, telegrams atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Rows:      c.rows.Load(),
		Skipped:   c.skipped.Load(),
		Emitted:   c.emitted.Load(),
		Telegrams: c.telegrams.Load(),
	}
}

// Driver runs the extractor over every row of a table.
type Driver struct {
	extractor *telegram.Extractor
	workers   int
	logger    *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithExtractor replaces the default extractor.
func WithExtractor(e *telegram.Extractor) Option {
	return func(d *Driver) { d.extractor = e }
}

// WithWorkers bounds the number of rows Collect decodes concurrently.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the logger used for per-row debug output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Driver. Without WithExtractor it uses the shared extractor.
func New(opts ...Option) (*Driver, error) {
	d := &Driver{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.extractor == nil {
		e, err := telegram.Default()
		if err != nil {
			return nil, fmt.Errorf("create extractor: %w", err)
		}
		d.extractor = e
	}
	return d, nil
}

// Row decodes one data row. ok is false when the row has no non-blank
// telegram cell or yields nothing beyond the all-unset record.
func (d *Driver) Row(row sheet.Row) (rec flight.Record, telegrams int, ok bool) {
	city := regions.City(row.Region())

	var parts []flight.Record
	for _, cell := range row.Telegrams() {
		if sheet.IsBlank(cell) {
			continue
		}
		parts = append(parts, d.extractor.Extract(cell, city))
	}
	if len(parts) == 0 {
		return flight.Record{}, 0, false
	}

	rec = flight.Merge(parts...)
	if rec.IsZero() {
		return flight.Record{}, len(parts), false
	}
	return rec, len(parts), true
}

// Records lazily decodes table row by row. Each call starts a fresh pass.
// Iteration stops at the first table read error, which is yielded.
func (d *Driver) Records(table sheet.Table) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		for row, err := range table.Rows() {
			if err != nil {
				yield(Result{}, fmt.Errorf("read table: %w", err))
				return
			}
			rec, _, ok := d.Row(row)
			if !ok {
				d.logger.Debug("row skipped", "line", row.Line, "region", row.Region())
				continue
			}
			if !yield(Result{Row: row.Index, Line: row.Line, Record: rec}, nil) {
				return
			}
		}
	}
}

// Collect decodes every row of table on a bounded worker pool and returns the
// records ordered by source row.
func (d *Driver) Collect(ctx context.Context, table sheet.Table) ([]Result, Stats, error) {
	var (
		c       counters
		mu      sync.Mutex
		results []Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	var readErr error
	for row, err := range table.Rows() {
		if err != nil {
			readErr = fmt.Errorf("read table: %w", err)
			break
		}
		if gctx.Err() != nil {
			break
		}
		c.rows.Add(1)

		g.Go(func() error {
			rec, n, ok := d.Row(row)
			c.telegrams.Add(int64(n))
			if !ok {
				c.skipped.Add(1)
				return nil
			}
			c.emitted.Add(1)

			mu.Lock()
			results = append(results, Result{Row: row.Index, Line: row.Line, Record: rec})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, c.snapshot(), err
	}
	if readErr != nil {
		return nil, c.snapshot(), readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, c.snapshot(), err
	}

	slices.SortFunc(results, func(a, b Result) int { return cmp.Compare(a.Row, b.Row) })

	stats := c.snapshot()
	d.logger.Debug("table decoded",
		"rows", stats.Rows, "skipped", stats.Skipped,
		"emitted", stats.Emitted, "telegrams", stats.Telegrams)
	return results, stats, nil
}

// FlightRecords returns just the flight records of results, in order.
func FlightRecords(results []Result) []flight.Record {
	out := make([]flight.Record, len(results))
	for i, r := range results {
		out[i] = r.Record
	}
	return out
}
