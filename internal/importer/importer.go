// Package importer decodes a table, stores the records and forwards them to
// secondary sinks.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"flightsheet/internal/flight"
	"flightsheet/internal/ingest"
	"flightsheet/internal/sheet"
	"flightsheet/internal/storage"
)

// ErrNoRecords is returned when a table yields no flight records.
var ErrNoRecords = errors.New("no flight records extracted")

// Sink receives every import after it has been stored.
type Sink interface {
	Name() string
	Write(ctx context.Context, importID uuid.UUID, records []flight.Record) error
}

// Summary describes a finished import.
type Summary struct {
	ImportID uuid.UUID
	Inserted int
	Stats    ingest.Stats
}

// Importer wires the driver to the store and sinks.
type Importer struct {
	driver *ingest.Driver
	store  storage.Store
	sinks  []Sink
	logger *slog.Logger
}

// New creates an Importer. Sink failures are logged, not returned.
func New(driver *ingest.Driver, store storage.Store, logger *slog.Logger, sinks ...Sink) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{driver: driver, store: store, sinks: sinks, logger: logger}
}

// Import decodes table and stores every record under a fresh import id.
func (im *Importer) Import(ctx context.Context, table sheet.Table) (Summary, error) {
	results, stats, err := im.driver.Collect(ctx, table)
	if err != nil {
		return Summary{Stats: stats}, fmt.Errorf("decode table: %w", err)
	}
	if len(results) == 0 {
		return Summary{Stats: stats}, ErrNoRecords
	}

	sum := Summary{ImportID: uuid.New(), Stats: stats}
	records := ingest.FlightRecords(results)

	sum.Inserted, err = im.store.InsertBatch(ctx, sum.ImportID, records)
	if err != nil {
		return sum, fmt.Errorf("store flights: %w", err)
	}

	for _, s := range im.sinks {
		if err := s.Write(ctx, sum.ImportID, records); err != nil {
			im.logger.Warn("sink write failed", "sink", s.Name(), "import_id", sum.ImportID, "error", err)
		}
	}

	im.logger.Info("import stored",
		"import_id", sum.ImportID,
		"rows", stats.Rows,
		"skipped", stats.Skipped,
		"inserted", sum.Inserted)
	return sum, nil
}
