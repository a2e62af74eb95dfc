package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"flightsheet/internal/api"
	"flightsheet/internal/config"
	"flightsheet/internal/geo"
	"flightsheet/internal/importer"
	"flightsheet/internal/ingest"
	"flightsheet/internal/logging"
	"flightsheet/internal/publish"
	"flightsheet/internal/storage"
)

// app holds everything a database-backed command needs.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   storage.Store
	mirror  *storage.ClickHouseDB
	nats    *publish.Publisher
	closers []io.Closer
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", envOrDefault("FLIGHTSHEET_CONFIG", ""), "YAML config file")
}

// openApp loads cfg and connects the store and the enabled sinks.
func openApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, logger: logger}

	rt.store, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.store)
	logger.Info("store opened", "driver", cfg.Storage.Driver)

	if cfg.Storage.ClickHouse.Enabled {
		rt.mirror, err = storage.OpenClickHouse(ctx, cfg.Storage.ClickHouse)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, rt.mirror)
	}

	if cfg.NATS.Enabled {
		rt.nats, err = publish.Connect(cfg.NATS)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, rt.nats)
	}
	return rt, nil
}

// Close releases connections in reverse order and then the log file.
func (rt *app) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
	_ = rt.logger.Close()
}

func (rt *app) createSchema(ctx context.Context) error {
	if err := rt.store.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if rt.mirror != nil {
		if err := rt.mirror.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create clickhouse schema: %w", err)
		}
	}
	return nil
}

func (rt *app) newImporter(workers int) (*importer.Importer, error) {
	if workers <= 0 {
		workers = rt.cfg.Ingest.Workers
	}
	d, err := ingest.New(ingest.WithWorkers(workers), ingest.WithLogger(rt.logger.Logger))
	if err != nil {
		return nil, err
	}

	var sinks []importer.Sink
	if rt.mirror != nil {
		sinks = append(sinks, rt.mirror)
	}
	if rt.nats != nil {
		sinks = append(sinks, rt.nats)
	}
	return importer.New(d, rt.store, rt.logger.Logger, sinks...), nil
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	tf := addTableFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	rt, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if *tf.sheet == "" {
		*tf.sheet = rt.cfg.Ingest.Sheet
	}
	if !*tf.noHeader {
		*tf.noHeader = rt.cfg.Ingest.NoHeader
	}
	table, err := tf.open()
	if err != nil {
		return err
	}
	defer closeTable(table)

	if err := rt.createSchema(ctx); err != nil {
		return err
	}
	im, err := rt.newImporter(*tf.workers)
	if err != nil {
		return err
	}

	sum, err := im.Import(ctx, table)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "import %s: %s rows, %s skipped, %s flights stored\n",
		sum.ImportID,
		humanize.Comma(sum.Stats.Rows),
		humanize.Comma(sum.Stats.Skipped),
		humanize.Comma(int64(sum.Inserted)))
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	port := fs.Int("port", 0, "HTTP port (overrides config)")
	authEnabled := fs.Bool("auth", false, "Enable API key authentication")
	apiKeys := fs.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")
	readOnly := fs.Bool("read-only", false, "Disable uploads")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	rt, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	apiCfg := rt.cfg.API
	if *port > 0 {
		apiCfg.Port = *port
	}
	if *authEnabled {
		apiCfg.AuthEnabled = true
	}
	if keys := config.SplitList(*apiKeys); len(keys) > 0 {
		apiCfg.APIKeys = keys
	}
	if apiCfg.AuthEnabled && len(apiCfg.APIKeys) == 0 {
		return usageError("-auth requires -api-keys")
	}

	if err := rt.createSchema(ctx); err != nil {
		return err
	}

	var im *importer.Importer
	if !*readOnly {
		if im, err = rt.newImporter(0); err != nil {
			return err
		}
	}

	server := api.NewServer(rt.store, im, apiCfg, rt.logger.Logger)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	rt.logger.Info("server stopped")
	return nil
}

func runSchema(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	rt, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.createSchema(ctx); err != nil {
		return err
	}
	rt.logger.Info("schema ready", "driver", rt.cfg.Storage.Driver, "clickhouse", rt.mirror != nil)
	return nil
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	format := fs.String("format", "kml", "Output format: kml or geojson")
	outPath := fs.String("output", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *format != "kml" && *format != "geojson" {
		return usageError("-format must be kml or geojson")
	}

	rt, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	var shapes []geo.Shape
	page := storage.Page{Limit: storage.MaxLimit}
	for {
		flights, err := rt.store.ListFlights(ctx, page)
		if err != nil {
			return err
		}
		shapes = append(shapes, api.FlightShapes(flights)...)
		if len(flights) < page.Limit {
			break
		}
		page.Skip += page.Limit
	}

	w := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if *format == "geojson" {
		b, err := geo.FeatureCollection(shapes).MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	rt.logger.Info("exporting kml", "flights", len(shapes))
	return geo.WriteKML(w, geo.Document("Flights", shapes))
}

// reporter is the query surface shared by the relational store and the
// ClickHouse mirror.
type reporter interface {
	Monthly(ctx context.Context, f storage.Filter) ([]storage.Bucket, error)
	Top(ctx context.Context, by storage.GroupBy, f storage.Filter, limit int) ([]storage.Bucket, error)
}

func runReport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	groupBy := fs.String("groupBy", "city", "Top grouping: city, uav_type or date")
	limit := fs.Int("limit", 10, "Number of top groups")
	city := fs.String("city", "", "Only flights from this city")
	uavType := fs.String("uav-type", "", "Only flights of this UAV type")
	fromClickHouse := fs.Bool("clickhouse", false, "Query the ClickHouse mirror instead of the store")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	by, err := storage.ParseGroupBy(*groupBy)
	if err != nil {
		return usageError(err.Error())
	}

	rt, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	f := storage.Filter{City: *city, UAVType: *uavType}

	var src reporter = rt.store
	var total uint64
	if *fromClickHouse {
		if rt.mirror == nil {
			return errors.New("clickhouse is not enabled in the config")
		}
		src = rt.mirror
		if total, err = rt.mirror.Count(ctx, f); err != nil {
			return err
		}
	} else {
		n, err := rt.store.Count(ctx, f)
		if err != nil {
			return err
		}
		total = uint64(n)
	}

	monthly, err := src.Monthly(ctx, f)
	if err != nil {
		return err
	}
	top, err := src.Top(ctx, by, f, *limit)
	if err != nil {
		return err
	}

	printReport(stdout, total, monthly, by, top, rt.logger.Logger)
	return nil
}

func printReport(w io.Writer, total uint64, monthly []storage.Bucket, by storage.GroupBy, top []storage.Bucket, logger *slog.Logger) {
	fmt.Fprintf(w, "flights: %s\n\n", humanize.Comma(int64(total)))

	fmt.Fprintln(w, "month    flights")
	for _, b := range monthly {
		fmt.Fprintf(w, "%-8s %7s\n", b.Name, humanize.Comma(b.Count))
	}

	fmt.Fprintf(w, "\ntop by %s\n", by)
	for i, b := range top {
		name := b.Name
		if strings.TrimSpace(name) == "" {
			name = "(none)"
		}
		share := 0.0
		if total > 0 {
			share = float64(b.Count) / float64(total) * 100
		}
		fmt.Fprintf(w, "%2d. %-24s %7s  %5.1f%%\n", i+1, name, humanize.Comma(b.Count), share)
	}
	logger.Debug("report printed", "months", len(monthly), "groups", len(top))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
