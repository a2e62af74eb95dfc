package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"flightsheet/internal/flight"
	"flightsheet/internal/ingest"
	"flightsheet/internal/logging"
	"flightsheet/internal/regions"
	"flightsheet/internal/sheet"
	"flightsheet/internal/telegram"
)

// tableFlags are the flags shared by commands that read a table.
type tableFlags struct {
	input    *string
	sheet    *string
	noHeader *bool
	comma    *string
	workers  *int
}

func addTableFlags(fs *flag.FlagSet) tableFlags {
	return tableFlags{
		input:    fs.String("input", "", "Input .xlsx or .csv file (required)"),
		sheet:    fs.String("sheet", "", "xlsx sheet name (default: first sheet)"),
		noHeader: fs.Bool("no-header", false, "Treat the first row as data"),
		comma:    fs.String("comma", "", "csv field separator (default: ,)"),
		workers:  fs.Int("workers", 0, "Rows decoded in parallel (default: GOMAXPROCS)"),
	}
}

func (tf tableFlags) open() (sheet.Table, error) {
	if *tf.input == "" {
		return nil, usageError("-input is required")
	}
	opts := sheet.Options{Sheet: *tf.sheet, NoHeader: *tf.noHeader}
	if *tf.comma != "" {
		r, size := utf8.DecodeRuneInString(*tf.comma)
		if size != len(*tf.comma) {
			return nil, usageError("-comma must be a single character")
		}
		opts.Comma = r
	}
	return sheet.Open(*tf.input, opts)
}

func runParse(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tf := addTableFlags(fs)
	outPath := fs.String("output", "", "Output file (default: stdout)")
	asArray := fs.Bool("array", false, "Write one JSON array instead of JSON lines")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	withRow := fs.Bool("rows", false, "Include the source row and line with every record")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	verbose := fs.Bool("v", false, "Log skipped rows")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	table, err := tf.open()
	if err != nil {
		return err
	}
	defer closeTable(table)

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	d, err := ingest.New(ingest.WithWorkers(*tf.workers), ingest.WithLogger(logger.Logger))
	if err != nil {
		return err
	}

	start := time.Now()
	results, stats, err := d.Collect(ctx, table)
	if err != nil {
		return err
	}

	var w io.Writer = stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := writeResults(bw, results, *asArray, *pretty, *withRow); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if *showStats {
		fmt.Fprintf(stderr, "stats: rows=%s skipped=%s telegrams=%s emitted=%s in %s\n",
			humanize.Comma(stats.Rows),
			humanize.Comma(stats.Skipped),
			humanize.Comma(stats.Telegrams),
			humanize.Comma(stats.Emitted),
			time.Since(start).Round(time.Millisecond),
		)
	}
	return nil
}

// rowRecord is a record plus its source position, for -rows output.
type rowRecord struct {
	Row    int           `json:"row"`
	Line   int           `json:"line"`
	Record flight.Record `json:"record"`
}

func writeResults(w io.Writer, results []ingest.Result, asArray, pretty, withRow bool) error {
	items := make([]any, len(results))
	for i, r := range results {
		if withRow {
			items[i] = rowRecord{Row: r.Row, Line: r.Line, Record: r.Record}
		} else {
			items[i] = r.Record
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if asArray {
		return enc.Encode(items)
	}
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

func runTrace(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(stdout)
	region := fs.String("region", "", "Region label of the row (resolved to a city)")
	listRegions := fs.Bool("regions", false, "List known region labels and exit")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	if *listRegions {
		for _, label := range regions.Labels() {
			fmt.Fprintf(stdout, "%s\t%s\n", label, regions.City(label))
		}
		return nil
	}

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read telegram: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return usageError("no telegram text given")
	}

	ex, err := telegram.Default()
	if err != nil {
		return err
	}

	for _, tr := range ex.Trace(text) {
		status := "no match"
		if tr.Matched {
			status = fmt.Sprintf("%d match(es)", len(tr.Captures))
		}
		fmt.Fprintf(stdout, "%-12s %s\n", tr.Name, status)
		for _, c := range tr.Captures {
			fmt.Fprintf(stdout, "    %v\n", c)
		}
	}

	if *region != "" && !regions.Known(*region) {
		fmt.Fprintf(stdout, "\nregion %q is not in the region table; city is the label itself\n", *region)
	}

	b, err := json.MarshalIndent(ex.Extract(text, regions.City(*region)), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\n%s\n", b)
	return nil
}

func closeTable(t sheet.Table) {
	if c, ok := t.(io.Closer); ok {
		_ = c.Close()
	}
}
