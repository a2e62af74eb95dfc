// Command flightsheet decodes UAV flight-plan telegram spreadsheets and
// serves the stored flights.
//
// Usage:
//
//	flightsheet parse  -input plans.xlsx [-output out.json] [-array] [-pretty] [-stats]
//	flightsheet trace  [-region NAME] TELEGRAM...
//	flightsheet import -input plans.xlsx [-config flightsheet.yaml]
//	flightsheet serve  [-config flightsheet.yaml] [-port N]
//	flightsheet schema [-config flightsheet.yaml]
//	flightsheet report [-config flightsheet.yaml] [-groupBy city|uav_type|date] [-clickhouse]
//	flightsheet export [-config flightsheet.yaml] [-format kml|geojson] [-output flights.kml]
//
// Settings come from the YAML config file, then from the environment
// (POSTGRES_HOST, CLICKHOUSE_HOST, NATS_URL, API_KEYS, LOG_LEVEL, ...), then
// from flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "flightsheet - commands:")
	fmt.Fprintln(w, "  parse   - decode a table and print flight records as JSON")
	fmt.Fprintln(w, "  trace   - show what every telegram pattern captured")
	fmt.Fprintln(w, "  import  - decode a table and store the records")
	fmt.Fprintln(w, "  serve   - run the HTTP API")
	fmt.Fprintln(w, "  schema  - create the database tables")
	fmt.Fprintln(w, "  report  - print monthly counts and top groups")
	fmt.Fprintln(w, "  export  - write stored flight geometry as KML or GeoJSON")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  flightsheet parse -input plans.xlsx [-output out.json] [-array] [-pretty] [-stats]")
	fmt.Fprintln(w, "  flightsheet trace [-region NAME] 'TELEGRAM TEXT'")
	fmt.Fprintln(w, "  flightsheet import -input plans.xlsx [-config flightsheet.yaml]")
	fmt.Fprintln(w, "  flightsheet serve [-config flightsheet.yaml] [-port 8000]")
	fmt.Fprintln(w, "  flightsheet schema [-config flightsheet.yaml]")
	fmt.Fprintln(w, "  flightsheet report [-config flightsheet.yaml] [-groupBy city] [-clickhouse]")
	fmt.Fprintln(w, "  flightsheet export [-config flightsheet.yaml] [-format kml] [-output flights.kml]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Input must be .xlsx or .csv; column 1 is the region, the rest are telegrams.")
	fmt.Fprintln(w, "  - Use -h after a command for its flags.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	cmd := strings.ToLower(os.Args[1])
	args := os.Args[2:]
	switch cmd {
	case "parse":
		err = runParse(ctx, args, os.Stdout, os.Stderr)
	case "trace":
		err = runTrace(args, os.Stdin, os.Stdout)
	case "import":
		err = runImport(ctx, args, os.Stdout)
	case "serve":
		err = runServe(ctx, args)
	case "schema":
		err = runSchema(ctx, args)
	case "report":
		err = runReport(ctx, args, os.Stdout)
	case "export":
		err = runExport(ctx, args, os.Stdout)
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

// usageError marks a bad invocation as opposed to a runtime failure.
type usageError string

func (e usageError) Error() string { return string(e) }
