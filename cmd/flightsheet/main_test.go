package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flightsheet/internal/logging"
	"flightsheet/internal/storage"
)

const testCSV = "Регион,Телеграмма 1,Телеграмма 2\n" +
	"Московский,SID/A1 TYP/MQ9 DOF/240115 -M0010/M0050,ZZZZ0930 ZZZZ1100\n" +
	"Самарский,,\n" +
	"Иркутский,SID/B2 REG/RA0001,\n"

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSONLines(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runParse(context.Background(), []string{"-input", writeCSV(t), "-stats"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runParse: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), stdout.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["flight_id"] != "A1" || first["city"] != "Москва" {
		t.Errorf("first record = %v", first)
	}
	if !strings.Contains(stderr.String(), "rows=3 skipped=1") {
		t.Errorf("stats = %q", stderr.String())
	}
}

func TestParseArrayWithRows(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "out.json")
	err := runParse(context.Background(), []string{"-input", writeCSV(t), "-array", "-rows", "-output", out}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runParse: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout written with -output: %q", stdout.String())
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var got []rowRecord
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("output not an array: %v", err)
	}
	if len(got) != 2 || got[0].Line != 2 || got[1].Line != 4 || got[1].Record.City != "Иркутск" {
		t.Errorf("records = %+v", got)
	}
}

func TestParseUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"bad comma", []string{"-input", "x.csv", "-comma", ";;"}},
		{"unknown flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := runParse(context.Background(), tt.args, &stdout, &stderr)
			var ue usageError
			if !errors.As(err, &ue) {
				t.Errorf("err = %v, want usageError", err)
			}
		})
	}
}

// Every flag the usage text shows for trace must be accepted by runTrace.
func TestUsageTraceFlags(t *testing.T) {
	var help bytes.Buffer
	usage(&help)

	var line string
	for l := range strings.Lines(help.String()) {
		if strings.Contains(l, "flightsheet trace") {
			line = l
		}
	}
	if line == "" {
		t.Fatal("usage has no trace line")
	}

	var flags int
	for _, f := range strings.Fields(line) {
		name, ok := strings.CutPrefix(strings.TrimLeft(f, "["), "-")
		if !ok {
			continue
		}
		flags++
		var out bytes.Buffer
		if err := runTrace([]string{"-" + name, "Московский", "SID/A1"}, strings.NewReader(""), &out); err != nil {
			t.Errorf("usage shows -%s but runTrace rejects it: %v", name, err)
		}
	}
	if flags == 0 {
		t.Errorf("no flags in usage line %q", line)
	}
}

func TestTrace(t *testing.T) {
	var out bytes.Buffer
	err := runTrace([]string{"-region", "Самарский", "SID/A1 TYP/MQ9"}, strings.NewReader(""), &out)
	if err != nil {
		t.Fatalf("runTrace: %v", err)
	}
	s := out.String()
	for _, want := range []string{"flight_id", "1 match(es)", `"city": "Самара"`, `"uav_type": "MQ9"`} {
		if !strings.Contains(s, want) {
			t.Errorf("trace output missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "not in the region table") {
		t.Error("known region reported as unknown")
	}
}

func TestTraceStdinAndRegions(t *testing.T) {
	var out bytes.Buffer
	if err := runTrace([]string{"-region", "Нигдейский"}, strings.NewReader("REG/RA0001\n"), &out); err != nil {
		t.Fatalf("runTrace: %v", err)
	}
	if !strings.Contains(out.String(), "not in the region table") {
		t.Errorf("unknown region not reported:\n%s", out.String())
	}

	out.Reset()
	if err := runTrace([]string{"-regions"}, strings.NewReader(""), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Московский\tМосква") {
		t.Errorf("region list = %q", out.String())
	}

	if err := runTrace(nil, strings.NewReader("  "), &out); err == nil {
		t.Error("expected error for empty telegram")
	}
}

func TestImportAndReport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flightsheet.yaml")
	cfg := "storage:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "flights.db") + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var out bytes.Buffer
	if err := runImport(ctx, []string{"-config", cfgPath, "-input", writeCSV(t)}, &out); err != nil {
		t.Fatalf("runImport: %v", err)
	}
	if !strings.Contains(out.String(), "2 flights stored") {
		t.Errorf("import output = %q", out.String())
	}

	out.Reset()
	if err := runReport(ctx, []string{"-config", cfgPath, "-groupBy", "city"}, &out); err != nil {
		t.Fatalf("runReport: %v", err)
	}
	s := out.String()
	for _, want := range []string{"flights: 2", "2024-01", "top by city", "Москва", "Иркутск"} {
		if !strings.Contains(s, want) {
			t.Errorf("report missing %q:\n%s", want, s)
		}
	}

	out.Reset()
	if err := runExport(ctx, []string{"-config", cfgPath, "-format", "geojson"}, &out); err != nil {
		t.Fatalf("runExport geojson: %v", err)
	}
	if !strings.Contains(out.String(), `"FeatureCollection"`) {
		t.Errorf("geojson export = %q", out.String())
	}
	kmlPath := filepath.Join(dir, "flights.kml")
	if err := runExport(ctx, []string{"-config", cfgPath, "-output", kmlPath}, &out); err != nil {
		t.Fatalf("runExport kml: %v", err)
	}
	if b, err := os.ReadFile(kmlPath); err != nil || !strings.Contains(string(b), "<Document>") {
		t.Errorf("kml export = %q, %v", b, err)
	}
	if err := runExport(ctx, []string{"-config", cfgPath, "-format", "shp"}, &out); !errors.As(err, new(usageError)) {
		t.Errorf("bad format err = %v", err)
	}

	if err := runReport(ctx, []string{"-config", cfgPath, "-clickhouse"}, &out); err == nil {
		t.Error("expected error when clickhouse is disabled")
	}
	var ue usageError
	if err := runReport(ctx, []string{"-config", cfgPath, "-groupBy", "pilot"}, &out); !errors.As(err, &ue) {
		t.Errorf("bad groupBy err = %v", err)
	}
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, 4000,
		[]storage.Bucket{{Name: "2024-01", Count: 3000}},
		storage.GroupUAVType,
		[]storage.Bucket{{Name: "", Count: 1000}},
		logging.Discard())
	s := out.String()
	for _, want := range []string{"flights: 4,000", "3,000", "top by uav_type", "(none)", "25.0%"} {
		if !strings.Contains(s, want) {
			t.Errorf("report missing %q:\n%s", want, s)
		}
	}
}
