package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"flightsheet/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flightsheet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != storage.DriverSQLite || cfg.API.Port != 8000 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.NATS.Enabled || cfg.Storage.ClickHouse.Enabled {
		t.Error("optional sinks enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
  postgres:
    host: db.internal
    database: flights
api:
  port: 9090
  request_timeout: 15s
  auth_enabled: true
  api_keys: [k1, k2]
nats:
  enabled: true
  prefix: uav
logging:
  level: debug
ingest:
  workers: 4
  sheet: Лист1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Driver != storage.DriverPostgres || cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Storage.Postgres.Port != 5432 || cfg.Storage.Postgres.User != "postgres" {
		t.Errorf("postgres defaults lost: %+v", cfg.Storage.Postgres)
	}
	if cfg.API.Port != 9090 || cfg.API.RequestTimeout != 15*time.Second {
		t.Errorf("api = %+v", cfg.API)
	}
	if !slices.Equal(cfg.API.APIKeys, []string{"k1", "k2"}) {
		t.Errorf("api keys = %v", cfg.API.APIKeys)
	}
	if !cfg.NATS.Enabled || cfg.NATS.Prefix != "uav" || cfg.NATS.URL == "" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if cfg.Logging.Level != "debug" || cfg.Ingest.Workers != 4 || cfg.Ingest.Sheet != "Лист1" {
		t.Errorf("logging/ingest = %+v / %+v", cfg.Logging, cfg.Ingest)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "storage: [", "failed to parse"},
		{"driver", "storage:\n  driver: mysql\n", "unknown storage driver"},
		{"port", "api:\n  port: 70000\n", "invalid api.port"},
		{"auth", "api:\n  auth_enabled: true\n", "requires api.api_keys"},
		{"level", "logging:\n  level: loud\n", "invalid log level"},
		{"workers", "ingest:\n  workers: -1\n", "invalid ingest.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil ||
		!strings.Contains(err.Error(), "failed to read") {
		t.Errorf("missing file err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FLIGHTSHEET_DB":     "postgres",
		"POSTGRES_HOST":      "pg",
		"POSTGRES_PORT":      "6543",
		"POSTGRES_PASSWORD":  "secret",
		"CLICKHOUSE_ENABLED": "true",
		"CLICKHOUSE_PORT":    "not-a-number",
		"NATS_URL":           "nats://bus:4222",
		"API_KEYS":           "a, ,b",
		"LOG_LEVEL":          "warn",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	pg := cfg.Storage.Postgres
	if cfg.Storage.Driver != "postgres" || pg.Host != "pg" || pg.Port != 6543 || pg.Password != "secret" {
		t.Errorf("postgres = %+v", pg)
	}
	if !cfg.Storage.ClickHouse.Enabled || cfg.Storage.ClickHouse.Port != Default().Storage.ClickHouse.Port {
		t.Errorf("clickhouse = %+v", cfg.Storage.ClickHouse)
	}
	if cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if !cfg.API.AuthEnabled || !slices.Equal(cfg.API.APIKeys, []string{"a", "b"}) {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestSplitList(t *testing.T) {
	if got := SplitList(" a,b ,,c "); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("SplitList = %v", got)
	}
	if got := SplitList(""); got != nil {
		t.Errorf("SplitList(\"\") = %v", got)
	}
}
