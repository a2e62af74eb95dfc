// Package config loads the flightsheet YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"flightsheet/internal/api"
	"flightsheet/internal/logging"
	"flightsheet/internal/publish"
	"flightsheet/internal/storage"
)

// Config is the root of the configuration file.
type Config struct {
	Storage storage.Config `yaml:"storage"`
	API     api.Config     `yaml:"api"`
	NATS    publish.Config `yaml:"nats"`
	Logging logging.Config `yaml:"logging"`
	Ingest  IngestConfig   `yaml:"ingest"`
}

// IngestConfig controls how tables are read and decoded.
type IngestConfig struct {
	Workers  int    `yaml:"workers"` // 0 means GOMAXPROCS
	Sheet    string `yaml:"sheet"`
	NoHeader bool   `yaml:"no_header"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: storage.DefaultConfig(),
		API:     api.DefaultConfig(),
		NATS:    publish.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// Load reads filename over the defaults and then applies environment
// overrides. An empty filename skips the file.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment. Variable names follow
// the usual container conventions.
func (c *Config) applyEnv(getenv func(string) string) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int) int {
		if v := getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return def
	}
	envBool := func(key string, def bool) bool {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return def
	}

	c.Storage.Driver = env("FLIGHTSHEET_DB", c.Storage.Driver)
	c.Storage.SQLitePath = env("SQLITE_PATH", c.Storage.SQLitePath)

	pg := &c.Storage.Postgres
	pg.Host = env("POSTGRES_HOST", pg.Host)
	pg.Port = envInt("POSTGRES_PORT", pg.Port)
	pg.Database = env("POSTGRES_DATABASE", pg.Database)
	pg.User = env("POSTGRES_USER", pg.User)
	pg.Password = env("POSTGRES_PASSWORD", pg.Password)

	ch := &c.Storage.ClickHouse
	ch.Enabled = envBool("CLICKHOUSE_ENABLED", ch.Enabled)
	ch.Host = env("CLICKHOUSE_HOST", ch.Host)
	ch.Port = envInt("CLICKHOUSE_PORT", ch.Port)
	ch.Database = env("CLICKHOUSE_DATABASE", ch.Database)
	ch.User = env("CLICKHOUSE_USER", ch.User)
	ch.Password = env("CLICKHOUSE_PASSWORD", ch.Password)

	c.NATS.Enabled = envBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = env("NATS_URL", c.NATS.URL)

	c.API.Port = envInt("API_PORT", c.API.Port)
	if keys := getenv("API_KEYS"); keys != "" {
		c.API.APIKeys = SplitList(keys)
		c.API.AuthEnabled = true
	}

	c.Logging.Level = env("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = env("LOG_FILE", c.Logging.File)
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for driver %q", c.Storage.Driver)
		}
	case storage.DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port %d", c.API.Port)
	}
	if c.API.AuthEnabled && len(c.API.APIKeys) == 0 {
		return fmt.Errorf("api.auth_enabled requires api.api_keys")
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("invalid ingest.workers %d", c.Ingest.Workers)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
