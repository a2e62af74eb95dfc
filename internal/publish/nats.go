// Package publish announces imported flights on NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"flightsheet/internal/flight"
)

// Config holds NATS publisher settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Prefix  string `yaml:"prefix"`
}

// DefaultConfig returns local development settings with publishing off.
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: "flights",
	}
}

// Message is the payload published for every flight.
type Message struct {
	ImportID uuid.UUID     `json:"import_id"`
	Flight   flight.Record `json:"flight"`
}

const flushTimeout = 5 * time.Second

// Publisher sends flight records to NATS subjects of the form
// <prefix>.<city>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials the NATS server in cfg.
func Connect(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("flightsheet"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return New(nc, cfg.Prefix), nil
}

// New wraps an existing connection.
func New(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().Prefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "nats" }

// Write publishes every record and waits for the server to acknowledge the
// batch.
func (p *Publisher) Write(ctx context.Context, importID uuid.UUID, records []flight.Record) error {
	for i, r := range records {
		data, err := json.Marshal(Message{ImportID: importID, Flight: r})
		if err != nil {
			return fmt.Errorf("marshal flight %d: %w", i, err)
		}
		if err := p.nc.Publish(Subject(p.prefix, r.City), data); err != nil {
			return fmt.Errorf("publish flight %d: %w", i, err)
		}
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// Subject builds the subject for a city. Characters NATS treats specially
// become underscores; an empty city maps to "unknown".
func Subject(prefix, city string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>':
			return '_'
		case unicode.IsSpace(r):
			return '_'
		default:
			return r
		}
	}, city)
	if token == "" {
		token = "unknown"
	}
	return prefix + "." + token
}
