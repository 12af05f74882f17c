package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/pagination"
)

// cliConfig is the process configuration read from JOBQ_* variables. The
// broker settings are loaded separately by jobq.LoadConfig.
type cliConfig struct {
	// Store selects the backend: memory, postgres, bun, sqlite, redis or mongo.
	Store string `env:"STORE" envDefault:"memory"`
	// DSN is the backend connection string. For mongo it must name the
	// database, e.g. mongodb://localhost:27017/jobq.
	DSN string `env:"DSN"`

	HTTPAddr         string `env:"HTTP_ADDR" envDefault:":8080"`
	PaginationPolicy string `env:"PAGINATION_POLICY" envDefault:"coerce"`
	APIToken         string `env:"API_TOKEN"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	// Audit logs every job lifecycle transition as an audit record.
	Audit bool `env:"AUDIT"`
	// Relay sends every job lifecycle transition as a Relay webhook event.
	Relay bool `env:"RELAY"`

	// DLQRetention removes dead letters older than this on DLQPurgeSchedule.
	// Zero keeps them forever.
	DLQRetention     time.Duration `env:"DLQ_RETENTION"`
	DLQPurgeSchedule string        `env:"DLQ_PURGE_SCHEDULE" envDefault:"@hourly"`

	broker jobq.Config
}

func loadCLIConfig() (*cliConfig, error) {
	var cfg cliConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "JOBQ_"}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	broker, err := jobq.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.broker = broker

	if _, err := cfg.policy(); err != nil {
		return nil, err
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *cliConfig) policy() (pagination.Policy, error) {
	return pagination.ParsePolicy(c.PaginationPolicy)
}

// newLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c *cliConfig) newLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
