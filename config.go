package jobq

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the Broker and its worker pool.
type Config struct {
	// Concurrency is the number of executors claiming jobs in parallel.
	Concurrency int `env:"CONCURRENCY"`

	// Queues is the list of queue names this process drains.
	Queues []string `env:"QUEUES" envSeparator:","`

	// PollInterval is how long an idle executor waits before claiming again.
	PollInterval time.Duration `env:"POLL_INTERVAL"`

	// ShutdownTimeout bounds how long StartWorker waits for in-flight
	// handlers after cancellation.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// LeaseDuration is how long a claim stays valid without renewal.
	LeaseDuration time.Duration `env:"LEASE_DURATION"`

	// HeartbeatInterval is how often in-flight leases are renewed. It must
	// be shorter than LeaseDuration.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL"`

	// ReapInterval is how often expired leases are recovered. Zero
	// disables recovery in this process.
	ReapInterval time.Duration `env:"REAP_INTERVAL"`

	// DefaultMaxAttempts applies to jobs enqueued without WithMaxAttempts.
	DefaultMaxAttempts int `env:"DEFAULT_MAX_ATTEMPTS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        10,
		Queues:             []string{"mcq_import"},
		PollInterval:       1 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		LeaseDuration:      30 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		ReapInterval:       15 * time.Second,
		DefaultMaxAttempts: 3,
	}
}

// LoadConfig returns DefaultConfig overlaid with JOBQ_* environment
// variables, e.g. JOBQ_CONCURRENCY=4 or JOBQ_QUEUES=mcq_import.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "JOBQ_"}); err != nil {
		return Config{}, fmt.Errorf("jobq: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values the pool cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("jobq: concurrency must be positive, got %d", c.Concurrency)
	case len(c.Queues) == 0:
		return fmt.Errorf("jobq: at least one queue is required")
	case c.PollInterval <= 0:
		return fmt.Errorf("jobq: poll interval must be positive, got %s", c.PollInterval)
	case c.LeaseDuration <= 0:
		return fmt.Errorf("jobq: lease duration must be positive, got %s", c.LeaseDuration)
	case c.HeartbeatInterval >= c.LeaseDuration:
		return fmt.Errorf("jobq: heartbeat interval %s must be shorter than lease duration %s",
			c.HeartbeatInterval, c.LeaseDuration)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("jobq: shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	case c.ReapInterval < 0:
		return fmt.Errorf("jobq: reap interval must not be negative, got %s", c.ReapInterval)
	case c.DefaultMaxAttempts < 1:
		return fmt.Errorf("jobq: default max attempts must be positive, got %d", c.DefaultMaxAttempts)
	}
	return nil
}
