package jobq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/store/memory"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := jobq.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.DefaultMaxAttempts != 3 {
		t.Errorf("DefaultMaxAttempts = %d, want 3", cfg.DefaultMaxAttempts)
	}
	if cfg.HeartbeatInterval >= cfg.LeaseDuration {
		t.Errorf("heartbeat %v not shorter than lease %v", cfg.HeartbeatInterval, cfg.LeaseDuration)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*jobq.Config)
	}{
		{"zero concurrency", func(c *jobq.Config) { c.Concurrency = 0 }},
		{"no queues", func(c *jobq.Config) { c.Queues = nil }},
		{"zero poll", func(c *jobq.Config) { c.PollInterval = 0 }},
		{"zero lease", func(c *jobq.Config) { c.LeaseDuration = 0 }},
		{"heartbeat not shorter than lease", func(c *jobq.Config) { c.HeartbeatInterval = c.LeaseDuration }},
		{"zero attempts", func(c *jobq.Config) { c.DefaultMaxAttempts = 0 }},
		{"zero shutdown timeout", func(c *jobq.Config) { c.ShutdownTimeout = 0 }},
		{"negative shutdown timeout", func(c *jobq.Config) { c.ShutdownTimeout = -time.Second }},
		{"negative reap interval", func(c *jobq.Config) { c.ReapInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := jobq.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestConfigValidateAllowsDisabledReaper(t *testing.T) {
	cfg := jobq.DefaultConfig()
	cfg.ReapInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with zero reap interval = %v, want nil", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JOBQ_CONCURRENCY", "4")
	t.Setenv("JOBQ_QUEUES", "mcq_import")
	t.Setenv("JOBQ_LEASE_DURATION", "1m")
	t.Setenv("JOBQ_HEARTBEAT_INTERVAL", "20s")
	t.Setenv("JOBQ_REAP_INTERVAL", "0s")

	cfg, err := jobq.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.LeaseDuration != time.Minute || cfg.HeartbeatInterval != 20*time.Second {
		t.Errorf("lease = %v heartbeat = %v", cfg.LeaseDuration, cfg.HeartbeatInterval)
	}
	if cfg.ReapInterval != 0 {
		t.Errorf("ReapInterval = %v, want 0", cfg.ReapInterval)
	}
	if cfg.PollInterval != jobq.DefaultConfig().PollInterval {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("JOBQ_LEASE_DURATION", "5s")
	t.Setenv("JOBQ_HEARTBEAT_INTERVAL", "10s")
	if _, err := jobq.LoadConfig(); err == nil {
		t.Error("LoadConfig() = nil error, want heartbeat >= lease rejection")
	}

	t.Setenv("JOBQ_LEASE_DURATION", "soon")
	if _, err := jobq.LoadConfig(); err == nil {
		t.Error("LoadConfig() = nil error, want parse failure")
	}
}

func TestNewBrokerOptions(t *testing.T) {
	s := memory.New()
	b, err := jobq.New(
		jobq.WithStore(s),
		jobq.WithConcurrency(2),
		jobq.WithQueues("mcq_import"),
		jobq.WithLease(time.Minute, 15*time.Second),
		jobq.WithDefaultMaxAttempts(5),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := b.Config()
	if cfg.Concurrency != 2 || cfg.DefaultMaxAttempts != 5 || cfg.LeaseDuration != time.Minute {
		t.Errorf("config = %+v", cfg)
	}
	if b.Store() != s {
		t.Error("Store() did not return the configured store")
	}

	if _, err := jobq.New(jobq.WithConcurrency(0)); err == nil {
		t.Error("New with zero concurrency: expected error")
	}
}

func TestBrokerStartWithoutPool(t *testing.T) {
	b, err := jobq.New(jobq.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, jobq.ErrNoStore) {
		t.Errorf("Start() = %v, want ErrNoStore", err)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
