package jobq

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Broker.
type Option func(*Broker) error

// Storer is the minimal store interface held by the Broker.
// It covers lifecycle operations only. Backends under store/ also
// implement job.Store and dlq.Store, which the engine asserts at build
// time.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Broker owns the store, the configuration, and the lifecycle of the
// worker pool. Create one with New and hand it to engine.Build, which
// plugs the pool and extensions back in.
type Broker struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a Broker with the given options.
func New(opts ...Option) (*Broker, error) {
	b := &Broker{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Logger returns the broker's logger.
func (b *Broker) Logger() *slog.Logger { return b.logger }

// Store returns the broker's store.
func (b *Broker) Store() Storer { return b.store }

// Config returns a copy of the broker's configuration.
func (b *Broker) Config() Config { return b.config }

// SetPool sets the worker pool (called by the engine package).
func (b *Broker) SetPool(p poolRunner) { b.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (b *Broker) SetExtensions(e extensionEmitter) { b.extensions = e }

// Start begins job processing. It returns once the pool is running.
func (b *Broker) Start(ctx context.Context) error {
	if b.pool == nil {
		return ErrNoStore
	}
	if err := b.pool.Start(ctx); err != nil {
		return err
	}
	b.started = true
	return nil
}

// Stop stops the pool, lets in-flight jobs finish within ctx, emits the
// shutdown hook, and closes the store.
func (b *Broker) Stop(ctx context.Context) error {
	if b.pool != nil && b.started {
		if err := b.pool.Stop(ctx); err != nil {
			b.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		b.started = false
	}
	if b.extensions != nil {
		b.extensions.EmitShutdown(ctx)
	}
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration, e.g. with one from LoadConfig.
func WithConfig(c Config) Option {
	return func(b *Broker) error {
		b.config = c
		return nil
	}
}

// WithConcurrency sets the number of concurrent executors.
func WithConcurrency(n int) Option {
	return func(b *Broker) error {
		b.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the queues the worker pool drains.
func WithQueues(queues ...string) Option {
	return func(b *Broker) error {
		b.config.Queues = queues
		return nil
	}
}

// WithPollInterval sets how long idle executors wait between claims.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.PollInterval = d
		return nil
	}
}

// WithLease sets the lease duration and the heartbeat interval used to
// renew it.
func WithLease(lease, heartbeat time.Duration) Option {
	return func(b *Broker) error {
		b.config.LeaseDuration = lease
		b.config.HeartbeatInterval = heartbeat
		return nil
	}
}

// WithReapInterval sets how often expired leases are recovered.
func WithReapInterval(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.ReapInterval = d
		return nil
	}
}

// WithShutdownTimeout bounds the graceful drain in StartWorker.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.ShutdownTimeout = d
		return nil
	}
}

// WithDefaultMaxAttempts sets the attempt ceiling for jobs enqueued
// without an explicit one.
func WithDefaultMaxAttempts(n int) Option {
	return func(b *Broker) error {
		b.config.DefaultMaxAttempts = n
		return nil
	}
}

// WithLogger sets the structured logger for the broker.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) error {
		b.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the broker.
func WithStore(s Storer) Option {
	return func(b *Broker) error {
		b.store = s
		return nil
	}
}
