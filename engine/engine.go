package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/backoff"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	mw "github.com/xraph/jobq/middleware"
	"github.com/xraph/jobq/observability"
	"github.com/xraph/jobq/queue"
	"github.com/xraph/jobq/worker"
)

const instrumentationName = "github.com/xraph/jobq"

// Engine wraps a Broker with typed subsystem access. Use Build to create
// one.
type Engine struct {
	b          *jobq.Broker
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	dlqService *dlq.Service
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger
	queues     []job.QueueName
	lenient    bool

	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers; nil means the global ones.
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. The default is
// backoff.DefaultStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig registers per-queue limits and dead-letter settings.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithTracerProvider sets the TracerProvider used by the tracing
// middleware.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets the MeterProvider used by the metrics middleware
// and the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithLenientRegistry skips the handler coverage check in Build. Jobs on
// a queue without a handler are then dead-lettered at processing time.
func WithLenientRegistry() Option {
	return func(eng *Engine) {
		eng.lenient = true
	}
}

// Build creates an Engine from a Broker and a handler registry. The
// broker's store must implement job.Store and dlq.Store. Unless
// WithLenientRegistry is given, Build fails with jobq.ErrMissingHandlers
// when a configured queue has no handler.
func Build(b *jobq.Broker, reg *job.Registry, opts ...Option) (*Engine, error) {
	logger := b.Logger()
	store := b.Store()
	if store == nil {
		return nil, jobq.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("jobq: store %T does not implement job.Store", store)
	}
	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("jobq: store %T does not implement dlq.Store", store)
	}

	config := b.Config()
	queues, err := job.ParseQueueNames(config.Queues)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = job.MustRegistry()
	}

	eng := &Engine{
		b:          b,
		extensions: ext.NewRegistry(logger),
		registry:   reg,
		jobStore:   js,
		logger:     logger,
		queues:     queues,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if !eng.lenient {
		if err := reg.Validate(queues...); err != nil {
			return nil, err
		}
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.dlqService = dlq.NewService(ds, js)
	eng.queueManager = queue.NewManager(eng.queueConfigs...)

	var tracingMw, metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// recover → tracing → metrics → logging → timeout → user middleware
	chain := make([]mw.Middleware, 0, 5+len(eng.mws))
	chain = append(chain,
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	)
	chain = append(chain, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.extensions, eng.jobStore, eng.dlqService, eng.bo, logger, chain...)
	executor.SetDeadLetterPolicy(eng.queueManager)

	eng.pool = worker.NewPool(eng.jobStore, executor, eng.extensions, logger,
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(queues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithLeaseDuration(config.LeaseDuration),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithReapInterval(config.ReapInterval),
		worker.WithQueueManager(eng.queueManager),
	)

	b.SetPool(eng.pool)
	b.SetExtensions(eng.extensions)

	return eng, nil
}

// AddJob enqueues a typed payload on its variant's queue.
func AddJob(ctx context.Context, eng *Engine, v job.Variant, opts ...job.Option) (*job.Job, error) {
	q, data, err := job.Encode(v)
	if err != nil {
		return nil, err
	}
	return eng.enqueue(ctx, q, data, opts)
}

// AddRaw enqueues a pre-serialized payload. The queue name must be known
// and the payload must decode into the queue's variant.
func (eng *Engine) AddRaw(ctx context.Context, queueName string, payload []byte, opts ...job.Option) (*job.Job, error) {
	q, err := job.ParseQueueName(queueName)
	if err != nil {
		return nil, err
	}
	if _, err := job.Decode(q, payload); err != nil {
		return nil, err
	}
	return eng.enqueue(ctx, q, payload, opts)
}

func (eng *Engine) enqueue(ctx context.Context, q job.QueueName, payload []byte, opts []job.Option) (*job.Job, error) {
	jobOpts := job.DefaultOptions()
	jobOpts.MaxAttempts = eng.b.Config().DefaultMaxAttempts
	for _, opt := range opts {
		opt(&jobOpts)
	}

	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       q,
		Payload:     payload,
		State:       job.StatePending,
		MaxAttempts: max(jobOpts.MaxAttempts, 1),
		Timeout:     jobOpts.Timeout,
	}
	j.NextVisibleAt = jobOpts.VisibleAt(j.CreatedAt)

	if err := eng.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	eng.logger.DebugContext(ctx, "job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", q.String()),
		slog.Time("next_visible_at", j.NextVisibleAt),
	)
	return j, nil
}

// Start starts the worker pool and returns immediately.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.b.Start(ctx)
}

// Stop stops the pool, waiting for in-flight jobs within ctx, and closes
// the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.b.Stop(ctx)
}

// StartWorker runs the worker pool until ctx is cancelled, then drains
// in-flight jobs for at most the configured ShutdownTimeout.
func (eng *Engine) StartWorker(ctx context.Context) error {
	if err := eng.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	timeout := eng.b.Config().ShutdownTimeout
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	eng.logger.Info("worker shutting down", slog.Duration("timeout", timeout))
	return eng.Stop(stopCtx)
}

// Stats summarizes job counts.
type Stats struct {
	// Jobs maps each queue to its per-state counts.
	Jobs map[job.QueueName]map[job.State]int64 `json:"jobs"`
	// DeadLetters is the number of dead-letter entries per queue.
	DeadLetters map[job.QueueName]int64 `json:"dead_letters"`
	// Active is the number of jobs this process is executing.
	Active int `json:"active"`
}

// Stats counts jobs per known queue and state.
func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		Jobs:        make(map[job.QueueName]map[job.State]int64),
		DeadLetters: make(map[job.QueueName]int64),
		Active:      eng.pool.ActiveCount(),
	}
	for _, q := range job.KnownQueues() {
		perState := make(map[job.State]int64, len(job.States()))
		for _, st := range job.States() {
			n, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Queue: q, State: st})
			if err != nil {
				return nil, err
			}
			perState[st] = n
		}
		s.Jobs[q] = perState

		n, err := eng.dlqService.Count(ctx, q)
		if err != nil {
			return nil, err
		}
		s.DeadLetters[q] = n
	}
	return s, nil
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the handler registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Broker returns the underlying Broker.
func (eng *Engine) Broker() *jobq.Broker { return eng.b }

// JobStore returns the job store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// DLQService returns the dead-letter service for inspection and replay.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// QueueManager returns the per-queue admission manager.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Queues returns the queues the worker pool claims from.
func (eng *Engine) Queues() []job.QueueName { return eng.queues }

