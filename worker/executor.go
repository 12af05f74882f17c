// Package worker provides the job execution engine: an Executor that runs
// one claimed job through middleware and its handler and resolves the
// outcome, and a Pool that runs executors concurrently under leases.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/backoff"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/middleware"
)

// DeadLetterPolicy reports whether terminal failures on a queue are moved
// to the dead-letter queue. *queue.Manager satisfies it.
type DeadLetterPolicy interface {
	DeadLetters(q job.QueueName) bool
}

// Executor runs a single claimed job through middleware and the bound
// handler, then persists the outcome and emits lifecycle events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	dlqService *dlq.Service
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
	policy     DeadLetterPolicy
	now        func() time.Time
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetDeadLetterPolicy installs a per-queue dead-letter policy. Without one
// every queue dead-letters.
func (e *Executor) SetDeadLetterPolicy(p DeadLetterPolicy) { e.policy = p }

// Execute runs one attempt of a claimed job and resolves it:
//
//   - success: completed
//   - permanent error or attempts exhausted: dead-lettered (or failed when
//     the queue does not dead-letter)
//   - otherwise: pending again after the backoff delay
//
// A job whose queue has no bound handler is dead-lettered without
// consuming an attempt. The returned error is the handler error, or the
// store error if the outcome could not be persisted.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Queue)
	if !ok {
		err := fmt.Errorf("%w: %s", jobq.ErrNoHandlerRegistered, j.Queue)
		e.logger.ErrorContext(ctx, "no handler bound for queue",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue.String()),
		)
		if resolveErr := e.terminate(ctx, j, err); resolveErr != nil {
			return resolveErr
		}
		return err
	}

	j.Attempts++
	start := time.Now()
	err := e.mw(ctx, j, func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	})
	elapsed := time.Since(start)

	if err == nil {
		return e.complete(ctx, j, elapsed)
	}

	j.LastError = err.Error()
	if jobq.IsPermanent(err) || j.Attempts >= j.MaxAttempts {
		if resolveErr := e.terminate(ctx, j, err); resolveErr != nil {
			return resolveErr
		}
		return err
	}
	if resolveErr := e.retry(ctx, j); resolveErr != nil {
		return resolveErr
	}
	return err
}

func (e *Executor) complete(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	now := e.now()
	j.State = job.StateCompleted
	j.CompletedAt = &now
	j.LastError = ""

	if err := e.resolve(ctx, j); err != nil {
		return err
	}
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

func (e *Executor) retry(ctx context.Context, j *job.Job) error {
	delay := e.backoff.Delay(j.Attempts)
	j.State = job.StatePending
	j.NextVisibleAt = e.now().Add(delay)

	if err := e.resolve(ctx, j); err != nil {
		return err
	}
	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, j.NextVisibleAt)

	e.logger.InfoContext(ctx, "job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue.String()),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)
	return nil
}

// terminate moves j to its terminal failure state. It returns only store
// errors.
func (e *Executor) terminate(ctx context.Context, j *job.Job, cause error) error {
	j.LastError = cause.Error()
	deadLetter := e.policy == nil || e.policy.DeadLetters(j.Queue)
	if deadLetter {
		j.State = job.StateDeadLettered
	} else {
		j.State = job.StateFailed
	}

	if err := e.resolve(ctx, j); err != nil {
		return err
	}

	attrs := []any{
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue.String()),
		slog.Int("attempts", j.Attempts),
		slog.String("error", cause.Error()),
	}
	if !deadLetter {
		e.extensions.EmitJobFailed(ctx, j, cause)
		e.logger.WarnContext(ctx, "job failed terminally", attrs...)
		return nil
	}

	if e.dlqService != nil {
		if err := e.dlqService.Push(context.WithoutCancel(ctx), j, cause); err != nil {
			e.logger.ErrorContext(ctx, "failed to push job to dead-letter queue",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	e.extensions.EmitJobDeadLettered(ctx, j, cause)
	e.logger.WarnContext(ctx, "job dead-lettered", attrs...)
	return nil
}

// resolve persists j's outcome. The store write does not inherit the
// attempt's cancellation so a cancelled handler still records its result.
func (e *Executor) resolve(ctx context.Context, j *job.Job) error {
	err := e.store.ResolveJob(context.WithoutCancel(ctx), j)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobq.ErrLeaseExpired):
		e.logger.WarnContext(ctx, "lease lost before resolve, outcome dropped",
			slog.String("job_id", j.ID.String()),
			slog.String("worker_id", j.WorkerID.String()),
			slog.String("state", string(j.State)),
		)
	default:
		e.logger.ErrorContext(ctx, "failed to resolve job",
			slog.String("job_id", j.ID.String()),
			slog.String("state", string(j.State)),
			slog.String("error", err.Error()),
		)
	}
	return err
}
