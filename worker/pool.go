package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// QueueManager gates how many jobs per queue may run at once. The pool
// calls Acquire after claiming a job and Release once it is resolved.
type QueueManager interface {
	Acquire(q job.QueueName) bool
	Release(q job.QueueName)
}

// activeJob is an in-flight claim tracked for heartbeats and hard stops.
type activeJob struct {
	workerID id.WorkerID
	cancel   context.CancelFunc
}

// Pool runs a fixed number of executor goroutines. Each goroutine claims
// one job at a time under its own worker ID, so a lease that expires and
// is re-claimed by a sibling goroutine can never be resolved by the
// original holder.
type Pool struct {
	store        job.Store
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	queues       []job.QueueName
	pollInterval time.Duration
	poolID       id.WorkerID
	logger       *slog.Logger

	lease             time.Duration
	heartbeatInterval time.Duration
	reapInterval      time.Duration

	queueManager QueueManager

	baseCtx    context.Context
	cancelBase context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]activeJob
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of executor goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool claims from.
func WithPoolQueues(queues []job.QueueName) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how long an idle executor waits before claiming
// again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLeaseDuration sets how long a claim is valid without renewal.
func WithLeaseDuration(d time.Duration) PoolOption {
	return func(p *Pool) { p.lease = d }
}

// WithHeartbeatInterval sets how often leases of in-flight jobs are
// renewed. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithReapInterval sets how often expired leases are recovered. Zero
// disables the reaper.
func WithReapInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reapInterval = d }
}

// WithQueueManager sets per-queue admission control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:             store,
		executor:          executor,
		extensions:        extensions,
		concurrency:       10,
		queues:            job.KnownQueues(),
		pollInterval:      time.Second,
		poolID:            id.NewWorkerID(),
		logger:            logger,
		lease:             30 * time.Second,
		heartbeatInterval: 10 * time.Second,
		reapInterval:      15 * time.Second,
		activeJobs:        make(map[string]activeJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's identifier. Individual executor goroutines
// hold leases under their own IDs.
func (p *Pool) WorkerID() id.WorkerID { return p.poolID }

// Start launches the executor goroutines plus the heartbeat and reaper
// loops. It returns immediately. A stopped pool can be started again.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.baseCtx, p.cancelBase = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.String("pool_id", p.poolID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
		slog.Duration("lease", p.lease),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop(id.NewWorkerID())
	}
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.every(p.heartbeatInterval, p.renewLeases)
	}
	if p.reapInterval > 0 {
		p.wg.Add(1)
		go p.every(p.reapInterval, p.recoverLeases)
	}
	return nil
}

// Stop stops claiming and waits for in-flight jobs to resolve. If ctx
// expires first, the contexts of in-flight handlers are cancelled and Stop
// waits for them to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("pool_id", p.poolID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		<-done
		err = ctx.Err()
	}
	p.cancelBase()
	return err
}

// claimLoop is run by each executor goroutine.
func (p *Pool) claimLoop(workerID id.WorkerID) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		jobs, err := p.store.ClaimJobs(p.baseCtx, job.ClaimOpts{
			Queues:   p.queues,
			WorkerID: workerID,
			Lease:    p.lease,
			Limit:    1,
		})
		if err != nil {
			p.logger.Error("claim error",
				slog.String("worker_id", workerID.String()),
				slog.String("error", err.Error()),
			)
			p.sleep()
			continue
		}
		if len(jobs) == 0 {
			p.sleep()
			continue
		}

		p.run(jobs[0])
	}
}

func (p *Pool) run(j *job.Job) {
	if p.queueManager != nil {
		if !p.queueManager.Acquire(j.Queue) {
			p.release(j)
			p.sleep()
			return
		}
		defer p.queueManager.Release(j.Queue)
	}

	p.extensions.EmitJobClaimed(p.baseCtx, j)

	ctx, cancel := context.WithCancel(p.baseCtx)
	defer cancel()
	p.trackJob(j, cancel)
	defer p.untrackJob(j.ID)

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job attempt did not complete",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue.String()),
			slog.String("error", err.Error()),
		)
	}
}

// release hands a claimed job back without consuming an attempt.
func (p *Pool) release(j *job.Job) {
	j.State = job.StatePending
	j.NextVisibleAt = time.Now().UTC().Add(p.pollInterval)
	if err := p.store.ResolveJob(p.baseCtx, j); err != nil {
		p.logger.Error("failed to release throttled job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("job throttled by queue manager",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue.String()),
	)
}

// every calls fn on each tick until the pool stops.
func (p *Pool) every(interval time.Duration, fn func()) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// renewLeases extends the lease of every in-flight job. A job whose lease
// was already lost has its handler context cancelled.
func (p *Pool) renewLeases() {
	p.activeMu.Lock()
	snapshot := make(map[string]activeJob, len(p.activeJobs))
	for k, v := range p.activeJobs {
		snapshot[k] = v
	}
	p.activeMu.Unlock()

	until := time.Now().UTC().Add(p.lease)
	for jobIDStr, aj := range snapshot {
		jobID, err := id.ParseJobID(jobIDStr)
		if err != nil {
			continue
		}
		err = p.store.RenewLease(p.baseCtx, jobID, aj.workerID, until)
		switch {
		case err == nil:
		case errors.Is(err, jobq.ErrLeaseExpired), errors.Is(err, jobq.ErrJobNotFound):
			p.logger.Warn("lease lost, cancelling handler",
				slog.String("job_id", jobIDStr),
				slog.String("worker_id", aj.workerID.String()),
			)
			aj.cancel()
		default:
			p.logger.Warn("lease renewal failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

// recoverLeases returns jobs with expired leases to pending.
func (p *Pool) recoverLeases() {
	recovered, err := p.store.RecoverExpiredLeases(p.baseCtx, time.Now().UTC())
	if err != nil {
		p.logger.Error("lease recovery error", slog.String("error", err.Error()))
		return
	}
	for _, j := range recovered {
		p.logger.Warn("recovered job with expired lease",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue.String()),
			slog.Int("attempts", j.Attempts),
		)
		p.extensions.EmitJobLeaseRecovered(p.baseCtx, j)
	}
}

func (p *Pool) sleep() {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(j *job.Job, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[j.ID.String()] = activeJob{workerID: j.WorkerID, cancel: cancel}
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID id.JobID) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID.String())
	p.activeMu.Unlock()
}

// ActiveCount returns the number of jobs currently executing.
func (p *Pool) ActiveCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeJobs)
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, aj := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		aj.cancel()
	}
}
