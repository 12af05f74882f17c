// Package memory provides an in-memory implementation of the jobq stores.
// It is safe for concurrent use and intended for tests, development, and
// embedding in single-process tools.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// Ensure Store implements the subsystem stores at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ jobq.Storer = (*Store)(nil)
	_ job.Store   = (*Store)(nil)
	_ dlq.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// A single mutex serializes every mutation, which makes claims atomic.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job
	dlqs map[string]*dlq.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		dlqs: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new pending job.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobq.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// ClaimJobs atomically leases up to opts.Limit visible pending jobs.
func (m *Store) ClaimJobs(_ context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit := max(opts.Limit, 1)

	candidates := make([]*job.Job, 0, limit)
	for _, j := range m.jobs {
		if !j.Visible(now) || !slices.Contains(opts.Queues, j.Queue) {
			continue
		}
		candidates = append(candidates, j)
	}

	slices.SortFunc(candidates, job.Compare)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	expires := now.Add(opts.Lease)
	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateClaimed
		j.WorkerID = opts.WorkerID
		lease := expires
		j.LeaseExpires = &lease
		j.UpdatedAt = now
		result[i] = j.Clone()
	}

	return result, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (m *Store) ResolveJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return jobq.ErrJobNotFound
	}
	if stored.State != job.StateClaimed || stored.WorkerID != j.WorkerID {
		return jobq.ErrLeaseExpired
	}
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	stored.State = j.State
	stored.Attempts = j.Attempts
	stored.NextVisibleAt = j.NextVisibleAt
	stored.LastError = j.LastError
	stored.UpdatedAt = time.Now().UTC()
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		stored.CompletedAt = &t
	}
	if j.State != job.StateClaimed {
		stored.WorkerID = id.Nil
		stored.LeaseExpires = nil
	}
	return nil
}

// RenewLease extends the lease held by workerID.
func (m *Store) RenewLease(_ context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[jobID.String()]
	if !ok {
		return jobq.ErrJobNotFound
	}
	if stored.State != job.StateClaimed || stored.WorkerID != workerID {
		return jobq.ErrLeaseExpired
	}
	t := until
	stored.LeaseExpires = &t
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// RecoverExpiredLeases returns lapsed claims to pending.
func (m *Store) RecoverExpiredLeases(_ context.Context, now time.Time) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recovered []*job.Job
	for _, j := range m.jobs {
		if !j.LeaseExpired(now) {
			continue
		}
		j.State = job.StatePending
		j.WorkerID = id.Nil
		j.LeaseExpires = nil
		j.NextVisibleAt = now
		j.UpdatedAt = now
		recovered = append(recovered, j.Clone())
	}
	return recovered, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobs returns jobs matching opts, oldest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if matchJob(j, opts.Queue, opts.State) {
			result = append(result, j.Clone())
		}
	}
	slices.SortFunc(result, job.Compare)
	return page(result, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if matchJob(j, opts.Queue, opts.State) {
			n++
		}
	}
	return n, nil
}

func matchJob(j *job.Job, queue job.QueueName, state job.State) bool {
	if queue != "" && j.Queue != queue {
		return false
	}
	if state != "" && j.State != state {
		return false
	}
	return true
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds an entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries matching opts, oldest failure first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *dlq.Entry) int {
		if c := a.FailedAt.Compare(b.FailedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, jobq.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks an entry as replayed once.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return jobq.ErrDLQNotFound
	}
	if e.Replayed() {
		return jobq.ErrDLQAlreadyReplayed
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	e.ReplayJobID = jobID
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ counts entries, optionally for one queue.
func (m *Store) CountDLQ(_ context.Context, queue job.QueueName) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.dlqs {
		if queue == "" || e.Queue == queue {
			n++
		}
	}
	return n, nil
}
