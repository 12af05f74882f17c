package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a DLQ service. jobStore receives replayed jobs.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds an Entry from a dead-lettered job and persists it.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	msg := j.LastError
	if jobErr != nil {
		msg = jobErr.Error()
	}
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Queue:       j.Queue,
		Payload:     j.Payload,
		Error:       msg,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Replay re-enqueues an entry as a new pending job and records the new
// job on the entry. The new job gets a fresh ID and zero attempts and is
// visible immediately.
//
// The entry is marked before the job is enqueued, so concurrent replays of
// one entry produce at most one job: every caller but the first gets
// ErrDLQAlreadyReplayed. If the enqueue then fails the entry stays marked
// and the returned error names the job ID it was marked with.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Replayed() {
		return nil, fmt.Errorf("%w: %s", jobq.ErrDLQAlreadyReplayed, entryID)
	}

	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       entry.Queue,
		Payload:     entry.Payload,
		State:       job.StatePending,
		MaxAttempts: entry.MaxAttempts,
		Timeout:     job.DefaultOptions().Timeout,
	}
	j.NextVisibleAt = j.CreatedAt

	if err := s.store.ReplayDLQ(ctx, entryID, j.ID); err != nil {
		return nil, err
	}

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("dlq: entry %s marked replayed as %s but enqueue failed: %w", entryID, j.ID, err)
	}

	return j, nil
}

// List returns entries matching opts.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, opts)
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, entryID id.DLQID) (*Entry, error) {
	return s.store.GetDLQ(ctx, entryID)
}

// Count counts entries, optionally for one queue.
func (s *Service) Count(ctx context.Context, queue job.QueueName) (int64, error) {
	return s.store.CountDLQ(ctx, queue)
}

// Purge removes entries that failed before the given time.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeDLQ(ctx, before)
}

// DLQStore returns the underlying store.
func (s *Service) DLQStore() Store {
	return s.store
}
