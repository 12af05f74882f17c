package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/store/memory"
)

// recorder counts lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events map[string]int
}

func newRecorder() *recorder { return &recorder{events: make(map[string]int)} }

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.events[name]++
	r.mu.Unlock()
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobClaimed(_ context.Context, _ *job.Job) error {
	r.add("claimed")
	return nil
}

func (r *recorder) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	r.add("completed")
	return nil
}

func (r *recorder) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	r.add("retrying")
	return nil
}

func (r *recorder) OnJobDeadLettered(_ context.Context, _ *job.Job, _ error) error {
	r.add("dead_lettered")
	return nil
}

func (r *recorder) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	r.add("failed")
	return nil
}

func (r *recorder) OnJobLeaseRecovered(_ context.Context, _ *job.Job) error {
	r.add("lease_recovered")
	return nil
}

// enqueue stores a visible mcq_import job.
func enqueue(t *testing.T, s *memory.Store, payload any, maxAttempts int) *job.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	j := &job.Job{
		Entity:      jobq.NewEntity(),
		ID:          id.NewJobID(),
		Queue:       job.QueueMCQImport,
		Payload:     data,
		State:       job.StatePending,
		MaxAttempts: maxAttempts,
	}
	j.NextVisibleAt = j.CreatedAt
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

func getJob(t *testing.T, s *memory.Store, jobID id.JobID) *job.Job {
	t.Helper()
	got, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return got
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
