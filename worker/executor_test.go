package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/backoff"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/middleware"
	"github.com/xraph/jobq/queue"
	"github.com/xraph/jobq/store/memory"
	"github.com/xraph/jobq/worker"
)

type executorFixture struct {
	store    *memory.Store
	dlq      *dlq.Service
	events   *recorder
	executor *worker.Executor
}

func newExecutorFixture(t *testing.T, reg *job.Registry, bo backoff.Strategy) *executorFixture {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	events := newRecorder()
	extensions := ext.NewRegistry(logger)
	extensions.Register(events)
	svc := dlq.NewService(s, s)
	if bo == nil {
		bo = backoff.NewConstant(time.Millisecond)
	}
	return &executorFixture{
		store:    s,
		dlq:      svc,
		events:   events,
		executor: worker.NewExecutor(reg, extensions, s, svc, bo, logger, middleware.Recover(logger)),
	}
}

// claim leases the next job as if the clock were at.
func (f *executorFixture) claim(t *testing.T, at time.Time) *job.Job {
	t.Helper()
	jobs, err := f.store.ClaimJobs(context.Background(), job.ClaimOpts{
		Queues:   []job.QueueName{job.QueueMCQImport},
		WorkerID: id.NewWorkerID(),
		Lease:    time.Minute,
		Limit:    1,
		Now:      at,
	})
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 claimed job, got %d", len(jobs))
	}
	return jobs[0]
}

func importHandler(fn func(job.MCQImport) error) *job.Registry {
	return job.MustRegistry(job.Bind(func(_ context.Context, p job.MCQImport) error {
		return fn(p)
	}))
}

func TestExecutor_RetryThenSucceed(t *testing.T) {
	calls := 0
	reg := importHandler(func(p job.MCQImport) error {
		calls++
		if p.FileID != "f1" {
			t.Errorf("FileID = %q, want f1", p.FileID)
		}
		if calls < 3 {
			return errors.New("storage unavailable")
		}
		return nil
	})
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f1"}, 3)

	later := time.Now().Add(time.Hour)
	for range 3 {
		_ = f.executor.Execute(context.Background(), f.claim(t, later))
	}

	got := getJob(t, f.store, j.ID)
	if got.State != job.StateCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt")
	}
	if got.LastError != "" {
		t.Errorf("LastError = %q, want cleared", got.LastError)
	}
	if f.events.count("retrying") != 2 || f.events.count("completed") != 1 {
		t.Errorf("events = %v", f.events.events)
	}
}

func TestExecutor_ExhaustsToDeadLetter(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { return errors.New("parse failed") })
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f2"}, 2)

	later := time.Now().Add(time.Hour)
	for range 2 {
		err := f.executor.Execute(context.Background(), f.claim(t, later))
		if err == nil || err.Error() != "parse failed" {
			t.Fatalf("Execute error = %v", err)
		}
	}

	got := getJob(t, f.store, j.ID)
	if got.State != job.StateDeadLettered {
		t.Fatalf("state = %s, want dead_lettered", got.State)
	}
	if got.Attempts != 2 || got.LastError != "parse failed" {
		t.Errorf("attempts=%d lastError=%q", got.Attempts, got.LastError)
	}

	entries, err := f.dlq.List(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != j.ID || entries[0].Attempts != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if f.events.count("dead_lettered") != 1 {
		t.Errorf("events = %v", f.events.events)
	}
}

func TestExecutor_PermanentSkipsRetries(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { return jobq.Permanentf("file %s missing", "f3") })
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f3"}, 5)

	err := f.executor.Execute(context.Background(), f.claim(t, time.Now()))
	if !jobq.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	got := getJob(t, f.store, j.ID)
	if got.State != job.StateDeadLettered || got.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d, want dead_lettered after 1", got.State, got.Attempts)
	}
}

func TestExecutor_MalformedPayloadIsPermanent(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error {
		t.Error("handler must not run for malformed payload")
		return nil
	})
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, map[string]int{"bogus": 1}, 3)

	err := f.executor.Execute(context.Background(), f.claim(t, time.Now()))
	if !errors.Is(err, jobq.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if got := getJob(t, f.store, j.ID); got.State != job.StateDeadLettered || got.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d", got.State, got.Attempts)
	}
}

func TestExecutor_MissingHandlerDeadLettersWithoutAttempt(t *testing.T) {
	f := newExecutorFixture(t, job.MustRegistry(), nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f4"}, 3)

	err := f.executor.Execute(context.Background(), f.claim(t, time.Now()))
	if !errors.Is(err, jobq.ErrNoHandlerRegistered) {
		t.Fatalf("expected ErrNoHandlerRegistered, got %v", err)
	}

	got := getJob(t, f.store, j.ID)
	if got.State != job.StateDeadLettered {
		t.Fatalf("state = %s, want dead_lettered", got.State)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}
	if !strings.Contains(got.LastError, "mcq_import") {
		t.Errorf("LastError = %q", got.LastError)
	}
	if n, _ := f.dlq.Count(context.Background(), ""); n != 1 {
		t.Errorf("dlq count = %d, want 1", n)
	}
}

func TestExecutor_DisabledDeadLetterEndsFailed(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { return errors.New("nope") })
	f := newExecutorFixture(t, reg, nil)
	f.executor.SetDeadLetterPolicy(queue.NewManager(queue.Config{
		Name:              job.QueueMCQImport,
		DisableDeadLetter: true,
	}))
	j := enqueue(t, f.store, job.MCQImport{FileID: "f5"}, 1)

	_ = f.executor.Execute(context.Background(), f.claim(t, time.Now()))

	if got := getJob(t, f.store, j.ID); got.State != job.StateFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if n, _ := f.dlq.Count(context.Background(), ""); n != 0 {
		t.Errorf("dlq count = %d, want 0", n)
	}
	if f.events.count("failed") != 1 || f.events.count("dead_lettered") != 0 {
		t.Errorf("events = %v", f.events.events)
	}
}

func TestExecutor_RetryUsesBackoff(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { return errors.New("flaky") })
	f := newExecutorFixture(t, reg, backoff.NewConstant(time.Minute))
	j := enqueue(t, f.store, job.MCQImport{FileID: "f6"}, 3)

	before := time.Now()
	_ = f.executor.Execute(context.Background(), f.claim(t, before))

	got := getJob(t, f.store, j.ID)
	if got.State != job.StatePending || got.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d", got.State, got.Attempts)
	}
	if got.NextVisibleAt.Before(before.Add(59 * time.Second)) {
		t.Errorf("NextVisibleAt = %v, want about a minute after %v", got.NextVisibleAt, before)
	}
	if got.Visible(time.Now()) {
		t.Error("retried job should not be visible before its backoff elapses")
	}
}

func TestExecutor_PanicIsRetried(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { panic("boom") })
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f7"}, 2)

	_ = f.executor.Execute(context.Background(), f.claim(t, time.Now()))

	if got := getJob(t, f.store, j.ID); got.State != job.StatePending || got.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d, want pending after 1", got.State, got.Attempts)
	}
}

func TestExecutor_LostLeaseDropsOutcome(t *testing.T) {
	reg := importHandler(func(job.MCQImport) error { return nil })
	f := newExecutorFixture(t, reg, nil)
	j := enqueue(t, f.store, job.MCQImport{FileID: "f8"}, 3)

	claimed := f.claim(t, time.Now())
	if _, err := f.store.RecoverExpiredLeases(context.Background(), time.Now().Add(2*time.Minute)); err != nil {
		t.Fatalf("RecoverExpiredLeases: %v", err)
	}

	err := f.executor.Execute(context.Background(), claimed)
	if !errors.Is(err, jobq.ErrLeaseExpired) {
		t.Fatalf("expected ErrLeaseExpired, got %v", err)
	}

	got := getJob(t, f.store, j.ID)
	if got.State != job.StatePending || got.Attempts != 0 {
		t.Fatalf("state=%s attempts=%d, want untouched pending", got.State, got.Attempts)
	}
	if f.events.count("completed") != 0 {
		t.Error("completed must not fire for a dropped outcome")
	}
}
