package dlq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/store/memory"
)

func newDeadJob(payload []byte) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		Entity:        jobq.NewEntity(),
		ID:            id.NewJobID(),
		Queue:         job.QueueMCQImport,
		Payload:       payload,
		State:         job.StateDeadLettered,
		Attempts:      3,
		MaxAttempts:   3,
		LastError:     "test error",
		NextVisibleAt: now,
	}
}

func pushOne(t *testing.T, svc *dlq.Service, s *memory.Store, payload []byte) (*job.Job, id.DLQID) {
	t.Helper()
	ctx := context.Background()
	j := newDeadJob(payload)
	if err := svc.Push(ctx, j, errors.New("import service unavailable")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	return j, entries[0].ID
}

func TestService_Push_BuildsEntryFromJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j, entryID := pushOne(t, svc, s, []byte(`{"fileId":"f1"}`))

	entry, err := svc.Get(ctx, entryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.JobID != j.ID {
		t.Errorf("JobID = %v, want %v", entry.JobID, j.ID)
	}
	if entry.Queue != job.QueueMCQImport {
		t.Errorf("Queue = %q, want %q", entry.Queue, job.QueueMCQImport)
	}
	if string(entry.Payload) != `{"fileId":"f1"}` {
		t.Errorf("Payload = %q", entry.Payload)
	}
	if entry.Error != "import service unavailable" {
		t.Errorf("Error = %q, want %q", entry.Error, "import service unavailable")
	}
	if entry.Attempts != 3 || entry.MaxAttempts != 3 {
		t.Errorf("Attempts/MaxAttempts = %d/%d, want 3/3", entry.Attempts, entry.MaxAttempts)
	}
	if entry.FailedAt.IsZero() || entry.CreatedAt.IsZero() {
		t.Error("expected FailedAt and CreatedAt to be set")
	}
}

func TestService_Push_NilErrorUsesLastError(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	if err := svc.Push(ctx, newDeadJob(nil), nil); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, _ := svc.List(ctx, dlq.ListOpts{})
	if len(entries) != 1 || entries[0].Error != "test error" {
		t.Fatalf("entries = %+v, want Error from LastError", entries)
	}
}

func TestService_Count(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	for i := range 3 {
		if err := svc.Push(ctx, newDeadJob(nil), errors.New("fail")); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := svc.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestService_Replay_CreatesNewPendingJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	original, entryID := pushOne(t, svc, s, []byte(`{"fileId":"f9"}`))

	replayed, err := svc.Replay(ctx, entryID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID == original.ID {
		t.Error("replayed job should have a new ID")
	}
	if replayed.State != job.StatePending {
		t.Errorf("State = %q, want %q", replayed.State, job.StatePending)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if replayed.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", replayed.MaxAttempts)
	}
	if string(replayed.Payload) != `{"fileId":"f9"}` {
		t.Errorf("Payload = %q", replayed.Payload)
	}
	if want := job.DefaultOptions().Timeout; replayed.Timeout != want {
		t.Errorf("Timeout = %v, want %v", replayed.Timeout, want)
	}

	got, err := s.GetJob(ctx, replayed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !got.Visible(time.Now().UTC()) {
		t.Error("replayed job should be claimable immediately")
	}

	entry, err := svc.Get(ctx, entryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
	if entry.ReplayJobID != replayed.ID {
		t.Errorf("ReplayJobID = %v, want %v", entry.ReplayJobID, replayed.ID)
	}
}

func TestService_Replay_Twice(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	_, entryID := pushOne(t, svc, s, nil)
	if _, err := svc.Replay(ctx, entryID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if _, err := svc.Replay(ctx, entryID); !errors.Is(err, jobq.ErrDLQAlreadyReplayed) {
		t.Fatalf("second Replay err = %v, want ErrDLQAlreadyReplayed", err)
	}

	n, _ := s.CountJobs(ctx, job.CountOpts{})
	if n != 1 {
		t.Errorf("jobs = %d, want exactly one replayed job", n)
	}
}

// slowEnqueue widens the window between reading an entry and enqueueing
// its replacement.
type slowEnqueue struct {
	*memory.Store
}

func (s slowEnqueue) EnqueueJob(ctx context.Context, j *job.Job) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.EnqueueJob(ctx, j)
}

func TestService_Replay_ConcurrentCallsYieldOneJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, slowEnqueue{s})
	ctx := context.Background()

	_, entryID := pushOne(t, svc, s, []byte(`{"fileId":"f2"}`))

	const callers = 2
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Replay(ctx, entryID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, jobq.ErrDLQAlreadyReplayed):
			already++
		default:
			t.Errorf("unexpected Replay error: %v", err)
		}
	}
	if ok != 1 || already != 1 {
		t.Errorf("successes/already-replayed = %d/%d, want 1/1", ok, already)
	}

	n, err := s.CountJobs(ctx, job.CountOpts{State: job.StatePending})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("pending jobs = %d, want 1", n)
	}

	entry, err := svc.Get(ctx, entryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.GetJob(ctx, entry.ReplayJobID); err != nil {
		t.Errorf("ReplayJobID %v does not name the enqueued job: %v", entry.ReplayJobID, err)
	}
}

// failingEnqueue rejects every job.
type failingEnqueue struct {
	*memory.Store
	err error
}

func (s failingEnqueue) EnqueueJob(context.Context, *job.Job) error { return s.err }

func TestService_Replay_EnqueueFailureKeepsMark(t *testing.T) {
	s := memory.New()
	storeErr := errors.New("store unavailable")
	svc := dlq.NewService(s, failingEnqueue{Store: s, err: storeErr})
	ctx := context.Background()

	_, entryID := pushOne(t, svc, s, nil)

	replayed, err := svc.Replay(ctx, entryID)
	if !errors.Is(err, storeErr) {
		t.Fatalf("Replay err = %v, want wrapped store error", err)
	}
	if replayed != nil {
		t.Errorf("Replay returned job %v on enqueue failure", replayed.ID)
	}

	entry, err := svc.Get(ctx, entryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Replayed() {
		t.Error("entry should stay marked after a failed enqueue")
	}
	if _, err := svc.Replay(ctx, entryID); !errors.Is(err, jobq.ErrDLQAlreadyReplayed) {
		t.Errorf("second Replay err = %v, want ErrDLQAlreadyReplayed", err)
	}
	if n, _ := s.CountJobs(ctx, job.CountOpts{}); n != 0 {
		t.Errorf("jobs = %d, want 0", n)
	}
}

func TestService_Replay_NotFound(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)

	_, err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, jobq.ErrDLQNotFound) {
		t.Fatalf("err = %v, want ErrDLQNotFound", err)
	}
}

func TestService_Purge(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	pushOne(t, svc, s, nil)

	n, err := svc.Purge(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("Purge(past) = %d, %v; want 0", n, err)
	}
	n, err = svc.Purge(ctx, time.Now().UTC().Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("Purge(future) = %d, %v; want 1", n, err)
	}
}
