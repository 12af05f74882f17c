// Package storetest is a conformance suite for store.Store backends. Every
// backend runs it from its own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
//	}
//
// The factory must return an empty, migrated store for each call.
package storetest

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
	"github.com/xraph/jobq/store"
)

// Factory returns a fresh store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"EnqueueDuplicate", testEnqueueDuplicate},
		{"GetMissing", testGetMissing},
		{"ClaimOrder", testClaimOrder},
		{"ClaimTieBreaksOnID", testClaimTieBreak},
		{"ClaimRespectsVisibility", testClaimVisibility},
		{"ClaimFiltersQueues", testClaimQueues},
		{"ClaimSetsLease", testClaimSetsLease},
		{"ClaimConcurrentExactlyOnce", testClaimConcurrent},
		{"ResolveOutcomes", testResolveOutcomes},
		{"ResolveStaleWorker", testResolveStaleWorker},
		{"RenewLease", testRenewLease},
		{"RecoverExpiredLeases", testRecoverExpiredLeases},
		{"ListAndCount", testListAndCount},
		{"DLQLifecycle", testDLQLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// base is a millisecond-aligned instant so every backend stores it exactly.
func base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newJob(createdAt time.Time) *job.Job {
	return &job.Job{
		Entity:        jobq.Entity{CreatedAt: createdAt, UpdatedAt: createdAt},
		ID:            id.NewJobID(),
		Queue:         job.QueueMCQImport,
		Payload:       []byte(`{"fileId":"f1"}`),
		State:         job.StatePending,
		MaxAttempts:   3,
		NextVisibleAt: createdAt,
		Timeout:       time.Minute,
	}
}

func enqueue(t *testing.T, s store.Store, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := s.EnqueueJob(context.Background(), j); err != nil {
			t.Fatalf("EnqueueJob(%s): %v", j.ID, err)
		}
	}
}

func claim(t *testing.T, s store.Store, worker id.WorkerID, now time.Time, limit int) []*job.Job {
	t.Helper()
	got, err := s.ClaimJobs(context.Background(), job.ClaimOpts{
		Queues:   []job.QueueName{job.QueueMCQImport},
		WorkerID: worker,
		Lease:    30 * time.Second,
		Limit:    limit,
		Now:      now,
	})
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	return got
}

func sameInstant(a, b time.Time) bool {
	d := a.Sub(b)
	return d < time.Millisecond && d > -time.Millisecond
}

func testEnqueueAndGet(t *testing.T, s store.Store) {
	now := base()
	j := newJob(now)
	enqueue(t, s, j)

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("ID = %v, want %v", got.ID, j.ID)
	}
	if got.Queue != job.QueueMCQImport {
		t.Errorf("Queue = %q, want %q", got.Queue, job.QueueMCQImport)
	}
	if string(got.Payload) != `{"fileId":"f1"}` {
		t.Errorf("Payload = %s", got.Payload)
	}
	if got.State != job.StatePending {
		t.Errorf("State = %q, want pending", got.State)
	}
	if got.Attempts != 0 || got.MaxAttempts != 3 {
		t.Errorf("Attempts/MaxAttempts = %d/%d, want 0/3", got.Attempts, got.MaxAttempts)
	}
	if !sameInstant(got.CreatedAt, now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if !sameInstant(got.NextVisibleAt, now) {
		t.Errorf("NextVisibleAt = %v, want %v", got.NextVisibleAt, now)
	}
	if got.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", got.Timeout)
	}
	if !got.WorkerID.IsNil() || got.LeaseExpires != nil {
		t.Error("pending job must not carry a lease")
	}
}

func testEnqueueDuplicate(t *testing.T, s store.Store) {
	j := newJob(base())
	enqueue(t, s, j)
	if err := s.EnqueueJob(context.Background(), j); !errors.Is(err, jobq.ErrJobAlreadyExists) {
		t.Fatalf("err = %v, want ErrJobAlreadyExists", err)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	if _, err := s.GetJob(context.Background(), id.NewJobID()); !errors.Is(err, jobq.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func testClaimOrder(t *testing.T, s store.Store) {
	now := base()
	first := newJob(now.Add(-3 * time.Second))
	second := newJob(now.Add(-2 * time.Second))
	third := newJob(now.Add(-1 * time.Second))
	enqueue(t, s, third, first, second)

	worker := id.NewWorkerID()
	for i, want := range []*job.Job{first, second, third} {
		got := claim(t, s, worker, now, 1)
		if len(got) != 1 {
			t.Fatalf("claim %d: got %d jobs, want 1", i, len(got))
		}
		if got[0].ID != want.ID {
			t.Errorf("claim %d: ID = %v, want %v", i, got[0].ID, want.ID)
		}
	}
	if got := claim(t, s, worker, now, 1); len(got) != 0 {
		t.Errorf("expected queue to be drained, got %d jobs", len(got))
	}
}

func testClaimTieBreak(t *testing.T, s store.Store) {
	now := base()
	a := newJob(now.Add(-time.Second))
	time.Sleep(2 * time.Millisecond)
	b := newJob(now.Add(-time.Second))
	enqueue(t, s, b, a)

	got := claim(t, s, id.NewWorkerID(), now, 2)
	if len(got) != 2 {
		t.Fatalf("got %d jobs, want 2", len(got))
	}
	if got[0].ID != a.ID || got[1].ID != b.ID {
		t.Errorf("order = [%v %v], want [%v %v]", got[0].ID, got[1].ID, a.ID, b.ID)
	}
}

func testClaimVisibility(t *testing.T, s store.Store) {
	now := base()
	j := newJob(now)
	j.NextVisibleAt = now.Add(time.Minute)
	enqueue(t, s, j)

	worker := id.NewWorkerID()
	if got := claim(t, s, worker, now, 1); len(got) != 0 {
		t.Fatalf("claimed invisible job")
	}
	got := claim(t, s, worker, now.Add(time.Minute), 1)
	if len(got) != 1 || got[0].ID != j.ID {
		t.Fatalf("job not claimable once visible: %v", got)
	}
}

func testClaimQueues(t *testing.T, s store.Store) {
	enqueue(t, s, newJob(base()))
	got, err := s.ClaimJobs(context.Background(), job.ClaimOpts{
		Queues:   []job.QueueName{"other"},
		WorkerID: id.NewWorkerID(),
		Lease:    time.Second,
		Limit:    5,
		Now:      base(),
	})
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("claimed %d jobs from an unrelated queue", len(got))
	}
}

func testClaimSetsLease(t *testing.T, s store.Store) {
	now := base()
	j := newJob(now)
	enqueue(t, s, j)

	worker := id.NewWorkerID()
	got := claim(t, s, worker, now, 1)
	if len(got) != 1 {
		t.Fatalf("got %d jobs, want 1", len(got))
	}
	c := got[0]
	if c.State != job.StateClaimed {
		t.Errorf("State = %q, want claimed", c.State)
	}
	if c.WorkerID != worker {
		t.Errorf("WorkerID = %v, want %v", c.WorkerID, worker)
	}
	if c.LeaseExpires == nil || !sameInstant(*c.LeaseExpires, now.Add(30*time.Second)) {
		t.Errorf("LeaseExpires = %v, want %v", c.LeaseExpires, now.Add(30*time.Second))
	}
	if c.Attempts != 0 {
		t.Errorf("Attempts = %d, claim must not count as an attempt", c.Attempts)
	}

	stored, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != job.StateClaimed || stored.WorkerID != worker {
		t.Errorf("stored = %s/%v, want claimed/%v", stored.State, stored.WorkerID, worker)
	}
}

func testClaimConcurrent(t *testing.T, s store.Store) {
	const jobs, workers = 30, 6
	now := base()
	for i := range jobs {
		enqueue(t, s, newJob(now.Add(-time.Duration(jobs-i)*time.Millisecond)))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				got, err := s.ClaimJobs(context.Background(), job.ClaimOpts{
					Queues:   []job.QueueName{job.QueueMCQImport},
					WorkerID: worker,
					Lease:    time.Minute,
					Limit:    2,
					Now:      now,
				})
				if err != nil {
					t.Errorf("ClaimJobs: %v", err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				for _, j := range got {
					seen[j.ID.String()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
}

func testResolveOutcomes(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	worker := id.NewWorkerID()

	tests := []struct {
		name  string
		apply func(j *job.Job)
	}{
		{"completed", func(j *job.Job) {
			done := now
			j.State = job.StateCompleted
			j.Attempts = 1
			j.CompletedAt = &done
		}},
		{"retry", func(j *job.Job) {
			j.State = job.StatePending
			j.Attempts = 1
			j.LastError = "transient"
			j.NextVisibleAt = now.Add(4 * time.Second)
		}},
		{"dead_lettered", func(j *job.Job) {
			done := now
			j.State = job.StateDeadLettered
			j.Attempts = 3
			j.LastError = "gave up"
			j.CompletedAt = &done
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enqueue(t, s, newJob(now))
			got := claim(t, s, worker, now, 1)
			if len(got) != 1 {
				t.Fatalf("got %d jobs, want 1", len(got))
			}
			want := got[0]
			tt.apply(want)
			if err := s.ResolveJob(ctx, want); err != nil {
				t.Fatalf("ResolveJob: %v", err)
			}

			stored, err := s.GetJob(ctx, want.ID)
			if err != nil {
				t.Fatalf("GetJob: %v", err)
			}
			if stored.State != want.State {
				t.Errorf("State = %q, want %q", stored.State, want.State)
			}
			if stored.Attempts != want.Attempts {
				t.Errorf("Attempts = %d, want %d", stored.Attempts, want.Attempts)
			}
			if stored.LastError != want.LastError {
				t.Errorf("LastError = %q, want %q", stored.LastError, want.LastError)
			}
			if !sameInstant(stored.NextVisibleAt, want.NextVisibleAt) {
				t.Errorf("NextVisibleAt = %v, want %v", stored.NextVisibleAt, want.NextVisibleAt)
			}
			if want.CompletedAt != nil && stored.CompletedAt == nil {
				t.Error("CompletedAt not persisted")
			}
			if !stored.WorkerID.IsNil() || stored.LeaseExpires != nil {
				t.Error("resolved job still carries a lease")
			}
		})
	}
}

func testResolveStaleWorker(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	enqueue(t, s, newJob(now))

	got := claim(t, s, id.NewWorkerID(), now, 1)
	if len(got) != 1 {
		t.Fatalf("got %d jobs, want 1", len(got))
	}
	stale := got[0]
	stale.WorkerID = id.NewWorkerID()
	stale.State = job.StateCompleted
	if err := s.ResolveJob(ctx, stale); !errors.Is(err, jobq.ErrLeaseExpired) {
		t.Fatalf("err = %v, want ErrLeaseExpired", err)
	}

	pending := newJob(now)
	enqueue(t, s, pending)
	pending.State = job.StateCompleted
	if err := s.ResolveJob(ctx, pending); !errors.Is(err, jobq.ErrLeaseExpired) {
		t.Fatalf("resolving an unclaimed job: err = %v, want ErrLeaseExpired", err)
	}
}

func testRenewLease(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	enqueue(t, s, newJob(now))
	worker := id.NewWorkerID()
	got := claim(t, s, worker, now, 1)
	if len(got) != 1 {
		t.Fatalf("got %d jobs, want 1", len(got))
	}
	j := got[0]

	until := now.Add(5 * time.Minute)
	if err := s.RenewLease(ctx, j.ID, worker, until); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	stored, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.LeaseExpires == nil || !sameInstant(*stored.LeaseExpires, until) {
		t.Errorf("LeaseExpires = %v, want %v", stored.LeaseExpires, until)
	}

	// A renewed lease survives recovery at the old expiry.
	recovered, err := s.RecoverExpiredLeases(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecoverExpiredLeases: %v", err)
	}
	if len(recovered) != 0 {
		t.Errorf("recovered %d jobs with a renewed lease", len(recovered))
	}

	if err := s.RenewLease(ctx, j.ID, id.NewWorkerID(), until); !errors.Is(err, jobq.ErrLeaseExpired) {
		t.Errorf("renew by another worker: err = %v, want ErrLeaseExpired", err)
	}
}

func testRecoverExpiredLeases(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	crashed := newJob(now.Add(-time.Second))
	alive := newJob(now)
	enqueue(t, s, crashed, alive)

	deadWorker := id.NewWorkerID()
	got, err := s.ClaimJobs(ctx, job.ClaimOpts{
		Queues: []job.QueueName{job.QueueMCQImport}, WorkerID: deadWorker,
		Lease: time.Second, Limit: 1, Now: now,
	})
	if err != nil || len(got) != 1 {
		t.Fatalf("ClaimJobs = %v, %v", got, err)
	}
	// Pretend the handler had already run twice before the crash.
	got[0].State = job.StatePending
	got[0].Attempts = 2
	got[0].NextVisibleAt = now
	if err := s.ResolveJob(ctx, got[0]); err != nil {
		t.Fatalf("ResolveJob: %v", err)
	}
	got = claim(t, s, deadWorker, now, 1)
	if len(got) != 1 || got[0].ID != crashed.ID {
		t.Fatalf("reclaim = %v", got)
	}
	if err := s.RenewLease(ctx, crashed.ID, deadWorker, now.Add(time.Second)); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}

	liveWorker := id.NewWorkerID()
	if live := claim(t, s, liveWorker, now, 1); len(live) != 1 || live[0].ID != alive.ID {
		t.Fatalf("claim alive = %v", live)
	}

	recovered, err := s.RecoverExpiredLeases(ctx, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("RecoverExpiredLeases: %v", err)
	}
	if len(recovered) != 1 || recovered[0].ID != crashed.ID {
		t.Fatalf("recovered = %v, want only %v", recovered, crashed.ID)
	}

	stored, err := s.GetJob(ctx, crashed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != job.StatePending {
		t.Errorf("State = %q, want pending", stored.State)
	}
	if stored.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 (recovery must not count an attempt)", stored.Attempts)
	}
	if !stored.WorkerID.IsNil() || stored.LeaseExpires != nil {
		t.Error("recovered job still carries a lease")
	}

	again := claim(t, s, id.NewWorkerID(), now.Add(2*time.Second), 1)
	if len(again) != 1 || again[0].ID != crashed.ID {
		t.Fatalf("recovered job not claimable: %v", again)
	}

	if err := s.ResolveJob(ctx, &job.Job{ID: crashed.ID, WorkerID: deadWorker, State: job.StateCompleted}); !errors.Is(err, jobq.ErrLeaseExpired) {
		t.Errorf("dead worker resolve: err = %v, want ErrLeaseExpired", err)
	}
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	var all []*job.Job
	for i := range 5 {
		j := newJob(now.Add(time.Duration(i) * time.Second))
		all = append(all, j)
	}
	enqueue(t, s, all...)
	if got := claim(t, s, id.NewWorkerID(), now.Add(time.Hour), 2); len(got) != 2 {
		t.Fatalf("claimed %d, want 2", len(got))
	}

	list, err := s.ListJobs(ctx, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 || list[0].ID != all[1].ID || list[1].ID != all[2].ID {
		t.Errorf("page = %v, want [%v %v]", list, all[1].ID, all[2].ID)
	}

	pending, err := s.ListJobs(ctx, job.ListOpts{State: job.StatePending})
	if err != nil {
		t.Fatalf("ListJobs(pending): %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("pending = %d, want 3", len(pending))
	}

	tests := []struct {
		opts job.CountOpts
		want int64
	}{
		{job.CountOpts{}, 5},
		{job.CountOpts{State: job.StateClaimed}, 2},
		{job.CountOpts{State: job.StatePending, Queue: job.QueueMCQImport}, 3},
		{job.CountOpts{Queue: "other"}, 0},
	}
	for _, tt := range tests {
		n, err := s.CountJobs(ctx, tt.opts)
		if err != nil {
			t.Fatalf("CountJobs(%+v): %v", tt.opts, err)
		}
		if n != tt.want {
			t.Errorf("CountJobs(%+v) = %d, want %d", tt.opts, n, tt.want)
		}
	}
}

func testDLQLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	older := &dlq.Entry{
		ID: id.NewDLQID(), JobID: id.NewJobID(), Queue: job.QueueMCQImport,
		Payload: []byte(`{"fileId":"a"}`), Error: "boom", Attempts: 3, MaxAttempts: 3,
		FailedAt: now.Add(-time.Hour), CreatedAt: now.Add(-time.Hour),
	}
	newer := &dlq.Entry{
		ID: id.NewDLQID(), JobID: id.NewJobID(), Queue: job.QueueMCQImport,
		Payload: []byte(`{"fileId":"b"}`), Error: "bad payload", Attempts: 1, MaxAttempts: 3,
		FailedAt: now, CreatedAt: now,
	}
	for _, e := range []*dlq.Entry{newer, older} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
	}

	list, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID {
		t.Fatalf("ListDLQ = %v, want oldest first", list)
	}

	got, err := s.GetDLQ(ctx, newer.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.Error != "bad payload" || got.Attempts != 1 || got.JobID != newer.JobID {
		t.Errorf("GetDLQ = %+v", got)
	}
	if got.Replayed() {
		t.Error("fresh entry reported as replayed")
	}
	if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, jobq.ErrDLQNotFound) {
		t.Errorf("GetDLQ(missing) err = %v, want ErrDLQNotFound", err)
	}

	n, err := s.CountDLQ(ctx, "")
	if err != nil || n != 2 {
		t.Errorf("CountDLQ = %d, %v; want 2", n, err)
	}
	n, err = s.CountDLQ(ctx, "other")
	if err != nil || n != 0 {
		t.Errorf("CountDLQ(other) = %d, %v; want 0", n, err)
	}

	replayJob := id.NewJobID()
	if err := s.ReplayDLQ(ctx, newer.ID, replayJob); err != nil {
		t.Fatalf("ReplayDLQ: %v", err)
	}
	if err := s.ReplayDLQ(ctx, newer.ID, id.NewJobID()); !errors.Is(err, jobq.ErrDLQAlreadyReplayed) {
		t.Errorf("second ReplayDLQ err = %v, want ErrDLQAlreadyReplayed", err)
	}
	got, err = s.GetDLQ(ctx, newer.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if !got.Replayed() || got.ReplayJobID != replayJob {
		t.Errorf("replay not recorded: %+v", got)
	}

	purged, err := s.PurgeDLQ(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := s.GetDLQ(ctx, older.ID); !errors.Is(err, jobq.ErrDLQNotFound) {
		t.Errorf("purged entry still present: %v", err)
	}
}
