package sqlite

import (
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

func TestJobModelKeepsNanosecondsAndNulls(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	lease := created.Add(30 * time.Second)
	j := &job.Job{
		Entity:        jobq.Entity{CreatedAt: created, UpdatedAt: created},
		ID:            id.NewJobID(),
		Queue:         job.QueueMCQImport,
		Payload:       []byte(`{"fileId":"f1"}`),
		State:         job.StateClaimed,
		Attempts:      1,
		MaxAttempts:   3,
		NextVisibleAt: created,
		WorkerID:      id.NewWorkerID(),
		LeaseExpires:  &lease,
		Timeout:       5 * time.Minute,
	}

	m := toJobModel(j)
	if m.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want NULL", *m.CompletedAt)
	}
	if m.NextVisibleAt != created.UnixNano() {
		t.Errorf("NextVisibleAt = %d, want %d", m.NextVisibleAt, created.UnixNano())
	}

	got, err := fromJobModel(m)
	if err != nil {
		t.Fatalf("fromJobModel: %v", err)
	}
	if !got.CreatedAt.Equal(created) || !got.NextVisibleAt.Equal(created) {
		t.Errorf("times = %v / %v, want %v", got.CreatedAt, got.NextVisibleAt, created)
	}
	if got.LeaseExpires == nil || !got.LeaseExpires.Equal(lease) {
		t.Errorf("LeaseExpires = %v, want %v", got.LeaseExpires, lease)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
	if got.WorkerID != j.WorkerID || got.Timeout != j.Timeout {
		t.Errorf("WorkerID/Timeout = %v/%v, want %v/%v", got.WorkerID, got.Timeout, j.WorkerID, j.Timeout)
	}
}

func TestJobModelWithoutWorker(t *testing.T) {
	m := toJobModel(&job.Job{ID: id.NewJobID(), State: job.StatePending})
	if m.WorkerID != "" {
		t.Errorf("WorkerID = %q, want empty", m.WorkerID)
	}
	got, err := fromJobModel(m)
	if err != nil {
		t.Fatalf("fromJobModel: %v", err)
	}
	if !got.WorkerID.IsNil() {
		t.Errorf("WorkerID = %v, want nil ID", got.WorkerID)
	}
}

func TestDLQModelReplayFields(t *testing.T) {
	e := &dlq.Entry{
		ID:       id.NewDLQID(),
		JobID:    id.NewJobID(),
		Queue:    job.QueueMCQImport,
		FailedAt: time.Now().UTC(),
	}
	m := toDLQModel(e)
	if m.ReplayedAt != nil || m.ReplayJobID != "" {
		t.Fatalf("unreplayed entry stored replay fields %v / %q", m.ReplayedAt, m.ReplayJobID)
	}

	got, err := fromDLQModel(m)
	if err != nil {
		t.Fatalf("fromDLQModel: %v", err)
	}
	if got.Replayed() || !got.ReplayJobID.IsNil() {
		t.Errorf("entry reads back as replayed: %+v", got)
	}

	if _, err := fromDLQModel(&dlqEntryModel{ID: "nope", JobID: e.JobID.String()}); err == nil {
		t.Error("expected error for malformed id")
	}
}
