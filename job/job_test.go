package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to job.State
		want     bool
	}{
		{job.StatePending, job.StateClaimed, true},
		{job.StatePending, job.StateCompleted, false},
		{job.StatePending, job.StateDeadLettered, false},
		{job.StateClaimed, job.StateCompleted, true},
		{job.StateClaimed, job.StatePending, true},
		{job.StateClaimed, job.StateDeadLettered, true},
		{job.StateClaimed, job.StateFailed, true},
		{job.StateCompleted, job.StatePending, false},
		{job.StateDeadLettered, job.StateClaimed, false},
		{job.StateFailed, job.StatePending, false},
	}
	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStates_AllValid(t *testing.T) {
	for _, s := range job.States() {
		if !s.Valid() {
			t.Errorf("%s.Valid() = false", s)
		}
	}
	if job.State("running").Valid() {
		t.Error("unexpected valid state \"running\"")
	}
}

func TestJob_VisibleAndLease(t *testing.T) {
	now := time.Now().UTC()
	j := &job.Job{State: job.StatePending, NextVisibleAt: now.Add(time.Second)}
	if j.Visible(now) {
		t.Error("job visible before NextVisibleAt")
	}
	if !j.Visible(now.Add(time.Second)) {
		t.Error("job not visible at NextVisibleAt")
	}

	expires := now.Add(-time.Millisecond)
	j.State = job.StateClaimed
	j.LeaseExpires = &expires
	if !j.LeaseExpired(now) {
		t.Error("expected lease to be expired")
	}
	if j.Visible(now.Add(time.Hour)) {
		t.Error("claimed job must not be visible")
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	expires := time.Now()
	j := &job.Job{ID: id.NewJobID(), Payload: []byte(`{"fileId":"f1"}`), LeaseExpires: &expires}
	cp := j.Clone()
	cp.Payload[0] = 'X'
	*cp.LeaseExpires = expires.Add(time.Hour)

	if j.Payload[0] != '{' {
		t.Error("Clone shares payload memory")
	}
	if !j.LeaseExpires.Equal(expires) {
		t.Error("Clone shares lease pointer")
	}
}

func TestCompare_CreatedAtThenID(t *testing.T) {
	t0 := time.Now().UTC()
	a := &job.Job{Entity: jobq.Entity{CreatedAt: t0}, ID: id.NewJobID()}
	time.Sleep(2 * time.Millisecond)
	b := &job.Job{Entity: jobq.Entity{CreatedAt: t0}, ID: id.NewJobID()}
	c := &job.Job{Entity: jobq.Entity{CreatedAt: t0.Add(-time.Second)}, ID: id.NewJobID()}

	if job.Compare(a, b) >= 0 {
		t.Error("equal createdAt should fall back to ID order")
	}
	if job.Compare(c, a) >= 0 {
		t.Error("earlier createdAt should sort first regardless of ID")
	}
}

func TestParseQueueName(t *testing.T) {
	q, err := job.ParseQueueName("mcq_import")
	if err != nil {
		t.Fatalf("ParseQueueName: %v", err)
	}
	if q != job.QueueMCQImport {
		t.Errorf("q = %q, want %q", q, job.QueueMCQImport)
	}

	for _, bad := range []string{"", "MCQ_IMPORT", "default", "pdf_export"} {
		if _, err := job.ParseQueueName(bad); !errors.Is(err, jobq.ErrInvalidQueueName) {
			t.Errorf("ParseQueueName(%q) err = %v, want ErrInvalidQueueName", bad, err)
		}
	}

	if _, err := job.ParseQueueNames([]string{"mcq_import", "bogus"}); err == nil {
		t.Error("ParseQueueNames accepted an unknown name")
	}
}

func TestEncodeDecode(t *testing.T) {
	q, data, err := job.Encode(job.MCQImport{FileID: "f1", Overwrite: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if q != job.QueueMCQImport {
		t.Errorf("queue = %q, want %q", q, job.QueueMCQImport)
	}

	v, err := job.Decode(q, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, ok := v.(job.MCQImport)
	if !ok {
		t.Fatalf("Decode returned %T, want job.MCQImport", v)
	}
	if m.FileID != "f1" || !m.Overwrite {
		t.Errorf("decoded = %+v", m)
	}

	if _, err := job.Decode("bogus", data); !errors.Is(err, jobq.ErrInvalidQueueName) {
		t.Errorf("Decode(bogus) err = %v, want ErrInvalidQueueName", err)
	}
	if _, _, err := job.Encode(nil); !errors.Is(err, jobq.ErrSerialization) {
		t.Errorf("Encode(nil) err = %v, want ErrSerialization", err)
	}
}

func TestOptions_VisibleAt(t *testing.T) {
	now := time.Now().UTC()
	runAt := now.Add(time.Hour)

	o := job.DefaultOptions()
	if got := o.VisibleAt(now); !got.Equal(now) {
		t.Errorf("default VisibleAt = %v, want %v", got, now)
	}

	job.WithDelay(time.Minute)(&o)
	if got := o.VisibleAt(now); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("delayed VisibleAt = %v, want %v", got, now.Add(time.Minute))
	}

	job.WithRunAt(runAt)(&o)
	if got := o.VisibleAt(now); !got.Equal(runAt) {
		t.Errorf("RunAt VisibleAt = %v, want %v", got, runAt)
	}

	job.WithMaxAttempts(0)(&o)
	if o.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1 after coercion", o.MaxAttempts)
	}
}
