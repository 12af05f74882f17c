package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// Timestamps are Unix nanoseconds so that range predicates and ordering
// compare integers rather than formatted text.

type jobModel struct {
	grove.BaseModel `grove:"table:jobq_jobs"`

	ID             string `grove:"id,pk"`
	Queue          string `grove:"queue,notnull"`
	Payload        []byte `grove:"payload,notnull"`
	State          string `grove:"state,notnull,default:'pending'"`
	Attempts       int    `grove:"attempts,notnull,default:0"`
	MaxAttempts    int    `grove:"max_attempts,notnull,default:3"`
	LastError      string `grove:"last_error,notnull"`
	NextVisibleAt  int64  `grove:"next_visible_at,notnull"`
	WorkerID       string `grove:"worker_id,notnull"`
	LeaseExpiresAt *int64 `grove:"lease_expires_at"`
	CompletedAt    *int64 `grove:"completed_at"`
	TimeoutNs      int64  `grove:"timeout_ns,notnull,default:0"`
	CreatedAt      int64  `grove:"created_at,notnull"`
	UpdatedAt      int64  `grove:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Queue:          j.Queue.String(),
		Payload:        j.Payload,
		State:          string(j.State),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		NextVisibleAt:  toNanos(j.NextVisibleAt),
		WorkerID:       j.WorkerID.String(),
		LeaseExpiresAt: nanosPtr(j.LeaseExpires),
		CompletedAt:    nanosPtr(j.CompletedAt),
		TimeoutNs:      j.Timeout.Nanoseconds(),
		CreatedAt:      toNanos(j.CreatedAt),
		UpdatedAt:      toNanos(j.UpdatedAt),
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobq/sqlite: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: jobq.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:            parsedID,
		Queue:         job.QueueName(m.Queue),
		Payload:       m.Payload,
		State:         job.State(m.State),
		Attempts:      m.Attempts,
		MaxAttempts:   m.MaxAttempts,
		LastError:     m.LastError,
		NextVisibleAt: fromNanos(m.NextVisibleAt),
		LeaseExpires:  timePtr(m.LeaseExpiresAt),
		CompletedAt:   timePtr(m.CompletedAt),
		Timeout:       time.Duration(m.TimeoutNs),
	}

	if m.WorkerID != "" {
		workerID, err := id.ParseWorkerID(m.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("jobq/sqlite: parse worker id %q: %w", m.WorkerID, err)
		}
		j.WorkerID = workerID
	}
	return j, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

type dlqEntryModel struct {
	grove.BaseModel `grove:"table:jobq_dlq"`

	ID          string `grove:"id,pk"`
	JobID       string `grove:"job_id,notnull"`
	Queue       string `grove:"queue,notnull"`
	Payload     []byte `grove:"payload,notnull"`
	Error       string `grove:"error,notnull"`
	Attempts    int    `grove:"attempts,notnull,default:0"`
	MaxAttempts int    `grove:"max_attempts,notnull,default:0"`
	FailedAt    int64  `grove:"failed_at,notnull"`
	ReplayedAt  *int64 `grove:"replayed_at"`
	ReplayJobID string `grove:"replay_job_id,notnull"`
	CreatedAt   int64  `grove:"created_at,notnull"`
}

func toDLQModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:          e.ID.String(),
		JobID:       e.JobID.String(),
		Queue:       e.Queue.String(),
		Payload:     e.Payload,
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    toNanos(e.FailedAt),
		ReplayedAt:  nanosPtr(e.ReplayedAt),
		ReplayJobID: e.ReplayJobID.String(),
		CreatedAt:   toNanos(e.CreatedAt),
	}
}

func fromDLQModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobq/sqlite: parse dlq id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("jobq/sqlite: parse job id %q: %w", m.JobID, err)
	}

	e := &dlq.Entry{
		ID:          entryID,
		JobID:       jobID,
		Queue:       job.QueueName(m.Queue),
		Payload:     m.Payload,
		Error:       m.Error,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		FailedAt:    fromNanos(m.FailedAt),
		ReplayedAt:  timePtr(m.ReplayedAt),
		CreatedAt:   fromNanos(m.CreatedAt),
	}
	if m.ReplayJobID != "" {
		if e.ReplayJobID, err = id.ParseJobID(m.ReplayJobID); err != nil {
			return nil, fmt.Errorf("jobq/sqlite: parse replay job id %q: %w", m.ReplayJobID, err)
		}
	}
	return e, nil
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func timePtr(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}
