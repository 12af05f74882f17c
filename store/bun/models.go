package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:jobq_jobs"`

	ID             string     `bun:"id,pk"`
	Queue          string     `bun:"queue,notnull"`
	Payload        []byte     `bun:"payload,notnull,type:bytea"`
	State          string     `bun:"state,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	LastError      string     `bun:"last_error,notnull"`
	NextVisibleAt  time.Time  `bun:"next_visible_at,notnull"`
	WorkerID       string     `bun:"worker_id,nullzero"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	CompletedAt    *time.Time `bun:"completed_at"`
	TimeoutNs      int64      `bun:"timeout_ns,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Queue:          string(j.Queue),
		Payload:        j.Payload,
		State:          string(j.State),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		NextVisibleAt:  j.NextVisibleAt,
		WorkerID:       j.WorkerID.String(),
		LeaseExpiresAt: j.LeaseExpires,
		CompletedAt:    j.CompletedAt,
		TimeoutNs:      j.Timeout.Nanoseconds(),
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: jobq.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            jobID,
		Queue:         job.QueueName(m.Queue),
		Payload:       m.Payload,
		State:         job.State(m.State),
		Attempts:      m.Attempts,
		MaxAttempts:   m.MaxAttempts,
		LastError:     m.LastError,
		NextVisibleAt: m.NextVisibleAt,
		LeaseExpires:  m.LeaseExpiresAt,
		CompletedAt:   m.CompletedAt,
		Timeout:       time.Duration(m.TimeoutNs),
	}

	if m.WorkerID != "" {
		workerID, err := id.ParseWorkerID(m.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("parse worker id %q: %w", m.WorkerID, err)
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

// ── DLQ model ─────────────────────────────────────────────────────

type dlqModel struct {
	bun.BaseModel `bun:"table:jobq_dlq"`

	ID          string     `bun:"id,pk"`
	JobID       string     `bun:"job_id,notnull"`
	Queue       string     `bun:"queue,notnull"`
	Payload     []byte     `bun:"payload,notnull,type:bytea"`
	Error       string     `bun:"error,notnull"`
	Attempts    int        `bun:"attempts,notnull"`
	MaxAttempts int        `bun:"max_attempts,notnull"`
	FailedAt    time.Time  `bun:"failed_at,notnull"`
	ReplayedAt  *time.Time `bun:"replayed_at"`
	ReplayJobID string     `bun:"replay_job_id,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
}

func toDLQModel(e *dlq.Entry) *dlqModel {
	return &dlqModel{
		ID:          e.ID.String(),
		JobID:       e.JobID.String(),
		Queue:       string(e.Queue),
		Payload:     e.Payload,
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    e.FailedAt,
		ReplayedAt:  e.ReplayedAt,
		ReplayJobID: e.ReplayJobID.String(),
		CreatedAt:   e.CreatedAt,
	}
}

func fromDLQModel(m *dlqModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse dlq id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.JobID, err)
	}

	e := &dlq.Entry{
		ID:          entryID,
		JobID:       jobID,
		Queue:       job.QueueName(m.Queue),
		Payload:     m.Payload,
		Error:       m.Error,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		FailedAt:    m.FailedAt,
		ReplayedAt:  m.ReplayedAt,
		CreatedAt:   m.CreatedAt,
	}
	if m.ReplayJobID != "" {
		replayID, err := id.ParseJobID(m.ReplayJobID)
		if err != nil {
			return nil, fmt.Errorf("parse replay job id %q: %w", m.ReplayJobID, err)
		}
		e.ReplayJobID = replayID
	}
	return e, nil
}
