package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID             string     `bson:"_id"`
	Queue          string     `bson:"queue"`
	Payload        []byte     `bson:"payload"`
	State          string     `bson:"state"`
	Attempts       int        `bson:"attempts"`
	MaxAttempts    int        `bson:"max_attempts"`
	LastError      string     `bson:"last_error"`
	NextVisibleAt  time.Time  `bson:"next_visible_at"`
	WorkerID       string     `bson:"worker_id"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty"`
	Timeout        int64      `bson:"timeout"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
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
		Timeout:        j.Timeout.Nanoseconds(),
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobq/mongo: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: jobq.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:            parsedID,
		Queue:         job.QueueName(m.Queue),
		Payload:       m.Payload,
		State:         job.State(m.State),
		Attempts:      m.Attempts,
		MaxAttempts:   m.MaxAttempts,
		LastError:     m.LastError,
		NextVisibleAt: m.NextVisibleAt.UTC(),
		LeaseExpires:  utcPtr(m.LeaseExpiresAt),
		CompletedAt:   utcPtr(m.CompletedAt),
		Timeout:       time.Duration(m.Timeout),
	}

	if m.WorkerID != "" {
		workerID, err := id.ParseWorkerID(m.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("jobq/mongo: parse worker id %q: %w", m.WorkerID, err)
		}
		j.WorkerID = workerID
	}
	return j, nil
}

// ── DLQ model ─────────────────────────────────────────────────────

type dlqModel struct {
	ID          string     `bson:"_id"`
	JobID       string     `bson:"job_id"`
	Queue       string     `bson:"queue"`
	Payload     []byte     `bson:"payload"`
	Error       string     `bson:"error"`
	Attempts    int        `bson:"attempts"`
	MaxAttempts int        `bson:"max_attempts"`
	FailedAt    time.Time  `bson:"failed_at"`
	ReplayedAt  *time.Time `bson:"replayed_at"`
	ReplayJobID string     `bson:"replay_job_id"`
	CreatedAt   time.Time  `bson:"created_at"`
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
		return nil, fmt.Errorf("jobq/mongo: parse dlq id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("jobq/mongo: parse job id %q: %w", m.JobID, err)
	}

	e := &dlq.Entry{
		ID:          entryID,
		JobID:       jobID,
		Queue:       job.QueueName(m.Queue),
		Payload:     m.Payload,
		Error:       m.Error,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		FailedAt:    m.FailedAt.UTC(),
		ReplayedAt:  utcPtr(m.ReplayedAt),
		CreatedAt:   m.CreatedAt.UTC(),
	}
	if m.ReplayJobID != "" {
		if e.ReplayJobID, err = id.ParseJobID(m.ReplayJobID); err != nil {
			return nil, fmt.Errorf("jobq/mongo: parse replay job id %q: %w", m.ReplayJobID, err)
		}
	}
	return e, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
