package dlq

import (
	"time"

	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// Entry is a dead-lettered job retained for inspection or replay.
type Entry struct {
	ID          id.DLQID      `json:"id"`
	JobID       id.JobID      `json:"job_id"`
	Queue       job.QueueName `json:"queue"`
	Payload     []byte        `json:"payload"`
	Error       string        `json:"error"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	FailedAt    time.Time     `json:"failed_at"`
	ReplayedAt  *time.Time    `json:"replayed_at,omitempty"`
	ReplayJobID id.JobID      `json:"replay_job_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Replayed reports whether the entry has already been replayed.
func (e *Entry) Replayed() bool { return e.ReplayedAt != nil }
