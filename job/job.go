package job

import (
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed. It is claimable
	// once NextVisibleAt has passed.
	StatePending State = "pending"
	// StateClaimed means exactly one worker holds a lease on the job.
	StateClaimed State = "claimed"
	// StateCompleted means the handler finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed terminally on a queue that does not
	// dead-letter.
	StateFailed State = "failed"
	// StateDeadLettered means the job exhausted its attempts or failed
	// permanently and was retained in the dead-letter queue.
	StateDeadLettered State = "dead_lettered"
)

// States lists every state in lifecycle order.
func States() []State {
	return []State{StatePending, StateClaimed, StateCompleted, StateFailed, StateDeadLettered}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateClaimed, StateCompleted, StateFailed, StateDeadLettered:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateDeadLettered
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateClaimed
	case StateClaimed:
		return to == StatePending || to.Terminal()
	}
	return false
}

// Job represents one unit of work and its lifecycle state.
type Job struct {
	jobq.Entity

	ID            id.JobID      `json:"id"`
	Queue         QueueName     `json:"queue"`
	Payload       []byte        `json:"payload"`
	State         State         `json:"state"`
	Attempts      int           `json:"attempts"`
	MaxAttempts   int           `json:"max_attempts"`
	LastError     string        `json:"last_error,omitempty"`
	NextVisibleAt time.Time     `json:"next_visible_at"`
	WorkerID      id.WorkerID   `json:"worker_id,omitempty"`
	LeaseExpires  *time.Time    `json:"lease_expires_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
}

// Clone returns a deep copy of j. Stores hand out clones so callers never
// share memory with the authoritative record.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	if j.LeaseExpires != nil {
		t := *j.LeaseExpires
		cp.LeaseExpires = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Visible reports whether a pending job may be claimed at now.
func (j *Job) Visible(now time.Time) bool {
	return j.State == StatePending && !j.NextVisibleAt.After(now)
}

// LeaseExpired reports whether a claimed job's lease has lapsed at now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.State == StateClaimed && j.LeaseExpires != nil && j.LeaseExpires.Before(now)
}

// Compare orders jobs for claiming: createdAt ascending, then ID. It is
// suitable for slices.SortFunc.
func Compare(a, b *Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}
