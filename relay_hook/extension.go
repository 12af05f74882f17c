package relayhook

import (
	"context"
	"time"

	"github.com/xraph/relay"
	"github.com/xraph/relay/event"

	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobEnqueued       = (*Extension)(nil)
	_ ext.JobClaimed        = (*Extension)(nil)
	_ ext.JobCompleted      = (*Extension)(nil)
	_ ext.JobRetrying       = (*Extension)(nil)
	_ ext.JobDeadLettered   = (*Extension)(nil)
	_ ext.JobFailed         = (*Extension)(nil)
	_ ext.JobLeaseRecovered = (*Extension)(nil)
)

// Extension sends jobq lifecycle events through a Relay instance. Each hook
// emits one event via [relay.Relay.Send].
type Extension struct {
	relay    *relay.Relay
	enabled  map[string]bool // nil = all enabled
	payloads map[string]PayloadFunc
}

// New creates an Extension that sends events through r.
func New(r *relay.Relay, opts ...Option) *Extension {
	h := &Extension{relay: r}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (h *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobEnqueued, newJobPayload(j))
}

// OnJobClaimed implements ext.JobClaimed.
func (h *Extension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobClaimed, &jobClaimedPayload{
		jobPayload: *newJobPayload(j),
		WorkerID:   j.WorkerID.String(),
	})
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, &jobCompletedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextVisibleAt time.Time) error {
	return h.send(ctx, EventJobRetrying, &jobRetryingPayload{
		jobPayload:    *newJobPayload(j),
		Attempt:       attempt,
		NextVisibleAt: nextVisibleAt.UTC().Format(time.RFC3339),
	})
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (h *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, jobErr error) error {
	return h.send(ctx, EventJobDeadLettered, &jobErrorPayload{
		jobPayload: *newJobPayload(j),
		Error:      errString(jobErr),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return h.send(ctx, EventJobFailed, &jobErrorPayload{
		jobPayload: *newJobPayload(j),
		Error:      errString(jobErr),
	})
}

// OnJobLeaseRecovered implements ext.JobLeaseRecovered.
func (h *Extension) OnJobLeaseRecovered(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobLeaseRecovered, newJobPayload(j))
}

// send emits an event through Relay if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	return h.relay.Send(ctx, &event.Event{
		Type: eventType,
		Data: data,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type jobPayload struct {
	JobID       string `json:"job_id"`
	Queue       string `json:"queue"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:       j.ID.String(),
		Queue:       j.Queue.String(),
		State:       string(j.State),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
	}
}

type jobClaimedPayload struct {
	jobPayload
	WorkerID string `json:"worker_id"`
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobRetryingPayload struct {
	jobPayload
	Attempt       int    `json:"attempt"`
	NextVisibleAt string `json:"next_visible_at"`
}

type jobErrorPayload struct {
	jobPayload
	Error string `json:"error"`
}
