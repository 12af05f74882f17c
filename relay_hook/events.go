package relayhook

import (
	"context"
	"fmt"

	"github.com/xraph/relay"
	"github.com/xraph/relay/catalog"
)

// Event types, one per ext lifecycle hook. Each is used as event.Event.Type.
const (
	EventJobEnqueued       = "jobq.job.enqueued"
	EventJobClaimed        = "jobq.job.claimed"
	EventJobCompleted      = "jobq.job.completed"
	EventJobRetrying       = "jobq.job.retrying"
	EventJobDeadLettered   = "jobq.job.dead_lettered"
	EventJobFailed         = "jobq.job.failed"
	EventJobLeaseRecovered = "jobq.job.lease_recovered"
)

const definitionVersion = "2026-01-01"

// AllDefinitions returns webhook definitions for every jobq event type.
func AllDefinitions() []catalog.WebhookDefinition {
	return []catalog.WebhookDefinition{
		{
			Name:        EventJobEnqueued,
			Description: "Fired when a job is accepted into a queue.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobClaimed,
			Description: "Fired when a worker leases a job.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobCompleted,
			Description: "Fired when a handler succeeds and the job is completed.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobRetrying,
			Description: "Fired when a failed attempt is rescheduled with backoff.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobDeadLettered,
			Description: "Fired when a job exhausts its attempts and moves to the dead letter queue.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobFailed,
			Description: "Fired when a job fails terminally outside the dead letter path.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
		{
			Name:        EventJobLeaseRecovered,
			Description: "Fired when an expired lease is reclaimed and the job returns to pending.",
			Group:       "jobs",
			Version:     definitionVersion,
		},
	}
}

// RegisterAll registers every jobq event type in the Relay catalog. Call it
// once at startup before any event is sent.
func RegisterAll(ctx context.Context, r *relay.Relay) error {
	for _, def := range AllDefinitions() {
		if _, err := r.RegisterEventType(ctx, def); err != nil {
			return fmt.Errorf("relayhook: register %s: %w", def.Name, err)
		}
	}
	return nil
}
