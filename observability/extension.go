package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobq/ext"
	"github.com/xraph/jobq/job"
)

// meterName is the instrumentation scope for lifecycle counters.
const meterName = "github.com/xraph/jobq/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.JobEnqueued       = (*MetricsExtension)(nil)
	_ ext.JobCompleted      = (*MetricsExtension)(nil)
	_ ext.JobRetrying       = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered   = (*MetricsExtension)(nil)
	_ ext.JobFailed         = (*MetricsExtension)(nil)
	_ ext.JobLeaseRecovered = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters through the OpenTelemetry
// metric API. Every counter carries a "queue" attribute.
type MetricsExtension struct {
	enqueued       metric.Int64Counter
	completed      metric.Int64Counter
	retried        metric.Int64Counter
	deadLettered   metric.Int64Counter
	failed         metric.Int64Counter
	leaseRecovered metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given meter.
// On instrument errors the OTel API hands back noop instruments, so the
// extension degrades to a no-op rather than failing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		enqueued:       counter("jobq.jobs.enqueued", "Jobs committed to the store"),
		completed:      counter("jobq.jobs.completed", "Jobs whose handler succeeded"),
		retried:        counter("jobq.jobs.retried", "Failed attempts rescheduled with backoff"),
		deadLettered:   counter("jobq.jobs.dead_lettered", "Jobs moved to the dead-letter queue"),
		failed:         counter("jobq.jobs.failed", "Jobs failed terminally without dead-lettering"),
		leaseRecovered: counter("jobq.jobs.lease_recovered", "Jobs returned to pending after a lease expired"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func queueAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("queue", j.Queue.String()))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.enqueued.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, _ error) error {
	m.deadLettered.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, queueAttr(j))
	return nil
}

// OnJobLeaseRecovered implements ext.JobLeaseRecovered.
func (m *MetricsExtension) OnJobLeaseRecovered(ctx context.Context, j *job.Job) error {
	m.leaseRecovered.Add(ctx, 1, queueAttr(j))
	return nil
}
