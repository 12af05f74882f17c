package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/job"
)

// Metrics returns middleware that records per-attempt metrics on the
// global MeterProvider.
//
// Instruments:
//   - jobq.attempt.duration (Float64Histogram, seconds)
//   - jobq.attempt.count (Int64Counter)
//
// Both carry the attributes queue and outcome ("ok", "error" or "permanent").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"jobq.attempt.duration",
		metric.WithDescription("Duration of a single job attempt"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"jobq.attempt.count",
		metric.WithDescription("Number of job attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		outcome := "ok"
		switch {
		case jobq.IsPermanent(err):
			outcome = "permanent"
		case err != nil:
			outcome = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("queue", j.Queue.String()),
			attribute.String("outcome", outcome),
		)
		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
