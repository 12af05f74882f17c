package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobq/job"
)

// instrumentationName is the scope name for jobq spans and instruments.
const instrumentationName = "github.com/xraph/jobq"

// Tracing returns middleware that wraps each attempt in a span from the
// global TracerProvider. With no provider configured the noop tracer is
// used.
//
// Span attributes: jobq.job.id, jobq.queue, jobq.attempt, jobq.max_attempts.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobq.job.execute",
			trace.WithAttributes(
				attribute.String("jobq.job.id", j.ID.String()),
				attribute.String("jobq.queue", j.Queue.String()),
				attribute.Int("jobq.attempt", j.Attempts),
				attribute.Int("jobq.max_attempts", j.MaxAttempts),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
