package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobq/job"
)

// Recover returns middleware that converts a handler panic into a
// transient error so the attempt is retried like any other failure.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "job handler panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("queue", j.Queue.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in %s handler: %v", j.Queue, r)
			}
		}()
		return next(ctx)
	}
}
