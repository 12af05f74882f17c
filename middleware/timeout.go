package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/jobq/job"
)

// Timeout returns middleware that bounds one attempt by the job's Timeout.
// A zero Timeout leaves the context untouched. When the deadline fires the
// handler's context is cancelled; if the handler then returns an error the
// attempt is reported as timed out.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(ctx)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			logger.WarnContext(ctx, "job attempt timed out",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", j.Timeout),
			)
			return fmt.Errorf("attempt exceeded %s: %w", j.Timeout, err)
		}
		return err
	}
}
