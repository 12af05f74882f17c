package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobq/job"
)

// Logging returns middleware that logs every attempt at Debug on start
// and at Info or Warn on finish.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue.String()),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", j.MaxAttempts),
		}
		logger.DebugContext(ctx, "job attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.WarnContext(ctx, "job attempt failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.InfoContext(ctx, "job attempt succeeded", attrs...)
		return nil
	}
}
