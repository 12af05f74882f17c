// Package ext defines the extension system for jobq.
//
// Extensions are notified of job lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    slog.Info("job completed", "job_id", j.ID, "elapsed", elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: job was committed to the store
//   - [JobClaimed]: a worker leased the job
//   - [JobCompleted]: handler finished successfully
//   - [JobRetrying]: handler failed and the job was rescheduled
//   - [JobDeadLettered]: job was moved to the dead-letter queue
//   - [JobFailed]: job failed terminally on a queue without dead-lettering
//   - [JobLeaseRecovered]: an expired lease returned the job to pending
//   - [Shutdown]: the broker is shutting down
//
// A hook error is logged and never affects job processing.
package ext
