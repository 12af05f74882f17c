// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps one handler attempt. Middleware are composed with
// [Chain]; the first middleware in the list is the outermost wrapper.
//
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	    middleware.Logging(logger),
//	    middleware.Timeout(logger),
//	)
//
// # Built-in Middleware
//
//   - [Recover]: converts handler panics into transient errors
//   - [Tracing]: wraps each attempt in an OpenTelemetry span
//   - [Metrics]: records attempt duration and outcome counters
//   - [Logging]: logs attempt start and outcome
//   - [Timeout]: bounds an attempt by the job's Timeout
//
// # Writing Custom Middleware
//
//	func Audit() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        err := next(ctx)
//	        // record outcome
//	        return err
//	    }
//	}
package middleware
