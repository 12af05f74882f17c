package job

import "time"

// Options configures a single enqueued job.
type Options struct {
	// MaxAttempts is the ceiling on handler invocations before the job is
	// dead-lettered. Zero means the engine default.
	MaxAttempts int

	// Delay postpones the first claim. Ignored when RunAt is set.
	Delay time.Duration

	// RunAt schedules the first claim at an absolute time.
	RunAt time.Time

	// Timeout is the maximum duration a single handler invocation may run.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout: 5 * time.Minute,
	}
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// WithMaxAttempts sets the attempt ceiling. Values below 1 are raised to 1.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n < 1 {
			n = 1
		}
		o.MaxAttempts = n
	}
}

// WithDelay makes the job invisible to workers for d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) {
		o.Delay = d
	}
}

// WithRunAt makes the job invisible to workers until t.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithTimeout sets the per-invocation handler deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// VisibleAt resolves when a job enqueued at now first becomes claimable.
func (o Options) VisibleAt(now time.Time) time.Time {
	if !o.RunAt.IsZero() {
		return o.RunAt.UTC()
	}
	if o.Delay > 0 {
		return now.Add(o.Delay)
	}
	return now
}
