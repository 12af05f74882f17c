// Package queue provides per-queue admission control.
//
// A [Config] sets a concurrency cap, a token-bucket rate limit
// (golang.org/x/time/rate) and whether terminal failures are
// dead-lettered:
//
//	queue.Config{
//	    Name:           job.QueueMCQImport,
//	    MaxConcurrency: 4,
//	    RateLimit:      10,
//	    RateBurst:      20,
//	}
//
// The worker pool asks the [Manager] for a slot after claiming a job. A
// refused job goes back to pending without consuming an attempt.
//
//	if m.Acquire(j.Queue) {
//	    defer m.Release(j.Queue)
//	    // run the job
//	}
//
// Queues without a Config have no limits beyond the pool concurrency.
package queue
