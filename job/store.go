package job

import (
	"context"
	"time"

	"github.com/xraph/jobq/id"
)

// ClaimOpts parameterizes a claim.
type ClaimOpts struct {
	// Queues restricts the claim to these queue names. Required.
	Queues []QueueName
	// WorkerID becomes the lease holder of every claimed job.
	WorkerID id.WorkerID
	// Lease is how long the claim stays valid without renewal.
	Lease time.Duration
	// Limit caps the number of jobs claimed. Values below 1 mean 1.
	Limit int
	// Now is the claim instant. Zero means time.Now().
	Now time.Time
}

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue QueueName
	// State filters by job state. Empty means all states.
	State State
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue QueueName
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs.
//
// Every mutation is atomic with respect to concurrent callers. In
// particular two concurrent ClaimJobs calls never return the same job.
type Store interface {
	// EnqueueJob persists a new pending job.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically moves up to opts.Limit visible pending jobs to
	// claimed, leased to opts.WorkerID until now+opts.Lease. Within a
	// queue, jobs are claimed in createdAt order, ties broken by ID.
	// Attempts are not changed.
	ClaimJobs(ctx context.Context, opts ClaimOpts) ([]*Job, error)

	// ResolveJob persists the outcome of a claim: j.State, Attempts,
	// NextVisibleAt, LastError and CompletedAt. It applies only while the
	// stored job is still claimed by j.WorkerID and returns
	// jobq.ErrLeaseExpired otherwise. Resolving to any state other than
	// claimed releases the lease.
	ResolveJob(ctx context.Context, j *Job) error

	// RenewLease extends the lease held by workerID to until. It returns
	// jobq.ErrLeaseExpired if the worker no longer holds the job.
	RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error

	// RecoverExpiredLeases returns every claimed job whose lease expired
	// before now to pending, visible immediately, without touching its
	// attempt count. It returns the recovered jobs.
	RecoverExpiredLeases(ctx context.Context, now time.Time) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs ordered by createdAt then ID.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
