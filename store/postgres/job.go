package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

const jobColumns = `
	id, queue, payload, state, attempts, max_attempts, last_error,
	next_visible_at, worker_id, lease_expires_at, completed_at, timeout_ns,
	created_at, updated_at`

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobq_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		j.ID.String(), string(j.Queue), j.Payload, string(j.State),
		j.Attempts, j.MaxAttempts, j.LastError,
		j.NextVisibleAt, nullableID(j.WorkerID), j.LeaseExpires, j.CompletedAt,
		j.Timeout.Nanoseconds(), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobq.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobq/postgres: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically leases up to opts.Limit visible pending jobs. Rows
// locked by a concurrent claim are skipped rather than waited on.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE jobq_jobs
		SET state = 'claimed', worker_id = $2, lease_expires_at = $3, updated_at = $4
		WHERE id IN (
			SELECT id FROM jobq_jobs
			WHERE state = 'pending'
			  AND queue = ANY($1)
			  AND next_visible_at <= $4
			ORDER BY created_at ASC, id ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		queueStrings(opts.Queues), opts.WorkerID.String(), now.Add(opts.Lease), now, max(opts.Limit, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("jobq/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	slices.SortFunc(jobs, job.Compare)
	return jobs, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (s *Store) ResolveJob(ctx context.Context, j *job.Job) error {
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobq_jobs SET
			state = $3, attempts = $4, next_visible_at = $5, last_error = $6,
			completed_at = COALESCE($7, completed_at),
			worker_id = CASE WHEN $8 THEN NULL ELSE worker_id END,
			lease_expires_at = CASE WHEN $8 THEN NULL ELSE lease_expires_at END,
			updated_at = NOW()
		WHERE id = $1 AND state = 'claimed' AND worker_id = $2`,
		j.ID.String(), j.WorkerID.String(), string(j.State), j.Attempts,
		j.NextVisibleAt, j.LastError, j.CompletedAt, j.State != job.StateClaimed,
	)
	if err != nil {
		return fmt.Errorf("jobq/postgres: resolve job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrLost(ctx, j.ID)
	}
	return nil
}

// RenewLease extends the lease held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobq_jobs SET lease_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'claimed' AND worker_id = $2`,
		jobID.String(), workerID.String(), until,
	)
	if err != nil {
		return fmt.Errorf("jobq/postgres: renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrLost(ctx, jobID)
	}
	return nil
}

// missingOrLost distinguishes a deleted job from a lease held by someone
// else after a conditional update matched no rows.
func (s *Store) missingOrLost(ctx context.Context, jobID id.JobID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobq_jobs WHERE id = $1)`, jobID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("jobq/postgres: check job: %w", err)
	}
	if !exists {
		return jobq.ErrJobNotFound
	}
	return jobq.ErrLeaseExpired
}

// RecoverExpiredLeases returns lapsed claims to pending without touching
// their attempt count.
func (s *Store) RecoverExpiredLeases(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE jobq_jobs SET
			state = 'pending', worker_id = NULL, lease_expires_at = NULL,
			next_visible_at = $1, updated_at = $1
		WHERE state = 'claimed' AND lease_expires_at < $1
		RETURNING `+jobColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("jobq/postgres: recover leases: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobq_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobq/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs matching opts ordered by createdAt then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobq_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, string(opts.Queue))
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobq/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobq_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, string(opts.Queue))
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("jobq/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		queueStr  string
		stateStr  string
		workerStr *string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &queueStr, &j.Payload, &stateStr, &j.Attempts, &j.MaxAttempts, &j.LastError,
		&j.NextVisibleAt, &workerStr, &j.LeaseExpires, &j.CompletedAt, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Queue = job.QueueName(queueStr)
	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobq/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != nil && *workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(*workerStr)
		if workerErr != nil {
			return nil, fmt.Errorf("jobq/postgres: parse worker id %q: %w", *workerStr, workerErr)
		}
		j.WorkerID = parsedWorker
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobq/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobq/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

// nullableID stores the Nil ID as NULL.
func nullableID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}
