package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	if _, err := s.sdb.NewInsert(toJobModel(j)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return jobq.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobq/sqlite: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically leases up to opts.Limit visible pending jobs. SQLite
// has no SKIP LOCKED; a single UPDATE over a subquery runs under the
// database write lock, so concurrent claimers never share a row.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	if len(opts.Queues) == 0 {
		return nil, nil
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	placeholders := make([]string, len(opts.Queues))
	args := make([]any, 0, len(opts.Queues)+5)
	args = append(args, opts.WorkerID.String(), toNanos(now.Add(opts.Lease)), toNanos(now), toNanos(now))
	for i, q := range opts.Queues {
		placeholders[i] = "?"
		args = append(args, q.String())
	}
	args = append(args, max(opts.Limit, 1))

	query := fmt.Sprintf(`
		UPDATE jobq_jobs
		SET state = 'claimed', worker_id = ?, lease_expires_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM jobq_jobs
			WHERE state = 'pending'
			  AND next_visible_at <= ?
			  AND queue IN (%s)
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)
		RETURNING *`,
		strings.Join(placeholders, ","),
	)

	var models []jobModel
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobq/sqlite: claim jobs: %w", err)
	}

	jobs, err := fromJobModels(models)
	if err != nil {
		return nil, err
	}
	// RETURNING order is unspecified.
	slices.SortFunc(jobs, job.Compare)
	return jobs, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (s *Store) ResolveJob(ctx context.Context, j *job.Job) error {
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	q := s.sdb.NewUpdate((*jobModel)(nil)).
		Set("state = ?", string(j.State)).
		Set("attempts = ?", j.Attempts).
		Set("next_visible_at = ?", toNanos(j.NextVisibleAt)).
		Set("last_error = ?", j.LastError).
		Set("updated_at = ?", toNanos(time.Now().UTC()))
	if j.CompletedAt != nil {
		q = q.Set("completed_at = ?", toNanos(*j.CompletedAt))
	}
	if j.State != job.StateClaimed {
		q = q.Set("worker_id = ''").Set("lease_expires_at = NULL")
	}

	res, err := q.
		Where("id = ?", j.ID.String()).
		Where("state = 'claimed'").
		Where("worker_id = ?", j.WorkerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/sqlite: resolve job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return s.checkOwned(ctx, rows, j.ID)
}

// RenewLease extends the lease held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	res, err := s.sdb.NewUpdate((*jobModel)(nil)).
		Set("lease_expires_at = ?", toNanos(until)).
		Set("updated_at = ?", toNanos(time.Now().UTC())).
		Where("id = ?", jobID.String()).
		Where("state = 'claimed'").
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/sqlite: renew lease: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return s.checkOwned(ctx, rows, jobID)
}

// checkOwned maps a conditional update that matched nothing to
// ErrJobNotFound or ErrLeaseExpired.
func (s *Store) checkOwned(ctx context.Context, rows int64, jobID id.JobID) error {
	if rows > 0 {
		return nil
	}
	n, err := s.sdb.NewSelect((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("jobq/sqlite: check job: %w", err)
	}
	if n == 0 {
		return jobq.ErrJobNotFound
	}
	return jobq.ErrLeaseExpired
}

// RecoverExpiredLeases returns lapsed claims to pending without touching
// their attempt count.
func (s *Store) RecoverExpiredLeases(ctx context.Context, now time.Time) ([]*job.Job, error) {
	ns := toNanos(now)
	var models []jobModel
	err := s.sdb.NewRaw(`
		UPDATE jobq_jobs
		SET state = 'pending', worker_id = '', lease_expires_at = NULL,
		    next_visible_at = ?, updated_at = ?
		WHERE state = 'claimed' AND lease_expires_at < ?
		RETURNING *`,
		ns, ns, ns,
	).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("jobq/sqlite: recover leases: %w", err)
	}
	return fromJobModels(models)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobq/sqlite: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobs returns jobs matching opts ordered by createdAt then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.sdb.NewSelect(&models)
	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue.String())
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	// SQLite only accepts OFFSET after LIMIT; -1 means unbounded.
	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		q = q.Limit(-1)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("jobq/sqlite: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.sdb.NewSelect((*jobModel)(nil))
	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue.String())
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/sqlite: count jobs: %w", err)
	}
	return count, nil
}
