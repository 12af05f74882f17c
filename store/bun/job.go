package bunstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return jobq.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobq/bun: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically leases up to opts.Limit visible pending jobs using
// SELECT FOR UPDATE SKIP LOCKED via raw SQL.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	queues := make([]string, len(opts.Queues))
	for i, q := range opts.Queues {
		queues[i] = string(q)
	}

	var models []jobModel
	err := s.db.NewRaw(`
		UPDATE jobq_jobs
		SET state = 'claimed', worker_id = ?1, lease_expires_at = ?2, updated_at = ?3
		WHERE id IN (
			SELECT id FROM jobq_jobs
			WHERE state = 'pending'
			  AND queue = ANY(?0)
			  AND next_visible_at <= ?3
			ORDER BY created_at ASC, id ASC
			LIMIT ?4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		pgdialect.Array(queues), opts.WorkerID.String(), now.Add(opts.Lease), now, max(opts.Limit, 1),
	).Scan(ctx, &models)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("jobq/bun: claim jobs: %w", err)
	}

	jobs, err := fromJobModels(models)
	if err != nil {
		return nil, fmt.Errorf("jobq/bun: claim convert: %w", err)
	}
	slices.SortFunc(jobs, job.Compare)
	return jobs, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (s *Store) ResolveJob(ctx context.Context, j *job.Job) error {
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	q := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("state = ?", string(j.State)).
		Set("attempts = ?", j.Attempts).
		Set("next_visible_at = ?", j.NextVisibleAt).
		Set("last_error = ?", j.LastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", j.ID.String()).
		Where("state = ?", string(job.StateClaimed)).
		Where("worker_id = ?", j.WorkerID.String())
	if j.CompletedAt != nil {
		q = q.Set("completed_at = ?", *j.CompletedAt)
	}
	if j.State != job.StateClaimed {
		q = q.Set("worker_id = NULL").Set("lease_expires_at = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: resolve job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missingOrLost(ctx, j.ID)
	}
	return nil
}

// RenewLease extends the lease held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("lease_expires_at = ?", until).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID.String()).
		Where("state = ?", string(job.StateClaimed)).
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: renew lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.missingOrLost(ctx, jobID)
	}
	return nil
}

func (s *Store) missingOrLost(ctx context.Context, jobID id.JobID) error {
	exists, err := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: check job: %w", err)
	}
	if !exists {
		return jobq.ErrJobNotFound
	}
	return jobq.ErrLeaseExpired
}

// RecoverExpiredLeases returns lapsed claims to pending without touching
// their attempt count.
func (s *Store) RecoverExpiredLeases(ctx context.Context, now time.Time) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewRaw(`
		UPDATE jobq_jobs SET
			state = 'pending', worker_id = NULL, lease_expires_at = NULL,
			next_visible_at = ?0, updated_at = ?0
		WHERE state = 'claimed' AND lease_expires_at < ?0
		RETURNING *`,
		now,
	).Scan(ctx, &models)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("jobq/bun: recover leases: %w", err)
	}
	return fromJobModels(models)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobq/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobs returns jobs matching opts ordered by createdAt then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := filterJobs(s.db.NewSelect().Model(&models), opts.Queue, opts.State).
		Order("created_at ASC", "id ASC")
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("jobq/bun: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := filterJobs(s.db.NewSelect().Model((*jobModel)(nil)), opts.Queue, opts.State).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/bun: count jobs: %w", err)
	}
	return int64(n), nil
}

func paginate(q *bun.SelectQuery, limit, offset int) *bun.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
