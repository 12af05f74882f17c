package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// EnqueueJob stores the job as a Hash and indexes it in its queue.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	q := string(j.Queue)

	args := []any{
		jID,
		j.CreatedAt.UnixMilli(),
		j.NextVisibleAt.UnixMilli(),
		time.Now().UnixMilli(),
	}
	args = append(args, jobToArgs(j)...)

	ok, err := enqueueScript.Run(ctx, s.client,
		[]string{jobKey(jID), jobIDsKey, readyKey(q), delayedKey(q)},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("jobq/redis: enqueue job: %w", err)
	}
	if ok == 0 {
		return jobq.ErrJobAlreadyExists
	}
	return nil
}

// ClaimJobs atomically leases up to opts.Limit visible pending jobs.
func (s *Store) ClaimJobs(ctx context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	if len(opts.Queues) == 0 {
		return nil, nil
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	until := now.Add(opts.Lease)

	keys := []string{leasesKey}
	for _, q := range opts.Queues {
		keys = append(keys, readyKey(string(q)), delayedKey(string(q)))
	}

	ids, err := claimScript.Run(ctx, s.client, keys,
		now.UnixMilli(), until.UnixMilli(), opts.WorkerID.String(), max(opts.Limit, 1),
		formatTime(until), formatTime(now), keyPrefix+"job:",
	).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("jobq/redis: claim jobs: %w", err)
	}

	jobs, err := s.getJobs(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, job.Compare)
	return jobs, nil
}

// ResolveJob persists a claim outcome if the caller still holds the lease.
func (s *Store) ResolveJob(ctx context.Context, j *job.Job) error {
	if !job.CanTransition(job.StateClaimed, j.State) {
		return jobq.ErrInvalidState
	}

	jID := j.ID.String()
	q := string(j.Queue)
	if q == "" {
		stored, err := s.client.HGet(ctx, jobKey(jID), "queue").Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return jobq.ErrJobNotFound
			}
			return fmt.Errorf("jobq/redis: resolve job queue: %w", err)
		}
		q = stored
	}

	completed := ""
	if j.CompletedAt != nil {
		completed = formatTime(*j.CompletedAt)
	}
	now := time.Now().UTC()

	code, err := resolveScript.Run(ctx, s.client,
		[]string{jobKey(jID), leasesKey, readyKey(q), delayedKey(q)},
		jID, j.WorkerID.String(), string(j.State), j.Attempts,
		formatTime(j.NextVisibleAt), j.NextVisibleAt.UnixMilli(),
		j.LastError, completed, formatTime(now), now.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("jobq/redis: resolve job: %w", err)
	}
	return ownershipError(code)
}

// RenewLease extends the lease held by workerID.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, until time.Time) error {
	jID := jobID.String()
	code, err := renewScript.Run(ctx, s.client,
		[]string{jobKey(jID), leasesKey},
		jID, workerID.String(), formatTime(until), until.UnixMilli(), formatTime(time.Now().UTC()),
	).Int()
	if err != nil {
		return fmt.Errorf("jobq/redis: renew lease: %w", err)
	}
	return ownershipError(code)
}

func ownershipError(code int) error {
	switch code {
	case 1:
		return nil
	case -1:
		return jobq.ErrJobNotFound
	}
	return jobq.ErrLeaseExpired
}

// RecoverExpiredLeases returns lapsed claims to pending without touching
// their attempt count.
func (s *Store) RecoverExpiredLeases(ctx context.Context, now time.Time) ([]*job.Job, error) {
	ids, err := recoverScript.Run(ctx, s.client,
		[]string{leasesKey},
		now.UnixMilli(), formatTime(now), keyPrefix+"job:", keyPrefix+"ready:",
	).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("jobq/redis: recover leases: %w", err)
	}
	return s.getJobs(ctx, ids)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobq.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListJobs returns jobs matching opts ordered by createdAt then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.scanJobs(ctx, opts.Queue, opts.State)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	if opts.Queue == "" && opts.State == "" {
		n, err := s.client.ZCard(ctx, jobIDsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("jobq/redis: count jobs: %w", err)
		}
		return n, nil
	}
	all, err := s.scanJobs(ctx, opts.Queue, opts.State)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// scanJobs loads every job in listing order and filters it client side.
func (s *Store) scanJobs(ctx context.Context, queue job.QueueName, state job.State) ([]*job.Job, error) {
	ids, err := s.client.ZRange(ctx, jobIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: list job ids: %w", err)
	}
	jobs, err := s.getJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := jobs[:0]
	for _, j := range jobs {
		if queue != "" && j.Queue != queue {
			continue
		}
		if state != "" && j.State != state {
			continue
		}
		out = append(out, j)
	}
	// The index is scored in milliseconds; refine to full precision.
	slices.SortStableFunc(out, job.Compare)
	return out, nil
}

// getJobs fetches job hashes in one pipeline, skipping IDs whose hash is
// gone.
func (s *Store) getJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobq/redis: get jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── encoding ──

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatOptTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseOptTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// jobToArgs flattens a job into HSET field/value pairs.
func jobToArgs(j *job.Job) []any {
	leaseMs := ""
	if j.LeaseExpires != nil {
		leaseMs = strconv.FormatInt(j.LeaseExpires.UnixMilli(), 10)
	}
	return []any{
		"id", j.ID.String(),
		"queue", string(j.Queue),
		"payload", string(j.Payload),
		"state", string(j.State),
		"attempts", strconv.Itoa(j.Attempts),
		"max_attempts", strconv.Itoa(j.MaxAttempts),
		"last_error", j.LastError,
		"next_visible_at", formatTime(j.NextVisibleAt),
		"worker_id", j.WorkerID.String(),
		"lease_expires_at", formatOptTime(j.LeaseExpires),
		"lease_ms", leaseMs,
		"completed_at", formatOptTime(j.CompletedAt),
		"timeout", strconv.FormatInt(int64(j.Timeout), 10),
		"created_at", formatTime(j.CreatedAt),
		"created_ms", strconv.FormatInt(j.CreatedAt.UnixMilli(), 10),
		"updated_at", formatTime(j.UpdatedAt),
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jobID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobq/redis: parse job id %q: %w", m["id"], err)
	}

	j := &job.Job{
		ID:        jobID,
		Queue:     job.QueueName(m["queue"]),
		Payload:   []byte(m["payload"]),
		State:     job.State(m["state"]),
		LastError: m["last_error"],
	}
	j.Attempts, _ = strconv.Atoi(m["attempts"])
	j.MaxAttempts, _ = strconv.Atoi(m["max_attempts"])
	if ns, err := strconv.ParseInt(m["timeout"], 10, 64); err == nil {
		j.Timeout = time.Duration(ns)
	}

	var parseErr error
	parse := func(field string, dst *time.Time) {
		if parseErr != nil || m[field] == "" {
			return
		}
		*dst, parseErr = time.Parse(time.RFC3339Nano, m[field])
	}
	parse("next_visible_at", &j.NextVisibleAt)
	parse("created_at", &j.CreatedAt)
	parse("updated_at", &j.UpdatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("jobq/redis: parse job %s time: %w", jobID, parseErr)
	}
	if j.LeaseExpires, parseErr = parseOptTime(m["lease_expires_at"]); parseErr != nil {
		return nil, fmt.Errorf("jobq/redis: parse job %s lease: %w", jobID, parseErr)
	}
	if j.CompletedAt, parseErr = parseOptTime(m["completed_at"]); parseErr != nil {
		return nil, fmt.Errorf("jobq/redis: parse job %s completed: %w", jobID, parseErr)
	}

	if w := m["worker_id"]; w != "" {
		workerID, err := id.ParseWorkerID(w)
		if err != nil {
			return nil, fmt.Errorf("jobq/redis: parse worker id %q: %w", w, err)
		}
		j.WorkerID = workerID
	}
	return j, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
