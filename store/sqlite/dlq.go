package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.sdb.NewInsert(toDLQModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("jobq/sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest failure
// first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.sdb.NewSelect(&models)
	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue.String())
	}
	q = q.OrderExpr("failed_at ASC, id ASC")

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
		return nil, fmt.Errorf("jobq/sqlite: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, err := fromDLQModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("jobq/sqlite: get dlq: %w", err)
	}
	return fromDLQModel(m)
}

// ReplayDLQ marks a DLQ entry as replayed as jobID. The update only
// matches an unreplayed entry, so exactly one of several concurrent
// callers succeeds.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID, jobID id.JobID) error {
	res, err := s.sdb.NewUpdate((*dlqEntryModel)(nil)).
		Set("replayed_at = ?", toNanos(time.Now().UTC())).
		Set("replay_job_id = ?", jobID.String()).
		Where("id = ?", entryID.String()).
		Where("replayed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/sqlite: replay dlq: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 { //nolint:errcheck // driver always returns nil
		return nil
	}

	n, err := s.sdb.NewSelect((*dlqEntryModel)(nil)).
		Where("id = ?", entryID.String()).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("jobq/sqlite: check dlq: %w", err)
	}
	if n == 0 {
		return jobq.ErrDLQNotFound
	}
	return jobq.ErrDLQAlreadyReplayed
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*dlqEntryModel)(nil)).
		Where("failed_at < ?", toNanos(before)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/sqlite: purge dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDLQ returns the number of entries, optionally for one queue.
func (s *Store) CountDLQ(ctx context.Context, queue job.QueueName) (int64, error) {
	q := s.sdb.NewSelect((*dlqEntryModel)(nil))
	if queue != "" {
		q = q.Where("queue = ?", queue.String())
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/sqlite: count dlq: %w", err)
	}
	return count, nil
}
