package bunstore

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
	m := toDLQModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqModel
	q := s.db.NewSelect().Model(&models)

	if opts.Queue != "" {
		q = q.Where("queue = ?", string(opts.Queue))
	}

	q = paginate(q.Order("failed_at ASC", "id ASC"), opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("jobq/bun: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, err := fromDLQModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("jobq/bun: list dlq convert: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m := new(dlqModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("jobq/bun: get dlq: %w", err)
	}
	return fromDLQModel(m)
}

// ReplayDLQ marks a DLQ entry as replayed as jobID.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		Model((*dlqModel)(nil)).
		Set("replayed_at = ?", time.Now().UTC()).
		Set("replay_job_id = ?", jobID.String()).
		Where("id = ?", entryID.String()).
		Where("replayed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: replay dlq: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	exists, err := s.db.NewSelect().
		Model((*dlqModel)(nil)).
		Where("id = ?", entryID.String()).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("jobq/bun: check dlq: %w", err)
	}
	if !exists {
		return jobq.ErrDLQNotFound
	}
	return jobq.ErrDLQAlreadyReplayed
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*dlqModel)(nil)).
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/bun: purge dlq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("jobq/bun: purge dlq rows: %w", err)
	}
	return n, nil
}

// CountDLQ returns the number of entries, optionally for one queue.
func (s *Store) CountDLQ(ctx context.Context, queue job.QueueName) (int64, error) {
	q := s.db.NewSelect().Model((*dlqModel)(nil))
	if queue != "" {
		q = q.Where("queue = ?", string(queue))
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobq/bun: count dlq: %w", err)
	}
	return int64(n), nil
}
