package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
)

const dlqColumns = `
	id, job_id, queue, payload, error, attempts, max_attempts,
	failed_at, replayed_at, replay_job_id, created_at`

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobq_dlq (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID.String(), entry.JobID.String(), string(entry.Queue), entry.Payload,
		entry.Error, entry.Attempts, entry.MaxAttempts,
		entry.FailedAt, entry.ReplayedAt, nullableID(entry.ReplayJobID), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("jobq/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest failure
// first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM jobq_dlq WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, string(opts.Queue))
		argIdx++
	}

	query += " ORDER BY failed_at ASC, id ASC"

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
		return nil, fmt.Errorf("jobq/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobq/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("jobq/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM jobq_dlq WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("jobq/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed as jobID. Only the first call
// for an entry succeeds.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobq_dlq SET replayed_at = NOW(), replay_job_id = $2
		WHERE id = $1 AND replayed_at IS NULL`,
		entryID.String(), jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("jobq/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobq_dlq WHERE id = $1)`, entryID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("jobq/postgres: check dlq: %w", err)
	}
	if !exists {
		return jobq.ErrDLQNotFound
	}
	return jobq.ErrDLQAlreadyReplayed
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
// Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobq_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("jobq/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the number of entries, optionally for one queue.
func (s *Store) CountDLQ(ctx context.Context, queue job.QueueName) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobq_dlq WHERE $1 = '' OR queue = $1`,
		string(queue),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("jobq/postgres: count dlq: %w", err)
	}
	return count, nil
}

// scanDLQ scans a single DLQ entry row.
func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e         dlq.Entry
		idStr     string
		jobIDStr  string
		queueStr  string
		replayStr *string
	)
	err := row.Scan(
		&idStr, &jobIDStr, &queueStr, &e.Payload, &e.Error, &e.Attempts, &e.MaxAttempts,
		&e.FailedAt, &e.ReplayedAt, &replayStr, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Queue = job.QueueName(queueStr)

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobq/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJobID, jobParseErr := id.ParseJobID(jobIDStr)
	if jobParseErr != nil {
		return nil, fmt.Errorf("jobq/postgres: parse job id %q: %w", jobIDStr, jobParseErr)
	}
	e.JobID = parsedJobID

	if replayStr != nil && *replayStr != "" {
		replayID, replayErr := id.ParseJobID(*replayStr)
		if replayErr != nil {
			return nil, fmt.Errorf("jobq/postgres: parse replay job id %q: %w", *replayStr, replayErr)
		}
		e.ReplayJobID = replayID
	}

	return &e, nil
}
