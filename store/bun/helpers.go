package bunstore

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/jobq/job"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func filterJobs(q *bun.SelectQuery, queue job.QueueName, state job.State) *bun.SelectQuery {
	if queue != "" {
		q = q.Where("queue = ?", string(queue))
	}
	if state != "" {
		q = q.Where("state = ?", string(state))
	}
	return q
}
