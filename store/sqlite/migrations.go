package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the jobq sqlite store.
var Migrations = migrate.NewGroup("jobq")

func init() {
	Migrations.MustRegister(
		// 001: jobs table with claim and lease-recovery indexes.
		&migrate.Migration{
			Name:    "create_jobs_table",
			Version: "20260101120000",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS jobq_jobs (
						id               TEXT PRIMARY KEY,
						queue            TEXT NOT NULL,
						payload          BLOB NOT NULL,
						state            TEXT NOT NULL DEFAULT 'pending',
						attempts         INTEGER NOT NULL DEFAULT 0,
						max_attempts     INTEGER NOT NULL DEFAULT 3,
						last_error       TEXT NOT NULL DEFAULT '',
						next_visible_at  INTEGER NOT NULL,
						worker_id        TEXT NOT NULL DEFAULT '',
						lease_expires_at INTEGER,
						completed_at     INTEGER,
						timeout_ns       INTEGER NOT NULL DEFAULT 0,
						created_at       INTEGER NOT NULL,
						updated_at       INTEGER NOT NULL
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_jobq_jobs_claim
						ON jobq_jobs (state, queue, next_visible_at, created_at, id)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_jobq_jobs_lease
						ON jobq_jobs (state, lease_expires_at)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS jobq_jobs`)
				return err
			},
		},

		// 002: dead letter queue.
		&migrate.Migration{
			Name:    "create_dlq_table",
			Version: "20260101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS jobq_dlq (
						id            TEXT PRIMARY KEY,
						job_id        TEXT NOT NULL,
						queue         TEXT NOT NULL,
						payload       BLOB NOT NULL,
						error         TEXT NOT NULL DEFAULT '',
						attempts      INTEGER NOT NULL DEFAULT 0,
						max_attempts  INTEGER NOT NULL DEFAULT 0,
						failed_at     INTEGER NOT NULL,
						replayed_at   INTEGER,
						replay_job_id TEXT NOT NULL DEFAULT '',
						created_at    INTEGER NOT NULL
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_jobq_dlq_queue_failed
						ON jobq_dlq (queue, failed_at, id)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS jobq_dlq`)
				return err
			},
		},
	)
}
