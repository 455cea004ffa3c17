package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/focusmode/focusd/internal/data/pgxutil"
	"github.com/focusmode/focusd/internal/domain/model"
)

// Advisory lock namespace for reaper operations. Two-arg
// pg_try_advisory_xact_lock(major, minor) keeps reaper instances from
// running the same sweep concurrently.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailPending = 1
	advisoryLockReaperDelete      = 2
)

// FailStalePending marks pending jobs that have been runnable for longer
// than maxAge as failed, up to batchSize per call. Staleness is measured
// from scheduled_at, not created_at, so a delayed job waiting for its run
// time is never swept. Returns the number of jobs marked.
func (r *JobRepo) FailStalePending(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx,
			"SELECT pg_try_advisory_xact_lock($1, $2)",
			advisoryLockReaperMajor, advisoryLockReaperFailPending,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now().UTC()
		cutoff := now.Add(-maxAge)

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'failed',
				last_error = 'job timed out in pending status',
				completed_at = $1,
				updated_at = $1
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'pending'
				  AND scheduled_at < $2
				ORDER BY scheduled_at
				LIMIT $3
			)
		`, now, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("fail stale pending jobs: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOld deletes jobs with the given status older than maxAge, up to
// batchSize per call. Returns the number of jobs deleted.
func (r *JobRepo) DeleteOld(ctx context.Context, status model.JobStatus, maxAge time.Duration, batchSize int) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("invalid job status: %s", status)
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx,
			"SELECT pg_try_advisory_xact_lock($1, $2)",
			advisoryLockReaperMajor, advisoryLockReaperDelete,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		cutoff := r.timeProvider.Now().Add(-maxAge).UTC()
		res, err := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = $1
				  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
				ORDER BY COALESCE(completed_at, updated_at)
				LIMIT $3
			)
		`, status, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("delete old jobs: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
