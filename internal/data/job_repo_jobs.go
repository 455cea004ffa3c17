package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/focusmode/focusd/internal/data/pgxutil"
	"github.com/focusmode/focusd/internal/domain/model"
)

const defaultMaxRetries = 3

// SQL used by ReserveNext to atomically claim the next job. Priority wins
// over age; scheduled_at implements both delayed jobs and retry backoff.
const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE type = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

// Create enqueues a new job.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		created, insertErr := r.CreateInTx(ctx, tx, req)
		if insertErr != nil {
			return insertErr
		}
		job = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreateInTx enqueues a job within an existing transaction.
func (r *JobRepo) CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	meta := []byte(`{}`)
	if len(req.Metadata) > 0 {
		meta = req.Metadata
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	scheduledAt := r.timeProvider.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	row := tx.QueryRowContext(ctx, `
      INSERT INTO jobs(type, status, priority, payload, metadata, scheduled_at, max_retries)
      VALUES ($1, 'pending', $2, $3, $4, $5, $6)
      RETURNING `+jobColumns,
		req.Type,
		req.Priority,
		[]byte(req.Payload),
		meta,
		scheduledAt,
		maxRetries,
	)

	job, err := scanJobFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Advisory lock namespace for requeueExpired to avoid cross-job-type contention.
const advisoryLockRequeueMajor = 1001

func advisoryLockRequeueMinor(jobType model.JobType) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobType))
	return int64(h.Sum32() & math.MaxInt32)
}

// requeueExpired moves running jobs with expired leases back to pending so
// a crashed worker's jobs become visible again.
func (r *JobRepo) requeueExpired(ctx context.Context, jobType model.JobType) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		minorKey := advisoryLockRequeueMinor(jobType)
		if err := tx.QueryRowContext(ctx,
			"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
			advisoryLockRequeueMajor, minorKey,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now().UTC()
		res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET status = 'pending', lease_expires_at = NULL
          WHERE type = $1 AND status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
        `, jobType, now)
		if err != nil {
			return fmt.Errorf("requeue expired: %w", err)
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

// ReserveNext reserves the next available job of the given type for processing.
func (r *JobRepo) ReserveNext(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}

	if _, err := r.requeueExpired(ctx, jobType); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		now := r.timeProvider.Now().UTC()
		rows, qerr := tx.Query(ctx, reserveNextSQL, jobType, now, now, now.Add(lease))
		if qerr != nil {
			return fmt.Errorf("reserve job: %w", qerr)
		}
		defer rows.Close()

		if !rows.Next() {
			if rerr := rows.Err(); rerr != nil {
				return fmt.Errorf("reserve job: %w", rerr)
			}
			return model.ErrNoJobsAvailable
		}
		j, serr := scanJobFromRow(rows)
		if serr != nil {
			return fmt.Errorf("scan reserved job: %w", serr)
		}
		job = j
		return rows.Err()
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, errors.New("lease must be positive")
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, now.Add(lease), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete marks a running job as completed and releases its recurring-task
// fire key, if any, so the scheduler can fire the task again.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
		RETURNING metadata->>'scheduler.task_name', metadata->>'scheduler.fire_key'
	`

	var taskName, fireKey sql.NullString
	if err := r.DB.QueryRowContext(ctx, query, id, now).Scan(&taskName, &fireKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("complete job: %w", err)
	}

	r.releaseFireKey(ctx, taskName, fireKey)
	return true, nil
}

// Fail records a failed attempt. With retries left the job returns to
// pending and becomes visible at retryAt; otherwise it lands in failed and
// its fire key is released.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string, retryAt time.Time) (model.JobStatus, error) {
	now := r.timeProvider.Now().UTC()

	query := `
      UPDATE jobs
      SET
        last_error = $2,
        retry_count = retry_count + 1,
        status = CASE WHEN retry_count + 1 > max_retries THEN 'failed' ELSE 'pending' END,
        completed_at = CASE WHEN retry_count + 1 > max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 > max_retries THEN scheduled_at
                            ELSE $4::timestamptz END,
        updated_at = $3
      WHERE id = $1 AND status = 'running'
      RETURNING status, metadata->>'scheduler.task_name', metadata->>'scheduler.fire_key'
    `

	var status string
	var taskName, fireKey sql.NullString
	if err := r.DB.QueryRowContext(ctx, query, id, errMsg, now, retryAt.UTC()).
		Scan(&status, &taskName, &fireKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("fail job: %w", err)
	}

	if status == string(model.JobStatusFailed) {
		r.releaseFireKey(ctx, taskName, fireKey)
	}
	return model.JobStatus(status), nil
}

func (r *JobRepo) releaseFireKey(ctx context.Context, taskName, fireKey sql.NullString) {
	if !taskName.Valid || !fireKey.Valid {
		return
	}
	if strings.TrimSpace(taskName.String) == "" || strings.TrimSpace(fireKey.String) == "" {
		return
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET active_fire_key = NULL,
		    active_fire_key_set_at = NULL,
		    updated_at = $3
		WHERE task_name = $1
		  AND active_fire_key = $2
	`, taskName.String, fireKey.String, r.timeProvider.Now().UTC())
	if err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "clear active fire key failed",
			"task_name", taskName.String,
			"fire_key", fireKey.String,
			"error", err,
		)
	}
}

// Stats returns counts of jobs in each state across all types.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM jobs
  `).Scan(&s.Pending, &s.Running, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRecent returns the most recently created jobs of the given type.
func (r *JobRepo) ListRecent(ctx context.Context, jobType model.JobType, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE type = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, serr := scanJobFromRow(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan job: %w", serr)
		}
		jobs = append(jobs, job)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rerr)
	}
	return jobs, nil
}

// PendingOrRunningExistsByTaskName reports whether an unfinished job for the
// given recurring task exists. Expired leases do not count as running.
func (r *JobRepo) PendingOrRunningExistsByTaskName(ctx context.Context, taskName string, now time.Time) (bool, error) {
	query := `
		SELECT COALESCE(bool_or(
			status = 'pending'
			OR (status = 'running' AND (lease_expires_at IS NULL OR lease_expires_at > $1))
		), FALSE)
		FROM jobs
		WHERE metadata->>'scheduler.task_name' = $2
		  AND status IN ('pending', 'running')
	`

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, now.UTC(), taskName).Scan(&exists); err != nil {
		return false, fmt.Errorf("check jobs by task name: %w", err)
	}
	return exists, nil
}
