package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/data/pgxutil"
	"github.com/focusmode/focusd/internal/domain/model"
)

// ScheduledJobsRepo provides database operations for recurring task definitions.
type ScheduledJobsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduledJobsRepo creates a ScheduledJobsRepo with the given database connection.
func NewScheduledJobsRepo(db *sql.DB) *ScheduledJobsRepo {
	return &ScheduledJobsRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewScheduledJobsRepoWithTimeProvider creates a ScheduledJobsRepo with a
// custom TimeProvider, useful for testing.
func NewScheduledJobsRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ScheduledJobsRepo {
	return &ScheduledJobsRepo{DB: db, timeProvider: tp}
}

const scheduledTaskColumns = `
  id,
  task_name,
  job_type,
  payload,
  interval_seconds,
  cron_expr,
  priority,
  last_queued_at,
  active_fire_key,
  updated_at
`

// InTx runs fn inside a transaction. FindDueTx row locks hold until the
// transaction ends, so selection and MarkQueuedTx must share one.
func (r *ScheduledJobsRepo) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return pgxutil.WithSQLTx(ctx, r.DB, fn)
}

// FindDueTx returns candidate tasks for firing. Interval tasks are filtered
// by the interval here; cron tasks are returned whenever they have not been
// queued since the previous minute, and the caller decides cron dueness.
// FOR UPDATE SKIP LOCKED keeps concurrent schedulers off the same rows.
func (r *ScheduledJobsRepo) FindDueTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]model.ScheduledTask, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT ` + scheduledTaskColumns + `
		FROM scheduled_jobs
		WHERE (
			(COALESCE(cron_expr, '') = ''
				AND (last_queued_at IS NULL
					OR last_queued_at + make_interval(secs => interval_seconds) <= $1))
			OR (COALESCE(cron_expr, '') <> ''
				AND (last_queued_at IS NULL OR last_queued_at < date_trunc('minute', $1::timestamptz)))
		)
		ORDER BY
			CASE WHEN last_queued_at IS NULL THEN 0 ELSE 1 END,
			last_queued_at ASC,
			created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ScheduledTask
	for rows.Next() {
		task, serr := scanScheduledTask(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", serr)
		}
		tasks = append(tasks, task)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, fmt.Errorf("iterate scheduled tasks: %w", rerr)
	}
	return tasks, nil
}

// MarkQueuedTx records a fire: last_queued_at moves to now and the fire key
// marks the task as having an in-flight job. Pair with FindDueTx in one
// transaction.
func (r *ScheduledJobsRepo) MarkQueuedTx(ctx context.Context, tx *sql.Tx, id string, now time.Time, fireKey string) (bool, error) {
	if strings.TrimSpace(fireKey) == "" {
		return false, errors.New("fire key is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET last_queued_at = $2,
		    active_fire_key = $3,
		    active_fire_key_set_at = $4,
		    updated_at = $4
		WHERE id = $1
	`, id, now.UTC(), fireKey, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark scheduled task queued: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ClearActiveFireKey releases the fire key if it still matches. A stale key
// from an older fire is left alone.
func (r *ScheduledJobsRepo) ClearActiveFireKey(ctx context.Context, taskName, fireKey string) error {
	if strings.TrimSpace(taskName) == "" || strings.TrimSpace(fireKey) == "" {
		return nil
	}

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET active_fire_key = NULL,
		    active_fire_key_set_at = NULL,
		    updated_at = $3
		WHERE task_name = $1
		  AND active_fire_key = $2
	`, taskName, fireKey, r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("clear active fire key: %w", err)
	}
	return nil
}

// UpsertByTaskName registers or refreshes a recurring task. The update path
// leaves last_queued_at untouched so re-registration never re-fires.
func (r *ScheduledJobsRepo) UpsertByTaskName(ctx context.Context, req model.UpsertTaskRequest) error {
	if strings.TrimSpace(req.TaskName) == "" {
		return errors.New("task name is required")
	}
	if !req.JobType.Valid() {
		return fmt.Errorf("invalid job type: %s", req.JobType)
	}
	if (req.Interval <= 0) == (strings.TrimSpace(req.CronExpr) == "") {
		return errors.New("exactly one of interval or cron expression is required")
	}

	payload := []byte(`{}`)
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	now := r.timeProvider.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (task_name, job_type, payload, interval_seconds, cron_expr, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $7)
		ON CONFLICT (task_name) DO UPDATE
		SET job_type = EXCLUDED.job_type,
		    payload = EXCLUDED.payload,
		    interval_seconds = EXCLUDED.interval_seconds,
		    cron_expr = EXCLUDED.cron_expr,
		    priority = EXCLUDED.priority,
		    updated_at = EXCLUDED.updated_at
	`,
		req.TaskName,
		req.JobType,
		payload,
		int64(req.Interval/time.Second),
		strings.TrimSpace(req.CronExpr),
		req.Priority,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert scheduled task %s: %w", req.TaskName, err)
	}
	return nil
}

// DeleteByTaskName removes a recurring task definition.
func (r *ScheduledJobsRepo) DeleteByTaskName(ctx context.Context, taskName string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE task_name = $1`, taskName)
	if err != nil {
		return false, fmt.Errorf("delete scheduled task: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// List returns all recurring task definitions ordered by name.
func (r *ScheduledJobsRepo) List(ctx context.Context) ([]model.ScheduledTask, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+scheduledTaskColumns+`
		FROM scheduled_jobs
		ORDER BY task_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ScheduledTask
	for rows.Next() {
		task, serr := scanScheduledTask(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", serr)
		}
		tasks = append(tasks, task)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, fmt.Errorf("iterate scheduled tasks: %w", rerr)
	}
	return tasks, nil
}

func scanScheduledTask(rows *sql.Rows) (model.ScheduledTask, error) {
	var (
		task         model.ScheduledTask
		payload      []byte
		cronExpr     sql.NullString
		lastQueuedAt sql.NullTime
		fireKey      sql.NullString
	)
	if err := rows.Scan(
		&task.ID,
		&task.TaskName,
		&task.JobType,
		&payload,
		&task.IntervalSeconds,
		&cronExpr,
		&task.Priority,
		&lastQueuedAt,
		&fireKey,
		&task.UpdatedAt,
	); err != nil {
		return model.ScheduledTask{}, err
	}

	task.Payload = cloneJSON(payload)
	if cronExpr.Valid {
		task.CronExpr = cronExpr.String
	}
	task.LastQueuedAt = cloneNullableTime(lastQueuedAt)
	if fireKey.Valid {
		if key := strings.TrimSpace(fireKey.String); key != "" {
			task.ActiveFireKey = &key
		}
	}
	return task, nil
}
