package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/testutil"
)

func findDue(t *testing.T, repo *ScheduledJobsRepo, now time.Time) []model.ScheduledTask {
	t.Helper()
	var tasks []model.ScheduledTask
	err := repo.InTx(context.Background(), func(tx *sql.Tx) error {
		found, ferr := repo.FindDueTx(context.Background(), tx, now, 100)
		tasks = found
		return ferr
	})
	require.NoError(t, err)
	return tasks
}

func TestScheduledJobsUpsertValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		err := repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			JobType:  model.JobTypeNewUserCheck,
			Interval: time.Minute,
		})
		assert.Error(t, err)

		// Interval and cron are mutually exclusive, and one is required.
		err = repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "bad",
			JobType:  model.JobTypeNewUserCheck,
		})
		assert.Error(t, err)
		err = repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "bad",
			JobType:  model.JobTypeNewUserCheck,
			Interval: time.Minute,
			CronExpr: "0 9 * * *",
		})
		assert.Error(t, err)
	})
}

func TestScheduledJobsUpsertPreservesLastQueuedAt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		require.NoError(t, repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "new-user-check",
			JobType:  model.JobTypeNewUserCheck,
			Payload:  json.RawMessage(`{"window_minutes":10}`),
			Interval: 10 * time.Minute,
			Priority: 50,
		}))

		queued := time.Now().Add(-time.Minute).UTC()
		_, err := db.ExecContext(ctx,
			"UPDATE scheduled_jobs SET last_queued_at = $1 WHERE task_name = 'new-user-check'", queued)
		require.NoError(t, err)

		// Re-registration on startup must not reset the fire history.
		require.NoError(t, repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "new-user-check",
			JobType:  model.JobTypeNewUserCheck,
			Payload:  json.RawMessage(`{"window_minutes":30}`),
			Interval: 5 * time.Minute,
			Priority: 60,
		}))

		tasks, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		task := tasks[0]
		assert.Equal(t, int64(300), task.IntervalSeconds)
		assert.Equal(t, 60, task.Priority)
		assert.JSONEq(t, `{"window_minutes":30}`, string(task.Payload))
		require.NotNil(t, task.LastQueuedAt)
		assert.WithinDuration(t, queued, *task.LastQueuedAt, time.Second)
	})
}

func TestScheduledJobsFindDueInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()
		now := time.Now().UTC()

		require.NoError(t, repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "paid-user-check",
			JobType:  model.JobTypePaidUserCheck,
			Interval: 10 * time.Minute,
		}))

		// Never fired: due immediately.
		tasks := findDue(t, repo, now)
		require.Len(t, tasks, 1)
		assert.Equal(t, "paid-user-check", tasks[0].TaskName)

		// Fired two minutes ago with a ten minute interval: not due.
		_, err := db.ExecContext(ctx,
			"UPDATE scheduled_jobs SET last_queued_at = $1 WHERE task_name = 'paid-user-check'",
			now.Add(-2*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, findDue(t, repo, now))

		// Fired eleven minutes ago: due again.
		_, err = db.ExecContext(ctx,
			"UPDATE scheduled_jobs SET last_queued_at = $1 WHERE task_name = 'paid-user-check'",
			now.Add(-11*time.Minute))
		require.NoError(t, err)
		assert.Len(t, findDue(t, repo, now), 1)
	})
}

func TestScheduledJobsMarkQueuedAndClearFireKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()
		now := time.Now().UTC()

		require.NoError(t, repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "weekly-report",
			JobType:  model.JobTypeNewUserCheck,
			CronExpr: "0 9 * * 1",
		}))
		tasks := findDue(t, repo, now)
		require.Len(t, tasks, 1)

		err := repo.InTx(ctx, func(tx *sql.Tx) error {
			ok, merr := repo.MarkQueuedTx(ctx, tx, tasks[0].ID, now, "fire-abc")
			require.NoError(t, merr)
			require.True(t, ok)

			_, merr = repo.MarkQueuedTx(ctx, tx, tasks[0].ID, now, "  ")
			assert.Error(t, merr)
			return nil
		})
		require.NoError(t, err)

		listed, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.NotNil(t, listed[0].ActiveFireKey)
		assert.Equal(t, "fire-abc", *listed[0].ActiveFireKey)

		// A mismatched key leaves the reservation alone.
		require.NoError(t, repo.ClearActiveFireKey(ctx, "weekly-report", "fire-other"))
		listed, err = repo.List(ctx)
		require.NoError(t, err)
		require.NotNil(t, listed[0].ActiveFireKey)

		require.NoError(t, repo.ClearActiveFireKey(ctx, "weekly-report", "fire-abc"))
		listed, err = repo.List(ctx)
		require.NoError(t, err)
		assert.Nil(t, listed[0].ActiveFireKey)
	})
}

func TestScheduledJobsDeleteByTaskName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewScheduledJobsRepo(db)
		ctx := context.Background()

		require.NoError(t, repo.UpsertByTaskName(ctx, model.UpsertTaskRequest{
			TaskName: "inactive-user-check",
			JobType:  model.JobTypeInactiveUserCheck,
			Interval: time.Hour,
		}))

		ok, err := repo.DeleteByTaskName(ctx, "inactive-user-check")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.DeleteByTaskName(ctx, "inactive-user-check")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
