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

func TestFailStalePending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newJobRepoForTest(db)
		ctx := context.Background()

		stale := createTestJob(t, repo, &model.CreateJobRequest{
			Type:    model.JobTypeNewUserCheck,
			Payload: json.RawMessage(`{}`),
		})
		fresh := createTestJob(t, repo, &model.CreateJobRequest{
			Type:    model.JobTypeNewUserCheck,
			Payload: json.RawMessage(`{}`),
		})

		_, err := db.ExecContext(ctx,
			"UPDATE jobs SET scheduled_at = now() - interval '2 hours' WHERE id = $1", stale.ID)
		require.NoError(t, err)

		marked, err := repo.FailStalePending(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), marked)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "job timed out in pending status", *got.LastError)
		assert.NotNil(t, got.CompletedAt)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})
}

func TestFailStalePendingIgnoresDelayedJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newJobRepoForTest(db)
		ctx := context.Background()

		runAt := time.Now().Add(30 * time.Minute)
		delayed := createTestJob(t, repo, &model.CreateJobRequest{
			Type:        model.JobTypeSessionCleanup,
			Payload:     json.RawMessage(`{"session_id":"s1","user_id":"u1"}`),
			ScheduledAt: &runAt,
		})

		// The row itself is old, but its run time has not arrived yet. A
		// session-cleanup job sits like this for the whole session duration.
		_, err := db.ExecContext(ctx,
			"UPDATE jobs SET created_at = now() - interval '2 hours' WHERE id = $1", delayed.ID)
		require.NoError(t, err)

		marked, err := repo.FailStalePending(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(0), marked)

		got, err := repo.GetByID(ctx, delayed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
	})
}

func TestFailStalePendingRespectsBatchSize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newJobRepoForTest(db)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			createTestJob(t, repo, &model.CreateJobRequest{
				Type:    model.JobTypeNewUserCheck,
				Payload: json.RawMessage(`{}`),
			})
		}
		_, err := db.ExecContext(ctx, "UPDATE jobs SET scheduled_at = now() - interval '2 hours'")
		require.NoError(t, err)

		marked, err := repo.FailStalePending(ctx, time.Hour, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), marked)

		marked, err = repo.FailStalePending(ctx, time.Hour, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), marked)
	})
}

func TestDeleteOld(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newJobRepoForTest(db)
		ctx := context.Background()

		done := createTestJob(t, repo, &model.CreateJobRequest{
			Type:    model.JobTypeNewUserCheck,
			Payload: json.RawMessage(`{}`),
		})
		_, err := repo.ReserveNext(ctx, model.JobTypeNewUserCheck, time.Minute)
		require.NoError(t, err)
		_, err = repo.Complete(ctx, done.ID)
		require.NoError(t, err)

		// Still inside the retention window.
		deleted, err := repo.DeleteOld(ctx, model.JobStatusCompleted, 24*time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)

		_, err = db.ExecContext(ctx,
			"UPDATE jobs SET completed_at = now() - interval '48 hours' WHERE id = $1", done.ID)
		require.NoError(t, err)

		deleted, err = repo.DeleteOld(ctx, model.JobStatusCompleted, 24*time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.GetByID(ctx, done.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)

		_, err = repo.DeleteOld(ctx, model.JobStatus("bogus"), time.Hour, 100)
		assert.Error(t, err)
	})
}
