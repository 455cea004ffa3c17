package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/testutil"
)

func TestLicenseRepoUpsertByPaymentID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewLicenseRepo(db)
		ctx := context.Background()
		now := time.Now().UTC()

		userID := insertTestUser(t, db, "buyer@example.com", now.Add(-time.Hour), nil)

		lic, err := repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{
			UserID:    userID,
			Email:     "buyer@example.com",
			PaymentID: "pi_123",
			Plan:      "pro",
			PaidAt:    now,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, lic.ID)
		assert.Equal(t, "active", lic.Status)
		assert.Equal(t, "pro", lic.Plan)

		// Webhook redelivery updates the same row.
		redelivered, err := repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{
			UserID:    userID,
			Email:     "buyer@example.com",
			PaymentID: "pi_123",
			Plan:      "pro-annual",
			PaidAt:    now,
		})
		require.NoError(t, err)
		assert.Equal(t, lic.ID, redelivered.ID)
		assert.Equal(t, "pro-annual", redelivered.Plan)

		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM licenses").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestLicenseRepoUpsertValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewLicenseRepo(db)
		ctx := context.Background()

		_, err := repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{UserID: "u1"})
		assert.Error(t, err)

		_, err = repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{PaymentID: "pi_1"})
		assert.Error(t, err)
	})
}

func TestLicenseRepoPaidSince(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewLicenseRepo(db)
		ctx := context.Background()
		now := time.Now().UTC()

		userID := insertTestUser(t, db, "buyer@example.com", now.Add(-48*time.Hour), nil)

		_, err := repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{
			UserID:    userID,
			Email:     "buyer@example.com",
			PaymentID: "pi_old",
			PaidAt:    now.Add(-24 * time.Hour),
		})
		require.NoError(t, err)

		recent, err := repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{
			UserID:    userID,
			Email:     "buyer@example.com",
			PaymentID: "pi_recent",
			PaidAt:    now.Add(-5 * time.Minute),
		})
		require.NoError(t, err)

		licenses, err := repo.PaidSince(ctx, now.Add(-10*time.Minute), 100)
		require.NoError(t, err)
		require.Len(t, licenses, 1)
		assert.Equal(t, recent.ID, licenses[0].ID)

		licenses, err = repo.PaidSince(ctx, now.Add(-48*time.Hour), 100)
		require.NoError(t, err)
		assert.Len(t, licenses, 2)

		_, err = repo.PaidSince(ctx, now, -1)
		assert.Error(t, err)
	})
}
