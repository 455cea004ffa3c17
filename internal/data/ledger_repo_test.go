package data

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/testutil"
)

func newLedgerRepoForTest(db *sql.DB) *LedgerRepo {
	return NewLedgerRepo(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLedgerRecordThenHasSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newLedgerRepoForTest(db)
		ctx := context.Background()

		sent, err := repo.HasSent(ctx, "u1", model.NotificationPaidUser, "paid_license_lic-1", model.ChannelSlack)
		require.NoError(t, err)
		assert.False(t, sent)

		rec, err := repo.Record(ctx, core.RecordNotificationRequest{
			UserID:         "u1",
			Type:           model.NotificationPaidUser,
			ReferenceID:    "paid_license_lic-1",
			Channel:        model.ChannelSlack,
			ProviderResult: "delivered",
			Data:           []byte(`{"license_id":"lic-1"}`),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "delivered", rec.ProviderResult)

		sent, err = repo.HasSent(ctx, "u1", model.NotificationPaidUser, "paid_license_lic-1", model.ChannelSlack)
		require.NoError(t, err)
		assert.True(t, sent)
	})
}

func TestLedgerRecordDuplicateReturnsSurvivingRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newLedgerRepoForTest(db)
		ctx := context.Background()

		req := core.RecordNotificationRequest{
			UserID:         "u1",
			Type:           model.NotificationNewUser,
			ReferenceID:    "new_u1_1704164645000",
			Channel:        model.ChannelEmail,
			ProviderResult: "first",
		}
		first, err := repo.Record(ctx, req)
		require.NoError(t, err)

		// Losing the unique-index race is not an error. The original row
		// survives untouched.
		req.ProviderResult = "second"
		second, err := repo.Record(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "first", second.ProviderResult)

		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM notifications").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestLedgerChannelsAreIndependent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newLedgerRepoForTest(db)
		ctx := context.Background()

		_, err := repo.Record(ctx, core.RecordNotificationRequest{
			UserID:      "u1",
			Type:        model.NotificationInactiveUser,
			ReferenceID: "inactive_u1",
			Channel:     model.ChannelSlack,
		})
		require.NoError(t, err)

		sent, err := repo.HasSent(ctx, "u1", model.NotificationInactiveUser, "inactive_u1", model.ChannelEmail)
		require.NoError(t, err)
		assert.False(t, sent)
	})
}

func TestLedgerFilterUnsent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newLedgerRepoForTest(db)
		ctx := context.Background()

		empty, err := repo.FilterUnsent(ctx, nil, model.NotificationNewUser, model.ChannelSlack)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, err = repo.Record(ctx, core.RecordNotificationRequest{
			UserID:      "u2",
			Type:        model.NotificationNewUser,
			ReferenceID: "new_u2_1",
			Channel:     model.ChannelSlack,
		})
		require.NoError(t, err)

		candidates := map[string]string{
			"u1": "new_u1_1",
			"u2": "new_u2_1",
			"u3": "new_u3_1",
		}
		unsent, err := repo.FilterUnsent(ctx, candidates, model.NotificationNewUser, model.ChannelSlack)
		require.NoError(t, err)
		assert.Len(t, unsent, 2)
		assert.Contains(t, unsent, "u1")
		assert.Contains(t, unsent, "u3")
		assert.NotContains(t, unsent, "u2")

		// A different reference id for the same user counts as unsent.
		unsent, err = repo.FilterUnsent(ctx, map[string]string{"u2": "new_u2_2"},
			model.NotificationNewUser, model.ChannelSlack)
		require.NoError(t, err)
		assert.Contains(t, unsent, "u2")
	})
}
