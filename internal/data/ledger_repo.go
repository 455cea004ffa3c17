package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
)

// LedgerRepo stores delivered-notification facts in the notifications
// table. The table's unique constraint on (user_id, notification_type,
// reference_id, channel) is what makes delivery at-most-once: writers race
// on the insert and the database picks exactly one winner.
type LedgerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewLedgerRepo creates a LedgerRepo with the given database connection.
func NewLedgerRepo(db *sql.DB, logger *slog.Logger) *LedgerRepo {
	return &LedgerRepo{
		DB:           db,
		timeProvider: RealTimeProvider{},
		logger:       logger,
	}
}

const notificationColumns = `
  id,
  user_id,
  notification_type,
  reference_id,
  channel,
  sent_at,
  provider_result,
  data
`

// HasSent reports whether a delivery record exists for the tuple. A missing
// notifications table reads as "not sent"; every other error propagates so
// callers skip the send rather than risk a duplicate.
func (r *LedgerRepo) HasSent(
	ctx context.Context,
	userID string,
	t model.NotificationType,
	referenceID string,
	channel model.Channel,
) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notifications
			WHERE user_id = $1
			  AND notification_type = $2
			  AND reference_id = $3
			  AND channel = $4
		)
	`, userID, t, referenceID, channel).Scan(&exists)
	if err != nil {
		if isUndefinedTable(err) {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "notifications table missing, treating as unsent",
					"user_id", userID,
					"type", t,
				)
			}
			return false, nil
		}
		return false, fmt.Errorf("check notification sent: %w", err)
	}
	return exists, nil
}

// FilterUnsent returns the candidates (user id -> reference id) with no
// ledger row for the given type and channel. One query regardless of batch
// size: candidates are unnested server-side and anti-joined to the ledger.
func (r *LedgerRepo) FilterUnsent(
	ctx context.Context,
	candidates map[string]string,
	t model.NotificationType,
	channel model.Channel,
) (map[string]struct{}, error) {
	unsent := make(map[string]struct{}, len(candidates))
	if len(candidates) == 0 {
		return unsent, nil
	}

	userIDs := make([]string, 0, len(candidates))
	referenceIDs := make([]string, 0, len(candidates))
	for userID, refID := range candidates {
		userIDs = append(userIDs, userID)
		referenceIDs = append(referenceIDs, refID)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.user_id
		FROM unnest($1::text[], $2::text[]) AS c(user_id, reference_id)
		WHERE NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.user_id = c.user_id
			  AND n.notification_type = $3
			  AND n.reference_id = c.reference_id
			  AND n.channel = $4
		)
	`, userIDs, referenceIDs, t, channel)
	if err != nil {
		if isUndefinedTable(err) {
			for userID := range candidates {
				unsent[userID] = struct{}{}
			}
			return unsent, nil
		}
		return nil, fmt.Errorf("filter unsent notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if serr := rows.Scan(&userID); serr != nil {
			return nil, fmt.Errorf("scan unsent user: %w", serr)
		}
		unsent[userID] = struct{}{}
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, fmt.Errorf("iterate unsent users: %w", rerr)
	}
	return unsent, nil
}

// Record inserts a delivery record. Losing the unique-index race to a
// concurrent writer is not an error; the surviving row is returned either
// way. Real write failures are wrapped in core.ErrRecordingFailed.
func (r *LedgerRepo) Record(ctx context.Context, req core.RecordNotificationRequest) (*model.NotificationRecord, error) {
	data := []byte(`{}`)
	if len(req.Data) > 0 {
		data = req.Data
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, notification_type, reference_id, channel, sent_at, provider_result, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT notifications_dedup_key DO NOTHING
		RETURNING `+notificationColumns,
		req.UserID,
		req.Type,
		req.ReferenceID,
		req.Channel,
		r.timeProvider.Now().UTC(),
		req.ProviderResult,
		data,
	)

	rec, err := scanNotificationRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r.getExisting(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRecordingFailed, err)
	}
	return rec, nil
}

func (r *LedgerRepo) getExisting(ctx context.Context, req core.RecordNotificationRequest) (*model.NotificationRecord, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		  AND notification_type = $2
		  AND reference_id = $3
		  AND channel = $4
	`, req.UserID, req.Type, req.ReferenceID, req.Channel)

	rec, err := scanNotificationRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch existing record: %w", core.ErrRecordingFailed, err)
	}
	return rec, nil
}

func scanNotificationRecord(scanner jobRowScanner) (*model.NotificationRecord, error) {
	var (
		rec  model.NotificationRecord
		data []byte
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Type,
		&rec.ReferenceID,
		&rec.Channel,
		&rec.SentAt,
		&rec.ProviderResult,
		&data,
	); err != nil {
		return nil, err
	}
	rec.Data = cloneJSON(data)
	return &rec, nil
}
