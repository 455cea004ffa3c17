package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// LicenseRepo reads and idempotently writes issued licenses.
type LicenseRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewLicenseRepo creates a LicenseRepo with the given database connection.
func NewLicenseRepo(db *sql.DB) *LicenseRepo {
	return &LicenseRepo{DB: db, timeProvider: RealTimeProvider{}}
}

const licenseColumns = `
  id,
  user_id,
  email,
  payment_id,
  plan,
  status,
  paid_at,
  created_at,
  updated_at
`

// PaidSince returns licenses paid at or after the given time that carry a
// payment provider id, oldest first.
func (r *LicenseRepo) PaidSince(ctx context.Context, since time.Time, limit int) ([]model.License, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE paid_at >= $1
		  AND payment_id <> ''
		ORDER BY paid_at ASC
		LIMIT $2
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query licenses paid since: %w", err)
	}
	defer rows.Close()

	var licenses []model.License
	for rows.Next() {
		lic, serr := scanLicense(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan license: %w", serr)
		}
		licenses = append(licenses, lic)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, fmt.Errorf("iterate licenses: %w", rerr)
	}
	return licenses, nil
}

// UpsertByPaymentID creates or refreshes a license keyed by the payment
// provider's id. Webhook redelivery hits the conflict path and updates the
// existing row instead of minting a second license.
func (r *LicenseRepo) UpsertByPaymentID(ctx context.Context, req model.UpsertLicenseRequest) (*model.License, error) {
	if strings.TrimSpace(req.PaymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.New("user id is required")
	}

	status := req.Status
	if status == "" {
		status = "active"
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO licenses (user_id, email, payment_id, plan, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT ON CONSTRAINT licenses_payment_id_key DO UPDATE
		SET email = EXCLUDED.email,
		    plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    paid_at = EXCLUDED.paid_at,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+licenseColumns,
		req.UserID,
		req.Email,
		req.PaymentID,
		req.Plan,
		status,
		req.PaidAt.UTC(),
		now,
	)

	lic, err := scanLicense(row)
	if err != nil {
		return nil, fmt.Errorf("upsert license: %w", err)
	}
	return &lic, nil
}

func scanLicense(scanner jobRowScanner) (model.License, error) {
	var (
		lic    model.License
		paidAt sql.NullTime
	)
	if err := scanner.Scan(
		&lic.ID,
		&lic.UserID,
		&lic.Email,
		&lic.PaymentID,
		&lic.Plan,
		&lic.Status,
		&paidAt,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	); err != nil {
		return model.License{}, err
	}
	lic.PaidAt = cloneNullableTime(paidAt)
	return lic, nil
}
