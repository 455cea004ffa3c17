package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
)

// PaymentEvent is a normalized payment-provider webhook event.
type PaymentEvent struct {
	PaymentID string
	UserID    string
	Email     string
	Plan      string
	PaidAt    time.Time
}

// LicenseServiceOptions groups dependencies for LicenseService.
type LicenseServiceOptions struct {
	Repo         core.LicenseRepository
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// LicenseService issues licenses from payment events. Issuance is keyed by
// the provider payment id, so webhook redelivery refreshes the same license
// instead of minting a second one. The paid-user notification is not sent
// here; the recurring paid check picks the license up and the ledger dedups.
type LicenseService struct {
	repo         core.LicenseRepository
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewLicenseService constructs a LicenseService.
func NewLicenseService(opts LicenseServiceOptions) (*LicenseService, error) {
	if opts.Repo == nil {
		return nil, errors.New("license repository is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "license_service")
	}
	return &LicenseService{
		repo:         opts.Repo,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
	}, nil
}

// HandlePaymentEvent issues or refreshes the license for one payment event.
func (s *LicenseService) HandlePaymentEvent(ctx context.Context, event PaymentEvent) (*model.License, error) {
	if strings.TrimSpace(event.PaymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	if strings.TrimSpace(event.UserID) == "" {
		return nil, errors.New("user id is required")
	}

	paidAt := event.PaidAt
	if paidAt.IsZero() {
		paidAt = s.timeProvider.Now()
	}

	lic, err := s.repo.UpsertByPaymentID(ctx, model.UpsertLicenseRequest{
		UserID:    event.UserID,
		Email:     event.Email,
		PaymentID: event.PaymentID,
		Plan:      event.Plan,
		Status:    "active",
		PaidAt:    paidAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue license for payment %s: %w", event.PaymentID, err)
	}

	s.logger.InfoContext(ctx, "license issued",
		"license_id", lic.ID,
		"user_id", lic.UserID,
		"payment_id", lic.PaymentID,
		"plan", lic.Plan,
	)
	return lic, nil
}
