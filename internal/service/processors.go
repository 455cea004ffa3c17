package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
)

// CheckConfig holds the lookback windows for the recurring checks. A job
// payload may override the window for the new/paid checks.
type CheckConfig struct {
	NewUserWindow  time.Duration
	PaidUserWindow time.Duration
	InactiveAfter  time.Duration
	BatchLimit     int
}

// DefaultCheckConfig matches the default recurring task intervals: the
// checks run every ten minutes with a matching lookback, and inactivity
// means a week of silence.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		NewUserWindow:  10 * time.Minute,
		PaidUserWindow: 10 * time.Minute,
		InactiveAfter:  7 * 24 * time.Hour,
		BatchLimit:     500,
	}
}

// CheckProcessorsOptions groups dependencies for CheckProcessors.
type CheckProcessorsOptions struct {
	Users        core.UserRepository
	Licenses     core.LicenseRepository
	Dispatcher   *BatchDispatcher
	Config       *CheckConfig
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// CheckProcessors implements the recurring check jobs. Each handler reads
// its candidate set and hands the batch to the dispatcher; the ledger makes
// re-running a check harmless.
type CheckProcessors struct {
	users        core.UserRepository
	licenses     core.LicenseRepository
	dispatcher   *BatchDispatcher
	cfg          CheckConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewCheckProcessors constructs the recurring check handlers.
func NewCheckProcessors(opts CheckProcessorsOptions) *CheckProcessors {
	cfg := DefaultCheckConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &CheckProcessors{
		users:        opts.Users,
		licenses:     opts.Licenses,
		dispatcher:   opts.Dispatcher,
		cfg:          cfg,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
	}
}

// HandleNewUserCheck notifies about users created inside the lookback
// window. The window deliberately overlaps consecutive runs; the ledger
// dedups the overlap.
func (p *CheckProcessors) HandleNewUserCheck(ctx context.Context, job *model.Job) error {
	window := p.window(job, p.cfg.NewUserWindow)
	since := p.timeProvider.Now().Add(-window)

	users, err := p.users.CreatedSince(ctx, since, p.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load new users: %w", err)
	}

	batch := make([]model.NotificationUser, 0, len(users))
	for _, u := range users {
		batch = append(batch, newUserNotification(u))
	}

	summary, err := p.dispatcher.Dispatch(ctx, DispatchRequest{
		Type:  model.NotificationNewUser,
		Users: batch,
	})
	if err != nil {
		return fmt.Errorf("dispatch new user notifications: %w", err)
	}
	p.logSummary(ctx, job, len(batch), summary)
	return nil
}

// HandlePaidUserCheck notifies about licenses paid inside the lookback
// window. The reference id is derived from the license, so a re-paid or
// refreshed license row cannot double-notify.
func (p *CheckProcessors) HandlePaidUserCheck(ctx context.Context, job *model.Job) error {
	window := p.window(job, p.cfg.PaidUserWindow)
	since := p.timeProvider.Now().Add(-window)

	licenses, err := p.licenses.PaidSince(ctx, since, p.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load paid licenses: %w", err)
	}

	batch := make([]model.NotificationUser, 0, len(licenses))
	for _, lic := range licenses {
		batch = append(batch, paidUserNotification(lic))
	}

	summary, err := p.dispatcher.Dispatch(ctx, DispatchRequest{
		Type:  model.NotificationPaidUser,
		Users: batch,
	})
	if err != nil {
		return fmt.Errorf("dispatch paid user notifications: %w", err)
	}
	p.logSummary(ctx, job, len(batch), summary)
	return nil
}

// HandleInactiveUserCheck notifies once per user that went quiet. The
// reference id carries no timestamp, so the same user can never trigger a
// second inactive notification.
func (p *CheckProcessors) HandleInactiveUserCheck(ctx context.Context, job *model.Job) error {
	cutoff := p.timeProvider.Now().Add(-p.cfg.InactiveAfter)

	users, err := p.users.InactiveSince(ctx, cutoff, p.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load inactive users: %w", err)
	}

	batch := make([]model.NotificationUser, 0, len(users))
	for _, u := range users {
		batch = append(batch, inactiveUserNotification(u))
	}

	summary, err := p.dispatcher.Dispatch(ctx, DispatchRequest{
		Type:  model.NotificationInactiveUser,
		Users: batch,
	})
	if err != nil {
		return fmt.Errorf("dispatch inactive user notifications: %w", err)
	}
	p.logSummary(ctx, job, len(batch), summary)
	return nil
}

func (p *CheckProcessors) window(job *model.Job, fallback time.Duration) time.Duration {
	if job == nil || len(job.Payload) == 0 {
		return fallback
	}
	var payload model.CheckPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fallback
	}
	if payload.WindowMinutes > 0 {
		return time.Duration(payload.WindowMinutes) * time.Minute
	}
	return fallback
}

func (p *CheckProcessors) logSummary(ctx context.Context, job *model.Job, candidates int, summary DispatchSummary) {
	p.logger.InfoContext(ctx, "check completed",
		"job_type", job.Type,
		"candidates", candidates,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
}

func newUserNotification(u model.User) model.NotificationUser {
	createdAt := u.CreatedAt
	return model.NotificationUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: &createdAt,
	}
}

func paidUserNotification(lic model.License) model.NotificationUser {
	return model.NotificationUser{
		ID:        lic.UserID,
		Email:     lic.Email,
		PaidAt:    lic.PaidAt,
		LicenseID: lic.ID,
	}
}

func inactiveUserNotification(u model.User) model.NotificationUser {
	createdAt := u.CreatedAt
	return model.NotificationUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		CreatedAt:     &createdAt,
		LastCheckinAt: u.LastCheckinAt,
	}
}
