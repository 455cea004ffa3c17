// Package core declares the interfaces the focusd services are wired
// against. Implementations live under internal/data and internal/adapters.
package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// ErrRecordingFailed wraps a ledger write failure. Callers must never
// swallow it: a lost success record means a future run may re-deliver.
var ErrRecordingFailed = errors.New("recording notification failed")

// RecordNotificationRequest carries one successful delivery into the ledger.
type RecordNotificationRequest struct {
	UserID         string
	Type           model.NotificationType
	ReferenceID    string
	Channel        model.Channel
	ProviderResult string
	Data           []byte
}

// LedgerRepository is the append-only store of delivered-notification facts.
type LedgerRepository interface {
	// HasSent reports whether a delivery record exists for the tuple.
	// A missing ledger table reads as "not sent" (first-run schema gap);
	// any other error is returned as-is.
	HasSent(ctx context.Context, userID string, t model.NotificationType, referenceID string, channel model.Channel) (bool, error)

	// FilterUnsent returns the subset of candidates (user id -> reference
	// id) that have no ledger row for the given type and channel. It must
	// issue a single query regardless of candidate count.
	FilterUnsent(ctx context.Context, candidates map[string]string, t model.NotificationType, channel model.Channel) (map[string]struct{}, error)

	// Record inserts a delivery record. A concurrent duplicate insert is
	// not an error (the unique index decides the winner); any real write
	// failure is wrapped in ErrRecordingFailed.
	Record(ctx context.Context, req RecordNotificationRequest) (*model.NotificationRecord, error)
}

// JobRepository provides the durable queue operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error)

	// ReserveNext atomically claims the next eligible job of the given
	// type, requeuing any whose lease expired first. Returns
	// model.ErrNoJobsAvailable when the queue is empty.
	ReserveNext(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error)

	Heartbeat(ctx context.Context, jobID string, lease time.Duration) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)

	// Fail records a failed attempt. Jobs with retries left go back to
	// pending with visibility deferred until retryAt; exhausted jobs move
	// to failed. The resulting status is returned.
	Fail(ctx context.Context, id, errMsg string, retryAt time.Time) (model.JobStatus, error)

	Stats(ctx context.Context) (*model.JobStats, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ListRecent(ctx context.Context, jobType model.JobType, limit int) ([]*model.Job, error)

	// PendingOrRunningExistsByTaskName reports whether an unfinished job
	// carries the given scheduler task name in its metadata. Used to
	// suppress overlapping recurring fires.
	PendingOrRunningExistsByTaskName(ctx context.Context, taskName string, now time.Time) (bool, error)

	// Retention sweeps, driven by the reaper.
	FailStalePending(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOld(ctx context.Context, status model.JobStatus, maxAge time.Duration, batchSize int) (int64, error)
}

// ScheduledJobsRepository manages recurring task definitions.
type ScheduledJobsRepository interface {
	// InTx runs fn inside a transaction; FindDueTx row locks hold until
	// the transaction ends.
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	FindDueTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]model.ScheduledTask, error)
	MarkQueuedTx(ctx context.Context, tx *sql.Tx, id string, now time.Time, fireKey string) (bool, error)
	ClearActiveFireKey(ctx context.Context, taskName, fireKey string) error

	// UpsertByTaskName registers or refreshes a task. last_queued_at is
	// preserved on update so re-registration never re-fires a schedule.
	UpsertByTaskName(ctx context.Context, req model.UpsertTaskRequest) error
	DeleteByTaskName(ctx context.Context, taskName string) (bool, error)
	List(ctx context.Context) ([]model.ScheduledTask, error)
}

// UserRepository reads candidate users for the recurring checks.
type UserRepository interface {
	CreatedSince(ctx context.Context, since time.Time, limit int) ([]model.User, error)
	InactiveSince(ctx context.Context, cutoff time.Time, limit int) ([]model.User, error)
}

// LicenseRepository reads and idempotently writes issued licenses.
type LicenseRepository interface {
	// PaidSince returns licenses paid at or after the given time that
	// carry a payment provider id.
	PaidSince(ctx context.Context, since time.Time, limit int) ([]model.License, error)

	// UpsertByPaymentID creates or refreshes a license keyed by the
	// payment provider id, making webhook redelivery a no-op.
	UpsertByPaymentID(ctx context.Context, req model.UpsertLicenseRequest) (*model.License, error)
}

// ErrSessionNotFound is returned when a focus session does not exist.
var ErrSessionNotFound = errors.New("focus session not found")

// SessionStore persists focus-session state (owned by the chat
// integration; this system only reads it and flips it inactive).
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.FocusSession, error)
	Save(ctx context.Context, sess *model.FocusSession) error
}

// WorkspaceClient reverts focus-session side effects in a chat workspace.
// Both calls are safe against already-cleared state.
type WorkspaceClient interface {
	ClearStatus(ctx context.Context, token, userID string) error
	EndDND(ctx context.Context, token, userID string) error
}
