// Package model defines the core data types used throughout the focusd job
// and notification system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of background job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeNewUserCheck looks for recently created users and notifies.
	JobTypeNewUserCheck JobType = "new_user_check"
	// JobTypePaidUserCheck looks for recently paid licenses and notifies.
	JobTypePaidUserCheck JobType = "paid_user_check"
	// JobTypeInactiveUserCheck looks for users without recent check-ins.
	JobTypeInactiveUserCheck JobType = "inactive_user_check"
	// JobTypeSessionCleanup reverts side effects of an expired focus session.
	JobTypeSessionCleanup JobType = "session_cleanup"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has exhausted its retries.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeNewUserCheck || t == JobTypePaidUserCheck ||
		t == JobTypeInactiveUserCheck || t == JobTypeSessionCleanup
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Job represents a queued unit of work with its status and retry bookkeeping.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Metadata       json.RawMessage `json:"metadata"                   db:"metadata"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// CheckPayload is the payload carried by the recurring check jobs.
// WindowMinutes overrides the default lookback window when positive.
type CheckPayload struct {
	WindowMinutes int `json:"window_minutes,omitempty"`
}

// SessionCleanupPayload is the payload carried by a session cleanup job.
type SessionCleanupPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Validate checks the cleanup payload for required fields.
func (p *SessionCleanupPayload) Validate() error {
	if strings.TrimSpace(p.SessionID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}

// JobResult is the outcome a processor reports for one executed job.
type JobResult struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}
