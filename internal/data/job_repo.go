package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// ErrJobNotFound is returned when a job is not found.
var ErrJobNotFound = errors.New("job not found")

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the durable job queue.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  payload,
  metadata,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	var (
		job                                    model.Job
		payload, metadata                      []byte
		lastError                              sql.NullString
		startedAt, completedAt, leaseExpiresAt sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&payload,
		&metadata,
		&job.ScheduledAt,
		&startedAt,
		&completedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&lastError,
		&leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = cloneJSON(payload)
	job.Metadata = cloneJSON(metadata)
	job.LastError = cloneNullableString(lastError)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.LeaseExpiresAt = cloneNullableTime(leaseExpiresAt)
	return &job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
