// Package failurenotifier fans terminal job failures out to the configured
// notification sinks so operators hear about exhausted retries.
package failurenotifier

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/notify"
)

// JobFailure describes a job that exhausted its retries.
type JobFailure struct {
	JobID      string
	JobType    string
	Error      string
	ErrorClass string
	RetryCount int
	MaxRetries int
	OccurredAt time.Time
}

// SinkRegistration pairs a sink with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{logger: logger, sinks: sinks}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// NotifyJobFailure fans the failure out to all sinks concurrently. Delivery
// failures are logged, never propagated; an ops alert must not affect the
// job state machine.
func (s *Service) NotifyJobFailure(ctx context.Context, failure JobFailure) {
	if len(s.sinks) == 0 {
		return
	}

	occurredAt := failure.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	payload := model.NotificationPayload{
		Type:        "job_failed",
		User:        model.NotificationUser{ID: "system", Name: "focusd"},
		ReferenceID: "job_" + failure.JobID + "_attempt_" + strconv.Itoa(failure.RetryCount),
		Data: map[string]string{
			"job_id":      failure.JobID,
			"job_type":    failure.JobType,
			"error":       failure.Error,
			"error_class": failure.ErrorClass,
			"retry_count": strconv.Itoa(failure.RetryCount),
			"max_retries": strconv.Itoa(failure.MaxRetries),
			"occurred_at": occurredAt.Format(time.RFC3339),
		},
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := entry.Sink.Send(ctx, payload)
			if !result.Success {
				s.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"job_id", failure.JobID,
					"job_type", failure.JobType,
					"error", result.Error,
				)
			}
		}()
	}
	wg.Wait()
}
