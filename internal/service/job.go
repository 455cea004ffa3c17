// Package service provides the business logic for the focusd job and
// notification system.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
	obserrors "github.com/focusmode/focusd/internal/observability/errors"
	"github.com/focusmode/focusd/internal/service/failurenotifier"
)

// RetryPolicy controls backoff between job attempts. The delay doubles per
// attempt starting at Base and never exceeds Cap.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRetryPolicy allows four attempts with delays of 30s, 60s, 120s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Base:        30 * time.Second,
		Cap:         10 * time.Minute,
	}
}

// Delay returns the wait before the given retry. retryCount is the number
// of attempts already failed, so the first retry gets Base.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := p.Base
	if delay <= 0 {
		delay = 30 * time.Second
	}
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if p.Cap > 0 && delay >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}
	return delay
}

// MaxRetries converts MaxAttempts into the retry budget stored on a job.
func (p RetryPolicy) MaxRetries() int {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return p.MaxAttempts - 1
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository
	DefaultLease    time.Duration
	RetryPolicy     RetryPolicy
	Logger          *slog.Logger
	FailureNotifier *failurenotifier.Service
	TimeProvider    func() time.Time
}

// JobService wraps the queue repository with lease defaults, retry backoff,
// and terminal failure notification.
type JobService struct {
	repo            core.JobRepository
	defaultLease    time.Duration
	retryPolicy     RetryPolicy
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
	now             func() time.Time
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	lease := opts.DefaultLease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	now := opts.TimeProvider
	if now == nil {
		now = time.Now
	}

	return &JobService{
		repo:            opts.Repo,
		defaultLease:    lease,
		retryPolicy:     policy,
		logger:          opts.Logger,
		failureNotifier: opts.FailureNotifier,
		now:             now,
	}, nil
}

// MustNewJobService constructs a JobService and panics on invalid options.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// RetryPolicy returns the active retry policy.
func (s *JobService) RetryPolicy() RetryPolicy { return s.retryPolicy }

// Create enqueues a new job, defaulting the retry budget from the policy.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req != nil && req.MaxRetries == 0 {
		req.MaxRetries = s.retryPolicy.MaxRetries()
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"scheduled_at", job.ScheduledAt,
		)
	}
	return job, nil
}

// ReserveNext reserves the next available job of the given type.
func (s *JobService) ReserveNext(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	if lease <= 0 {
		lease = s.defaultLease
	}

	job, err := s.repo.ReserveNext(ctx, jobType, lease)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved", "id", job.ID, "type", jobType)
	}
	return job, nil
}

// Heartbeat extends the lease on a running job.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	if extend <= 0 {
		extend = s.defaultLease
	}
	updated, err := s.repo.Heartbeat(ctx, id, extend)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	return updated, nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}
	return completed, nil
}

// Fail records a failed attempt. The backoff delay comes from the retry
// policy and the job's current retry count; terminal failures fan out to
// the failure notifier.
func (s *JobService) Fail(ctx context.Context, id string, failErr error) (model.JobStatus, error) {
	if failErr == nil {
		return "", errors.New("failure error is required")
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load job %s for failure: %w", id, err)
	}

	retryAt := s.now().Add(s.retryPolicy.Delay(job.RetryCount))
	status, err := s.repo.Fail(ctx, id, failErr.Error(), retryAt)
	if err != nil {
		return "", fmt.Errorf("fail job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job attempt failed",
			"id", id,
			"status", status,
			"retry_count", job.RetryCount+1,
			"error", failErr,
		)
	}

	if status == model.JobStatusFailed && s.failureNotifier != nil {
		s.failureNotifier.NotifyJobFailure(ctx, failurenotifier.JobFailure{
			JobID:      id,
			JobType:    string(job.Type),
			Error:      failErr.Error(),
			ErrorClass: obserrors.Classify(failErr),
			RetryCount: job.RetryCount + 1,
			MaxRetries: job.MaxRetries,
			OccurredAt: s.now().UTC(),
		})
	}
	return status, nil
}

// Stats returns queue counts across all job types.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// ListRecent returns the most recently created jobs of the given type.
func (s *JobService) ListRecent(ctx context.Context, jobType model.JobType, limit int) ([]*model.Job, error) {
	jobs, err := s.repo.ListRecent(ctx, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs of type %s: %w", jobType, err)
	}
	return jobs, nil
}
