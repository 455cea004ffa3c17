// Package jobrunner provides job execution and worker management for the
// focusd queue.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/metrics"
	"github.com/focusmode/focusd/internal/observability/statsd"
	"github.com/focusmode/focusd/internal/service"
)

// HandlerFunc processes a job and returns error to indicate failure (which
// will be retried per policy).
type HandlerFunc func(ctx context.Context, job *model.Job) error

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs   *service.JobService
	Logger *slog.Logger

	// Job processing settings
	Lease        time.Duration // per-job lease duration; defaults to 30s
	Concurrency  int           // number of worker goroutines; defaults to 1
	JobType      model.JobType // which job type to process
	PollInterval time.Duration // idle wait between queue polls; defaults to 2s

	Metrics statsd.Sink
}

// Runner pulls jobs of one type and executes them using registered handlers.
type Runner struct {
	jobs         *service.JobService
	logger       *slog.Logger
	lease        time.Duration
	jobType      model.JobType
	workers      int
	pollInterval time.Duration
	handlers     map[model.JobType]HandlerFunc
	metrics      statsd.Sink
}

// NewRunner constructs a job runner for a single job type.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if !opts.JobType.Valid() {
		return nil, fmt.Errorf("invalid job type %q", opts.JobType)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &Runner{
		jobs:         opts.Jobs,
		logger:       logger,
		lease:        lease,
		jobType:      opts.JobType,
		workers:      workers,
		pollInterval: poll,
		handlers:     make(map[model.JobType]HandlerFunc),
		metrics:      opts.Metrics,
	}, nil
}

// RegisterHandler installs the handler for a job type. Must be called before
// Run.
func (r *Runner) RegisterHandler(t model.JobType, h HandlerFunc) {
	r.handlers[t] = h
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"type", r.jobType, "workers", r.workers, "lease", r.lease)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForPoll(ctx) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForPoll(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.pollInterval):
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	h, ok := r.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", job.Type)
		r.fail(ctx, job.ID, err)
		emit("failed", metrics.ResultError, err)
		return
	}
	if err := h(ctx, job); err != nil {
		r.fail(ctx, job.ID, err)
		emit("failed", metrics.ResultError, err)
		return
	}
	if completed, err := r.jobs.Complete(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}

func (r *Runner) fail(ctx context.Context, id string, jobErr error) {
	if _, err := r.jobs.Fail(ctx, id, jobErr); err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", id, "error", err, "original_error", jobErr)
	}
}
