// Package reaper provides the adapter that runs the job retention sweeps.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/statsd"
)

// RunnerOptions holds the dependencies and retention policy for a Runner.
// Zero durations get conservative defaults; sweeps run behind advisory
// locks, so overlapping replicas are harmless.
type RunnerOptions struct {
	Repo   core.JobRepository
	Logger *slog.Logger

	Interval        time.Duration // sweep cadence; defaults to 5m
	PendingMaxAge   time.Duration // pending jobs older than this fail; defaults to 24h
	CompletedMaxAge time.Duration // completed jobs older than this are deleted; defaults to 7d
	FailedMaxAge    time.Duration // failed jobs older than this are deleted; defaults to 30d
	BatchSize       int           // rows per sweep statement; defaults to 500

	Metrics statsd.Sink
}

// Runner periodically fails stale pending jobs and deletes old terminal
// ones.
type Runner struct {
	repo    core.JobRepository
	logger  *slog.Logger
	opts    RunnerOptions
	metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.PendingMaxAge <= 0 {
		opts.PendingMaxAge = 24 * time.Hour
	}
	if opts.CompletedMaxAge <= 0 {
		opts.CompletedMaxAge = 7 * 24 * time.Hour
	}
	if opts.FailedMaxAge <= 0 {
		opts.FailedMaxAge = 30 * 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}

	return &Runner{
		repo:    opts.Repo,
		logger:  opts.Logger,
		opts:    opts,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled. The
// first sweep happens immediately so a fresh deploy cleans up right away.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner", "interval", r.opts.Interval)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	failed, err := r.repo.FailStalePending(ctx, r.opts.PendingMaxAge, r.opts.BatchSize)
	r.report(ctx, "fail_stale_pending", failed, err)

	deleted, err := r.repo.DeleteOld(ctx, model.JobStatusCompleted, r.opts.CompletedMaxAge, r.opts.BatchSize)
	r.report(ctx, "delete_completed", deleted, err)

	deleted, err = r.repo.DeleteOld(ctx, model.JobStatusFailed, r.opts.FailedMaxAge, r.opts.BatchSize)
	r.report(ctx, "delete_failed", deleted, err)
}

func (r *Runner) report(ctx context.Context, op string, affected int64, err error) {
	if err != nil {
		r.logger.ErrorContext(ctx, "reaper sweep error", "op", op, "error", err)
		if r.metrics != nil {
			r.metrics.Count("reaper.sweep_error", 1, map[string]string{"op": op})
		}
		return
	}
	if affected > 0 {
		r.logger.InfoContext(ctx, "reaper sweep", "op", op, "affected", affected)
	}
	if r.metrics != nil && affected > 0 {
		r.metrics.Count("reaper.swept", affected, map[string]string{"op": op})
	}
}
