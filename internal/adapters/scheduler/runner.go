// Package scheduler provides the adapter that runs the recurring-task
// scheduler loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	obserrors "github.com/focusmode/focusd/internal/observability/errors"
	"github.com/focusmode/focusd/internal/observability/metrics"
	"github.com/focusmode/focusd/internal/observability/statsd"
	"github.com/focusmode/focusd/internal/service"
)

// Runner drives the scheduler service with a tick loop at a configurable
// interval.
type Runner struct {
	scheduler *service.SchedulerService
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Scheduler *service.SchedulerService
	Interval  time.Duration
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler service is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 1 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		scheduler: opts.Scheduler,
		interval:  opts.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
// Tick errors are logged and the loop continues; a stuck database should
// not take the whole process down.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			processed, err := r.scheduler.Tick(ctx, now)
			elapsed := time.Since(start)

			r.emitTickMetrics(processed, elapsed, err)

			if err != nil {
				r.logger.ErrorContext(ctx, "scheduler tick error", "error", err)
			} else if processed > 0 {
				r.logger.InfoContext(ctx, "scheduler tick fired tasks", "processed", processed)
			}
		}
	}
}

func (r *Runner) emitTickMetrics(processed int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if processed == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)
	if processed > 0 {
		r.metrics.Count("scheduler.tasks_enqueued", int64(processed), tags)
	}
	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
