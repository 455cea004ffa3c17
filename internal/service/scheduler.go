package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
)

// SchedulerConfig controls one scheduler tick.
type SchedulerConfig struct {
	BatchSize  int
	MaxRetries int
}

// DefaultSchedulerConfig returns sensible tick defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{BatchSize: 20, MaxRetries: 3}
}

// SchedulerServiceOptions holds the dependencies for a SchedulerService.
type SchedulerServiceOptions struct {
	Repo         core.ScheduledJobsRepository
	Jobs         core.JobRepository
	Config       *SchedulerConfig
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// SchedulerService turns due recurring tasks into queued jobs. Safe under
// concurrent replicas: FindDueTx locks candidate rows with SKIP LOCKED, and
// the fire key plus a live-job check suppress overlapping fires.
type SchedulerService struct {
	repo         core.ScheduledJobsRepository
	jobs         core.JobRepository
	cfg          SchedulerConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewSchedulerService creates a SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	if opts.TimeProvider == nil {
		opts.TimeProvider = data.RealTimeProvider{}
	}
	cfg := DefaultSchedulerConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &SchedulerService{
		repo:         opts.Repo,
		jobs:         opts.Jobs,
		cfg:          cfg,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
	}
}

// Tick processes due tasks and enqueues jobs. Returns the number of tasks
// that actually fired.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	processed := 0
	err := s.repo.InTx(ctx, func(tx *sql.Tx) error {
		due, err := s.repo.FindDueTx(ctx, tx, now, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("find due tasks: %w", err)
		}

		for _, task := range due {
			fired, processErr := s.processTask(ctx, tx, task, now)
			if processErr != nil {
				return fmt.Errorf("process task %s: %w", task.TaskName, processErr)
			}
			if fired {
				processed++
			}
		}
		return nil
	})
	if err != nil {
		return processed, err
	}
	return processed, nil
}

// processTask fires a single task unless something suppresses it. Returns
// whether a job was enqueued.
func (s *SchedulerService) processTask(ctx context.Context, tx *sql.Tx, task model.ScheduledTask, now time.Time) (bool, error) {
	if task.CronExpr != "" {
		due, err := cronDue(task, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "invalid cron expression, task skipped",
				"task_name", task.TaskName,
				"cron_expr", task.CronExpr,
				"error", err,
			)
			return false, nil
		}
		if !due {
			return false, nil
		}
	}

	// A live fire key means the previous fire may still be in flight.
	// Trust it only while an unfinished job backs it up; a stale key left
	// by a crash must not wedge the task forever.
	if task.ActiveFireKey != nil {
		busy, err := s.jobs.PendingOrRunningExistsByTaskName(ctx, task.TaskName, now)
		if err != nil {
			return false, fmt.Errorf("check in-flight jobs: %w", err)
		}
		if busy {
			s.logger.DebugContext(ctx, "task still in flight, fire suppressed",
				"task_name", task.TaskName,
			)
			return false, nil
		}

		if err := s.repo.ClearActiveFireKey(ctx, task.TaskName, *task.ActiveFireKey); err != nil {
			return false, fmt.Errorf("clear stale fire key: %w", err)
		}
		s.logger.WarnContext(ctx, "fire key had no live job, cleared",
			"task_name", task.TaskName,
			"fire_key", *task.ActiveFireKey,
		)
	}

	fireKey := uuid.NewString()
	meta, err := schedulerMetadata(task, fireKey)
	if err != nil {
		return false, err
	}

	if _, err := s.jobs.CreateInTx(ctx, tx, &model.CreateJobRequest{
		Type:       task.JobType,
		Payload:    task.Payload,
		Metadata:   meta,
		Priority:   task.Priority,
		MaxRetries: s.cfg.MaxRetries,
	}); err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}

	marked, err := s.repo.MarkQueuedTx(ctx, tx, task.ID, now, fireKey)
	if err != nil {
		return false, err
	}
	if !marked {
		return false, fmt.Errorf("task %s disappeared during tick", task.TaskName)
	}

	s.logger.InfoContext(ctx, "recurring task fired",
		"task_name", task.TaskName,
		"job_type", task.JobType,
		"fire_key", fireKey,
	)
	return true, nil
}

// cronDue reports whether a cron task's next fire after its last fire has
// arrived. Tasks that never fired schedule relative to registration.
func cronDue(task model.ScheduledTask, now time.Time) (bool, error) {
	schedule, err := cron.ParseStandard(task.CronExpr)
	if err != nil {
		return false, err
	}

	baseline := task.UpdatedAt
	if task.LastQueuedAt != nil {
		baseline = *task.LastQueuedAt
	}
	return !schedule.Next(baseline.UTC()).After(now.UTC()), nil
}

func schedulerMetadata(task model.ScheduledTask, fireKey string) (json.RawMessage, error) {
	m := map[string]string{
		"scheduler.task_name": task.TaskName,
		"scheduler.fire_key":  fireKey,
	}
	if task.CronExpr != "" {
		m["scheduler.cron"] = task.CronExpr
	} else {
		m["scheduler.interval"] = (time.Duration(task.IntervalSeconds) * time.Second).String()
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
