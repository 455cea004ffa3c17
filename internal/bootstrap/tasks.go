package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/focusmode/focusd/config"
	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/domain/model"
)

// Recurring task names. One row per name; re-registration refreshes the
// schedule without re-firing it.
const (
	TaskNewUserCheck      = "new_user_check"
	TaskPaidUserCheck     = "paid_user_check"
	TaskInactiveUserCheck = "inactive_user_check"
)

// RegisterRecurringTasks upserts the built-in recurring check tasks. Safe to
// run on every scheduler start.
func RegisterRecurringTasks(
	ctx context.Context,
	repo core.ScheduledJobsRepository,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) error {
	emptyPayload := json.RawMessage(`{}`)

	tasks := []model.UpsertTaskRequest{
		{
			TaskName: TaskNewUserCheck,
			JobType:  model.JobTypeNewUserCheck,
			Payload:  emptyPayload,
			Interval: cfg.NewUserCheckInterval,
		},
		{
			TaskName: TaskPaidUserCheck,
			JobType:  model.JobTypePaidUserCheck,
			Payload:  emptyPayload,
			Interval: cfg.PaidUserCheckInterval,
		},
		inactiveCheckTask(cfg),
	}

	for _, task := range tasks {
		if err := repo.UpsertByTaskName(ctx, task); err != nil {
			return fmt.Errorf("register recurring task %s: %w", task.TaskName, err)
		}
		if logger != nil {
			logger.InfoContext(ctx, "recurring task registered",
				"task_name", task.TaskName,
				"interval", task.Interval,
				"cron", task.CronExpr,
			)
		}
	}
	return nil
}

// inactiveCheckTask prefers the cron schedule and falls back to the plain
// interval when the cron expression is cleared.
func inactiveCheckTask(cfg config.SchedulerConfig) model.UpsertTaskRequest {
	task := model.UpsertTaskRequest{
		TaskName: TaskInactiveUserCheck,
		JobType:  model.JobTypeInactiveUserCheck,
		Payload:  json.RawMessage(`{}`),
	}
	if cfg.InactiveUserCheckCron != "" {
		task.CronExpr = cfg.InactiveUserCheckCron
	} else {
		task.Interval = cfg.InactiveUserCheckInterval
	}
	return task
}
