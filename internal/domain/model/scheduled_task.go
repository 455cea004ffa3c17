package model

import (
	"encoding/json"
	"time"
)

// ScheduledTask is a recurring job definition stored in scheduled_jobs.
// TaskName is unique; registering the same name again updates the schedule
// without resetting last_queued_at, which makes registration idempotent.
//
// Exactly one of IntervalSeconds (> 0) or CronExpr (non-empty) defines the
// cadence. Cron expressions use the standard 5-field form.
type ScheduledTask struct {
	ID              string          `json:"id"`
	TaskName        string          `json:"task_name"`
	JobType         JobType         `json:"job_type"`
	Payload         json.RawMessage `json:"payload"`
	IntervalSeconds int64           `json:"interval_seconds"`
	CronExpr        string          `json:"cron_expr,omitempty"`
	Priority        int             `json:"priority"`
	LastQueuedAt    *time.Time      `json:"last_queued_at,omitempty"`
	ActiveFireKey   *string         `json:"active_fire_key,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// UpsertTaskRequest registers or refreshes a recurring task by name.
type UpsertTaskRequest struct {
	TaskName string
	JobType  JobType
	Payload  json.RawMessage
	Interval time.Duration
	CronExpr string
	Priority int
}
