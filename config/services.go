package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeOps runs the operational HTTP server.
	ServiceModeOps ServiceMode = "ops"
	// ServiceModeScheduler runs the recurring-task scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeCheckRunner runs the notification check job runners.
	ServiceModeCheckRunner ServiceMode = "check-runner"
	// ServiceModeCleanupRunner runs the session cleanup job runner.
	ServiceModeCleanupRunner ServiceMode = "cleanup-runner"
	// ServiceModeReaper runs the job reaper for retention sweeps.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeOps,
		ServiceModeScheduler,
		ServiceModeCheckRunner,
		ServiceModeCleanupRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all service names are valid and
// returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeOps,
			ServiceModeScheduler,
			ServiceModeCheckRunner,
			ServiceModeCleanupRunner,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: ops, scheduler, check-runner, cleanup-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OpsConfig contains the operational HTTP server configuration.
type OpsConfig struct {
	// Addr is the listen address for the ops endpoints.
	Addr string `env:"OPS_ADDR" envDefault:":8080"`

	// ReadTimeout bounds request reads; ops requests are tiny.
	ReadTimeout time.Duration `env:"OPS_READ_TIMEOUT" envDefault:"5s"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `env:"OPS_WRITE_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to ops server configuration values.
func (o *OpsConfig) Sanitize() {
	if strings.TrimSpace(o.Addr) == "" {
		o.Addr = ":8080"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// BatchSize is the number of due tasks to process per tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"20"`

	// MaxRetries is the retry budget given to jobs the scheduler enqueues.
	MaxRetries int `env:"SCHEDULER_MAX_RETRIES" envDefault:"3"`

	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"5s"`

	// NewUserCheckInterval is the cadence of the new user check task.
	NewUserCheckInterval time.Duration `env:"SCHEDULER_NEW_USER_CHECK_INTERVAL" envDefault:"10m"`

	// PaidUserCheckInterval is the cadence of the paid user check task.
	PaidUserCheckInterval time.Duration `env:"SCHEDULER_PAID_USER_CHECK_INTERVAL" envDefault:"10m"`

	// InactiveUserCheckCron is the cron schedule of the inactive user check
	// task. Clearing it falls back to InactiveUserCheckInterval.
	InactiveUserCheckCron string `env:"SCHEDULER_INACTIVE_USER_CHECK_CRON" envDefault:"0 9 * * *"`

	// InactiveUserCheckInterval is the fallback cadence of the inactive user
	// check task when no cron schedule is set.
	InactiveUserCheckInterval time.Duration `env:"SCHEDULER_INACTIVE_USER_CHECK_INTERVAL" envDefault:"24h"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.Interval < 1*time.Second {
		s.Interval = 1 * time.Second
	}
	if s.NewUserCheckInterval < 1*time.Minute {
		s.NewUserCheckInterval = 1 * time.Minute
	}
	if s.PaidUserCheckInterval < 1*time.Minute {
		s.PaidUserCheckInterval = 1 * time.Minute
	}
	s.InactiveUserCheckCron = strings.TrimSpace(s.InactiveUserCheckCron)
	if s.InactiveUserCheckInterval < 1*time.Hour {
		s.InactiveUserCheckInterval = 1 * time.Hour
	}
}

// CheckRunnerConfig contains check runner service configuration.
type CheckRunnerConfig struct {
	// Concurrency is the number of worker goroutines per check type.
	Concurrency int `env:"CHECK_RUNNER_CONCURRENCY" envDefault:"1"`

	// JobLease is the duration to lease a check job.
	JobLease time.Duration `env:"CHECK_RUNNER_JOB_LEASE" envDefault:"60s"`

	// PollInterval is the idle wait between queue polls.
	PollInterval time.Duration `env:"CHECK_RUNNER_POLL_INTERVAL" envDefault:"2s"`

	// BatchLimit caps how many candidates one check run processes.
	BatchLimit int `env:"CHECK_RUNNER_BATCH_LIMIT" envDefault:"500"`
}

// Sanitize applies guardrails to check runner configuration values.
func (c *CheckRunnerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.JobLease < 5*time.Second {
		c.JobLease = 5 * time.Second
	}
	if c.PollInterval < 100*time.Millisecond {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.BatchLimit < 1 {
		c.BatchLimit = 1
	}
}

// CleanupRunnerConfig contains session cleanup runner configuration.
type CleanupRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CLEANUP_RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a cleanup job.
	JobLease time.Duration `env:"CLEANUP_RUNNER_JOB_LEASE" envDefault:"30s"`

	// PollInterval is the idle wait between queue polls.
	PollInterval time.Duration `env:"CLEANUP_RUNNER_POLL_INTERVAL" envDefault:"2s"`
}

// Sanitize applies guardrails to cleanup runner configuration values.
func (c *CleanupRunnerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.JobLease < 5*time.Second {
		c.JobLease = 5 * time.Second
	}
	if c.PollInterval < 100*time.Millisecond {
		c.PollInterval = 100 * time.Millisecond
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are
	// marked as failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// SlackAPIConfig contains Slack Web API configuration for session cleanup.
// Access tokens are carried per workspace in the session state; this only
// configures the API endpoint and timeout.
type SlackAPIConfig struct {
	BaseURL string        `env:"SLACK_API_BASE_URL" envDefault:"https://slack.com/api"`
	Timeout time.Duration `env:"SLACK_API_TIMEOUT"  envDefault:"10s"`
}
