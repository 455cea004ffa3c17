// Package config loads focusd configuration from environment variables
// using the github.com/caarlos0/env library. See the individual files for
// the available variables:
//   - database.go: Postgres and Redis configuration
//   - services.go: service mode and worker configuration
//   - notifications.go: notification channel configuration
//   - observability.go: metrics configuration
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
type AppConfig struct {
	// IsDev controls development mode behavior (log level, source logging).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services is a comma-delimited list of enabled services.
	// Valid values: ops, scheduler, check-runner, cleanup-runner, reaper
	Services string `env:"SERVICES" envDefault:"ops"`

	// Ops HTTP server configuration
	Ops OpsConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Check runner configuration
	CheckRunner CheckRunnerConfig

	// Session cleanup runner configuration
	CleanupRunner CleanupRunnerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Notification channel configuration
	Notifications NotificationsConfig

	// Slack Web API configuration for session cleanup
	SlackAPI SlackAPIConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment
// variables.
func (c *AppConfig) Sanitize() {
	c.Ops.Sanitize()
	c.Scheduler.Sanitize()
	c.CheckRunner.Sanitize()
	c.CleanupRunner.Sanitize()
	c.Reaper.Sanitize()
	c.Notifications.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsOpsServerEnabled returns true if the ops HTTP server is enabled.
func (c *AppConfig) IsOpsServerEnabled() bool {
	return c.isEnabled(ServiceModeOps)
}

// IsSchedulerEnabled returns true if the scheduler service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.isEnabled(ServiceModeScheduler)
}

// IsCheckRunnerEnabled returns true if the check runner is enabled.
func (c *AppConfig) IsCheckRunnerEnabled() bool {
	return c.isEnabled(ServiceModeCheckRunner)
}

// IsCleanupRunnerEnabled returns true if the session cleanup runner is enabled.
func (c *AppConfig) IsCleanupRunnerEnabled() bool {
	return c.isEnabled(ServiceModeCleanupRunner)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
