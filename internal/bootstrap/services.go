package bootstrap

import (
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/focusmode/focusd/config"
	redisadapter "github.com/focusmode/focusd/internal/adapters/redis"
	"github.com/focusmode/focusd/internal/adapters/slackapi"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/observability/notify"
	"github.com/focusmode/focusd/internal/observability/notify/discord"
	"github.com/focusmode/focusd/internal/observability/notify/email"
	"github.com/focusmode/focusd/internal/observability/notify/slack"
	"github.com/focusmode/focusd/internal/observability/statsd"
	"github.com/focusmode/focusd/internal/service"
	"github.com/focusmode/focusd/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Engine        *service.NotificationEngine
	Dispatcher    *service.BatchDispatcher
	Checks        *service.CheckProcessors
	Cleanup       *service.SessionCleanupService
	Licenses      *service.LicenseService
	Scheduler     *service.SchedulerService
	JobRepo       *data.JobRepo
	TasksRepo     *data.ScheduledJobsRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires repositories, observability, and domain services.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	sinks := buildChannelSinks(cfg.Notifications, logger)
	observability := buildObservability(logger, cfg, sinks)

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	tasksRepo := data.NewScheduledJobsRepo(deps.DB)
	ledgerRepo := data.NewLedgerRepo(deps.DB, logger)
	userRepo := data.NewUserRepo(deps.DB)
	licenseRepo := data.NewLicenseRepo(deps.DB)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:            jobRepo,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
	})

	engine := service.NewNotificationEngine(service.EngineOptions{
		Config: service.EngineConfig{
			Sinks:           sinks,
			DefaultChannels: cfg.Notifications.DefaultChannelMap(),
		},
		Logger:  logger.With("component", "notification_engine"),
		Metrics: metricsSink(observability),
	})

	dispatcher, err := service.NewBatchDispatcher(service.DispatcherOptions{
		Engine:  engine,
		Ledger:  ledgerRepo,
		Logger:  logger.With("component", "batch_dispatcher"),
		Metrics: metricsSink(observability),
	})
	if err != nil {
		logger.Error("failed to build batch dispatcher", "error", err)
	}

	checkCfg := service.DefaultCheckConfig()
	checkCfg.BatchLimit = cfg.CheckRunner.BatchLimit
	checkCfg.NewUserWindow = cfg.Scheduler.NewUserCheckInterval
	checkCfg.PaidUserWindow = cfg.Scheduler.PaidUserCheckInterval
	checks := service.NewCheckProcessors(service.CheckProcessorsOptions{
		Users:      userRepo,
		Licenses:   licenseRepo,
		Dispatcher: dispatcher,
		Config:     &checkCfg,
		Logger:     logger.With("component", "check_processors"),
	})

	cleanup := buildCleanupService(deps, cfg, jobs, logger)

	licenses, err := service.NewLicenseService(service.LicenseServiceOptions{
		Repo:   licenseRepo,
		Logger: logger.With("component", "license_service"),
	})
	if err != nil {
		logger.Error("failed to build license service", "error", err)
	}

	schedulerCfg := service.SchedulerConfig{
		BatchSize:  cfg.Scheduler.BatchSize,
		MaxRetries: cfg.Scheduler.MaxRetries,
	}
	scheduler := service.NewSchedulerService(service.SchedulerServiceOptions{
		Repo:   tasksRepo,
		Jobs:   jobRepo,
		Config: &schedulerCfg,
		Logger: logger.With("component", "scheduler"),
	})

	return ServiceContainer{
		Jobs:          jobs,
		Engine:        engine,
		Dispatcher:    dispatcher,
		Checks:        checks,
		Cleanup:       cleanup,
		Licenses:      licenses,
		Scheduler:     scheduler,
		JobRepo:       jobRepo,
		TasksRepo:     tasksRepo,
		Observability: observability,
	}
}

func buildCleanupService(deps *ServiceDeps, cfg *config.AppConfig, jobs *service.JobService, logger *slog.Logger) *service.SessionCleanupService {
	if deps.RedisClient == nil {
		logger.Warn("redis client not configured; session cleanup disabled")
		return nil
	}

	workspace := slackapi.NewClient(slackapi.Config{
		BaseURL: cfg.SlackAPI.BaseURL,
		Timeout: cfg.SlackAPI.Timeout,
	})

	cleanup, err := service.NewSessionCleanupService(service.SessionCleanupOptions{
		Sessions:  redisadapter.NewSessionStore(deps.RedisClient),
		Workspace: workspace,
		Jobs:      jobs,
		Logger:    logger.With("component", "session_cleanup"),
	})
	if err != nil {
		logger.Error("failed to build session cleanup service", "error", err)
		return nil
	}
	return cleanup
}

// buildChannelSinks constructs one provider per enabled channel.
func buildChannelSinks(cfg config.NotificationsConfig, logger *slog.Logger) []notify.Sink {
	sinks := make([]notify.Sink, 0, 3)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack provider", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.Discord.Enabled {
		client, err := discord.NewClient(discord.Config{
			WebhookURL: cfg.Discord.WebhookURL,
			Username:   cfg.Discord.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise discord provider", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.Email.Enabled {
		client, err := email.NewClient(email.Config{
			APIKey:   cfg.Email.APIKey,
			Endpoint: cfg.Email.Endpoint,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialise email provider", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	return sinks
}

// failureSinkRegistrations picks the channel sinks the job-failure channel
// list names. An empty list disables failure notifications entirely.
func failureSinkRegistrations(sinks []notify.Sink, channels []model.Channel) []failurenotifier.SinkRegistration {
	allowed := make(map[model.Channel]struct{}, len(channels))
	for _, ch := range channels {
		allowed[ch] = struct{}{}
	}

	registrations := make([]failurenotifier.SinkRegistration, 0, len(sinks))
	for _, sink := range sinks {
		if _, ok := allowed[sink.Channel()]; !ok {
			continue
		}
		registrations = append(registrations, failurenotifier.SinkRegistration{
			Name: string(sink.Channel()),
			Sink: sink,
		})
	}
	return registrations
}

// buildObservability configures the metrics sink and the failure notifier.
// Terminal job failures reuse the channel providers, restricted to the
// channels NOTIFY_CHANNELS_JOB_FAILED lists.
func buildObservability(logger *slog.Logger, cfg *config.AppConfig, sinks []notify.Sink) ObservabilityContainer {
	var metricsClient *statsd.Client
	if cfg.Observability.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Observability.Metrics.StatsdAddress,
			Prefix:  cfg.Observability.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsClient = client
		}
	}

	registrations := failureSinkRegistrations(sinks, cfg.Notifications.JobFailedChannels)

	return ObservabilityContainer{
		MetricsSink: metricsClient,
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Logger: logger.With("component", "failure_notifier"),
			Sinks:  registrations,
		}),
	}
}

func metricsSink(obs ObservabilityContainer) statsd.Sink {
	if obs.MetricsSink == nil {
		return nil
	}
	return obs.MetricsSink
}
