package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/focusmode/focusd/config"
	"github.com/focusmode/focusd/internal/adapters/jobrunner"
	"github.com/focusmode/focusd/internal/adapters/reaper"
	schedadapter "github.com/focusmode/focusd/internal/adapters/scheduler"
	"github.com/focusmode/focusd/internal/domain/model"
	httpx "github.com/focusmode/focusd/internal/http"
)

// shutdownWaitTimeout is the maximum time to wait for the ops server to
// drain on shutdown.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig contains dependencies for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal arrives or a service fails. All services share one
// context; the first failure or SIGTERM stops the rest.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeScheduler] {
		if err := startScheduler(ctx, group, cfg, logger); err != nil {
			return err
		}
	}
	if enabled[config.ServiceModeCheckRunner] {
		if err := startCheckRunners(ctx, group, cfg, logger); err != nil {
			return err
		}
	}
	if enabled[config.ServiceModeCleanupRunner] {
		if err := startCleanupRunner(ctx, group, cfg, logger); err != nil {
			return err
		}
	}
	if enabled[config.ServiceModeReaper] {
		if err := startReaper(ctx, group, cfg, logger); err != nil {
			return err
		}
	}
	if enabled[config.ServiceModeOps] {
		startOpsServer(ctx, group, cfg, logger)
	}

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("all services stopped")
	return nil
}

func startScheduler(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	if err := RegisterRecurringTasks(ctx, cfg.Services.TasksRepo, cfg.Config.Scheduler, logger); err != nil {
		return err
	}

	runner, err := schedadapter.NewRunner(schedadapter.RunnerOptions{
		Scheduler: cfg.Services.Scheduler,
		Interval:  cfg.Config.Scheduler.Interval,
		Logger:    logger,
		Metrics:   metricsSink(cfg.Services.Observability),
	})
	if err != nil {
		return fmt.Errorf("build scheduler runner: %w", err)
	}

	group.Go(func() error { return runner.Run(ctx) })
	return nil
}

func startCheckRunners(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	checks := cfg.Services.Checks
	handlers := map[model.JobType]jobrunner.HandlerFunc{
		model.JobTypeNewUserCheck:      checks.HandleNewUserCheck,
		model.JobTypePaidUserCheck:     checks.HandlePaidUserCheck,
		model.JobTypeInactiveUserCheck: checks.HandleInactiveUserCheck,
	}

	for jobType, handler := range handlers {
		runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
			Jobs:         cfg.Services.Jobs,
			Logger:       logger,
			Lease:        cfg.Config.CheckRunner.JobLease,
			Concurrency:  cfg.Config.CheckRunner.Concurrency,
			JobType:      jobType,
			PollInterval: cfg.Config.CheckRunner.PollInterval,
			Metrics:      metricsSink(cfg.Services.Observability),
		})
		if err != nil {
			return fmt.Errorf("build %s runner: %w", jobType, err)
		}
		runner.RegisterHandler(jobType, handler)
		group.Go(func() error { return runner.Run(ctx) })
	}
	return nil
}

func startCleanupRunner(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	if cfg.Services.Cleanup == nil {
		return errors.New("cleanup runner enabled but session cleanup service is not configured")
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:         cfg.Services.Jobs,
		Logger:       logger,
		Lease:        cfg.Config.CleanupRunner.JobLease,
		Concurrency:  cfg.Config.CleanupRunner.Concurrency,
		JobType:      model.JobTypeSessionCleanup,
		PollInterval: cfg.Config.CleanupRunner.PollInterval,
		Metrics:      metricsSink(cfg.Services.Observability),
	})
	if err != nil {
		return fmt.Errorf("build cleanup runner: %w", err)
	}
	runner.RegisterHandler(model.JobTypeSessionCleanup, cfg.Services.Cleanup.HandleSessionCleanup)
	group.Go(func() error { return runner.Run(ctx) })
	return nil
}

func startReaper(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Repo:            cfg.Services.JobRepo,
		Logger:          logger,
		Interval:        cfg.Config.Reaper.Interval,
		PendingMaxAge:   cfg.Config.Reaper.PendingMaxAge,
		CompletedMaxAge: cfg.Config.Reaper.CompletedMaxAge,
		FailedMaxAge:    cfg.Config.Reaper.FailedMaxAge,
		BatchSize:       cfg.Config.Reaper.BatchSize,
		Metrics:         metricsSink(cfg.Services.Observability),
	})
	if err != nil {
		return fmt.Errorf("build reaper runner: %w", err)
	}
	group.Go(func() error { return runner.Run(ctx) })
	return nil
}

func startOpsServer(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) {
	router := httpx.NewRouter(httpx.RouterServices{
		Jobs:    cfg.Services.Jobs,
		Tasks:   cfg.Services.TasksRepo,
		Cleanup: cfg.Services.Cleanup,
		Logger:  logger,
	})

	handler := httpx.Logging(logger)(router)
	handler = httpx.Recover(logger)(handler)

	server := &http.Server{
		Addr:         cfg.Config.Ops.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Config.Ops.ReadTimeout,
		WriteTimeout: cfg.Config.Ops.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	group.Go(func() error {
		logger.Info("starting ops server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown failed", "error", err)
		}
		return nil
	})
}
