// Command focusd-admin provides operational commands for the focusd job and
// notification system.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/focusmode/focusd/config"
	"github.com/focusmode/focusd/internal/bootstrap"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger(false)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.Error("command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"stats": {
			name:        "stats",
			description: "Show job queue counts",
			run:         runStats,
		},
		"tasks": {
			name:        "tasks",
			description: "List registered recurring tasks",
			run:         runTasks,
		},
		"trigger": {
			name:        "trigger",
			description: "Enqueue a high-priority check job (-type, -window)",
			run:         runTrigger,
		},
		"issue-license": {
			name:        "issue-license",
			description: "Issue or refresh a license for a payment (-payment, -user, -email, -plan)",
			run:         runIssueLicense,
		},
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: focusd-admin <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %s\t%s\n", cmd.name, cmd.description)
	}
	_ = w.Flush()
}

func withDB(ctx *commandContext, fn func(context.Context, *sql.DB) error) error {
	runCtx, cancel := context.WithTimeout(ctx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    ctx.Config.Postgres,
		RedisConfig: ctx.Config.Redis,
		Logger:      ctx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			ctx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	return fn(runCtx, db)
}

func runMigrate(ctx *commandContext, _ []string) error {
	return withDB(ctx, func(runCtx context.Context, db *sql.DB) error {
		return bootstrap.RunMigrations(runCtx, db, ctx.Logger)
	})
}

func runStats(ctx *commandContext, _ []string) error {
	return withDB(ctx, func(runCtx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: ctx.Logger})
		stats, err := repo.Stats(runCtx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "running\t%d\n", stats.Running)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
		return w.Flush()
	})
}

func runTasks(ctx *commandContext, _ []string) error {
	return withDB(ctx, func(runCtx context.Context, db *sql.DB) error {
		repo := data.NewScheduledJobsRepo(db)
		tasks, err := repo.List(runCtx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tJOB TYPE\tSCHEDULE\tLAST QUEUED")
		for _, task := range tasks {
			schedule := task.CronExpr
			if schedule == "" {
				schedule = (time.Duration(task.IntervalSeconds) * time.Second).String()
			}
			lastQueued := "never"
			if task.LastQueuedAt != nil {
				lastQueued = task.LastQueuedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.TaskName, task.JobType, schedule, lastQueued)
		}
		return w.Flush()
	})
}

func runTrigger(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	jobType := fs.String("type", "", "check job type (new_user_check, paid_user_check, inactive_user_check)")
	window := fs.Int("window", 0, "lookback window override in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t := model.JobType(*jobType)
	if !t.Valid() || t == model.JobTypeSessionCleanup {
		return fmt.Errorf("invalid check job type %q", *jobType)
	}

	payload, err := json.Marshal(model.CheckPayload{WindowMinutes: *window})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	return withDB(ctx, func(runCtx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: ctx.Logger})
		job, err := repo.Create(runCtx, &model.CreateJobRequest{
			Type:     t,
			Payload:  payload,
			Priority: 50,
		})
		if err != nil {
			return err
		}

		ctx.Logger.Info("check job enqueued", "id", job.ID, "type", job.Type, "priority", job.Priority)
		return nil
	})
}

func runIssueLicense(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("issue-license", flag.ContinueOnError)
	paymentID := fs.String("payment", "", "payment provider id")
	userID := fs.String("user", "", "user id")
	userEmail := fs.String("email", "", "user email")
	plan := fs.String("plan", "standard", "license plan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDB(ctx, func(runCtx context.Context, db *sql.DB) error {
		licenses, err := service.NewLicenseService(service.LicenseServiceOptions{
			Repo:   data.NewLicenseRepo(db),
			Logger: ctx.Logger,
		})
		if err != nil {
			return err
		}

		lic, err := licenses.HandlePaymentEvent(runCtx, service.PaymentEvent{
			PaymentID: *paymentID,
			UserID:    *userID,
			Email:     *userEmail,
			Plan:      *plan,
		})
		if err != nil {
			return err
		}

		ctx.Logger.Info("license issued", "license_id", lic.ID, "user_id", lic.UserID, "status", lic.Status)
		return nil
	})
}
