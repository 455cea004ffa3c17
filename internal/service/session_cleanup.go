package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusmode/focusd/internal/adapters/slackapi"
	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/data"
	"github.com/focusmode/focusd/internal/domain/model"
)

// earlyFireBuffer tolerates small clock skew between the scheduler and the
// session store. A job arriving within this buffer of expiry proceeds; one
// arriving earlier is retried later.
const earlyFireBuffer = 30 * time.Second

const (
	workspaceCallRetries = 2
	workspaceRetryDelay  = 500 * time.Millisecond
)

// cleanupJobPriority puts cleanup jobs ahead of recurring checks so an
// expired session is reverted promptly even on a busy queue.
const cleanupJobPriority = 50

// ErrSessionAlreadyEnded is returned when cleanup scheduling is requested
// for a session that is no longer active.
var ErrSessionAlreadyEnded = errors.New("session already ended")

// cleanupJobCreator is the slice of the job service the cleanup scheduler
// needs.
type cleanupJobCreator interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
}

// SessionCleanupOptions groups dependencies for SessionCleanupService.
// Jobs is optional; without it the service can execute cleanup jobs but not
// schedule new ones.
type SessionCleanupOptions struct {
	Sessions     core.SessionStore
	Workspace    core.WorkspaceClient
	Jobs         cleanupJobCreator
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// SessionCleanupService reverts the side effects of an expired focus session:
// custom status cleared and DND snooze ended in every workspace the session
// touched, then the session marked inactive. Every step is safe to repeat.
type SessionCleanupService struct {
	sessions     core.SessionStore
	workspace    core.WorkspaceClient
	jobs         cleanupJobCreator
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewSessionCleanupService constructs a SessionCleanupService.
func NewSessionCleanupService(opts SessionCleanupOptions) (*SessionCleanupService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace client is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "session_cleanup")
	}

	return &SessionCleanupService{
		sessions:     opts.Sessions,
		workspace:    opts.Workspace,
		jobs:         opts.Jobs,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger,
	}, nil
}

// ScheduleCleanup enqueues the cleanup job for a session, delayed by the
// session's remaining duration so it becomes runnable at expiry. A session
// that already expired gets an immediately runnable job.
func (s *SessionCleanupService) ScheduleCleanup(ctx context.Context, sessionID string) (*model.Job, error) {
	if s.jobs == nil {
		return nil, errors.New("job service is not configured")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if !sess.Active {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionAlreadyEnded)
	}

	payload, err := json.Marshal(model.SessionCleanupPayload{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cleanup payload: %w", err)
	}

	runAt := sess.ExpiresAt().UTC()
	if now := s.timeProvider.Now().UTC(); runAt.Before(now) {
		runAt = now
	}

	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		Type:        model.JobTypeSessionCleanup,
		Payload:     payload,
		Priority:    cleanupJobPriority,
		ScheduledAt: &runAt,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue cleanup for session %s: %w", sessionID, err)
	}

	s.logger.InfoContext(ctx, "session cleanup scheduled",
		"session_id", sess.SessionID,
		"user_id", sess.UserID,
		"job_id", job.ID,
		"run_at", runAt,
	)
	return job, nil
}

// HandleSessionCleanup executes one cleanup job. Missing or already ended
// sessions are successful no-ops; a session that has real time left is a
// retryable error so the queue re-delivers closer to expiry.
func (s *SessionCleanupService) HandleSessionCleanup(ctx context.Context, job *model.Job) error {
	var payload model.SessionCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode cleanup payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid cleanup payload: %w", err)
	}

	sess, err := s.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			s.logger.InfoContext(ctx, "session already gone, nothing to clean",
				"session_id", payload.SessionID,
			)
			return nil
		}
		return fmt.Errorf("load session %s: %w", payload.SessionID, err)
	}

	if !sess.Active {
		s.logger.InfoContext(ctx, "session already ended",
			"session_id", sess.SessionID,
		)
		return nil
	}

	if sess.UserID != payload.UserID {
		s.logger.WarnContext(ctx, "cleanup job user does not own session, skipping",
			"session_id", sess.SessionID,
			"job_user_id", payload.UserID,
			"session_user_id", sess.UserID,
		)
		return nil
	}

	now := s.timeProvider.Now()
	if remaining := sess.RemainingAt(now); remaining > earlyFireBuffer {
		return fmt.Errorf("session %s has %s remaining, cleanup fired early",
			sess.SessionID, remaining.Round(time.Second))
	}

	for _, ws := range sess.Workspaces {
		if err := s.cleanWorkspace(ctx, sess, ws); err != nil {
			return err
		}
	}

	endedAt := now.UTC()
	sess.Active = false
	sess.EndedAt = &endedAt
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("mark session %s ended: %w", sess.SessionID, err)
	}

	s.logger.InfoContext(ctx, "session cleaned up",
		"session_id", sess.SessionID,
		"user_id", sess.UserID,
		"workspaces", len(sess.Workspaces),
	)
	return nil
}

// cleanWorkspace reverts one workspace's side effects. Permission failures
// are skipped so one revoked token cannot block the rest of the session; any
// other failure bubbles up and retries the whole job.
func (s *SessionCleanupService) cleanWorkspace(ctx context.Context, sess *model.FocusSession, ws model.WorkspaceSessionState) error {
	if ws.StatusUpdated {
		err := s.withRetries(ctx, func() error {
			return s.workspace.ClearStatus(ctx, ws.AccessToken, sess.UserID)
		})
		if err != nil {
			if errors.Is(err, slackapi.ErrPermission) {
				s.logger.WarnContext(ctx, "no permission to clear status, skipping workspace",
					"session_id", sess.SessionID,
					"workspace_id", ws.WorkspaceID,
					"error", err,
				)
				return nil
			}
			return fmt.Errorf("clear status in workspace %s: %w", ws.WorkspaceID, err)
		}
	}

	if ws.DNDEnabled {
		err := s.withRetries(ctx, func() error {
			return s.workspace.EndDND(ctx, ws.AccessToken, sess.UserID)
		})
		if err != nil {
			if errors.Is(err, slackapi.ErrPermission) {
				s.logger.WarnContext(ctx, "no permission to end dnd, skipping workspace",
					"session_id", sess.SessionID,
					"workspace_id", ws.WorkspaceID,
					"error", err,
				)
				return nil
			}
			return fmt.Errorf("end dnd in workspace %s: %w", ws.WorkspaceID, err)
		}
	}
	return nil
}

// withRetries runs fn with a couple of linear-backoff retries. Permission
// errors are terminal; retrying a revoked token cannot help.
func (s *SessionCleanupService) withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= workspaceCallRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * workspaceRetryDelay):
			}
		}
		err = fn()
		if err == nil || errors.Is(err, slackapi.ErrPermission) {
			return err
		}
	}
	return err
}
