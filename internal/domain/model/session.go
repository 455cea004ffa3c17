package model

import "time"

// WorkspaceSessionState captures what a focus session changed in one chat
// workspace, so cleanup knows what to revert.
type WorkspaceSessionState struct {
	WorkspaceID   string `json:"workspace_id"`
	AccessToken   string `json:"access_token,omitempty"`
	StatusUpdated bool   `json:"status_updated"`
	DNDEnabled    bool   `json:"dnd_enabled"`
}

// FocusSession is a time-bounded do-not-disturb period in one or more chat
// workspaces. The cleanup job reads it to decide whether side effects must
// be reverted; this system never creates sessions, only expires them.
type FocusSession struct {
	SessionID       string                  `json:"session_id"`
	UserID          string                  `json:"user_id"`
	StartTime       time.Time               `json:"start_time"`
	DurationMinutes int                     `json:"duration_minutes"`
	Active          bool                    `json:"active"`
	EndedAt         *time.Time              `json:"ended_at,omitempty"`
	Workspaces      []WorkspaceSessionState `json:"workspaces,omitempty"`
}

// ExpiresAt returns the moment the session's configured duration elapses.
func (s *FocusSession) ExpiresAt() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// RemainingAt returns how much of the session is left at the given instant.
// Expired sessions report zero, never a negative duration.
func (s *FocusSession) RemainingAt(now time.Time) time.Duration {
	remaining := s.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
