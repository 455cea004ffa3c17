package httpx

import (
	"errors"
	"net/http"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/service"
)

// SessionHandlers exposes focus-session cleanup scheduling. The chat
// integration owns session creation; it calls this endpoint right after
// writing the session so the expiry job is queued up front.
type SessionHandlers struct {
	Cleanup *service.SessionCleanupService
}

// ScheduleCleanup enqueues a delayed cleanup job for one session. The job
// stays invisible to workers until the session's remaining duration elapses.
func (h *SessionHandlers) ScheduleCleanup(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	job, err := h.Cleanup.ScheduleCleanup(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSessionNotFound):
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "session_not_found", Err: err})
		case errors.Is(err, service.ErrSessionAlreadyEnded):
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "session_ended", Err: err})
		default:
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "schedule_failed", Err: err})
		}
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}
