package httpx

import (
	"net/http"

	"github.com/focusmode/focusd/internal/core"
)

// TaskHandlers provides HTTP handlers for recurring task inspection.
type TaskHandlers struct {
	Repo core.ScheduledJobsRepository
}

// List returns all registered recurring tasks.
func (h *TaskHandlers) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Repo.List(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, tasks)
}
