// Package httpx provides the operational HTTP endpoints for the focusd job
// system.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/focusmode/focusd/internal/domain/model"
	"github.com/focusmode/focusd/internal/service"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	triggerPriority    = 50
)

// JobHandlers provides HTTP handlers for job queue operations.
type JobHandlers struct {
	Svc *service.JobService
}

// Stats returns queue counts across all job types.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Recent lists the most recently created jobs of one type.
func (h *JobHandlers) Recent(w http.ResponseWriter, r *http.Request) {
	jobType := model.JobType(r.PathValue("type"))
	if !jobType.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_job_type",
			Err:     errors.New("unknown job type"),
		})
		return
	}

	limit := parseIntQuery(r, "limit", defaultRecentLimit)
	if limit < 1 || limit > maxRecentLimit {
		limit = defaultRecentLimit
	}

	jobs, err := h.Svc.ListRecent(r.Context(), jobType, limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// GetByID returns a single job.
func (h *JobHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// triggerRequest is a manual run request for a check job.
type triggerRequest struct {
	Type          model.JobType `json:"type"`
	WindowMinutes int           `json:"window_minutes,omitempty"`
}

// Trigger enqueues a high-priority check job ahead of the recurring
// schedule. The ledger keeps a manual run from double-sending anything the
// scheduled run already covered.
func (h *JobHandlers) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !req.Type.Valid() || req.Type == model.JobTypeSessionCleanup {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_job_type",
			Err:     errors.New("only check job types can be triggered"),
		})
		return
	}

	payload, err := json.Marshal(model.CheckPayload{WindowMinutes: req.WindowMinutes})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "encode_failed", Err: err})
		return
	}

	job, err := h.Svc.Create(r.Context(), &model.CreateJobRequest{
		Type:     req.Type,
		Payload:  payload,
		Priority: triggerPriority,
	})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "create_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
