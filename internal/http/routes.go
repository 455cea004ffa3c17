package httpx

import (
	"log/slog"
	"net/http"

	"github.com/focusmode/focusd/internal/core"
	"github.com/focusmode/focusd/internal/service"
)

// RouterServices holds the services needed by the ops HTTP router.
type RouterServices struct {
	Jobs    *service.JobService
	Tasks   core.ScheduledJobsRepository
	Cleanup *service.SessionCleanupService
	Logger  *slog.Logger
}

// NewRouter creates and configures the ops HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	if services.Jobs != nil {
		jobHandlers := &JobHandlers{Svc: services.Jobs}
		mux.HandleFunc("GET /api/jobs/stats", jobHandlers.Stats)
		mux.HandleFunc("GET /api/jobs/recent/{type}", jobHandlers.Recent)
		mux.HandleFunc("GET /api/jobs/{id}", jobHandlers.GetByID)
		mux.HandleFunc("POST /api/checks/trigger", jobHandlers.Trigger)
	}

	if services.Cleanup != nil {
		sessionHandlers := &SessionHandlers{Cleanup: services.Cleanup}
		mux.HandleFunc("POST /api/sessions/{id}/cleanup", sessionHandlers.ScheduleCleanup)
	}

	if services.Tasks != nil {
		taskHandlers := &TaskHandlers{Repo: services.Tasks}
		mux.HandleFunc("GET /api/tasks", taskHandlers.List)
	}

	return mux
}
