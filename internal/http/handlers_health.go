package httpx

import "net/http"

// healthHandler answers liveness probes. It reports process health only;
// dependency health shows up in job stats and metrics instead, so a dead
// database cannot make the orchestrator restart-loop the service.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	// Ignore write errors; the probe connection may already be gone.
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
