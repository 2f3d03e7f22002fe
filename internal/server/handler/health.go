package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	started time.Time
	halted  func() error
}

// NewHealthHandler creates a HealthHandler. halted reports a ledger halt, if
// any; a halted bot answers 503.
func NewHealthHandler(started time.Time, halted func() error) *HealthHandler {
	return &HealthHandler{started: started, halted: halted}
}

// HealthCheck responds with liveness and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.halted != nil {
		if err := h.halted(); err != nil {
			body["status"] = "halted"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}
