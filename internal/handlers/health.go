package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Database is checked when set; an unreachable database reports 503.
	Database Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	payload := map[string]string{"status": "ok"}
	status := http.StatusOK

	if h.Database != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.Database.Ping(pingCtx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			payload["database"] = "ok"
		}
	}

	respondJSON(ctx, w, status, payload)
}
