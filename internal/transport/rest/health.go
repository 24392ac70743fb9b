package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// BackendPinger probes the authoritative backend.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	backend BackendPinger
}

func NewHealthHandler(backend BackendPinger) *HealthHandler {
	return &HealthHandler{backend: backend}
}

// healthCheckHandler reports degraded rather than failing hard when the
// backend is unreachable: local pre-flight validation still works.
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	backendStatus := "ok"
	if h.backend != nil {
		if err := h.backend.Ping(ctx); err != nil {
			status = "degraded"
			backendStatus = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"backend": backendStatus,
	})
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "pong"})
}
