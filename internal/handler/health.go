package handler

import (
	"net/http"
	"time"
)

// ReadinessProbe reports whether a dependency is ready to serve.
type ReadinessProbe func() bool

// HealthHandler serves liveness and readiness endpoints.
type HealthHandler struct {
	startedAt time.Time
	probes    map[string]ReadinessProbe
}

// NewHealthHandler creates a health handler with named readiness probes.
func NewHealthHandler(probes map[string]ReadinessProbe) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now().UTC(),
		probes:    probes,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Ready handles GET /ready. Any failing probe makes the whole endpoint
// report unavailable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.probes))
	ready := true
	for name, probe := range h.probes {
		if probe() {
			checks[name] = "ok"
			continue
		}
		checks[name] = "unavailable"
		ready = false
	}

	status := http.StatusOK
	overall := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		overall = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
