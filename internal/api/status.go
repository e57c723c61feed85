package api

import (
	"net/http"

	"siapsuhu/internal/agent"
)

// StatusHandler serves the agent snapshot
type StatusHandler struct {
	source  StatusSource
	version string
}

// NewStatusHandler creates new status handler
func NewStatusHandler(source StatusSource, version string) *StatusHandler {
	return &StatusHandler{source: source, version: version}
}

// Health reports liveness and whether telemetry can currently flow.
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"online":  st.Network == agent.Connected && st.Session == agent.Connected,
	})
}

// Status returns the full snapshot
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}
