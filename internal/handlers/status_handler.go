package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/dartseries/internal/common"
)

// StatusHandler reports liveness and build information
type StatusHandler struct {
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{startedAt: time.Now()}
}

// HealthHandler handles GET /health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}
