package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/interfaces"
)

// StatusHandler serves health and version endpoints
type StatusHandler struct {
	storage interfaces.StorageManager
	runs    interfaces.RunService
	started time.Time
	logger  arbor.ILogger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(storage interfaces.StorageManager, runs interfaces.RunService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage: storage,
		runs:    runs,
		started: time.Now(),
		logger:  logger,
	}
}

// HealthHandler handles GET /api/health, a pure liveness probe
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// DeepHealthHandler handles GET /api/health/deep. It exercises the storage
// layer so a wedged database shows up as unhealthy.
func (h *StatusHandler) DeepHealthHandler(w http.ResponseWriter, r *http.Request) {
	runCount, err := h.storage.RunStorage().CountRuns(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Deep health storage probe failed")
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"runs":        runCount,
		"active_runs": h.runs.ActiveRunCount(),
	})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}
