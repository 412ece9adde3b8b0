package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

var validate = validator.New()

// RunHandler serves the run lifecycle API
type RunHandler struct {
	runs   interfaces.RunService
	logger arbor.ILogger
}

// NewRunHandler creates a run API handler
func NewRunHandler(runs interfaces.RunService, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// CreateRunHandler handles POST /api/runs. The run is created and started;
// the response carries its state at start time.
func (h *RunHandler) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.runs.CreateRun(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	if err := h.runs.StartRun(r.Context(), run.ID); err != nil {
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Str("run_id", run.ID).
		Str("input", run.InputURL).
		Msg("Run created")

	// Re-read so the response reflects the started run
	if started, err := h.runs.GetRun(r.Context(), run.ID); err == nil {
		run = started
	}
	WriteJSON(w, http.StatusCreated, run)
}

// ListRunsHandler handles GET /api/runs with optional status and limit filters
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.RunListOptions{}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = models.RunStatus(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// CancelRunHandler handles POST /api/runs/{id}/cancel. Cancelling a finished
// run is a no-op; the response always carries the run's current state.
func (h *RunHandler) CancelRunHandler(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID = strings.TrimSuffix(runID, "/cancel")
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	if err := h.runs.CancelRun(r.Context(), runID); err != nil {
		WriteServiceError(w, err)
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}
