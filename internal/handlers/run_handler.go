package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
)

const defaultRunListLimit = 50

// RunHandler serves the persisted run history.
type RunHandler struct {
	storage interfaces.RunStorage
	logger  arbor.ILogger
}

// NewRunHandler creates a new run history handler
func NewRunHandler(storage interfaces.RunStorage, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListRunsHandler handles GET /api/runs?kind=&limit=
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	kind := r.URL.Query().Get("kind")
	limit := GetLimitParam(r, defaultRunListLimit)

	runs, err := h.storage.ListRuns(r.Context(), kind, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	count, err := h.storage.CountRuns(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count runs")
		WriteError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"total": count,
	})
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	record, err := h.storage.GetRun(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
