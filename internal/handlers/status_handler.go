package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/common"
)

// ClientCounter reports how many websocket clients are connected.
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	config    *common.Config
	clients   ClientCounter
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(config *common.Config, clients ClientCounter, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		config:    config,
		clients:   clients,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	clientCount := 0
	if h.clients != nil {
		clientCount = h.clients.ClientCount()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"service":           "pillops",
		"version":           common.GetVersion(),
		"environment":       h.config.Environment,
		"uptime":            time.Since(h.startedAt).Round(time.Second).String(),
		"websocket_clients": clientCount,
	})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetFullVersion(),
	})
}
