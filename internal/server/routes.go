package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Status endpoints
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// Job endpoints
	mux.HandleFunc("/api/jobs", s.app.JobHandler.SnapshotHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{kind} and subpaths

	// Run history endpoints
	mux.HandleFunc("/api/runs", s.app.RunHandler.ListRunsHandler)
	mux.HandleFunc("/api/runs/", s.app.RunHandler.GetRunHandler)

	// Notification endpoints
	mux.HandleFunc("/api/notifications", s.app.NotificationHandler.RecentHandler)
	mux.HandleFunc("/api/notifications/clear", s.app.NotificationHandler.ClearHandler)

	// WebSocket for live job events
	mux.HandleFunc("/ws", s.app.WebSocketHandler.HandleWebSocket)

	return mux
}

// handleJobRoutes dispatches /api/jobs/{kind} and its subpaths.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "POST" {
		// POST /api/jobs/{kind}/start
		if strings.HasSuffix(path, "/start") {
			s.app.JobHandler.StartJobHandler(w, r)
			return
		}

		// POST /api/jobs/{kind}/cancel
		if strings.HasSuffix(path, "/cancel") {
			s.app.JobHandler.CancelJobHandler(w, r)
			return
		}

		// POST /api/jobs/{kind}/reset
		if strings.HasSuffix(path, "/reset") {
			s.app.JobHandler.ResetJobHandler(w, r)
			return
		}

		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method == "GET" {
		// GET /api/jobs/{kind}/readiness
		if strings.HasSuffix(path, "/readiness") {
			s.app.JobHandler.ReadinessHandler(w, r)
			return
		}

		// GET /api/jobs/{kind}
		s.app.JobHandler.StatusHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
