package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/services/notify"
)

// NotificationHandler serves the recent terminal-run notifications.
type NotificationHandler struct {
	notify *notify.Service
	logger arbor.ILogger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(service *notify.Service, logger arbor.ILogger) *NotificationHandler {
	return &NotificationHandler{
		notify: service,
		logger: logger,
	}
}

// RecentHandler handles GET /api/notifications
func (h *NotificationHandler) RecentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	notifications := h.notify.Recent()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// ClearHandler handles POST /api/notifications/clear
func (h *NotificationHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.notify.Clear()
	WriteSuccess(w, "notifications cleared")
}
