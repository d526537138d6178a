package notify

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/models"
)

const defaultMaxRecent = 100

// Service receives terminal job notifications and keeps a bounded ring
// of the most recent ones for the console to show.
type Service struct {
	mu     sync.Mutex
	recent []models.Notification
	max    int
	logger arbor.ILogger
}

// NewService creates a notification service retaining up to max entries.
// A non-positive max falls back to the default.
func NewService(max int, logger arbor.ILogger) *Service {
	if max <= 0 {
		max = defaultMaxRecent
	}
	return &Service{
		max:    max,
		logger: logger,
	}
}

// Notify records a terminal notification, evicting the oldest entry when
// the ring is full.
func (s *Service) Notify(notification models.Notification) {
	s.mu.Lock()
	s.recent = append(s.recent, notification)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
	s.mu.Unlock()

	event := s.logger.Info()
	if notification.State == models.JobStateFailed {
		event = s.logger.Warn()
	}
	event.
		Str("kind", string(notification.Kind)).
		Str("state", string(notification.State)).
		Str("run_id", notification.RunID).
		Msg(notification.Message)
}

// Recent returns the stored notifications, newest first.
func (s *Service) Recent() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Notification, len(s.recent))
	for i, n := range s.recent {
		out[len(s.recent)-1-i] = n
	}
	return out
}

// Clear drops all stored notifications.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = nil
}
