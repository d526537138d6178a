package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/common"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/jobs"
	"github.com/ternarybob/pillops/internal/models"
)

// Service runs configured jobs on cron schedules. A scheduled fire that
// collides with an already running job of the same kind is skipped, not
// queued.
type Service struct {
	orchestrator interfaces.JobOrchestrator
	cron         *cron.Cron
	logger       arbor.ILogger
	mu           sync.Mutex
	running      bool
}

// NewService creates a scheduler over the orchestrator.
func NewService(orchestrator interfaces.JobOrchestrator, logger arbor.ILogger) *Service {
	return &Service{
		orchestrator: orchestrator,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Register adds every configured schedule entry. Invalid entries are
// rejected; registration stops at the first bad one.
func (s *Service) Register(entries []common.ScheduledJob) error {
	for _, entry := range entries {
		kind := models.JobKind(entry.Kind)

		desc, ok := s.orchestrator.Descriptor(kind)
		if !ok {
			return fmt.Errorf("scheduled job references unknown kind %s", entry.Kind)
		}
		if desc.Multipart {
			return fmt.Errorf("scheduled job %s needs file uploads and cannot run unattended", entry.Kind)
		}

		payload := entry.Payload
		_, err := s.cron.AddFunc(entry.Schedule, func() {
			s.fire(kind, payload)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", entry.Schedule, entry.Kind, err)
		}

		s.logger.Info().
			Str("kind", entry.Kind).
			Str("schedule", entry.Schedule).
			Msg("Scheduled job registered")
	}
	return nil
}

func (s *Service) fire(kind models.JobKind, payload map[string]interface{}) {
	var body interface{}
	if len(payload) > 0 {
		body = payload
	}

	run, err := s.orchestrator.Start(context.Background(), kind, body)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			s.logger.Warn().
				Str("kind", string(kind)).
				Msg("Scheduled fire skipped, job already running")
			return
		}
		s.logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Msg("Scheduled job failed to start")
		return
	}

	s.logger.Info().
		Str("kind", string(kind)).
		Str("run_id", run.ID).
		Msg("Scheduled job started")
}

// Start begins firing registered schedules.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop halts the scheduler and waits for in-flight fires to return.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}
