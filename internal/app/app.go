// -----------------------------------------------------------------------
// Application wiring: storage, backend client, orchestrator, scheduler
// and the HTTP handlers, initialized in dependency order.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/backend"
	"github.com/ternarybob/pillops/internal/common"
	"github.com/ternarybob/pillops/internal/handlers"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/jobs"
	"github.com/ternarybob/pillops/internal/services/events"
	"github.com/ternarybob/pillops/internal/services/notify"
	"github.com/ternarybob/pillops/internal/services/scheduler"
	storagebadger "github.com/ternarybob/pillops/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	// Core services
	EventService  interfaces.EventService
	NotifyService *notify.Service
	Backend       interfaces.VisionBackend
	Registry      *jobs.Registry
	Orchestrator  interfaces.JobOrchestrator
	Scheduler     *scheduler.Service

	// Handlers
	JobHandler          *handlers.JobHandler
	RunHandler          *handlers.RunHandler
	NotificationHandler *handlers.NotificationHandler
	StatusHandler       *handlers.StatusHandler
	WebSocketHandler    *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Wire orchestrator events onto the websocket after both exist.
	app.WebSocketHandler.SubscribeToJobEvents()

	if cfg.Scheduler.Enabled {
		if err := app.Scheduler.Register(cfg.Scheduler.Jobs); err != nil {
			return nil, fmt.Errorf("failed to register scheduled jobs: %w", err)
		}
		app.Scheduler.Start()
	}

	logger.Info().
		Str("backend_url", cfg.Backend.BaseURL).
		Int("job_kinds", len(app.Registry.Kinds())).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger) and applies the
// run-history retention cap.
func (a *App) initStorage() error {
	manager, err := storagebadger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = manager

	if keep := a.Config.Storage.MaxRunHistory; keep > 0 {
		deleted, err := manager.RunStorage().PruneRuns(context.Background(), keep)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to prune run history")
		} else if deleted > 0 {
			a.Logger.Info().Int("deleted", deleted).Int("keep", keep).Msg("Pruned run history")
		}
	}

	return nil
}

// initServices initializes the backend client, event bus, orchestrator
// and scheduler.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	a.NotifyService = notify.NewService(0, a.Logger)

	a.Backend = backend.NewClient(&a.Config.Backend, a.Config.BackendTimeout(), a.Logger)
	a.Registry = jobs.DefaultRegistry(a.Config)

	a.Orchestrator = jobs.NewOrchestrator(
		a.Registry,
		a.Backend,
		a.EventService,
		a.NotifyService,
		a.StorageManager.RunStorage(),
		a.Logger,
	)

	a.Scheduler = scheduler.NewService(a.Orchestrator, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.Orchestrator, a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.StorageManager.RunStorage(), a.Logger)
	a.NotificationHandler = handlers.NewNotificationHandler(a.NotifyService, a.Logger)
	a.WebSocketHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, a.Config)
	a.StatusHandler = handlers.NewStatusHandler(a.Config, a.WebSocketHandler, a.Logger)
}

// Close shuts down application components in reverse dependency order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Orchestrator != nil {
		a.Orchestrator.Close()
		a.Logger.Info().Msg("Orchestrator closed, pollers cancelled")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage manager")
			return err
		}
		a.Logger.Info().Msg("Storage manager closed")
	}

	return nil
}
