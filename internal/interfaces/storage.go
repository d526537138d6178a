package interfaces

import (
	"context"

	"github.com/ternarybob/pillops/internal/models"
)

// RunStorage persists terminal job runs for the history API.
type RunStorage interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns records newest-first, optionally filtered by kind.
	// A limit of 0 means no limit.
	ListRuns(ctx context.Context, kind string, limit int) ([]models.RunRecord, error)
	CountRuns(ctx context.Context) (int, error)
	// PruneRuns deletes the oldest records beyond keep. Returns the number deleted.
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// StorageManager owns the database connection and the typed storages on it.
type StorageManager interface {
	RunStorage() RunStorage
	Close() error
}
