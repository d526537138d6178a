package interfaces

import (
	"context"

	"github.com/ternarybob/pillops/internal/models"
)

// JobOrchestrator is the single entry point features call to drive batch
// jobs: start, monitor, cancel, reset. One run per kind at a time.
type JobOrchestrator interface {
	// Start gates, starts and begins polling one job. Returns the run
	// snapshot, or an error when the start was refused (duplicate run,
	// unmet readiness, backend rejection). A failed start leaves the
	// kind idle.
	Start(ctx context.Context, kind models.JobKind, payload interface{}) (models.JobRun, error)

	// StartMultipart starts a kind whose start endpoint takes
	// multipart/form-data (annotation remap, calibration image upload).
	StartMultipart(ctx context.Context, kind models.JobKind, files []models.Upload, fields map[string]string) (models.JobRun, error)

	// Cancel stops a running job via the backend's stop endpoint.
	Cancel(ctx context.Context, kind models.JobKind) (models.JobRun, error)

	// Reset releases a terminal run, returning the kind to idle.
	Reset(kind models.JobKind) error

	// Status returns a snapshot of the current run for a kind. The second
	// return is false when the kind is idle.
	Status(kind models.JobKind) (models.JobRun, bool)

	// Snapshot returns run snapshots for every kind, idle kinds included.
	Snapshot() []models.JobRun

	// Readiness fetches the readiness snapshot for a gated kind and the
	// declared flags still missing. No remediation is attempted.
	Readiness(ctx context.Context, kind models.JobKind) (models.ReadinessSnapshot, []string, error)

	// Descriptor exposes the immutable descriptor for a kind.
	Descriptor(kind models.JobKind) (*models.JobDescriptor, bool)

	// Close cancels all active pollers.
	Close()
}

// NotificationSink receives exactly one notification per terminal run.
// Implementations must not block: the orchestrator invokes the sink inline
// during the terminal transition.
type NotificationSink interface {
	Notify(notification models.Notification)
}
