package interfaces

import (
	"context"

	"github.com/ternarybob/pillops/internal/models"
)

// VisionBackend is the HTTP client surface for the pill-recognition backend.
// The backend keys jobs by kind and returns no job identifier: correlation
// for polls and stops is the descriptor itself.
type VisionBackend interface {
	// StartJob issues the start request for a descriptor. A nil payload
	// sends an empty body.
	StartJob(ctx context.Context, desc *models.JobDescriptor, payload interface{}) error

	// StartMultipart issues a multipart/form-data start request with the
	// given files and form fields.
	StartMultipart(ctx context.Context, desc *models.JobDescriptor, files []models.Upload, fields map[string]string) error

	// Progress fetches and normalizes one progress sample.
	Progress(ctx context.Context, desc *models.JobDescriptor) (*models.ProgressSample, error)

	// StopJob issues the stop request for a descriptor.
	StopJob(ctx context.Context, desc *models.JobDescriptor) error

	// Availability fetches a readiness snapshot from the given endpoint.
	Availability(ctx context.Context, path string) (models.ReadinessSnapshot, error)

	// Remediate issues a remediation request (no body).
	Remediate(ctx context.Context, path string) error
}
