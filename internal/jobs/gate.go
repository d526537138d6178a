package jobs

import (
	"context"
	"fmt"
	"slices"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/models"
)

// ReadinessGate ensures prerequisite data conditions hold before a job
// starts, auto-remediating the gaps that have a declared fix.
type ReadinessGate struct {
	backend interfaces.VisionBackend
	logger  arbor.ILogger
}

// NewReadinessGate creates a readiness gate over the backend's
// availability and remediation endpoints.
func NewReadinessGate(backend interfaces.VisionBackend, logger arbor.ILogger) *ReadinessGate {
	return &ReadinessGate{
		backend: backend,
		logger:  logger,
	}
}

// Check fetches the readiness snapshot for a gated descriptor without
// remediating anything.
func (g *ReadinessGate) Check(ctx context.Context, desc *models.JobDescriptor) (models.ReadinessSnapshot, error) {
	if desc.AvailabilityPath == "" {
		return models.ReadinessSnapshot{}, nil
	}

	snapshot, err := g.backend.Availability(ctx, desc.AvailabilityPath)
	if err != nil {
		return nil, fmt.Errorf("fetch readiness for %s: %w", desc.Kind, err)
	}
	return snapshot, nil
}

// Ensure verifies every declared flag, runs the declared remediations for
// missing flags sequentially in declared order, re-checks exactly once,
// and refuses the start when flags are still missing. Remediation is never
// retried: a failed step surfaces immediately as a RemediationError.
func (g *ReadinessGate) Ensure(ctx context.Context, desc *models.JobDescriptor) error {
	if !desc.Gated() {
		return nil
	}

	snapshot, err := g.Check(ctx, desc)
	if err != nil {
		return err
	}

	missing := snapshot.Missing(desc.RequiredFlags)
	if len(missing) == 0 {
		return nil
	}

	g.logger.Info().
		Str("kind", string(desc.Kind)).
		Strs("missing_flags", missing).
		Msg("Readiness flags missing, attempting remediation")

	remediated := false
	for _, remediation := range desc.Remediations {
		if !slices.Contains(missing, remediation.Flag) {
			continue
		}

		g.logger.Info().
			Str("kind", string(desc.Kind)).
			Str("flag", remediation.Flag).
			Str("path", remediation.Path).
			Msg("Running remediation step")

		if err := g.backend.Remediate(ctx, remediation.Path); err != nil {
			return &RemediationError{Step: remediation.Flag, Err: err}
		}
		remediated = true
	}

	if !remediated {
		// Nothing fixable was declared for the missing flags.
		return &GateError{Kind: desc.Kind, MissingFlags: missing}
	}

	// One re-check after remediation, never a second remediation cycle.
	snapshot, err = g.Check(ctx, desc)
	if err != nil {
		return err
	}

	if still := snapshot.Missing(desc.RequiredFlags); len(still) > 0 {
		return &GateError{Kind: desc.Kind, MissingFlags: still}
	}

	return nil
}
