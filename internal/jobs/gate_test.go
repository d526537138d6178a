package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/models"
)

func streamImageDescriptor(t *testing.T) *models.JobDescriptor {
	t.Helper()
	desc, ok := DefaultRegistry(testConfig()).Get(models.KindStreamImage)
	require.True(t, ok)
	return desc
}

func TestGateUngatedKindSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	desc, ok := DefaultRegistry(testConfig()).Get(models.KindKFoldSort)
	require.True(t, ok)

	require.NoError(t, gate.Ensure(context.Background(), desc))
	assert.Equal(t, 0, backend.availabilityCalls)
}

func TestGateAllFlagsPresent(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": true, "mask_images": true, "split": true, "background_changed": true},
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	require.NoError(t, gate.Ensure(context.Background(), streamImageDescriptor(t)))
	assert.Equal(t, 1, backend.availabilityCalls)
	assert.Empty(t, backend.remediations)
}

func TestGateRemediatesInDeclaredOrder(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": true, "mask_images": true, "split": false, "background_changed": false},
			{"images": true, "mask_images": true, "split": true, "background_changed": true},
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	require.NoError(t, gate.Ensure(context.Background(), streamImageDescriptor(t)))

	// Split reference must run before the background change.
	assert.Equal(t, []string{"/split_consumer_reference", "/change_background"}, backend.remediations)
	assert.Equal(t, 2, backend.availabilityCalls)
}

func TestGateRemediatesOnlyMissingFlags(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": true, "mask_images": true, "split": true, "background_changed": false},
			{"images": true, "mask_images": true, "split": true, "background_changed": true},
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	require.NoError(t, gate.Ensure(context.Background(), streamImageDescriptor(t)))
	assert.Equal(t, []string{"/change_background"}, backend.remediations)
}

func TestGateRemediationFailureStopsSequence(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": true, "mask_images": true, "split": false, "background_changed": false},
		},
		remediateErr: map[string]error{
			"/change_background": fmt.Errorf("backend rejected request (status 500)"),
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	err := gate.Ensure(context.Background(), streamImageDescriptor(t))
	require.Error(t, err)

	var remErr *RemediationError
	require.True(t, errors.As(err, &remErr))
	assert.Equal(t, "background_changed", remErr.Step)

	// The split step already ran once and is never retried; the failed
	// step ends the whole attempt before the re-check.
	assert.Equal(t, []string{"/split_consumer_reference", "/change_background"}, backend.remediations)
	assert.Equal(t, 1, backend.availabilityCalls)
}

func TestGateRefusesWhenStillMissingAfterRecheck(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": true, "mask_images": true, "split": false, "background_changed": false},
			{"images": true, "mask_images": true, "split": true, "background_changed": false},
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	err := gate.Ensure(context.Background(), streamImageDescriptor(t))
	require.Error(t, err)

	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, []string{"background_changed"}, gateErr.MissingFlags)

	// Exactly one remediation pass and one re-check, never a second cycle.
	assert.Equal(t, []string{"/split_consumer_reference", "/change_background"}, backend.remediations)
	assert.Equal(t, 2, backend.availabilityCalls)
}

func TestGateRefusesUnfixableFlagWithoutRemediating(t *testing.T) {
	backend := &fakeBackend{
		snapshots: []models.ReadinessSnapshot{
			{"images": false, "mask_images": true, "split": true, "background_changed": true},
		},
	}
	gate := NewReadinessGate(backend, arbor.NewLogger())

	err := gate.Ensure(context.Background(), streamImageDescriptor(t))
	require.Error(t, err)

	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, []string{"images"}, gateErr.MissingFlags)
	assert.Empty(t, backend.remediations)
}
