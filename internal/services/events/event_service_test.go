package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
)

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var delivered atomic.Int32
	err := service.Subscribe(interfaces.EventJobTerminal, func(ctx context.Context, event interfaces.Event) error {
		time.Sleep(20 * time.Millisecond)
		delivered.Add(1)
		return nil
	})
	require.NoError(t, err)

	err = service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobTerminal})
	require.NoError(t, err)

	// The handler has finished by the time PublishSync returns.
	assert.Equal(t, int32(1), delivered.Load())
}

func TestPublishSyncSurfacesHandlerErrors(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.NoError(t, service.Subscribe(interfaces.EventJobTerminal, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("broadcast failed")
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobTerminal})
	require.Error(t, err)
}

func TestPublishAsyncDelivers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var delivered atomic.Int32
	require.NoError(t, service.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		delivered.Add(1)
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobProgress}))

	assert.Eventually(t, func() bool { return delivered.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	service := NewService(arbor.NewLogger())
	require.Error(t, service.Subscribe(interfaces.EventJobTerminal, nil))
}
