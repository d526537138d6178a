package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestStorage(t *testing.T) interfaces.RunStorage {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewRunStorage(db, arbor.NewLogger())
}

func record(id, kind string, finished time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:         id,
		Kind:       kind,
		State:      "succeeded",
		Progress:   100,
		Processed:  500,
		Total:      500,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestRunRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	saved := record("run-1", "split", time.Now())
	require.NoError(t, storage.SaveRun(ctx, saved))

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Kind, got.Kind)
	assert.Equal(t, saved.Progress, got.Progress)
	assert.Equal(t, saved.Processed, got.Processed)

	_, err = storage.GetRun(ctx, "missing")
	require.Error(t, err)
}

func TestSaveRunRequiresID(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.SaveRun(context.Background(), &models.RunRecord{Kind: "split"})
	require.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveRun(ctx, record("run-1", "split", base)))
	require.NoError(t, storage.SaveRun(ctx, record("run-2", "augment", base.Add(time.Minute))))
	require.NoError(t, storage.SaveRun(ctx, record("run-3", "split", base.Add(2*time.Minute))))

	all, err := storage.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].ID)
	assert.Equal(t, "run-1", all[2].ID)

	splits, err := storage.ListRuns(ctx, "split", 0)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, "run-3", splits[0].ID)

	limited, err := storage.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPruneRunsKeepsNewest(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, storage.SaveRun(ctx, record(id, "split", base.Add(time.Duration(i)*time.Minute))))
	}

	deleted, err := storage.PruneRuns(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := storage.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "run-4", remaining[0].ID)
	assert.Equal(t, "run-3", remaining[1].ID)

	count, err := storage.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
