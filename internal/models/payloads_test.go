package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRequestValidation(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		req     SplitRequest
		wantErr bool
	}{
		{"valid 70/20/10", SplitRequest{Train: 70, Val: 20, Test: 10}, false},
		{"valid segregated", SplitRequest{Train: 80, Val: 10, Test: 10, Segregated: true}, false},
		{"sum over 100", SplitRequest{Train: 70, Val: 20, Test: 15}, true},
		{"sum under 100", SplitRequest{Train: 50, Val: 20, Test: 10}, true},
		{"negative value", SplitRequest{Train: -10, Val: 100, Test: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStreamImageRequestValidation(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Struct(StreamImageRequest{Mode: "consumer"}))
	require.NoError(t, v.Struct(StreamImageRequest{Mode: "reference"}))
	require.Error(t, v.Struct(StreamImageRequest{Mode: "festival"}))
	require.Error(t, v.Struct(StreamImageRequest{}))
}

func TestAugmentRequestValidation(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Struct(AugmentRequest{NumberOfImages: 5, Blur: true}))
	require.Error(t, v.Struct(AugmentRequest{NumberOfImages: 0}))
}

func TestProgressSampleTerminal(t *testing.T) {
	assert.True(t, ProgressSample{Percent: 100}.Terminal())
	assert.True(t, ProgressSample{Percent: 120}.Terminal())
	assert.True(t, ProgressSample{Percent: 40, RawStatus: "success"}.Terminal())
	assert.True(t, ProgressSample{Percent: 40, RawStatus: "Completed"}.Terminal())
	assert.True(t, ProgressSample{RawStatus: "done"}.Terminal())
	assert.False(t, ProgressSample{Percent: 99, RawStatus: "Processing"}.Terminal())
	assert.False(t, ProgressSample{}.Terminal())
}

func TestReadinessSnapshotMissing(t *testing.T) {
	snap := ReadinessSnapshot{"images": true, "mask_images": true, "split": false}

	missing := snap.Missing([]string{"images", "mask_images", "split", "background_changed"})

	assert.Equal(t, []string{"split", "background_changed"}, missing)
	assert.Nil(t, snap.Missing([]string{"images"}))
}
