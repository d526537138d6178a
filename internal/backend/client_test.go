package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/common"
	"github.com/ternarybob/pillops/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&common.BackendConfig{BaseURL: server.URL}, 2*time.Second, arbor.NewLogger())
}

func splitDescriptor() *models.JobDescriptor {
	return &models.JobDescriptor{
		Kind:         models.KindSplit,
		StartPath:    "/start_split",
		ProgressPath: "/get_split_progress",
		StopPath:     "/stop_split",
	}
}

func TestStartJobSendsPayload(t *testing.T) {
	var gotBody string
	var gotContentType string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/start_split", r.URL.Path)
		gotContentType = r.Header.Get("Content-Type")
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(data)
		w.Write([]byte(`{"status":"success"}`))
	}))

	err := client.StartJob(context.Background(), splitDescriptor(),
		models.SplitRequest{Train: 70, Val: 20, Test: 10})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"train":70,"val":20,"test":10,"segregated":false}`, gotBody)
}

func TestStartJobServerRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Required directories are missing or empty"}`))
	}))

	err := client.StartJob(context.Background(), splitDescriptor(), nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, "Required directories are missing or empty", statusErr.Detail)
	assert.True(t, IsServerRejected(err))
}

func TestStartJobNetworkError(t *testing.T) {
	client := NewClient(&common.BackendConfig{BaseURL: "http://127.0.0.1:1"}, 200*time.Millisecond, arbor.NewLogger())

	err := client.StartJob(context.Background(), splitDescriptor(), nil)
	require.Error(t, err)
	assert.False(t, IsServerRejected(err))
}

func TestProgressNormalizesSplitShape(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get_split_progress", r.URL.Path)
		w.Write([]byte(`{"progress": 50, "processed": 250, "total": 500}`))
	}))

	sample, err := client.Progress(context.Background(), splitDescriptor())
	require.NoError(t, err)

	assert.Equal(t, 50, sample.Percent)
	assert.Equal(t, 250, sample.Processed)
	assert.Equal(t, 500, sample.Total)
	assert.False(t, sample.Terminal())
}

func TestProgressNormalizesAugmentShape(t *testing.T) {
	desc := &models.JobDescriptor{Kind: models.KindAugment, ProgressPath: "/get_augmentation_progress"}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current": 120, "total": 120, "progress": 100.0, "status": "Completed"}`))
	}))

	sample, err := client.Progress(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, 100, sample.Percent)
	assert.Equal(t, 120, sample.Processed)
	assert.Equal(t, 120, sample.Total)
	assert.True(t, sample.Terminal())
}

func TestProgressStatusOnlyIsTerminal(t *testing.T) {
	desc := &models.JobDescriptor{Kind: models.KindKFoldSort, ProgressPath: "/get_sort_process"}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "done", "current": 4, "total": 4}`))
	}))

	sample, err := client.Progress(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, 100, sample.Percent)
	assert.True(t, sample.Terminal())
}

func TestProgressMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>boom</html>`},
		{"missing both fields", `{"processed": 3, "total": 10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			_, err := client.Progress(context.Background(), splitDescriptor())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestProgressClampsPercent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"progress": 104.2, "processed": 521, "total": 500}`))
	}))

	sample, err := client.Progress(context.Background(), splitDescriptor())
	require.NoError(t, err)
	assert.Equal(t, 100, sample.Percent)
}

func TestAvailability(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data_availability_for_stream_images", r.URL.Path)
		w.Write([]byte(`{"images": true, "mask_images": true, "split": false, "background_changed": false}`))
	}))

	snapshot, err := client.Availability(context.Background(), "/data_availability_for_stream_images")
	require.NoError(t, err)

	assert.True(t, snapshot["images"])
	assert.False(t, snapshot["split"])
	assert.Equal(t, []string{"split", "background_changed"},
		snapshot.Missing([]string{"images", "mask_images", "split", "background_changed"}))
}

func TestStartMultipart(t *testing.T) {
	desc := &models.JobDescriptor{
		Kind:      models.KindRemapAnnotation,
		StartPath: "/start_remap_annotation",
		Multipart: true,
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "consumer", r.FormValue("mode"))

		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "annotations.json", header.Filename)

		w.Write([]byte(`{"status":"success"}`))
	}))

	err := client.StartMultipart(context.Background(), desc,
		[]models.Upload{{Field: "files", Filename: "annotations.json", Content: []byte(`{"medications":[]}`)}},
		map[string]string{"mode": "consumer"})
	require.NoError(t, err)
}

func TestRemediate(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"status":"success"}`))
	}))

	require.NoError(t, client.Remediate(context.Background(), "/split_consumer_reference"))
	require.NoError(t, client.Remediate(context.Background(), "/change_background"))
	assert.Equal(t, []string{"/split_consumer_reference", "/change_background"}, paths)
}
