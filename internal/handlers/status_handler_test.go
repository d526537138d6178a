package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/common"
)

type stubClientCounter struct {
	count int
}

func (s *stubClientCounter) ClientCount() int {
	return s.count
}

func TestHealthReportsWebSocketClients(t *testing.T) {
	handler := NewStatusHandler(common.NewDefaultConfig(), &stubClientCounter{count: 3}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/health", nil)
	recorder := httptest.NewRecorder()

	handler.HealthHandler(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["websocket_clients"])
	assert.NotEmpty(t, body["version"])
}

func TestHealthWithoutClientCounter(t *testing.T) {
	handler := NewStatusHandler(common.NewDefaultConfig(), nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/health", nil)
	recorder := httptest.NewRecorder()

	handler.HealthHandler(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, float64(0), body["websocket_clients"])
}
