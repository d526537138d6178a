// -----------------------------------------------------------------------
// Vision backend client - start/poll/stop plus readiness endpoints
// -----------------------------------------------------------------------

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/common"
	"github.com/ternarybob/pillops/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read for
// the detail message.
const maxErrorBodySize = 4 * 1024

// Client talks HTTP+JSON to the pill-recognition vision backend. The
// backend holds job state keyed by kind, so no correlation id travels on
// the wire - the descriptor's paths are the correlation.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

// NewClient creates a backend client with the configured per-request timeout.
func NewClient(config *common.BackendConfig, timeout time.Duration, logger arbor.ILogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// StartJob issues the start request for a descriptor. A nil payload sends
// an empty body.
func (c *Client) StartJob(ctx context.Context, desc *models.JobDescriptor, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal start payload for %s: %w", desc.Kind, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+desc.StartPath, body)
	if err != nil {
		return fmt.Errorf("build start request for %s: %w", desc.Kind, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.expectSuccess(req, string(desc.Kind))
}

// StartMultipart issues a multipart/form-data start request with the given
// files and form fields.
func (c *Client) StartMultipart(ctx context.Context, desc *models.JobDescriptor, files []models.Upload, fields map[string]string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write multipart field %s for %s: %w", key, desc.Kind, err)
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return fmt.Errorf("create multipart file %s for %s: %w", file.Filename, desc.Kind, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return fmt.Errorf("write multipart file %s for %s: %w", file.Filename, desc.Kind, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body for %s: %w", desc.Kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+desc.StartPath, &buf)
	if err != nil {
		return fmt.Errorf("build start request for %s: %w", desc.Kind, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.expectSuccess(req, string(desc.Kind))
}

// progressPayload accepts both progress shapes the backend uses:
// {progress, processed, total} and {current, total, progress, status}.
type progressPayload struct {
	Progress  *float64 `json:"progress"`
	Processed *int     `json:"processed"`
	Current   *int     `json:"current"`
	Total     *int     `json:"total"`
	Status    string   `json:"status"`
}

// Progress fetches one progress sample and normalizes it.
func (c *Client) Progress(ctx context.Context, desc *models.JobDescriptor) (*models.ProgressSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+desc.ProgressPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build progress request for %s: %w", desc.Kind, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s progress: %w", desc.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	var payload progressPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s progress: %w", desc.Kind, ErrMalformed)
	}

	return normalizeProgress(desc.Kind, payload)
}

// normalizeProgress reconciles the two backend progress shapes into one
// ProgressSample. A body carrying neither a progress percentage nor a
// status string is malformed.
func normalizeProgress(kind models.JobKind, payload progressPayload) (*models.ProgressSample, error) {
	if payload.Progress == nil && payload.Status == "" {
		return nil, fmt.Errorf("%s progress has neither progress nor status: %w", kind, ErrMalformed)
	}

	sample := &models.ProgressSample{RawStatus: payload.Status}

	if payload.Processed != nil {
		sample.Processed = *payload.Processed
	} else if payload.Current != nil {
		sample.Processed = *payload.Current
	}
	if payload.Total != nil {
		sample.Total = *payload.Total
	}

	switch {
	case payload.Progress != nil:
		sample.Percent = int(math.Round(*payload.Progress))
	case sample.Total > 0:
		sample.Percent = sample.Processed * 100 / sample.Total
	}
	if sample.Percent < 0 {
		sample.Percent = 0
	}
	if sample.Percent > 100 {
		sample.Percent = 100
	}
	// A terminal status with no percentage still means done.
	if sample.Percent < 100 && (models.ProgressSample{RawStatus: payload.Status}).Terminal() {
		sample.Percent = 100
	}

	return sample, nil
}

// StopJob issues the stop request for a descriptor.
func (c *Client) StopJob(ctx context.Context, desc *models.JobDescriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+desc.StopPath, nil)
	if err != nil {
		return fmt.Errorf("build stop request for %s: %w", desc.Kind, err)
	}
	return c.expectSuccess(req, string(desc.Kind))
}

// Availability fetches a readiness snapshot from the given endpoint.
func (c *Client) Availability(ctx context.Context, path string) (models.ReadinessSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build availability request %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch availability %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	var snapshot models.ReadinessSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode availability %s: %w", path, ErrMalformed)
	}

	return snapshot, nil
}

// Remediate issues a remediation request. The remediation endpoints take
// no body.
func (c *Client) Remediate(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build remediation request %s: %w", path, err)
	}
	return c.expectSuccess(req, path)
}

// expectSuccess performs the request and maps non-2xx responses to StatusError.
func (c *Client) expectSuccess(req *http.Request, subject string) error {
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("subject", subject).
		Msg("Backend request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	// Drain so the connection can be reused; the body content is unused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// readDetail extracts a human-readable detail message from an error body.
// The backend reports errors as {"detail": "..."}; anything else is used raw.
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}

	var detail struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &detail); err == nil {
		if detail.Detail != "" {
			return detail.Detail
		}
		if detail.Message != "" {
			return detail.Message
		}
	}

	return strings.TrimSpace(string(data))
}
