// -----------------------------------------------------------------------
// Job handler: HTTP surface over the job orchestrator. Start, status,
// cancel, reset and readiness for every registered job kind.
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	backendpkg "github.com/ternarybob/pillops/internal/backend"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/jobs"
	"github.com/ternarybob/pillops/internal/models"
)

// maxUploadBytes bounds multipart start requests (annotation files,
// calibration images).
const maxUploadBytes = 64 << 20

// JobHandler exposes the orchestrator over HTTP.
type JobHandler struct {
	orchestrator interfaces.JobOrchestrator
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(orchestrator interfaces.JobOrchestrator, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
		validate:     models.NewValidator(),
		logger:       logger,
	}
}

// kindFromPath extracts the job kind segment from /api/jobs/{kind}[/...].
func kindFromPath(path string) models.JobKind {
	suffix := strings.TrimPrefix(path, "/api/jobs/")
	if i := strings.Index(suffix, "/"); i >= 0 {
		suffix = suffix[:i]
	}
	return models.JobKind(suffix)
}

// SnapshotHandler handles GET /api/jobs
func (h *JobHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.orchestrator.Snapshot(),
	})
}

// StatusHandler handles GET /api/jobs/{kind}
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(r.URL.Path)
	if _, ok := h.orchestrator.Descriptor(kind); !ok {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown job kind: %s", kind))
		return
	}

	run, active := h.orchestrator.Status(kind)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"active": active,
	})
}

// StartJobHandler handles POST /api/jobs/{kind}/start
func (h *JobHandler) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(r.URL.Path)

	desc, ok := h.orchestrator.Descriptor(kind)
	if !ok {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown job kind: %s", kind))
		return
	}

	var run models.JobRun
	var err error
	if desc.Multipart {
		run, err = h.startMultipart(r, kind)
	} else {
		run, err = h.startJSON(r, kind)
	}
	if err != nil {
		h.writeJobError(w, kind, err)
		return
	}

	h.logger.Info().
		Str("kind", string(kind)).
		Str("run_id", run.ID).
		Str("state", string(run.State)).
		Msg("Job started via API")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"run":    run,
	})
}

func (h *JobHandler) startJSON(r *http.Request, kind models.JobKind) (models.JobRun, error) {
	payload, err := h.decodePayload(r, kind)
	if err != nil {
		return models.JobRun{}, err
	}
	return h.orchestrator.Start(r.Context(), kind, payload)
}

// decodePayload decodes and validates the typed request body for a kind.
// Kinds without a typed payload pass the raw JSON object through, or nil
// when the body is empty.
func (h *JobHandler) decodePayload(r *http.Request, kind models.JobKind) (interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "failed to read request body"}
	}

	decode := func(dst interface{}) error {
		if len(body) == 0 {
			return &requestError{http.StatusBadRequest, fmt.Sprintf("%s requires a JSON body", kind)}
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return &requestError{http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err)}
		}
		if err := h.validate.Struct(dst); err != nil {
			return &requestError{http.StatusBadRequest, validationMessage(err)}
		}
		return nil
	}

	switch kind {
	case models.KindSplit:
		var request models.SplitRequest
		if err := decode(&request); err != nil {
			return nil, err
		}
		return request, nil
	case models.KindAugment:
		var request models.AugmentRequest
		if err := decode(&request); err != nil {
			return nil, err
		}
		return request, nil
	case models.KindStreamImage:
		var request models.StreamImageRequest
		if err := decode(&request); err != nil {
			return nil, err
		}
		return request, nil
	case models.KindKFoldSort:
		var request models.KFoldSortRequest
		if err := decode(&request); err != nil {
			return nil, err
		}
		return request, nil
	default:
		if len(body) == 0 {
			return nil, nil
		}
		var generic map[string]interface{}
		if err := json.Unmarshal(body, &generic); err != nil {
			return nil, &requestError{http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err)}
		}
		return generic, nil
	}
}

func (h *JobHandler) startMultipart(r *http.Request, kind models.JobKind) (models.JobRun, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return models.JobRun{}, &requestError{http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err)}
	}

	var files []models.Upload
	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return models.JobRun{}, &requestError{http.StatusBadRequest, fmt.Sprintf("failed to open upload %s: %v", header.Filename, err)}
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return models.JobRun{}, &requestError{http.StatusBadRequest, fmt.Sprintf("failed to read upload %s: %v", header.Filename, err)}
			}
			files = append(files, models.Upload{
				Field:    field,
				Filename: header.Filename,
				Content:  content,
			})
		}
	}
	if len(files) == 0 {
		return models.JobRun{}, &requestError{http.StatusBadRequest, fmt.Sprintf("%s requires at least one file", kind)}
	}

	fields := make(map[string]string)
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	return h.orchestrator.StartMultipart(r.Context(), kind, files, fields)
}

// CancelJobHandler handles POST /api/jobs/{kind}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(r.URL.Path)

	run, err := h.orchestrator.Cancel(r.Context(), kind)
	if err != nil {
		h.writeJobError(w, kind, err)
		return
	}

	h.logger.Info().
		Str("kind", string(kind)).
		Str("run_id", run.ID).
		Msg("Job cancelled via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "cancelled",
		"run":    run,
	})
}

// ResetJobHandler handles POST /api/jobs/{kind}/reset
func (h *JobHandler) ResetJobHandler(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(r.URL.Path)

	if err := h.orchestrator.Reset(kind); err != nil {
		h.writeJobError(w, kind, err)
		return
	}
	WriteSuccess(w, fmt.Sprintf("%s reset to idle", kind))
}

// ReadinessHandler handles GET /api/jobs/{kind}/readiness
func (h *JobHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(r.URL.Path)

	snapshot, missing, err := h.orchestrator.Readiness(r.Context(), kind)
	if err != nil {
		h.writeJobError(w, kind, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kind":          kind,
		"flags":         snapshot,
		"missing_flags": missing,
		"ready":         len(missing) == 0,
	})
}

// requestError carries a client-facing status code through the decode path.
type requestError struct {
	code    int
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		if first.Tag() == "percentsum" {
			return "train, val and test percentages must sum to 100"
		}
		return fmt.Sprintf("invalid field %s: failed %s validation", first.Field(), first.Tag())
	}
	return err.Error()
}

// writeJobError maps orchestration errors onto HTTP status codes.
func (h *JobHandler) writeJobError(w http.ResponseWriter, kind models.JobKind, err error) {
	var reqErr *requestError
	var gateErr *jobs.GateError
	var remErr *jobs.RemediationError
	var statusErr *backendpkg.StatusError

	switch {
	case errors.As(err, &reqErr):
		WriteError(w, reqErr.code, reqErr.message)

	case errors.Is(err, jobs.ErrUnknownKind):
		WriteError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, jobs.ErrAlreadyRunning):
		WriteError(w, http.StatusConflict, fmt.Sprintf("a %s job is already running", kind))

	case errors.Is(err, jobs.ErrNotRunning):
		WriteError(w, http.StatusConflict, fmt.Sprintf("no %s job is running", kind))

	case errors.Is(err, jobs.ErrNotTerminal):
		WriteError(w, http.StatusConflict, fmt.Sprintf("the %s job has not finished", kind))

	case errors.Is(err, jobs.ErrCancelUnsupported):
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("%s jobs cannot be cancelled", kind))

	case errors.As(err, &gateErr):
		WriteJSON(w, http.StatusPreconditionFailed, map[string]interface{}{
			"status":        "error",
			"error":         gateErr.Error(),
			"missing_flags": gateErr.MissingFlags,
		})

	case errors.As(err, &remErr):
		WriteError(w, http.StatusBadGateway, remErr.Error())

	case errors.As(err, &statusErr):
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("vision backend rejected the request: %s", statusErr.Detail))

	case errors.Is(err, backendpkg.ErrMalformed):
		WriteError(w, http.StatusBadGateway, err.Error())

	default:
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("Job operation failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
