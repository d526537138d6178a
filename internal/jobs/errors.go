package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/pillops/internal/models"
)

var (
	// ErrUnknownKind is returned for a kind with no registered descriptor.
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrAlreadyRunning rejects a duplicate start while a run of the same
	// kind is starting or running. Mirrors the backend's one-job-per-kind
	// constraint.
	ErrAlreadyRunning = errors.New("a job of this kind is already running")

	// ErrNotRunning is returned when cancel targets a kind with no active run.
	ErrNotRunning = errors.New("no active job of this kind")

	// ErrCancelUnsupported is returned when the descriptor declares no stop
	// endpoint. The UI surfaces this as a disabled control, not an error path.
	ErrCancelUnsupported = errors.New("job kind does not support cancellation")

	// ErrNotTerminal rejects a reset of a run that is still active.
	ErrNotTerminal = errors.New("job run is not in a terminal state")
)

// GateError refuses a start because declared readiness flags are still
// missing after the single remediation pass.
type GateError struct {
	Kind         models.JobKind
	MissingFlags []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("readiness gate refused %s: missing %s", e.Kind, strings.Join(e.MissingFlags, ", "))
}

// RemediationError reports a remediation step that itself failed. Earlier
// completed steps are not retried.
type RemediationError struct {
	Step string // the readiness flag the step was meant to satisfy
	Err  error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("remediation for %s failed: %v", e.Step, e.Err)
}

func (e *RemediationError) Unwrap() error {
	return e.Err
}
