// -----------------------------------------------------------------------
// Batch Job - descriptor, run state and progress types
// -----------------------------------------------------------------------

package models

import (
	"strings"
	"time"
)

// JobKind identifies a named category of long-running backend operation.
// The vision backend is stateful and keyed by kind: at most one job of a
// given kind runs at a time.
type JobKind string

const (
	KindSplit                JobKind = "split"
	KindAugment              JobKind = "augment"
	KindKFoldSort            JobKind = "kfold_sort"
	KindRemapAnnotation      JobKind = "remap_annotation"
	KindStreamImage          JobKind = "stream_image"
	KindCalibrationUpload    JobKind = "calibration_upload"
	KindCalibrationMatrix    JobKind = "calibration_matrix"
	KindCalibrationUndistort JobKind = "calibration_undistort"
)

// AllJobKinds lists every registered kind in a stable order for API listings.
var AllJobKinds = []JobKind{
	KindSplit,
	KindAugment,
	KindKFoldSort,
	KindRemapAnnotation,
	KindStreamImage,
	KindCalibrationUpload,
	KindCalibrationMatrix,
	KindCalibrationUndistort,
}

// JobState is the lifecycle state of one job run.
// Idle -> Starting -> Running -> {Succeeded, Failed, Cancelled} -> Idle (reset)
type JobState string

const (
	JobStateIdle      JobState = "idle"
	JobStateStarting  JobState = "starting"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether no further progress updates are expected.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateCancelled
}

// Active reports whether a run in this state blocks a new start of the same kind.
func (s JobState) Active() bool {
	return s == JobStateStarting || s == JobStateRunning
}

// Remediation maps a missing readiness flag to the backend endpoint that
// fixes it. Remediations run sequentially in declared order.
type Remediation struct {
	Flag string
	Path string
}

// JobDescriptor is the immutable template for one job kind: the backend
// endpoints it talks to, its readiness requirements and its poll interval.
// One descriptor is reused across many runs.
type JobDescriptor struct {
	Kind             JobKind
	Name             string // human-readable name for logs and notifications
	StartPath        string
	ProgressPath     string // empty for single-shot kinds (calibration)
	StopPath         string // empty when the backend offers no stop endpoint
	AvailabilityPath string // empty when the kind has no readiness gate
	RequiredFlags    []string
	Remediations     []Remediation
	PollInterval     time.Duration
	Multipart        bool // start request is multipart/form-data
}

// SingleShot reports whether the kind completes within the start request
// itself, with no progress endpoint to poll.
func (d *JobDescriptor) SingleShot() bool {
	return d.ProgressPath == ""
}

// SupportsStop reports whether the backend exposes a stop endpoint for this kind.
func (d *JobDescriptor) SupportsStop() bool {
	return d.StopPath != ""
}

// Gated reports whether the kind declares readiness prerequisites.
func (d *JobDescriptor) Gated() bool {
	return d.AvailabilityPath != "" && len(d.RequiredFlags) > 0
}

// JobRun is one in-flight or completed execution of a descriptor. It is
// owned and mutated exclusively by the orchestrator and the poller it
// spawns; everything else reads snapshot copies.
type JobRun struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	State      JobState   `json:"state"`
	Progress   int        `json:"progress"` // 0-100
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	LastError  string     `json:"last_error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProgressSample is a single normalized poll result. Transient: produced
// each poll tick and folded into the owning run.
type ProgressSample struct {
	Percent   int
	Processed int
	Total     int
	RawStatus string
}

// terminalStatuses are the backend status strings that signal completion.
// Some endpoints report progress >= 100, others a status string; either is
// treated as terminal.
var terminalStatuses = map[string]bool{
	"success":   true,
	"done":      true,
	"completed": true,
}

// Terminal reports whether this sample ends the run.
func (s ProgressSample) Terminal() bool {
	if s.Percent >= 100 {
		return true
	}
	return terminalStatuses[strings.ToLower(s.RawStatus)]
}

// ReadinessSnapshot maps named prerequisite flags to their availability,
// as reported by a backend availability endpoint.
type ReadinessSnapshot map[string]bool

// Missing returns the declared flags that are absent or false, in declared order.
func (s ReadinessSnapshot) Missing(flags []string) []string {
	var missing []string
	for _, flag := range flags {
		if !s[flag] {
			missing = append(missing, flag)
		}
	}
	return missing
}

// Upload is one file forwarded to a multipart start endpoint.
type Upload struct {
	Field    string
	Filename string
	Content  []byte
}
