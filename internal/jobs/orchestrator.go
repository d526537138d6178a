// -----------------------------------------------------------------------
// Job Orchestrator - gate, start, poll, cancel, report
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/models"
)

// runState pairs a run with the cancellation of its poll loop. The poll
// handle is owned exclusively by the run: it is cancelled and cleared
// whenever the run leaves Running.
type runState struct {
	run        models.JobRun
	cancelPoll context.CancelFunc
}

// Orchestrator composes the readiness gate, the backend client and the
// progress poller behind a per-kind state machine:
// Idle -> Starting -> Running -> {Succeeded, Failed, Cancelled} -> Idle.
// It is the only writer of run state; the poller mutates runs solely
// through the orchestrator's callbacks.
type Orchestrator struct {
	registry *Registry
	backend  interfaces.VisionBackend
	gate     *ReadinessGate
	events   interfaces.EventService
	sink     interfaces.NotificationSink
	history  interfaces.RunStorage
	logger   arbor.ILogger

	mu   sync.Mutex
	runs map[models.JobKind]*runState
}

// NewOrchestrator creates the job orchestrator. Events, sink and history
// are optional; pass nil to disable the corresponding side effect.
func NewOrchestrator(
	registry *Registry,
	backend interfaces.VisionBackend,
	events interfaces.EventService,
	sink interfaces.NotificationSink,
	history interfaces.RunStorage,
	logger arbor.ILogger,
) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		backend:  backend,
		gate:     NewReadinessGate(backend, logger),
		events:   events,
		sink:     sink,
		history:  history,
		logger:   logger,
		runs:     make(map[models.JobKind]*runState),
	}
	return o
}

// Start gates, starts and begins polling one job of the given kind.
// Start failures are surfaced synchronously and leave the kind idle: the
// run never reaches Running, and nothing is retried.
func (o *Orchestrator) Start(ctx context.Context, kind models.JobKind, payload interface{}) (models.JobRun, error) {
	desc, ok := o.registry.Get(kind)
	if !ok {
		return models.JobRun{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	rs, err := o.claim(kind)
	if err != nil {
		return models.JobRun{}, err
	}

	if err := o.gate.Ensure(ctx, desc); err != nil {
		o.release(kind, rs)
		return models.JobRun{}, err
	}

	if err := o.backend.StartJob(ctx, desc, payload); err != nil {
		o.release(kind, rs)
		return models.JobRun{}, err
	}

	return o.launched(desc, rs), nil
}

// StartMultipart starts a kind whose start endpoint takes multipart
// form data. Gating and lifecycle are identical to Start.
func (o *Orchestrator) StartMultipart(ctx context.Context, kind models.JobKind, files []models.Upload, fields map[string]string) (models.JobRun, error) {
	desc, ok := o.registry.Get(kind)
	if !ok {
		return models.JobRun{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !desc.Multipart {
		return models.JobRun{}, fmt.Errorf("job kind %s does not take multipart uploads", kind)
	}

	rs, err := o.claim(kind)
	if err != nil {
		return models.JobRun{}, err
	}

	if err := o.gate.Ensure(ctx, desc); err != nil {
		o.release(kind, rs)
		return models.JobRun{}, err
	}

	if err := o.backend.StartMultipart(ctx, desc, files, fields); err != nil {
		o.release(kind, rs)
		return models.JobRun{}, err
	}

	return o.launched(desc, rs), nil
}

// claim reserves the kind with a run in Starting, rejecting duplicates.
func (o *Orchestrator) claim(kind models.JobKind) (*runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.runs[kind]; ok && existing.run.State.Active() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, kind)
	}

	rs := &runState{
		run: models.JobRun{
			ID:        uuid.New().String(),
			Kind:      kind,
			State:     models.JobStateStarting,
			StartedAt: time.Now(),
		},
	}
	o.runs[kind] = rs
	return rs, nil
}

// release drops a reservation after a failed start. The previous terminal
// run, if any, is gone too; start failures are reported to the caller, not
// recorded as runs.
func (o *Orchestrator) release(kind models.JobKind, rs *runState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if current, ok := o.runs[kind]; ok && current == rs && rs.run.State == models.JobStateStarting {
		delete(o.runs, kind)
	}
}

// launched transitions a successfully started run out of Starting:
// single-shot kinds complete immediately, everything else gets a poller.
// A run cancelled while the start call was in flight is already terminal;
// its first transition won, so no poller is attached and its snapshot is
// returned as-is.
func (o *Orchestrator) launched(desc *models.JobDescriptor, rs *runState) models.JobRun {
	o.mu.Lock()

	if current, ok := o.runs[desc.Kind]; !ok || current != rs || rs.run.State != models.JobStateStarting {
		snapshot := rs.run
		o.mu.Unlock()
		return snapshot
	}

	if desc.SingleShot() {
		rs.run.State = models.JobStateRunning
		snapshot := rs.run
		o.mu.Unlock()

		o.publishStarted(snapshot)
		// The start response is the whole job for single-shot kinds.
		o.finish(desc.Kind, snapshot.ID, models.JobStateSucceeded, "", 100)
		run, _ := o.Status(desc.Kind)
		return run
	}

	rs.run.State = models.JobStateRunning
	pollCtx, cancel := context.WithCancel(context.Background())
	rs.cancelPoll = cancel

	runID := rs.run.ID
	p := &poller{
		backend:  o.backend,
		desc:     desc,
		interval: desc.PollInterval,
		logger:   o.logger,
		onSample: func(sample models.ProgressSample) bool {
			return o.applySample(desc.Kind, runID, sample)
		},
		onExhausted: func(lastErr error) {
			reason := fmt.Sprintf("polling exhausted after %d consecutive errors: %v", maxConsecutivePollErrors, lastErr)
			o.finish(desc.Kind, runID, models.JobStateFailed, reason, -1)
		},
	}

	snapshot := rs.run
	o.mu.Unlock()

	go p.run(pollCtx)

	o.logger.Info().
		Str("kind", string(desc.Kind)).
		Str("run_id", snapshot.ID).
		Dur("poll_interval", desc.PollInterval).
		Msg("Job started, polling for progress")

	o.publishStarted(snapshot)
	return snapshot
}

// applySample folds one poll sample into the owning run. Samples for a run
// that already left Running are stale and dropped; that is the ordering
// guarantee the cancellation design relies on.
func (o *Orchestrator) applySample(kind models.JobKind, runID string, sample models.ProgressSample) bool {
	o.mu.Lock()

	rs, ok := o.runs[kind]
	if !ok || rs.run.ID != runID || rs.run.State != models.JobStateRunning {
		o.mu.Unlock()
		return false
	}

	rs.run.Progress = sample.Percent
	rs.run.Processed = sample.Processed
	rs.run.Total = sample.Total
	snapshot := rs.run
	o.mu.Unlock()

	// Synchronous publication keeps progress frames ordered with the
	// terminal frame that may follow on this same poller goroutine.
	o.publishSync(interfaces.EventJobProgress, map[string]interface{}{
		"run_id":    snapshot.ID,
		"kind":      string(snapshot.Kind),
		"progress":  snapshot.Progress,
		"processed": snapshot.Processed,
		"total":     snapshot.Total,
	})

	if sample.Terminal() {
		o.finish(kind, runID, models.JobStateSucceeded, "", 100)
		return false
	}
	return true
}

// finish performs the terminal transition exactly once per run: later
// terminal signals for the same run are dropped. The poll handle is
// cancelled, the sink notified, the event published and the record
// persisted, in that order. progress < 0 keeps the last observed value.
func (o *Orchestrator) finish(kind models.JobKind, runID string, state models.JobState, lastError string, progress int) {
	o.mu.Lock()

	rs, ok := o.runs[kind]
	if !ok || rs.run.ID != runID || rs.run.State.Terminal() {
		o.mu.Unlock()
		return
	}

	rs.run.State = state
	rs.run.LastError = lastError
	if progress >= 0 {
		rs.run.Progress = progress
	}
	now := time.Now()
	rs.run.FinishedAt = &now

	if rs.cancelPoll != nil {
		rs.cancelPoll()
		rs.cancelPoll = nil
	}

	snapshot := rs.run
	o.mu.Unlock()

	logEvent := o.logger.Info()
	if state == models.JobStateFailed {
		logEvent = o.logger.Error()
	}
	logEvent.
		Str("kind", string(kind)).
		Str("run_id", runID).
		Str("state", string(state)).
		Str("last_error", lastError).
		Msg("Job reached terminal state")

	if o.history != nil {
		if err := o.history.SaveRun(context.Background(), models.NewRunRecord(snapshot)); err != nil {
			o.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to persist run record")
		}
	}

	if o.sink != nil {
		o.sink.Notify(models.NotificationFromRun(snapshot))
	}

	// Published synchronously: the terminal broadcast must land before
	// finish returns, so a shutdown right after a cancel cannot drop it
	// and no late progress frame can follow it.
	o.publishSync(interfaces.EventJobTerminal, map[string]interface{}{
		"run_id":     snapshot.ID,
		"kind":       string(snapshot.Kind),
		"state":      string(snapshot.State),
		"last_error": snapshot.LastError,
		"progress":   snapshot.Progress,
		"processed":  snapshot.Processed,
		"total":      snapshot.Total,
	})
}

// Cancel stops a running job through the backend's stop endpoint. Stop
// failures are surfaced and leave the run untouched; they are never
// silently retried.
func (o *Orchestrator) Cancel(ctx context.Context, kind models.JobKind) (models.JobRun, error) {
	desc, ok := o.registry.Get(kind)
	if !ok {
		return models.JobRun{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !desc.SupportsStop() {
		return models.JobRun{}, fmt.Errorf("%w: %s", ErrCancelUnsupported, kind)
	}

	o.mu.Lock()
	rs, ok := o.runs[kind]
	if !ok || !rs.run.State.Active() {
		o.mu.Unlock()
		return models.JobRun{}, fmt.Errorf("%w: %s", ErrNotRunning, kind)
	}
	runID := rs.run.ID
	o.mu.Unlock()

	if err := o.backend.StopJob(ctx, desc); err != nil {
		return models.JobRun{}, fmt.Errorf("stop %s: %w", kind, err)
	}

	o.finish(kind, runID, models.JobStateCancelled, "", -1)

	run, _ := o.Status(kind)
	return run, nil
}

// Reset releases a terminal run, returning the kind to idle.
func (o *Orchestrator) Reset(kind models.JobKind) error {
	if _, ok := o.registry.Get(kind); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	rs, ok := o.runs[kind]
	if !ok {
		return nil // already idle
	}
	if !rs.run.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, kind, rs.run.State)
	}

	delete(o.runs, kind)
	return nil
}

// Status returns a snapshot of the current run for a kind. The second
// return is false when the kind is idle.
func (o *Orchestrator) Status(kind models.JobKind) (models.JobRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rs, ok := o.runs[kind]
	if !ok {
		return models.JobRun{Kind: kind, State: models.JobStateIdle}, false
	}
	return rs.run, true
}

// Snapshot returns run snapshots for every registered kind, idle included.
func (o *Orchestrator) Snapshot() []models.JobRun {
	kinds := o.registry.Kinds()

	o.mu.Lock()
	defer o.mu.Unlock()

	runs := make([]models.JobRun, 0, len(kinds))
	for _, kind := range kinds {
		if rs, ok := o.runs[kind]; ok {
			runs = append(runs, rs.run)
		} else {
			runs = append(runs, models.JobRun{Kind: kind, State: models.JobStateIdle})
		}
	}
	return runs
}

// Readiness fetches the readiness snapshot for a kind and the declared
// flags still missing. No remediation is attempted here.
func (o *Orchestrator) Readiness(ctx context.Context, kind models.JobKind) (models.ReadinessSnapshot, []string, error) {
	desc, ok := o.registry.Get(kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	snapshot, err := o.gate.Check(ctx, desc)
	if err != nil {
		return nil, nil, err
	}

	missing := snapshot.Missing(desc.RequiredFlags)

	o.publish(interfaces.EventReadinessChecked, map[string]interface{}{
		"kind":    string(kind),
		"flags":   snapshot,
		"missing": missing,
	})

	return snapshot, missing, nil
}

// Descriptor exposes the immutable descriptor for a kind.
func (o *Orchestrator) Descriptor(kind models.JobKind) (*models.JobDescriptor, bool) {
	return o.registry.Get(kind)
}

// Close cancels all active pollers. Runs are left in place so a final
// Status call still reports them.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, rs := range o.runs {
		if rs.cancelPoll != nil {
			rs.cancelPoll()
			rs.cancelPoll = nil
		}
	}
}

func (o *Orchestrator) publishStarted(run models.JobRun) {
	o.publish(interfaces.EventJobStarted, map[string]interface{}{
		"run_id": run.ID,
		"kind":   string(run.Kind),
		"state":  string(run.State),
	})
}

func (o *Orchestrator) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		o.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

func (o *Orchestrator) publishSync(eventType interfaces.EventType, payload map[string]interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishSync(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		o.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
