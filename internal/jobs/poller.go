package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pillops/internal/interfaces"
	"github.com/ternarybob/pillops/internal/models"
)

// maxConsecutivePollErrors bounds polling against a dead backend: three
// consecutive poll failures promote the run to failed.
const maxConsecutivePollErrors = 3

// poller drives repeated progress polls for one run. The poll request is
// issued synchronously inside the loop, so at most one request is ever
// outstanding regardless of how slow the backend responds.
type poller struct {
	backend  interfaces.VisionBackend
	desc     *models.JobDescriptor
	interval time.Duration
	logger   arbor.ILogger

	// onSample folds a successful sample into the owning run. Returning
	// false stops the loop (terminal sample or stale run).
	onSample func(sample models.ProgressSample) bool

	// onExhausted reports the retry bound being hit with the last error.
	onExhausted func(lastErr error)
}

// run loops until cancellation, a terminal sample, or retry exhaustion.
// A response that arrives after cancellation is discarded without touching
// the run.
func (p *poller) run(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	errCount := 0
	var lastErr error

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		sample, err := p.backend.Progress(ctx, p.desc)

		// Cancelled while the request was in flight: the late response
		// must not mutate a run that already left Running.
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			errCount++
			lastErr = err
			p.logger.Warn().
				Err(err).
				Str("kind", string(p.desc.Kind)).
				Int("consecutive_errors", errCount).
				Msg("Progress poll failed")

			if errCount >= maxConsecutivePollErrors {
				p.onExhausted(lastErr)
				return
			}
		} else {
			errCount = 0
			if !p.onSample(*sample) {
				return
			}
		}

		timer.Reset(p.interval)
	}
}
