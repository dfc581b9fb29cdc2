package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gelka-enerji/invoice-ops/internal/jobstore"
	"github.com/gelka-enerji/invoice-ops/internal/logging"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
)

// Handler executes one job's work for a specific Kind and returns the
// result to persist on success. A Handler should not itself call
// FinishOK/FinishFail — Worker does that uniformly so the status
// transition and diagnostic truncation happen in one place.
type Handler func(ctx context.Context, job jobstore.Job) (ports.Value, error)

// Worker runs a single-threaded claim/dispatch/finish loop. Multiple
// Workers may run concurrently against the same Scheduler; safety
// relies entirely on the store's atomic Claim (spec §4.1, §5).
type Worker struct {
	scheduler    *Scheduler
	handlers     map[jobstore.Kind]Handler
	pollInterval time.Duration
	log          *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker constructs a Worker dispatching by Kind to handlers. Unset
// or unknown Kinds fail the job immediately with a diagnostic rather
// than panicking — worker exceptions never cross the claim boundary
// (spec §4.1 Failure policy).
func NewWorker(s *Scheduler, handlers map[jobstore.Kind]Handler, pollInterval time.Duration, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.NewDefault("job-worker")
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{scheduler: s, handlers: handlers, pollInterval: pollInterval, log: log}
}

// Start begins the polling loop in the background and returns
// immediately. Calling Start twice is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(runCtx)
	}()
}

// Stop signals the loop to finish its current job (if any), commit the
// terminal row, then exit; it blocks until the loop has stopped or ctx
// is done (spec §9 Background polling loop — no mid-call cancellation).
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.mu.Unlock()
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// The job runs on a context Stop does not cancel, so a claimed
		// job is always carried through to its terminal row.
		claimed := w.runOnce(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return
		}
		if claimed {
			// Another job may already be waiting; check again
			// immediately instead of sleeping a full interval.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce claims at most one job and processes it to completion,
// returning whether a job was claimed.
func (w *Worker) runOnce(ctx context.Context) bool {
	job, ok, err := w.scheduler.Claim(ctx)
	if err != nil {
		w.log.WithError(err).Warn("claim failed")
		return false
	}
	if !ok {
		return false
	}

	result, err := w.dispatch(ctx, job)
	if err != nil {
		if failErr := w.scheduler.FinishFail(ctx, job.ID, err.Error()); failErr != nil {
			w.log.WithError(failErr).WithField("job_id", job.ID).Error("finish_fail failed")
		}
		return true
	}
	if err := w.scheduler.FinishOK(ctx, job.ID, result); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Error("finish_ok failed")
	}
	return true
}

func (w *Worker) dispatch(ctx context.Context, job jobstore.Job) (result ports.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()

	handler, ok := w.handlers[job.Kind]
	if !ok {
		return ports.Null(), fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}
	return handler(ctx, job)
}
