package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
)

// DefaultExecTimeout bounds how long a caller waits for the host's
// execution context before giving up.
const DefaultExecTimeout = 2 * time.Second

type jobResult struct {
	value any
	err   error
}

type job struct {
	fn   func() (any, error)
	done chan jobResult
}

// Runner owns the host's serialized execution context: a single
// goroutine consumes submitted jobs one at a time, so Host
// implementations never see concurrent calls. Callers wait on a
// completion channel with a bounded timeout; a timed-out job still
// runs to completion on the worker, only the wait is abandoned.
type Runner struct {
	jobs     chan job
	timeout  time.Duration
	logger   logging.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner starts the worker goroutine. A non-positive timeout falls
// back to DefaultExecTimeout.
func NewRunner(timeout time.Duration, logger logging.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	r := &Runner{
		jobs:    make(chan job, 16),
		timeout: timeout,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go r.run()

	return r
}

func (r *Runner) run() {
	for {
		select {
		case j := <-r.jobs:
			j.done <- r.execute(j.fn)
		case <-r.stop:
			return
		}
	}
}

func (r *Runner) execute(fn func() (any, error)) (res jobResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = jobResult{err: errors.NewToolError(
				errors.CodeToolFailed, fmt.Sprintf("host job panic: %v", rec), nil)}
		}
	}()

	value, err := fn()
	return jobResult{value: value, err: err}
}

// Do submits fn to the worker and waits for its result. The wait is
// bounded by the runner timeout and the caller's context; on timeout
// the job keeps its slot and its eventual result is discarded.
func (r *Runner) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	// done is buffered so an abandoned job never wedges the worker.
	j := job{fn: fn, done: make(chan jobResult, 1)}

	select {
	case r.jobs <- j:
	case <-timer.C:
		return nil, r.timeoutError(ctx, "host execution queue full")
	case <-ctx.Done():
		return nil, errors.NewToolError(errors.CodeToolFailed, "request canceled", ctx.Err())
	case <-r.stop:
		return nil, errors.NewToolError(errors.CodeToolFailed, "host runner stopped", nil)
	}

	select {
	case res := <-j.done:
		return res.value, res.err
	case <-timer.C:
		return nil, r.timeoutError(ctx, "timed out waiting for host execution")
	case <-ctx.Done():
		return nil, errors.NewToolError(errors.CodeToolFailed, "request canceled", ctx.Err())
	}
}

func (r *Runner) timeoutError(ctx context.Context, msg string) error {
	err := errors.NewToolError(errors.CodeHostTimeout, msg, nil)
	if r.logger != nil {
		r.logger.Warn(ctx, err, "host execution timeout", "timeout", r.timeout.String())
	}

	return err
}

// Stop terminates the worker. Jobs already queued are dropped.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
