package cascade

import (
	"fmt"
	"sync"
	"time"
)

// waitCheckInterval bounds how stale the periodic re-check can get when the
// chain ends without the completion notifier running (cancelled or errored
// upstream).
const waitCheckInterval = 50 * time.Millisecond

// WaitResult blocks the calling goroutine until af reaches a terminal state
// or timeout elapses, then returns af's outcome. It is the bridge from
// chained code to conventional synchronous code and must never be called
// from a chain action: calling it on the single worker goroutine of the
// ordered context af runs on would wait for work that can only run after
// the caller returns, so that case fails fast with ErrDeadlock.
func WaitResult[T any](af Source[T], timeout time.Duration) (T, error) {
	var zero T

	if !af.IsDone() {
		if ec := af.Context(); ec.IsOrderedSingleWorker() {
			if w, ok := ec.(workerIdentity); ok && w.onWorkerGoroutine() {
				return zero, fmt.Errorf("waiting for step %q on its own ordered context %q: %w",
					af.Name(), ec.Name(), ErrDeadlock)
			}
		}

		done := make(chan struct{})
		var once sync.Once
		Then(af, func(T) error {
			once.Do(func() { close(done) })
			return nil
		})

		deadline := time.Now().Add(timeout)
		for !af.IsDone() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return zero, fmt.Errorf("waited %v for step %q: %w", timeout, af.Name(), ErrTimeout)
			}
			interval := waitCheckInterval
			if remaining < interval {
				interval = remaining
			}
			timer := time.NewTimer(interval)
			select {
			case <-done:
			case <-timer.C:
			}
			timer.Stop()
		}
	}

	v, err := af.outcome()
	if err == errStepNotDone {
		return zero, fmt.Errorf("step %q: inconsistent terminal state", af.Name())
	}
	return v, err
}

// WaitForked forks the chain ending at af and then waits for its result.
func WaitForked[T any](af Source[T], timeout time.Duration) (T, error) {
	af.Fork()
	return WaitResult(af, timeout)
}
