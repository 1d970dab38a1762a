package cascade

import "errors"

var (
	// ErrCancelled marks any cancellation outcome. errors.Is(err, ErrCancelled)
	// matches both explicit cancellation and cancellation caused by an upchain
	// failure.
	ErrCancelled = errors.New("cascade: cancelled")

	// ErrNotAsserted is returned by ReactiveValue.Get when the value has never
	// been asserted.
	ErrNotAsserted = errors.New("cascade: value not yet asserted")

	// ErrTimeout is returned by WaitResult when the awaited step does not reach
	// a terminal state in time. It is distinct from a step failure.
	ErrTimeout = errors.New("cascade: wait timed out")

	// ErrDeadlock is returned by WaitResult when it is called from the worker
	// goroutine of the same ordered execution context the awaited step runs on,
	// a configuration that is guaranteed to hang.
	ErrDeadlock = errors.New("cascade: blocking wait on own ordered execution context")
)
