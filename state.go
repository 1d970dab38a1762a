package cascade

import "fmt"

// phase is the tag of the single state cell every chain step carries.
// Transitions are monotonic: once a terminal phase is reached the cell
// never changes again.
type phase uint8

const (
	phaseUnset     phase = iota // no value, not started
	phaseStarted                // submitted to its execution context
	phaseCompleted              // terminal, carries the produced value
	phaseCancelled              // terminal, carries a reason and an optional causing error
	phaseErrored                // terminal, carries the failure
)

func (p phase) String() string {
	switch p {
	case phaseUnset:
		return "unset"
	case phaseStarted:
		return "started"
	case phaseCompleted:
		return "completed"
	case phaseCancelled:
		return "cancelled"
	case phaseErrored:
		return "errored"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

func (p phase) terminal() bool {
	return p >= phaseCompleted
}

// stateCell is the immutable record stored behind a step's atomic pointer.
// A new record is swapped in with a single compare-and-swap per transition;
// no lock is held across a transition and the fan-out that follows it.
type stateCell[T any] struct {
	phase    phase
	value    T
	hasValue bool // false for the "finished but produced no usable value" marker
	cancel   *StateCancelled
	failure  *StateError
}

func unsetState[T any]() *stateCell[T] {
	return &stateCell[T]{phase: phaseUnset}
}

func startedState[T any]() *stateCell[T] {
	return &stateCell[T]{phase: phaseStarted}
}

func completedState[T any](v T) *stateCell[T] {
	return &stateCell[T]{phase: phaseCompleted, value: v, hasValue: true}
}

// completeMarker is a terminal completed state with no usable value, used by
// pure side-effect steps. Distinct from "not yet available".
func completeMarker[T any]() *stateCell[T] {
	return &stateCell[T]{phase: phaseCompleted}
}

func cancelledState[T any](sc *StateCancelled) *stateCell[T] {
	return &stateCell[T]{phase: phaseCancelled, cancel: sc}
}

func erroredState[T any](se *StateError) *stateCell[T] {
	return &stateCell[T]{phase: phaseErrored, failure: se}
}

// err reports the terminal failure outcome carried by the cell, if any.
func (s *stateCell[T]) err() error {
	switch s.phase {
	case phaseCancelled:
		return s.cancel
	case phaseErrored:
		return s.failure
	default:
		return nil
	}
}

// StateError records a runtime failure inside a step's action. It cascades
// downchain and is never silently dropped.
type StateError struct {
	Reason string
	Err    error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("step failed: %s", e.Reason)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// StateCancelled records a cancellation outcome. Cancellation is not an
// error; it is a distinct terminal state with a human-readable reason and,
// when the cancellation was triggered by an upchain failure, a reference to
// the causing error.
type StateCancelled struct {
	Reason string
	Cause  *StateError
}

func (c *StateCancelled) Error() string {
	if c.Cause != nil {
		return fmt.Sprintf("cancelled: %s (caused by: %v)", c.Reason, c.Cause)
	}
	return fmt.Sprintf("cancelled: %s", c.Reason)
}

// Unwrap makes every cancellation match ErrCancelled and, when the
// cancellation was caused by an upchain failure, also match that failure's
// error chain.
func (c *StateCancelled) Unwrap() []error {
	if c.Cause != nil {
		return []error{ErrCancelled, c.Cause}
	}
	return []error{ErrCancelled}
}
