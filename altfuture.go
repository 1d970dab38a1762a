package cascade

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AltFuture is the untyped surface shared by every chain step: runnable
// steps, settable steps, compound subchains and reactive subscription
// points. Typed access to a step's value goes through [Source] and the
// package-level combinators.
type AltFuture interface {
	// Fork requests that execution begin. If an upchain predecessor exists
	// and is not yet terminal, the predecessor is forked instead and
	// execution proceeds strictly in upchain-to-downchain order.
	Fork()

	// Cancel attempts the transition to the cancelled terminal state.
	// It reports whether this call performed the transition. Cancelling an
	// already terminal step is a no-op. Cancellation is cooperative: an
	// in-flight action is never interrupted, it only finds its own
	// completion refused afterwards.
	Cancel(reason string) bool

	// IsDone reports whether the step reached a terminal state.
	IsDone() bool
	// IsForked reports whether execution has been requested at least once.
	IsForked() bool
	// IsCancelled reports whether the step ended in the cancelled state.
	IsCancelled() bool

	// Err returns the terminal failure outcome: a *StateCancelled, a
	// *StateError, or nil when the step is not terminal or completed
	// normally.
	Err() error

	// Name returns the debug name of the step.
	Name() string
	// State returns the current state name for diagnostics.
	State() string
	// Context returns the execution context the step runs on.
	Context() ExecutionContext
	// Upchain returns the single upstream step this one depends on, or nil.
	Upchain() AltFuture
	// Downchain returns a point-in-time snapshot of the attached
	// downstream steps.
	Downchain() []AltFuture
}

// link is the in-package view of a chain step, used for upchain/downchain
// wiring across differing value types.
type link interface {
	AltFuture

	fork()
	applyError(se *StateError) error
	applyCancelled(sc *StateCancelled) error
	cancelFromError(se *StateError) bool
	setUp(prev link)
	up() link
	rearm()
	attach(child link)
	hookset() *chainHooks
}

// Source is the typed attachment point the combinators build on: anything
// that can hand a value of type OUT to a downstream step. It is implemented
// by runnable and settable steps, compound subchains and reactive
// subscription points; callers compose values of this type, they do not
// implement it.
type Source[OUT any] interface {
	link

	peek() (OUT, bool)
	outcome() (OUT, error)
}

// Transition describes one observed state change of a chain step.
type Transition struct {
	Future AltFuture
	From   string
	To     string
	Reason string
	Err    error
}

// Observer receives state transitions of a chain. Observers are inherited
// by every step chained downstream of the step they were installed on.
type Observer interface {
	OnTransition(Transition)
}

// chainHooks carries the logger and observer a head step was built with.
// Chained steps share their upstream's hooks.
type chainHooks struct {
	logger   *slog.Logger
	observer Observer
}

// FutureOption configures a head step at construction.
type FutureOption func(*futureConfig)

type futureConfig struct {
	name     string
	logger   *slog.Logger
	observer Observer
}

// WithName sets the debug name of a step.
func WithName(name string) FutureOption {
	return func(c *futureConfig) {
		c.name = name
	}
}

// WithLogger sets the logger for a step and everything chained after it.
func WithLogger(l *slog.Logger) FutureOption {
	return func(c *futureConfig) {
		c.logger = l
	}
}

// WithObserver installs a transition observer on a step and everything
// chained after it.
func WithObserver(o Observer) FutureOption {
	return func(c *futureConfig) {
		c.observer = o
	}
}

var stepCounter atomic.Uint64

func nextStepName(kind string) string {
	return fmt.Sprintf("%s-%d", kind, stepCounter.Add(1))
}

func newConfig(kind string, opts []FutureOption) futureConfig {
	cfg := futureConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = nextStepName(kind)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

type linkBox struct {
	l link
}

// core is the shared state machine of every concrete chain step. All state
// transitions are single compare-and-swap operations on one atomic cell; the
// downchain list is copy-on-write so fan-out can iterate a snapshot while
// new steps attach concurrently.
type core[T any] struct {
	name  string
	ec    ExecutionContext
	hooks *chainHooks

	cell   atomic.Pointer[stateCell[T]]
	prev   atomic.Pointer[linkBox]
	merged atomic.Bool

	downMu sync.Mutex
	down   atomic.Pointer[[]link]

	// runner is submitted to the execution context when the fork CAS
	// succeeds. Settable steps have none.
	runner func()

	// onErrorHook and onCancelHook replace the default cascade handling;
	// recovery steps built by OnError and OnCancelled install them.
	onErrorHook  func(*StateError) error
	onCancelHook func(*StateCancelled) error

	// self is the concrete step embedding this core, reported to observers
	// and returned from chain walks.
	self link
}

func newCore[T any](name string, ec ExecutionContext, hooks *chainHooks) *core[T] {
	if ec == nil {
		panic("cascade: nil execution context")
	}
	c := &core[T]{name: name, ec: ec, hooks: hooks}
	c.cell.Store(unsetState[T]())
	empty := make([]link, 0)
	c.down.Store(&empty)
	return c
}

func (c *core[T]) Name() string              { return c.name }
func (c *core[T]) Context() ExecutionContext { return c.ec }
func (c *core[T]) State() string             { return c.cell.Load().phase.String() }
func (c *core[T]) hookset() *chainHooks      { return c.hooks }

func (c *core[T]) IsDone() bool {
	return c.cell.Load().phase.terminal()
}

func (c *core[T]) IsForked() bool {
	return c.cell.Load().phase != phaseUnset
}

func (c *core[T]) IsCancelled() bool {
	return c.cell.Load().phase == phaseCancelled
}

func (c *core[T]) Err() error {
	return c.cell.Load().err()
}

func (c *core[T]) up() link {
	if box := c.prev.Load(); box != nil {
		return box.l
	}
	return nil
}

func (c *core[T]) Upchain() AltFuture {
	if p := c.up(); p != nil {
		return p
	}
	return nil
}

func (c *core[T]) Downchain() []AltFuture {
	snap := c.snapshot()
	out := make([]AltFuture, len(snap))
	for i, l := range snap {
		out[i] = l
	}
	return out
}

// setUp records the single upstream dependency. The link is set at most
// once; a second attempt marks this step as the merge point of two
// independent chains, which is deliberate, not an error.
func (c *core[T]) setUp(prev link) {
	if c.prev.CompareAndSwap(nil, &linkBox{l: prev}) {
		return
	}
	c.merged.Store(true)
	c.hooks.logger.Debug("second upchain assignment, merging two chains at this step",
		"step", c.name, "upchain", prev.Name())
}

func (c *core[T]) snapshot() []link {
	return *c.down.Load()
}

// attach appends a child to the downchain list and resolves the race
// between attachment and completion: if this step is already terminal the
// child is forked here, and a completion fanning out concurrently with the
// append may fork it as well. The child's own state CAS makes the double
// fork benign, so the child runs exactly once.
func (c *core[T]) attach(child link) {
	c.appendChild(child)

	if c.cell.Load().phase.terminal() {
		child.fork()
	}
}

func (c *core[T]) appendChild(child link) {
	c.downMu.Lock()
	cur := *c.down.Load()
	next := make([]link, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = child
	c.down.Store(&next)
	c.downMu.Unlock()
}

func (c *core[T]) Fork() { c.fork() }

func (c *core[T]) fork() {
	if prev := c.up(); prev != nil && !prev.IsDone() {
		c.hooks.logger.Debug("upchain not yet done, forking upchain",
			"step", c.name, "upchain", prev.Name())
		prev.fork()
		return
	}

	for {
		s := c.cell.Load()
		switch s.phase {
		case phaseUnset:
			if c.cell.CompareAndSwap(s, startedState[T]()) {
				c.transition(phaseUnset, phaseStarted, "", nil)
				if c.runner != nil {
					c.ec.Execute(c.runner)
				}
				return
			}
		case phaseStarted, phaseCompleted:
			c.hooks.logger.Info("ignoring duplicate fork, possibly a benign race",
				"step", c.name, "state", s.phase.String())
			return
		default:
			c.hooks.logger.Debug("fork is a no-op, chain already ended upchain",
				"step", c.name, "state", s.phase.String())
			return
		}
	}
}

// complete moves the step to the completed terminal state and forks a
// snapshot of the downchain list, which is what propagates execution
// forward. A concurrent cancellation wins the race: completion of the
// in-flight action is then discarded.
func (c *core[T]) complete(v T) {
	c.completeCell(completedState(v))
}

// completeEmpty finishes a pure side-effect step with the no-value marker.
func (c *core[T]) completeEmpty() {
	c.completeCell(completeMarker[T]())
}

func (c *core[T]) completeCell(next *stateCell[T]) {
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			c.hooks.logger.Debug("discarding completion, step already terminal",
				"step", c.name, "state", s.phase.String())
			return
		}
		if c.cell.CompareAndSwap(s, next) {
			c.transition(s.phase, phaseCompleted, "", nil)
			c.fanOut()
			return
		}
	}
}

func (c *core[T]) fanOut() {
	for _, child := range c.snapshot() {
		child.fork()
	}
}

// Cancel transitions to the cancelled state without cascading. Downchain
// steps discover the cancellation when they try to read this step's value.
func (c *core[T]) Cancel(reason string) bool {
	if reason == "" {
		panic("cascade: Cancel requires a reason to keep debugging sane")
	}
	sc := &StateCancelled{Reason: reason}
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			if s.phase == phaseCancelled {
				c.hooks.logger.Debug("ignoring duplicate cancel",
					"step", c.name, "reason", reason)
			} else {
				c.hooks.logger.Debug("ignoring cancel, state already determined",
					"step", c.name, "state", s.phase.String(), "reason", reason)
			}
			return false
		}
		if c.cell.CompareAndSwap(s, cancelledState[T](sc)) {
			c.transition(s.phase, phaseCancelled, reason, nil)
			return true
		}
	}
}

// markCancelled performs the bare cancellation transition without any
// cascade, for callers that handle propagation themselves.
func (c *core[T]) markCancelled(sc *StateCancelled) bool {
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			return false
		}
		if c.cell.CompareAndSwap(s, cancelledState[T](sc)) {
			c.transition(s.phase, phaseCancelled, sc.Reason, nil)
			return true
		}
	}
}

// cancelFromError cancels this step because of an upchain failure, then
// cascades the cancellation depth-first through the downchain snapshot.
// Every child is attempted even if one fails; the first failure is
// reported, not swallowed.
func (c *core[T]) cancelFromError(se *StateError) bool {
	sc := &StateCancelled{Reason: "cancelled by upchain error: " + se.Reason, Cause: se}
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			c.hooks.logger.Debug("ignoring cancel from upchain error, state already determined",
				"step", c.name, "state", s.phase.String())
			return false
		}
		if c.cell.CompareAndSwap(s, cancelledState[T](sc)) {
			c.transition(s.phase, phaseCancelled, sc.Reason, se)
			if err := c.cascadeCancelled(sc); err != nil {
				c.hooks.logger.Error("problem running downchain cancellation actions",
					"step", c.name, "error", err)
			}
			return true
		}
	}
}

// applyError is the downchain half of the error cascade. Already-terminal
// steps ignore it.
func (c *core[T]) applyError(se *StateError) error {
	if c.onErrorHook != nil {
		return c.onErrorHook(se)
	}
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			c.hooks.logger.Info("not repeating error handling, state already determined",
				"step", c.name, "state", s.phase.String())
			return nil
		}
		if c.cell.CompareAndSwap(s, erroredState[T](se)) {
			c.transition(s.phase, phaseErrored, se.Reason, se)
			return c.cascadeError(se)
		}
	}
}

// applyCancelled is the downchain half of the cancellation cascade.
func (c *core[T]) applyCancelled(sc *StateCancelled) error {
	if c.onCancelHook != nil {
		return c.onCancelHook(sc)
	}
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			c.hooks.logger.Info("not repeating cancellation handling, state already determined",
				"step", c.name, "state", s.phase.String())
			return nil
		}
		if c.cell.CompareAndSwap(s, cancelledState[T](sc)) {
			c.transition(s.phase, phaseCancelled, sc.Reason, nil)
			return c.cascadeCancelled(sc)
		}
	}
}

// fail records a runtime failure of this step's own action and cascades it
// downchain.
func (c *core[T]) fail(se *StateError) {
	for {
		s := c.cell.Load()
		if s.phase.terminal() {
			c.hooks.logger.Debug("discarding failure, step already terminal",
				"step", c.name, "state", s.phase.String(), "error", se)
			return
		}
		if c.cell.CompareAndSwap(s, erroredState[T](se)) {
			c.transition(s.phase, phaseErrored, se.Reason, se)
			if err := c.cascadeError(se); err != nil {
				c.hooks.logger.Error("problem running downchain error actions",
					"step", c.name, "error", err)
			}
			return
		}
	}
}

func (c *core[T]) cascadeError(se *StateError) error {
	var first error
	for _, child := range c.snapshot() {
		if err := child.applyError(se); err != nil {
			if first == nil {
				first = err
			}
			c.hooks.logger.Error("downchain error action failed",
				"step", c.name, "child", child.Name(), "error", err)
		}
	}
	return first
}

func (c *core[T]) cascadeCancelled(sc *StateCancelled) error {
	var first error
	for _, child := range c.snapshot() {
		if err := child.applyCancelled(sc); err != nil {
			if first == nil {
				first = err
			}
			c.hooks.logger.Error("downchain cancellation action failed",
				"step", c.name, "child", child.Name(), "error", err)
		}
	}
	return first
}

// rearm resets this step and everything downchain of it back to the unset
// state so a standing subscriber chain can fire again. Only the reactive
// fire path calls this, serialized on the owning value's execution context.
func (c *core[T]) rearm() {
	c.cell.Store(unsetState[T]())
	for _, child := range c.snapshot() {
		child.rearm()
	}
}

// Get returns the produced value. Calling Get on a step that is not yet
// terminal is a programming error (the caller forgot to fork or wait) and
// panics. A terminal failure outcome is returned as the error.
func (c *core[T]) Get() (T, error) {
	s := c.cell.Load()
	if !s.phase.terminal() {
		panic(fmt.Sprintf("cascade: Get on step %q that is not yet finished (state=%s); fork the chain and wait for it",
			c.name, s.phase))
	}
	if err := s.err(); err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// SafeGet never fails: it reports the produced value, or false when the
// step is not terminal, was cancelled, errored, or completed without a
// usable value.
func (c *core[T]) SafeGet() (T, bool) {
	s := c.cell.Load()
	if s.phase != phaseCompleted || !s.hasValue {
		var zero T
		return zero, false
	}
	return s.value, true
}

func (c *core[T]) peek() (T, bool) { return c.SafeGet() }

// outcome reports the terminal result: the value, the terminal failure, or
// errStepNotDone when the step has not finished.
func (c *core[T]) outcome() (T, error) {
	s := c.cell.Load()
	var zero T
	switch {
	case !s.phase.terminal():
		return zero, errStepNotDone
	case s.phase == phaseCompleted:
		return s.value, nil
	default:
		return zero, s.err()
	}
}

var errStepNotDone = fmt.Errorf("cascade: step not done")

func (c *core[T]) transition(from, to phase, reason string, err error) {
	attrs := []any{"step", c.name, "from", from.String(), "to", to.String()}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.hooks.logger.Debug("state transition", attrs...)

	if c.hooks.observer != nil {
		c.hooks.observer.OnTransition(Transition{
			Future: c.self,
			From:   from.String(),
			To:     to.String(),
			Reason: reason,
			Err:    err,
		})
	}
}
