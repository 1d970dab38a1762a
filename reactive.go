package cascade

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// ReactiveValue is an observable cell: a named value that re-fires its
// subscriber chains every time it changes. Subscriber chains stay attached
// across fires; each fire re-arms them back to the unset state and forks
// them again with the new value, serialized on the value's execution
// context.
//
// The zero value of T is an ordinary value. "Not asserted" is a separate
// condition: a freshly created value holds nothing until the first Set, and
// CompareAndUnset returns it to that inert condition.
type ReactiveValue[T comparable] struct {
	name    string
	ec      ExecutionContext
	logger  *slog.Logger
	mapIn   func(T) (T, error)
	onError func(error)

	mu  sync.Mutex
	val *T

	head *subscriptionPoint[T]
}

// ValueOption configures a reactive value at construction.
type ValueOption[T comparable] func(*valueConfig[T])

type valueConfig[T comparable] struct {
	initial  *T
	mapIn    func(T) (T, error)
	onError  func(error)
	logger   *slog.Logger
	observer Observer
}

// WithInitial seeds the value so it is asserted from the start. Subscriber
// chains built afterwards still need an explicit Fire to see it.
func WithInitial[T comparable](v T) ValueOption[T] {
	return func(c *valueConfig[T]) {
		c.initial = &v
	}
}

// WithInputMapping installs a function applied to every value passed to Set
// before it is stored and fired. A mapping error is routed to the error
// handler and the set is dropped.
func WithInputMapping[T comparable](f func(T) (T, error)) ValueOption[T] {
	return func(c *valueConfig[T]) {
		c.mapIn = f
	}
}

// WithFireError installs the handler for mapping failures and for errors
// escaping subscriber chains during a fire. The default handler logs them.
func WithFireError[T comparable](f func(error)) ValueOption[T] {
	return func(c *valueConfig[T]) {
		c.onError = f
	}
}

// WithValueLogger sets the logger of the value and its subscriber chains.
func WithValueLogger[T comparable](l *slog.Logger) ValueOption[T] {
	return func(c *valueConfig[T]) {
		c.logger = l
	}
}

// WithValueObserver installs a transition observer on the subscription
// point and every subscriber chain.
func WithValueObserver[T comparable](o Observer) ValueOption[T] {
	return func(c *valueConfig[T]) {
		c.observer = o
	}
}

// NewReactiveValue creates a named observable cell whose fires run on ec.
func NewReactiveValue[T comparable](name string, ec ExecutionContext, opts ...ValueOption[T]) *ReactiveValue[T] {
	if name == "" {
		name = nextStepName("value")
	}
	cfg := valueConfig[T]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	rv := &ReactiveValue[T]{
		name:    name,
		ec:      ec,
		logger:  cfg.logger,
		mapIn:   cfg.mapIn,
		onError: cfg.onError,
		val:     cfg.initial,
	}
	rv.head = newSubscriptionPoint[T](name, ec, &chainHooks{logger: cfg.logger, observer: cfg.observer})
	return rv
}

func (rv *ReactiveValue[T]) Name() string { return rv.name }

// Source exposes the subscription point so subscriber chains can be built
// with the package combinators: Then(rv.Source(), ...) and friends. Chains
// attached here are standing subscriptions, re-fired on every change; they
// do not run until the value fires.
func (rv *ReactiveValue[T]) Source() Source[T] { return rv.head }

// Set stores v and fires the subscriber chains if the stored value actually
// changed by equality. Setting the current value again is a no-op.
func (rv *ReactiveValue[T]) Set(v T) {
	rv.rejectNil(v)
	mapped, err := rv.applyMapping(v)
	if err != nil {
		rv.reportError(fmt.Errorf("mapping input of reactive value %q: %w", rv.name, err))
		return
	}

	rv.mu.Lock()
	if rv.val != nil && *rv.val == mapped {
		rv.mu.Unlock()
		rv.logger.Debug("value unchanged, not firing", "value", rv.name)
		return
	}
	rv.val = &mapped
	rv.mu.Unlock()

	rv.fire(mapped)
}

// CompareAndSet stores update and fires only when the value is currently
// asserted and equal to expected. It reports whether the swap happened.
func (rv *ReactiveValue[T]) CompareAndSet(expected, update T) bool {
	rv.rejectNil(update)
	rv.mu.Lock()
	if rv.val == nil || *rv.val != expected {
		rv.mu.Unlock()
		return false
	}
	changed := *rv.val != update
	rv.val = &update
	rv.mu.Unlock()

	if changed {
		rv.fire(update)
	}
	return true
}

// CompareAndUnset retracts the value when it currently equals expected,
// returning the cell to the not-asserted condition. Nothing fires; the
// value is simply inert until the next Set.
func (rv *ReactiveValue[T]) CompareAndUnset(expected T) bool {
	rv.mu.Lock()
	if rv.val == nil || *rv.val != expected {
		rv.mu.Unlock()
		return false
	}
	rv.val = nil
	rv.mu.Unlock()

	rv.logger.Debug("value retracted, inert until next set", "value", rv.name)
	return true
}

// GetAndSet swaps in v and returns the previous value together with whether
// one was asserted. The subscriber chains fire if the value changed.
func (rv *ReactiveValue[T]) GetAndSet(v T) (prev T, wasAsserted bool) {
	rv.rejectNil(v)
	rv.mu.Lock()
	prevP := rv.val
	rv.val = &v
	rv.mu.Unlock()

	if prevP == nil || *prevP != v {
		rv.fire(v)
	}
	if prevP != nil {
		return *prevP, true
	}
	var zero T
	return zero, false
}

// Get returns the current value, or ErrNotAsserted when nothing has been
// set yet (or the value was retracted).
func (rv *ReactiveValue[T]) Get() (T, error) {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if rv.val == nil {
		var zero T
		return zero, fmt.Errorf("reactive value %q: %w", rv.name, ErrNotAsserted)
	}
	return *rv.val, nil
}

// SafeGet reports the current value and whether one is asserted.
func (rv *ReactiveValue[T]) SafeGet() (T, bool) {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if rv.val == nil {
		var zero T
		return zero, false
	}
	return *rv.val, true
}

// IsAsserted reports whether the cell currently holds a value.
func (rv *ReactiveValue[T]) IsAsserted() bool {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.val != nil
}

// Fire re-delivers the current value to the subscriber chains without
// changing it. This is how a freshly built subscription is primed with the
// value that was already there. A no-op while the value is not asserted.
func (rv *ReactiveValue[T]) Fire() {
	rv.mu.Lock()
	v := rv.val
	rv.mu.Unlock()
	if v == nil {
		rv.logger.Debug("fire skipped, value not asserted", "value", rv.name)
		return
	}
	rv.fire(*v)
}

// fire hands the delivery to the value's execution context. On an ordered
// context this serializes overlapping fires; rapid changes may coalesce
// from a subscriber's point of view, which is why subscriber actions must
// be idempotent per observed value.
func (rv *ReactiveValue[T]) fire(v T) {
	rv.ec.Execute(func() {
		if err := rv.head.fire(v); err != nil {
			rv.reportError(fmt.Errorf("firing reactive value %q: %w", rv.name, err))
		}
	})
}

func (rv *ReactiveValue[T]) applyMapping(v T) (T, error) {
	if rv.mapIn == nil {
		return v, nil
	}
	return rv.mapIn(v)
}

func (rv *ReactiveValue[T]) reportError(err error) {
	if rv.onError != nil {
		rv.onError(err)
		return
	}
	rv.logger.Error("reactive value error", "value", rv.name, "error", err)
}

func (rv *ReactiveValue[T]) rejectNil(v T) {
	if isNilValue(v) {
		panic(fmt.Sprintf("cascade: reactive value %q rejects nil; use CompareAndUnset to retract", rv.name))
	}
}

// isNilValue guards against nil pointers and nil interfaces sneaking in as
// a comparable T; "no value" is expressed by not asserting, never by nil.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	switch r := reflect.ValueOf(v); r.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func,
		reflect.Map, reflect.Slice, reflect.UnsafePointer:
		return r.IsNil()
	}
	return false
}

// Subscribe attaches a standing side-effect subscriber to a reactive value.
// The action runs on the value's execution context for every fired value,
// starting with the next fire.
func Subscribe[T comparable](rv *ReactiveValue[T], action func(T) error) *RunnableAltFuture[T, T] {
	return Then(rv.Source(), action)
}

// subscriptionPoint is the always-open step a reactive value fans out from.
// It differs from an ordinary step in two ways: attaching a chain never
// auto-forks it (subscriptions are primed explicitly with Fire), and firing
// overwrites the completed value in place instead of refusing a second
// completion.
type subscriptionPoint[T any] struct {
	*core[T]
}

func newSubscriptionPoint[T any](name string, ec ExecutionContext, hooks *chainHooks) *subscriptionPoint[T] {
	p := &subscriptionPoint[T]{
		core: newCore[T](name+".source", ec, hooks),
	}
	p.core.self = p
	return p
}

// attach appends the chain without the usual fork-if-terminal step.
func (p *subscriptionPoint[T]) attach(child link) {
	p.appendChild(child)
}

// rearm stops here: the subscription point itself is always open, only the
// chains hanging off it are reset.
func (p *subscriptionPoint[T]) rearm() {}

// fire publishes v as the point's value, then re-fires every standing
// subscriber chain: each chain is reset depth-first back to unset and
// forked again. Runs on the value's execution context.
func (p *subscriptionPoint[T]) fire(v T) error {
	p.cell.Store(completedState(v))

	var first error
	for _, child := range p.snapshot() {
		child.rearm()
		func() {
			defer func() {
				if r := recover(); r != nil && first == nil {
					first = fmt.Errorf("subscriber %q panicked: %v", child.Name(), r)
				}
			}()
			child.fork()
		}()
	}
	return first
}
