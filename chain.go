package cascade

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Then attaches a side-effect action downstream of src; the upchain value
// passes through unchanged. The new step runs on src's execution context
// and is forked immediately when src is already terminal.
func Then[T any](src Source[T], action func(T) error) *RunnableAltFuture[T, T] {
	if action == nil {
		panic("cascade: nil action")
	}
	return chainStep(src, "then", func(v T) (T, error) {
		if err := action(v); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	})
}

// Map attaches a transforming step downstream of src.
func Map[T, R any](src Source[T], action func(T) (R, error)) *RunnableAltFuture[T, R] {
	return chainStep(src, "map", action)
}

// Filter attaches a pass-through step that cancels itself, with a reason
// naming the rejected value, when pred rejects the upchain value. The chain
// halts at this step: nothing attached after the filter transitions to
// started.
func Filter[T any](src Source[T], pred func(T) bool) *RunnableAltFuture[T, T] {
	if pred == nil {
		panic("cascade: nil predicate")
	}
	r := &RunnableAltFuture[T, T]{
		core: newCore[T](nextStepName("filter"), src.Context(), src.hookset()),
	}
	r.action = func(v T) (T, error) {
		if !pred(v) {
			r.Cancel(fmt.Sprintf("filtered: rejected value %v", v))
		}
		return v, nil
	}
	r.input = func() (T, error) { return src.outcome() }
	r.core.self = r
	r.core.runner = r.run
	r.core.setUp(src)
	src.attach(r)
	return r
}

// On continues the chain on a different execution context. It returns src
// itself when src already runs there; otherwise it inserts a pass-through
// relay step scheduled on ec.
func On[T any](src Source[T], ec ExecutionContext) Source[T] {
	if ec == nil {
		panic("cascade: nil execution context")
	}
	if ec == src.Context() {
		return src
	}
	return chainStepOn(src, ec, "relay", func(v T) (T, error) { return v, nil })
}

// Await produces a step that fires with src's value only once src and every
// listed dependency have completed, exactly once, via a shared countdown.
// If any dependency ends cancelled or errored the produced step never
// fires; cancel it or wait with a timeout when that matters. At least two
// dependencies are required: awaiting a single step is just Then in
// disguise, so use Then instead.
func Await[T any](src Source[T], others ...AltFuture) *SettableAltFuture[T] {
	if len(others) < 2 {
		panic("cascade: Await needs at least two dependencies; use Then for a single upchain step")
	}
	out := newChainedSettable[T](src, "await")

	var pending atomic.Int32
	pending.Store(int32(len(others)) + 1)
	arrive := func() {
		if pending.Add(-1) != 0 {
			return
		}
		if v, ok := src.peek(); ok {
			out.Set(v)
		} else {
			out.SetEmpty()
		}
	}

	attachNotifier(src, src.hookset(), arrive)
	for _, o := range others {
		dep, ok := o.(link)
		if !ok {
			panic(fmt.Sprintf("cascade: Await dependency %T is not a chain step", o))
		}
		attachNotifier(dep, src.hookset(), arrive)
	}
	return out
}

// attachNotifier hangs a pure side-effect step off dep that runs fn when
// dep completes. An upchain failure cancels the notifier instead, so the
// countdown it feeds never reaches zero.
func attachNotifier(dep link, hooks *chainHooks, fn func()) {
	n := &RunnableAltFuture[None, None]{
		core: newCore[None](nextStepName("awaitee"), dep.Context(), hooks),
	}
	n.action = func(None) (None, error) {
		fn()
		return None{}, nil
	}
	n.input = func() (None, error) {
		if err := dep.Err(); err != nil {
			return None{}, err
		}
		return None{}, nil
	}
	n.core.self = n
	n.core.runner = n.run
	n.core.setUp(dep)
	dep.attach(n)
}

// ThenAll fans the upchain value out to two or more side-effect actions,
// one step per action, and returns an await-all handle that fires with
// src's value once every action has completed. A single action must use
// Then instead.
func ThenAll[T any](src Source[T], actions ...func(T) error) *SettableAltFuture[T] {
	if len(actions) < 2 {
		panic("cascade: ThenAll requires at least two actions; use Then for a single action")
	}
	deps := make([]AltFuture, 0, len(actions))
	for _, a := range actions {
		deps = append(deps, Then(src, a))
	}
	return Await(src, deps...)
}

// MapAll fans the upchain value out to two or more transforms, one step per
// transform. It returns the mapped steps, for access to their values, and
// an await-all handle that fires with src's value once all of them have
// completed.
func MapAll[T, R any](src Source[T], actions ...func(T) (R, error)) ([]*RunnableAltFuture[T, R], *SettableAltFuture[T]) {
	if len(actions) < 2 {
		panic("cascade: MapAll requires at least two actions; use Map for a single action")
	}
	steps := make([]*RunnableAltFuture[T, R], len(actions))
	deps := make([]AltFuture, len(actions))
	for i, a := range actions {
		steps[i] = Map(src, a)
		deps[i] = steps[i]
	}
	return steps, Await(src, deps...)
}

// Sleep produces a step whose value equals src's value but whose completion
// is delayed by d via a timer, without blocking the execution context's
// worker.
func Sleep[T any](src Source[T], d time.Duration) *SettableAltFuture[T] {
	out := newChainedSettable[T](src, "sleep")
	Then(src, func(v T) error {
		time.AfterFunc(d, func() {
			out.Set(v)
		})
		return nil
	})
	return out
}

// Feed pushes each value reaching this point of the chain into a reactive
// target cell.
func Feed[T comparable](src Source[T], target *ReactiveValue[T]) *RunnableAltFuture[T, T] {
	if target == nil {
		panic("cascade: nil reactive target")
	}
	return Then(src, func(v T) error {
		target.Set(v)
		return nil
	})
}

// OnError attaches a recovery step. In the normal completion path it is a
// pass-through. When an upchain error cascades into it, handler consumes
// the error; the step then ends cancelled with the cause recorded, and
// everything downstream of it is cancelled rather than errored. A non-nil
// error from handler is surfaced to the cascade caller.
func OnError[T any](src Source[T], handler func(error) error) *RunnableAltFuture[T, T] {
	if handler == nil {
		panic("cascade: nil error handler")
	}
	// the hook must be installed before the step is attached: a failure
	// cascading in concurrently with construction already reads it
	r := buildStepOn(src, src.Context(), "on-error", func(v T) (T, error) { return v, nil })
	r.core.onErrorHook = func(se *StateError) error {
		// the cascade and an attach-time discovery may both deliver the
		// failure; only the cancellation winner runs the handler
		sc := &StateCancelled{Reason: "error handled: " + se.Reason, Cause: se}
		if !r.core.markCancelled(sc) {
			return nil
		}
		if err := handler(se); err != nil {
			return err
		}
		return r.core.cascadeCancelled(sc)
	}
	r.core.setUp(src)
	src.attach(r)
	return r
}

// OnCancelled attaches a recovery step invoked when a cancellation cascade
// reaches it. The cascade is consumed at this step and does not continue
// downchain.
func OnCancelled[T any](src Source[T], handler func(reason string) error) *RunnableAltFuture[T, T] {
	if handler == nil {
		panic("cascade: nil cancellation handler")
	}
	r := buildStepOn(src, src.Context(), "on-cancelled", func(v T) (T, error) { return v, nil })
	r.core.onCancelHook = func(sc *StateCancelled) error {
		if r.core.markCancelled(sc) {
			return handler(sc.Reason)
		}
		return nil
	}
	r.core.setUp(src)
	src.attach(r)
	return r
}
