package cascade

import "fmt"

// None is the input type of head steps, which depend on nothing.
type None struct{}

// RunnableAltFuture is a chain step that runs an action on its execution
// context once its upchain dependency (if any) is terminal. The action's
// input is read from the upchain step at execution time.
type RunnableAltFuture[IN, OUT any] struct {
	*core[OUT]
	action func(IN) (OUT, error)
	input  func() (IN, error)
}

// Run creates a head step that executes action on ec once forked.
func Run[T any](ec ExecutionContext, action func() (T, error), opts ...FutureOption) *RunnableAltFuture[None, T] {
	if action == nil {
		panic("cascade: nil action")
	}
	cfg := newConfig("run", opts)
	r := &RunnableAltFuture[None, T]{
		core:   newCore[T](cfg.name, ec, &chainHooks{logger: cfg.logger, observer: cfg.observer}),
		action: func(None) (T, error) { return action() },
		input:  func() (None, error) { return None{}, nil },
	}
	r.core.self = r
	r.core.runner = r.run
	return r
}

// chainStep builds a runnable step downstream of src, on src's execution
// context, fully constructed before it is attached so that an immediate
// fork (src already terminal) is safe.
func chainStep[IN, OUT any](src Source[IN], kind string, action func(IN) (OUT, error)) *RunnableAltFuture[IN, OUT] {
	return chainStepOn(src, src.Context(), kind, action)
}

func chainStepOn[IN, OUT any](src Source[IN], ec ExecutionContext, kind string, action func(IN) (OUT, error)) *RunnableAltFuture[IN, OUT] {
	r := buildStepOn(src, ec, kind, action)
	r.core.setUp(src)
	src.attach(r)
	return r
}

// buildStepOn constructs a downstream step without linking it to src.
// Callers that need to configure the step further (recovery hooks) do so
// before setUp/attach: once the step is reachable from src's downchain
// list a concurrent cascade may read it, so every field must be in place
// first.
func buildStepOn[IN, OUT any](src Source[IN], ec ExecutionContext, kind string, action func(IN) (OUT, error)) *RunnableAltFuture[IN, OUT] {
	if action == nil {
		panic("cascade: nil action")
	}
	r := &RunnableAltFuture[IN, OUT]{
		core:   newCore[OUT](nextStepName(kind), ec, src.hookset()),
		action: action,
		input:  func() (IN, error) { return src.outcome() },
	}
	r.core.self = r
	r.core.runner = r.run
	return r
}

// run executes on the step's execution context after the fork CAS. The
// input read resolves the upchain outcome: an upchain failure turns into
// cancellation of this step, a failure of the action itself becomes this
// step's errored state and cascades downchain.
func (r *RunnableAltFuture[IN, OUT]) run() {
	defer func() {
		if p := recover(); p != nil {
			r.fail(&StateError{
				Reason: fmt.Sprintf("action of step %q panicked", r.name),
				Err:    fmt.Errorf("panic: %v", p),
			})
		}
	}()

	in, err := r.input()
	if err != nil {
		switch e := err.(type) {
		case *StateError:
			// a recovery hook consumes the failure even when this step was
			// attached after the upchain had already errored
			if r.core.onErrorHook != nil {
				if herr := r.core.onErrorHook(e); herr != nil {
					r.core.hooks.logger.Error("problem running error recovery",
						"step", r.name, "error", herr)
				}
			} else {
				r.cancelFromError(e)
			}
		case *StateCancelled:
			if r.core.onCancelHook != nil {
				if herr := r.core.onCancelHook(e); herr != nil {
					r.core.hooks.logger.Error("problem running cancellation recovery",
						"step", r.name, "error", herr)
				}
			} else {
				r.Cancel("upchain cancelled: " + e.Reason)
			}
		default:
			r.Cancel(fmt.Sprintf("upchain value not available: %v", err))
		}
		return
	}

	out, err := r.action(in)
	if err != nil {
		r.fail(&StateError{
			Reason: fmt.Sprintf("action of step %q failed", r.name),
			Err:    err,
		})
		return
	}
	r.complete(out)
}
