package cascade

// SettableAltFuture is a chain step completed from outside the chain: by a
// caller injecting a value, by a timer (Sleep), or by a countdown (Await).
// Forking a settable step only marks it started; Set finishes it and fires
// everything attached downchain.
type SettableAltFuture[T any] struct {
	*core[T]
}

// NewSettable creates an unchained settable step on ec. It can be used to
// inject data into a chain from entirely outside the chain hierarchy.
func NewSettable[T any](ec ExecutionContext, opts ...FutureOption) *SettableAltFuture[T] {
	cfg := newConfig("settable", opts)
	s := &SettableAltFuture[T]{
		core: newCore[T](cfg.name, ec, &chainHooks{logger: cfg.logger, observer: cfg.observer}),
	}
	s.core.self = s
	return s
}

// newChainedSettable builds a settable step that records src as its upchain
// dependency without joining src's fan-out list; completion is driven by
// whoever holds the step (Await's countdown, Sleep's timer).
func newChainedSettable[T any](src link, kind string) *SettableAltFuture[T] {
	s := &SettableAltFuture[T]{
		core: newCore[T](nextStepName(kind), src.Context(), src.hookset()),
	}
	s.core.self = s
	s.core.setUp(src)
	return s
}

// Set injects the value, moving the step to the completed state and forking
// the downchain snapshot. Setting an already terminal step is discarded.
func (s *SettableAltFuture[T]) Set(v T) {
	s.complete(v)
}

// SetEmpty completes the step with the no-value marker, releasing downchain
// side-effect steps without producing a usable value.
func (s *SettableAltFuture[T]) SetEmpty() {
	s.completeEmpty()
}
