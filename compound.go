package cascade

import "fmt"

// CompoundAltFuture presents a multi-step subchain as one step: fork and
// upchain wiring go to the head, value access and further chaining go to
// the tail, and cancellation is offered to every member in order. The
// subchain is walked and frozen at construction; steps attached to the
// tail afterwards are downstream of the compound, not part of it.
type CompoundAltFuture[OUT any] struct {
	name string
	head link
	tail Source[OUT]

	// sub holds the member steps in head-to-tail order.
	sub []link
}

// NewCompound wraps the chain segment from head to tail. The head must be
// the true start of its chain, the tail must be reachable by walking
// upchain from tail to head, and the two must be distinct steps. Violating
// any of these is a construction bug and panics.
func NewCompound[OUT any](head AltFuture, tail Source[OUT]) *CompoundAltFuture[OUT] {
	hl, ok := head.(link)
	if !ok {
		panic("cascade: compound head must be a chain step built by this package")
	}
	var tl link = tail
	if hl == tl {
		panic(fmt.Sprintf("cascade: compound head and tail must be distinct steps, got %q twice", head.Name()))
	}
	if hl.up() != nil {
		panic(fmt.Sprintf("cascade: compound head %q already has an upchain step, it must start its chain", head.Name()))
	}

	sub := []link{tl}
	for cur := tl.up(); ; cur = cur.up() {
		if cur == nil {
			panic(fmt.Sprintf("cascade: compound tail %q is not downchain of head %q", tail.Name(), head.Name()))
		}
		sub = append(sub, cur)
		if cur == hl {
			break
		}
	}
	for i, j := 0, len(sub)-1; i < j; i, j = i+1, j-1 {
		sub[i], sub[j] = sub[j], sub[i]
	}

	return &CompoundAltFuture[OUT]{
		name: fmt.Sprintf("compound(%s..%s)", head.Name(), tail.Name()),
		head: hl,
		tail: tail,
		sub:  sub,
	}
}

func (c *CompoundAltFuture[OUT]) Name() string { return c.name }

// Fork starts the subchain at its head.
func (c *CompoundAltFuture[OUT]) Fork() { c.head.Fork() }

func (c *CompoundAltFuture[OUT]) fork() { c.head.fork() }

// Cancel offers the cancellation to each member from head to tail and
// reports whether any of them accepted it. Members that already reached a
// terminal state refuse as usual.
func (c *CompoundAltFuture[OUT]) Cancel(reason string) bool {
	for _, step := range c.sub {
		if step.Cancel(reason) {
			return true
		}
	}
	return false
}

func (c *CompoundAltFuture[OUT]) cancelFromError(se *StateError) bool {
	for _, step := range c.sub {
		if step.cancelFromError(se) {
			return true
		}
	}
	return false
}

// IsCancelled reports whether any member of the subchain was cancelled.
func (c *CompoundAltFuture[OUT]) IsCancelled() bool {
	for _, step := range c.sub {
		if step.IsCancelled() {
			return true
		}
	}
	return false
}

// IsDone reports whether the whole subchain finished, which is the tail
// reaching a terminal state.
func (c *CompoundAltFuture[OUT]) IsDone() bool { return c.tail.IsDone() }

// IsForked reports whether execution of the subchain was requested, which
// is the head having been forked.
func (c *CompoundAltFuture[OUT]) IsForked() bool { return c.head.IsForked() }

// Err reports the tail's failure outcome when it has one, otherwise the
// first failure found walking the members from head to tail. A member
// cancelled in place does not mark the tail, so the scan is needed.
func (c *CompoundAltFuture[OUT]) Err() error {
	if err := c.tail.Err(); err != nil {
		return err
	}
	for _, step := range c.sub {
		if err := step.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompoundAltFuture[OUT]) State() string { return c.tail.State() }

// Context returns the tail's execution context, so steps chained after the
// compound land where its result is produced.
func (c *CompoundAltFuture[OUT]) Context() ExecutionContext { return c.tail.Context() }

func (c *CompoundAltFuture[OUT]) Upchain() AltFuture { return c.head.Upchain() }

func (c *CompoundAltFuture[OUT]) Downchain() []AltFuture { return c.tail.Downchain() }

func (c *CompoundAltFuture[OUT]) setUp(prev link) { c.head.setUp(prev) }

func (c *CompoundAltFuture[OUT]) up() link { return c.head.up() }

func (c *CompoundAltFuture[OUT]) applyError(se *StateError) error { return c.head.applyError(se) }

func (c *CompoundAltFuture[OUT]) applyCancelled(sc *StateCancelled) error {
	return c.head.applyCancelled(sc)
}

func (c *CompoundAltFuture[OUT]) rearm() { c.head.rearm() }

func (c *CompoundAltFuture[OUT]) attach(child link) { c.tail.attach(child) }

func (c *CompoundAltFuture[OUT]) hookset() *chainHooks { return c.tail.hookset() }

// Get returns the tail's produced value. Like Get on a single step it
// panics when the compound is not yet terminal, and returns a terminal
// failure outcome as the error.
func (c *CompoundAltFuture[OUT]) Get() (OUT, error) {
	if !c.tail.IsDone() {
		panic(fmt.Sprintf("cascade: Get on compound %q that is not yet finished (state=%s); fork the chain and wait for it",
			c.name, c.tail.State()))
	}
	return c.tail.outcome()
}

// SafeGet reports the tail's value, or false when the compound has not
// produced one.
func (c *CompoundAltFuture[OUT]) SafeGet() (OUT, bool) { return c.tail.peek() }

func (c *CompoundAltFuture[OUT]) peek() (OUT, bool) { return c.tail.peek() }

func (c *CompoundAltFuture[OUT]) outcome() (OUT, error) { return c.tail.outcome() }
