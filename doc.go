// Package cascade provides composable asynchronous chains of typed,
// single-assignment computation steps with explicit cancellation and
// reactive re-execution.
//
// # Overview
//
// Cascade organizes code around three core concepts:
//
//  1. Chain steps: single-assignment units of computation wired into
//     upchain/downchain graphs (AltFuture, built by Run and the
//     combinators)
//  2. Execution contexts: named places where step actions run
//     (SerialContext, PoolContext, ImmediateContext)
//  3. Reactive values: observable cells that re-fire their standing
//     subscriber chains on every change (ReactiveValue, PersistentValue)
//
// # Basic Usage
//
// Build a chain, fork it, and let execution flow downstream:
//
//	workers := cascade.NewPoolContext("workers", 4)
//	defer workers.Close()
//
//	fetch := cascade.Run(workers, func() (string, error) {
//	    return fetchBody(url)
//	})
//	words := cascade.Map(fetch, func(body string) (int, error) {
//	    return len(strings.Fields(body)), nil
//	})
//	cascade.Then(words, func(n int) error {
//	    log.Printf("%d words", n)
//	    return nil
//	})
//
//	words.Fork()
//
// Nothing runs until Fork. Each step completes exactly once; downchain
// steps see the completed value, never an intermediate one.
//
// # Cancellation
//
// Cancellation is cooperative: Cancel marks a step cancelled but never
// interrupts a running action, and it does not cascade on its own.
// Downchain steps discover the cancellation when they try to read the
// cancelled step's value and then cancel themselves in turn. An action
// returning an error does cascade: the failing step becomes errored and
// everything downchain is cancelled with that error as the cause.
//
// Recovery points consume the cascade:
//
//	cascade.OnError(words, func(err error) error {
//	    log.Printf("chain failed: %v", err)
//	    return nil
//	})
//
// # Blocking Bridge
//
// Synchronous code waits with WaitResult:
//
//	n, err := cascade.WaitForked(words, 2*time.Second)
//
// Waiting from a chain action on the same ordered context fails fast with
// ErrDeadlock instead of hanging.
//
// # Compound Chains
//
// CompoundAltFuture hides a multi-step subchain behind the single-step
// surface, so a helper can return one value that forks at the head,
// chains at the tail, and offers cancellation to every member:
//
//	head := cascade.Run(workers, parse)
//	tail := cascade.Map(head, summarize)
//	sub := cascade.NewCompound[Summary](head, tail)
//
// # Reactive Values
//
// A ReactiveValue re-fires its subscriber chains every time it changes by
// equality; setting the current value again does nothing. Subscriptions
// are standing: each fire re-arms the chain and runs it again with the
// new value.
//
//	ui := cascade.NewSerialContext("ui")
//	color := cascade.NewReactiveValue[string]("color", ui)
//	cascade.Subscribe(color, func(c string) error {
//	    repaint(c)
//	    return nil
//	})
//	color.Set("red")   // fires
//	color.Set("red")   // no-op
//	color.Set("blue")  // fires again
//
// PersistentValue adds write-through persistence via a Registry and a
// Store, seeding each value from the store at startup.
//
// # Observability
//
// Structured logs go through log/slog; WithLogger and WithObserver install
// a logger and a state-transition observer on a chain head, inherited by
// everything chained after it. The extensions package adds a ready-made
// slog-backed observer and a chain topology drawer.
package cascade
