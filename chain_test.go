package cascade

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFilterRejectHaltsTheChain(t *testing.T) {
	ec := immediate()

	head := Run(ec, func() (int, error) {
		return 13, nil
	}, WithLogger(quiet()))
	f := Filter(head, func(v int) bool {
		return v%2 == 0
	})
	after := Then(f, func(int) error { return nil })

	head.Fork()

	if !f.IsCancelled() {
		t.Fatal("filter did not cancel on a rejected value")
	}
	if !strings.Contains(f.Err().Error(), "rejected value 13") {
		t.Errorf("cancellation reason does not name the rejected value: %v", f.Err())
	}
	if after.IsForked() {
		t.Error("step after a rejecting filter started")
	}
}

func TestFilterAcceptPassesThrough(t *testing.T) {
	ec := immediate()

	head := Run(ec, func() (int, error) {
		return 12, nil
	}, WithLogger(quiet()))
	f := Filter(head, func(v int) bool {
		return v%2 == 0
	})

	head.Fork()

	v, err := f.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 12 {
		t.Errorf("expected 12, got %d", v)
	}
}

func TestOnSameContextIsIdentity(t *testing.T) {
	ec := immediate()

	head := Run(ec, func() (int, error) {
		return 1, nil
	}, WithLogger(quiet()))

	if On[int](head, ec) != Source[int](head) {
		t.Error("On with the step's own context should return the step itself")
	}
}

func TestOnRelaysToOtherContext(t *testing.T) {
	first := NewImmediateContext("first", WithContextLogger(quiet()))
	second := NewImmediateContext("second", WithContextLogger(quiet()))

	head := Run(first, func() (int, error) {
		return 3, nil
	}, WithLogger(quiet()))
	relayed := On[int](head, second)
	final := Map(relayed, func(v int) (int, error) {
		return v * 10, nil
	})

	if relayed.Context() != ExecutionContext(second) {
		t.Error("relay step not on the requested context")
	}
	if final.Context() != ExecutionContext(second) {
		t.Error("chaining after the relay left the requested context")
	}

	head.Fork()
	v, err := final.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 30 {
		t.Errorf("expected 30, got %d", v)
	}
}

func TestAwaitFiresOnceAfterAllComplete(t *testing.T) {
	ec := immediate()

	s := NewSettable[int](ec, WithLogger(quiet()))
	d1 := Then[int](s, func(int) error { return nil })
	d2 := Map[int](s, func(v int) (int, error) { return v + 1, nil })

	out := Await[int](s, d1, d2)
	var fired atomic.Int32
	Then[int](out, func(v int) error {
		if v != 4 {
			t.Errorf("await fired with %d, want the anchor's value 4", v)
		}
		fired.Add(1)
		return nil
	})

	s.Set(4)

	if fired.Load() != 1 {
		t.Fatalf("await fired %d times, want exactly once", fired.Load())
	}
	v, err := out.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 4 {
		t.Errorf("expected 4, got %d", v)
	}
}

func TestAwaitNeverFiresWhenADependencyFails(t *testing.T) {
	ec := immediate()
	boom := errors.New("boom")

	s := NewSettable[int](ec, WithLogger(quiet()))
	bad := Map[int](s, func(int) (int, error) {
		return 0, boom
	})
	good := Map[int](s, func(v int) (int, error) {
		return v, nil
	})

	out := Await[int](s, bad, good)
	s.Set(1)

	if out.IsDone() {
		t.Fatal("await fired although a dependency failed")
	}
	// the holder resolves the stall by cancelling
	if !out.Cancel("dependency failed") {
		t.Error("cancel of the stalled await refused")
	}
}

func TestAwaitRequiresTwoDependencies(t *testing.T) {
	ec := immediate()
	s := NewSettable[int](ec, WithLogger(quiet()))
	expectPanic(t, func() { Await[int](s) })

	// a single dependency is Then in disguise and is rejected too
	one := Map[int](s, func(v int) (int, error) { return v, nil })
	expectPanic(t, func() { Await[int](s, one) })
}

func TestThenAllRequiresTwoActions(t *testing.T) {
	ec := immediate()
	s := NewSettable[int](ec, WithLogger(quiet()))
	expectPanic(t, func() {
		ThenAll[int](s, func(int) error { return nil })
	})
}

func TestThenAllRunsEveryActionThenFires(t *testing.T) {
	ec := immediate()

	s := NewSettable[int](ec, WithLogger(quiet()))
	var a, b atomic.Int32
	out := ThenAll[int](s,
		func(v int) error { a.Store(int32(v)); return nil },
		func(v int) error { b.Store(int32(v)); return nil },
	)

	s.Set(9)

	if a.Load() != 9 || b.Load() != 9 {
		t.Errorf("actions saw %d and %d, want 9 and 9", a.Load(), b.Load())
	}
	v, err := out.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 9 {
		t.Errorf("expected 9, got %d", v)
	}
}

func TestMapAllExposesEveryMappedValue(t *testing.T) {
	ec := immediate()

	s := NewSettable[int](ec, WithLogger(quiet()))
	steps, out := MapAll[int, int](s,
		func(v int) (int, error) { return v * 2, nil },
		func(v int) (int, error) { return v * 3, nil },
	)

	s.Set(5)

	if !out.IsDone() {
		t.Fatal("await-all handle did not fire")
	}
	want := []int{10, 15}
	for i, step := range steps {
		v, err := step.Get()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if v != want[i] {
			t.Errorf("step %d produced %d, want %d", i, v, want[i])
		}
	}
}

func TestSleepDelaysCompletionWithoutBlocking(t *testing.T) {
	ec := NewSerialContext("timers", WithContextLogger(quiet()))
	defer ec.Close()

	head := Run(ec, func() (int, error) {
		return 9, nil
	}, WithLogger(quiet()))
	slept := Sleep[int](head, 30*time.Millisecond)

	start := time.Now()
	v, err := WaitForked[int](slept, time.Second)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 9 {
		t.Errorf("expected 9, got %d", v)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("sleep completed after %v, want at least the delay", elapsed)
	}
}

func TestFeedPushesChainValuesIntoAValue(t *testing.T) {
	ec := immediate()

	target := NewReactiveValue[int]("target", ec, WithValueLogger[int](quiet()))
	head := Run(ec, func() (int, error) {
		return 21, nil
	}, WithLogger(quiet()))
	Feed(head, target)

	head.Fork()

	v, err := target.Get()
	if err != nil {
		t.Fatalf("expected the value to be asserted, got %v", err)
	}
	if v != 21 {
		t.Errorf("expected 21, got %d", v)
	}
}

func TestOnErrorAttachRacesWithUpchainFailure(t *testing.T) {
	ec := NewPoolContext("pool", 4, WithContextLogger(quiet()))
	defer ec.Close()
	boom := errors.New("boom")

	// Build the recovery step while the failing head is already executing
	// on another goroutine. The handler must be in place by the time the
	// step becomes reachable from the head: whichever side wins the race,
	// the step ends cancelled, with the handler either consuming the
	// cascade or the failure being discovered at attach time. Errored
	// would mean the cascade saw a half-built step.
	for i := 0; i < 200; i++ {
		head := Run(ec, func() (int, error) {
			return 0, boom
		}, WithLogger(quiet()))

		var handled atomic.Int32
		go head.Fork()
		rec := OnError[int](head, func(error) error {
			handled.Add(1)
			return nil
		})

		deadline := time.Now().Add(5 * time.Second)
		for !rec.IsDone() {
			if time.Now().After(deadline) {
				t.Fatalf("iteration %d: recovery step stuck in state %s", i, rec.State())
			}
			time.Sleep(100 * time.Microsecond)
		}
		if !rec.IsCancelled() {
			t.Fatalf("iteration %d: recovery step ended %s, want cancelled", i, rec.State())
		}
		if handled.Load() != 1 {
			t.Fatalf("iteration %d: handler ran %d times, want exactly once", i, handled.Load())
		}
	}
}

func TestOnErrorAttachedAfterFailureStillHandles(t *testing.T) {
	ec := immediate()
	boom := errors.New("boom")

	head := Run(ec, func() (int, error) {
		return 0, boom
	}, WithLogger(quiet()))
	head.Fork()

	var handled atomic.Int32
	var got error
	rec := OnError[int](head, func(err error) error {
		handled.Add(1)
		got = err
		return nil
	})

	if handled.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", handled.Load())
	}
	if !errors.Is(got, boom) {
		t.Errorf("handler received %v, want cause %v", got, boom)
	}
	if !rec.IsCancelled() {
		t.Error("late-attached recovery step should end cancelled after consuming the error")
	}
}

func TestOnCancelledAttachedAfterCancellationStillHandles(t *testing.T) {
	ec := immediate()

	head := NewSettable[int](ec, WithLogger(quiet()))
	head.Cancel("no longer needed")

	var reasons []string
	rec := OnCancelled[int](head, func(reason string) error {
		reasons = append(reasons, reason)
		return nil
	})

	if len(reasons) != 1 || !strings.Contains(reasons[0], "no longer needed") {
		t.Fatalf("handler saw %q, want the upchain cancellation reason", reasons)
	}
	if !rec.IsCancelled() {
		t.Error("late-attached recovery step should end cancelled")
	}
}
