package cascade

import (
	"errors"
	"testing"
	"time"
)

func TestWaitResultReturnsTheValue(t *testing.T) {
	ec := NewSerialContext("worker", WithContextLogger(quiet()))
	defer ec.Close()

	head := Run(ec, func() (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	}, WithLogger(quiet()))

	v, err := WaitForked[int](head, time.Second)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestWaitResultTimesOut(t *testing.T) {
	ec := NewSerialContext("worker", WithContextLogger(quiet()))
	defer ec.Close()

	s := NewSettable[int](ec, WithLogger(quiet()))

	start := time.Now()
	_, err := WaitResult[int](s, 60*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("timed out after only %v", elapsed)
	}
}

func TestWaitResultWakesOnCancelledChain(t *testing.T) {
	ec := NewSerialContext("worker", WithContextLogger(quiet()))
	defer ec.Close()

	s := NewSettable[int](ec, WithLogger(quiet()))
	time.AfterFunc(20*time.Millisecond, func() {
		s.Cancel("giving up")
	})

	start := time.Now()
	_, err := WaitResult[int](s, 2*time.Second)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected a cancellation outcome, got %v", err)
	}
	// the periodic re-check picks the cancellation up well before the timeout
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wait took %v, the fallback wake did not engage", elapsed)
	}
}

func TestWaitResultRefusesItsOwnOrderedContext(t *testing.T) {
	ec := NewSerialContext("solo", WithContextLogger(quiet()))
	defer ec.Close()

	s := NewSettable[int](ec, WithLogger(quiet()))

	errCh := make(chan error, 1)
	step := Run(ec, func() (int, error) {
		_, err := WaitResult[int](s, time.Second)
		errCh <- err
		return 0, nil
	}, WithLogger(quiet()))
	step.Fork()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrDeadlock) {
			t.Fatalf("expected ErrDeadlock, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait on the worker goroutine hung instead of failing fast")
	}
}

func TestWaitResultFromAnotherContextIsFine(t *testing.T) {
	workers := NewSerialContext("workers", WithContextLogger(quiet()))
	defer workers.Close()
	other := NewSerialContext("other", WithContextLogger(quiet()))
	defer other.Close()

	s := NewSettable[int](workers, WithLogger(quiet()))
	time.AfterFunc(10*time.Millisecond, func() {
		s.Set(5)
	})

	resCh := make(chan int, 1)
	step := Run(other, func() (int, error) {
		v, err := WaitResult[int](s, time.Second)
		if err != nil {
			return 0, err
		}
		resCh <- v
		return v, nil
	}, WithLogger(quiet()))
	step.Fork()

	select {
	case v := <-resCh:
		if v != 5 {
			t.Errorf("expected 5, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cross-context wait did not complete")
	}
}
