package extensions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	cascade "github.com/cascade-fn/cascade-go"
)

func silenced() *slog.Logger {
	return slog.New(NewSilentHandler())
}

func TestChainLogObserverReportsFailures(t *testing.T) {
	var buf bytes.Buffer
	obs := NewChainLogObserver(NewHumanHandler(&buf, slog.LevelInfo))

	ec := cascade.NewImmediateContext("test", cascade.WithContextLogger(silenced()))
	head := cascade.Run(ec, func() (int, error) {
		return 0, errors.New("boom")
	}, cascade.WithName("fetch"), cascade.WithLogger(silenced()), cascade.WithObserver(obs))

	head.Fork()

	out := buf.String()
	if !strings.Contains(out, "Chain Step Failed") {
		t.Errorf("failure banner missing from output:\n%s", out)
	}
	if !strings.Contains(out, "fetch") {
		t.Errorf("failed step name missing from output:\n%s", out)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("error missing from output:\n%s", out)
	}
}

func TestChainLogObserverStaysQuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	obs := NewChainLogObserver(NewHumanHandler(&buf, slog.LevelWarn))

	ec := cascade.NewImmediateContext("test", cascade.WithContextLogger(silenced()))
	head := cascade.Run(ec, func() (int, error) {
		return 1, nil
	}, cascade.WithLogger(silenced()), cascade.WithObserver(obs))

	head.Fork()

	if buf.Len() != 0 {
		t.Errorf("successful chain produced output:\n%s", buf.String())
	}
}

func TestSilentHandlerDiscardsEverything(t *testing.T) {
	h := NewSilentHandler()
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("silent handler claims to be enabled")
	}
}

func TestDrawChainShowsEveryStep(t *testing.T) {
	ec := cascade.NewImmediateContext("test", cascade.WithContextLogger(silenced()))

	head := cascade.Run(ec, func() (int, error) {
		return 1, nil
	}, cascade.WithName("origin"), cascade.WithLogger(silenced()))
	mid := cascade.Map(head, func(v int) (int, error) {
		return v + 1, nil
	})
	cascade.Then(mid, func(int) error { return nil })

	head.Fork()

	// drawing from a mid-chain step still renders from the true head down
	out := DrawChain(mid)
	if !strings.Contains(out, "origin") {
		t.Errorf("head step missing from drawing:\n%s", out)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("step states missing from drawing:\n%s", out)
	}
}
