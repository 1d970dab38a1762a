package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	cascade "github.com/cascade-fn/cascade-go"
)

// ChainLogObserver logs every state transition of the chains it is
// installed on and dumps the chain topology when a step errors.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelInfo)
//	obs := extensions.NewChainLogObserver(handler)
//	step := cascade.Run(ec, action, cascade.WithObserver(obs))
//
//	// Structured JSON logging (compact, machine-readable)
//	obs := extensions.NewChainLogObserver(slog.NewJSONHandler(os.Stdout, nil))
//
//	// Silent (for testing)
//	obs := extensions.NewChainLogObserver(extensions.NewSilentHandler())
//
// Normal transitions log at DEBUG, cancellations at INFO, errors at ERROR
// with the rendered chain attached.
type ChainLogObserver struct {
	logger *slog.Logger
}

// NewChainLogObserver creates an observer logging through logHandler.
func NewChainLogObserver(logHandler slog.Handler) *ChainLogObserver {
	return &ChainLogObserver{logger: slog.New(logHandler)}
}

func (o *ChainLogObserver) OnTransition(tr cascade.Transition) {
	attrs := []any{
		"step", tr.Future.Name(),
		"from", tr.From,
		"to", tr.To,
	}
	if tr.Reason != "" {
		attrs = append(attrs, "reason", tr.Reason)
	}

	switch tr.To {
	case "errored":
		attrs = append(attrs, "error", tr.Err, "chain", DrawChain(tr.Future))
		o.logger.Error("chain step failed", attrs...)
	case "cancelled":
		o.logger.Info("chain step cancelled", attrs...)
	default:
		o.logger.Debug("chain step transition", attrs...)
	}
}

// SilentHandler is a slog.Handler that discards all log output.
// Useful for testing when you don't want log output.
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler.
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks, especially for the multi-line chain drawings.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "chain step failed" {
		return h.handleChainFailure(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *HumanHandler) handleChainFailure(record slog.Record) error {
	var step, reason, errMsg, chain string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "step":
			step = a.Value.String()
		case "reason":
			reason = a.Value.String()
		case "error":
			errMsg = a.Value.String()
		case "chain":
			chain = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[ChainLog] Chain Step Failed"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nFailed Step: %s\n", step); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Reason: %s\n", reason); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nChain:\n%s\n", chain); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	return nil
}

var _ slog.Handler = (*SilentHandler)(nil)
var _ slog.Handler = (*HumanHandler)(nil)
var _ cascade.Observer = (*ChainLogObserver)(nil)
