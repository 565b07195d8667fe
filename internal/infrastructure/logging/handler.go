package logging

import (
	"context"
	"log/slog"
)

// runHandler routes error records to the error log and everything the
// console accepts to the console. Error records are only mirrored to the
// console in verbose mode.
type runHandler struct {
	console slog.Handler
	errLog  slog.Handler
	verbose bool
}

func (h *runHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.errLog.Enabled(ctx, level)
}

func (h *runHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error

	if r.Level >= slog.LevelError {
		if err := h.errLog.Handle(ctx, r.Clone()); err != nil {
			firstErr = err
		}
		if !h.verbose {
			return firstErr
		}
	}

	if h.console.Enabled(ctx, r.Level) {
		if err := h.console.Handle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runHandler{
		console: h.console.WithAttrs(attrs),
		errLog:  h.errLog.WithAttrs(attrs),
		verbose: h.verbose,
	}
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	return &runHandler{
		console: h.console.WithGroup(name),
		errLog:  h.errLog.WithGroup(name),
		verbose: h.verbose,
	}
}
