package internal

import (
	"context"
	"log/slog"
)

// LevelTrace sits below slog.LevelDebug: verbose per-segment logging
// that would otherwise drown out ordinary debug output.
const LevelTrace slog.Level = slog.LevelDebug - 2

// Logger wraps an optional *slog.Logger, embeddable in a PCB or other
// per-connection state so call sites read tcb.Trace/tcb.Debug without
// nil-checking a *slog.Logger at every call.
type Logger struct {
	Log *slog.Logger
}

// Enabled reports whether a message at lvl would actually be emitted,
// letting callers skip building expensive attrs when it would not.
func (l Logger) Enabled(lvl slog.Level) bool {
	return l.Log != nil && l.Log.Handler().Enabled(context.Background(), lvl)
}

func (l Logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if l.Log == nil {
		return
	}
	l.Log.LogAttrs(context.Background(), lvl, msg, attrs...)
}

func (l Logger) Trace(msg string, attrs ...slog.Attr) { l.logAttrs(LevelTrace, msg, attrs...) }
func (l Logger) Debug(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelDebug, msg, attrs...) }
func (l Logger) Error(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelError, msg, attrs...) }
