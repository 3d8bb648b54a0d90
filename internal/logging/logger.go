// internal/logging/logger.go
package logging

import (
	"io"
	"log/slog"
	"os"
)

// LevelTrace sits below slog's built-in Debug so that spyrun's six-step
// --debug verbosity ladder (off, error, warn, info, debug, trace) from
// spec.md §6 has somewhere to go once the flag is repeated past "debug".
const LevelTrace = slog.Level(-8)

// LevelOff disables logging entirely — the ladder's bottom rung, below
// even Error.
const LevelOff = slog.Level(12)

var verbosityLadder = []slog.Level{LevelOff, slog.LevelError, slog.LevelWarn, slog.LevelInfo, slog.LevelDebug, LevelTrace}

// LevelFromName maps the config document's [log] level string onto the
// same off→error→warn→info→debug→trace ladder the CLI's --debug flag
// climbs, so a bare config (no --debug) still logs at a sane level.
// Unrecognized or empty names default to info.
func LevelFromName(name string) slog.Level {
	switch name {
	case "off":
		return LevelOff
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity climbs the ladder n rungs more verbose than base,
// clamped at trace — spec.md §6: "each repetition raises verbosity ...
// clamped at trace." base is normally the config's [log] level; each
// repeated --debug moves one rung further down the ladder regardless of
// where base sits on it.
func LevelFromVerbosity(base slog.Level, n int) slog.Level {
	idx := 3 // slog.LevelInfo's rung, used when base isn't one of the named levels
	for i, lvl := range verbosityLadder {
		if lvl == base {
			idx = i
			break
		}
	}
	idx += n
	if idx < 0 {
		idx = 0
	}
	if idx >= len(verbosityLadder) {
		idx = len(verbosityLadder) - 1
	}
	return verbosityLadder[idx]
}

// NewLogger creates a structured logger over w (format "json" or text).
func NewLogger(format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// WithSpy returns a logger with the owning spy's name attached, the way
// every per-spy goroutine (notifier, poller, walker, coalescer, dispatch
// loop) tags its log lines so a multi-spy process's output can be filtered
// per watch. A
// nil logger (logging disabled, as in tests) stays nil.
func WithSpy(logger *slog.Logger, spyName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("spy", spyName)
}
