package flashvfs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with flashvfs-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger

	// errnoNames adds the symbolic engine error name to failures.
	errnoNames bool
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithVolume adds a volume label field to the logger.
func (l *Logger) WithVolume(label string) *Logger {
	return &Logger{
		Logger:     l.Logger.With("volume", label),
		errnoNames: l.errnoNames,
	}
}

func (l *Logger) withErrnoNames(enabled bool) *Logger {
	return &Logger{
		Logger:     l.Logger,
		errnoNames: enabled,
	}
}

func (l *Logger) errorAttrs(err error, attrs ...any) []any {
	attrs = append(attrs, "error", err)
	if l.errnoNames {
		if name := errnoName(err); name != "" {
			attrs = append(attrs, "errno", name)
		}
	}
	return attrs
}

// LogMount logs a mount attempt. The logger is expected to be scoped with
// WithVolume.
func (l *Logger) LogMount(ctx context.Context, blocks uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mount failed", l.errorAttrs(err)...)
	} else {
		l.InfoContext(ctx, "volume mounted", "blocks", blocks)
	}
}

// LogFormat logs a format operation on a volume-scoped logger.
func (l *Logger) LogFormat(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "format failed", l.errorAttrs(err)...)
	} else {
		l.InfoContext(ctx, "volume formatted")
	}
}

// LogUnregister logs the removal of a volume from the registry.
func (l *Logger) LogUnregister(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "unregister failed", l.errorAttrs(err)...)
	} else {
		l.InfoContext(ctx, "volume unregistered")
	}
}

// LogOpen logs an open call. A missing file is not worth more than a debug
// line.
func (l *Logger) LogOpen(ctx context.Context, path string, fd int, err error) {
	switch {
	case err == nil:
		l.DebugContext(ctx, "open completed",
			"path", path,
			"fd", fd,
		)
	case errors.Is(err, fs.ErrNotExist):
		l.DebugContext(ctx, "open: no such file", l.errorAttrs(err, "path", path)...)
	default:
		l.ErrorContext(ctx, "open failed", l.errorAttrs(err, "path", path)...)
	}
}

// LogIOError logs a failed call against a path or descriptor.
func (l *Logger) LogIOError(ctx context.Context, op string, target any, err error) {
	l.ErrorContext(ctx, op+" failed", l.errorAttrs(err, "target", target)...)
}
