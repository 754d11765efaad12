package reflexio

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with reflexio-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithType tags subsequent records with a struct type name.
func (l *Logger) WithType(name string) *Logger {
	return &Logger{Logger: l.Logger.With("type", name)}
}

// LogDefine logs a type or enum registration.
func (l *Logger) LogDefine(ctx context.Context, kind, name string, fields int, err error) {
	if err != nil {
		l.WarnContext(ctx, "registration rejected",
			"kind", kind,
			"name", name,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "registered",
		"kind", kind,
		"name", name,
		"fields", fields,
	)
}

// LogDecode logs a failed decode.
func (l *Logger) LogDecode(ctx context.Context, typ string, size int, err error) {
	if err == nil {
		return
	}
	l.DebugContext(ctx, "decode failed",
		"type", typ,
		"bytes", size,
		"error", err,
	)
}
