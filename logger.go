package sparsevec

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with sparsevec-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogBuild logs an index build operation.
func (l *Logger) LogBuild(ctx context.Context, indexed int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"indexed", indexed,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"indexed", indexed,
			"duration", duration,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, fullScan bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"full_scan", fullScan,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
			"full_scan", fullScan,
		)
	}
}

// LogUpsert logs an insert-or-update operation.
func (l *Logger) LogUpsert(ctx context.Context, offset uint32, dims int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"offset", offset,
			"dims", dims,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"offset", offset,
			"dims", dims,
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(ctx context.Context, offset uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove failed",
			"offset", offset,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "remove completed",
			"offset", offset,
		)
	}
}

// LogPersist logs a save of the sealed index.
func (l *Logger) LogPersist(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index persist failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index persisted",
			"path", path,
		)
	}
}

// LogOffload logs a blobstore offload or restore operation.
func (l *Logger) LogOffload(ctx context.Context, direction, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "offload failed",
			"direction", direction,
			"blob", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "offload completed",
			"direction", direction,
			"blob", name,
		)
	}
}
