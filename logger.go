package spatialidx

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with spatialidx-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithMode adds the build mode to the logger.
func (l *Logger) WithMode(mode Mode) *Logger {
	return &Logger{
		Logger: l.Logger.With("mode", mode.String()),
	}
}

// WithSource adds the source path to the logger.
func (l *Logger) WithSource(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("source", path),
	}
}

// LogExtract logs the extraction step.
func (l *Logger) LogExtract(ctx context.Context, size, entries int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "extract failed",
			"file_size", size,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "extract completed",
			"file_size", size,
			"entries", entries,
			"elapsed", elapsed,
		)
	}
}

// LogRegion logs the backing region that a build writes into.
func (l *Logger) LogRegion(ctx context.Context, key string, capacity uint64, found bool) {
	l.InfoContext(ctx, "region ready",
		"key", key,
		"capacity", capacity,
		"existing_index", found,
	)
}

// LogLoad logs the tree load step.
func (l *Logger) LogLoad(ctx context.Context, strategy LoadStrategy, entries int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"strategy", strategy.String(),
			"entries", entries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"strategy", strategy.String(),
			"entries", entries,
			"elapsed", elapsed,
		)
	}
}

// LogProgress logs incremental load progress.
func (l *Logger) LogProgress(ctx context.Context, done, total int) {
	l.DebugContext(ctx, "loading",
		"done", done,
		"total", total,
	)
}

// LogBuild logs the outcome of a build.
func (l *Logger) LogBuild(ctx context.Context, res *BuildResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "build completed",
		"key", res.Key,
		"entries", res.EntryCount,
		"bounds", res.Bounds.String(),
		"height", res.Height,
		"nodes", res.Nodes,
		"entry_size", res.EntrySize,
		"segment_size", res.Capacity,
		"tree_size", res.Used,
		"elapsed", res.Elapsed,
	)
}

// LogSnapshot logs a snapshot export or import.
func (l *Logger) LogSnapshot(ctx context.Context, op string, bytes uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"bytes", bytes,
		)
	}
}
