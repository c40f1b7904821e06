package docfind

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with client-specific helpers, keeping field
// names consistent across operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses the default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// LogSearch logs one page fetch.
func (l *Logger) LogSearch(ctx context.Context, target Target, offset, size, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"target", target.String(),
			"offset", offset,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"target", target.String(),
			"offset", offset,
			"size", size,
			"found", found,
		)
	}
}

// LogMutation logs a document add or delete submission.
func (l *Logger) LogMutation(ctx context.Context, target Target, op, docType, docID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mutation enqueue failed",
			"target", target.String(),
			"op", op,
			"doc_type", docType,
			"doc_id", docID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "mutation enqueued",
			"target", target.String(),
			"op", op,
			"doc_type", docType,
			"doc_id", docID,
		)
	}
}

// LogCheckpoint logs a checkpoint submission.
func (l *Logger) LogCheckpoint(ctx context.Context, collection, checkID string, commit bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint submit failed",
			"collection", collection,
			"commit", commit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "checkpoint submitted",
			"collection", collection,
			"check_id", checkID,
			"commit", commit,
		)
	}
}

// LogPoll logs one checkpoint status request.
func (l *Logger) LogPoll(ctx context.Context, collection, checkID string, reached bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint poll failed",
			"collection", collection,
			"check_id", checkID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "checkpoint polled",
			"collection", collection,
			"check_id", checkID,
			"reached", reached,
		)
	}
}
