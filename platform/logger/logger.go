// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RunIDKey is the context key for the discovery run ID
	RunIDKey contextKey = "run_id"
	// TaskIDKey is the context key for the scheduler task ID
	TaskIDKey contextKey = "task_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Development gets a debug-level text handler,
// every other environment gets JSON at info level.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports run_id and task_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		newLogger = newLogger.WithRunID(runID)
	}

	if taskID, ok := ctx.Value(TaskIDKey).(string); ok && taskID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("task_id", taskID)),
		}
	}

	return newLogger
}

// WithRunID returns a logger with run ID
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("run_id", runID)),
	}
}

// QueryFailed logs a search term that exhausted its retry budget
func (l *Logger) QueryFailed(term string, attempts int, kind string, err error) {
	l.Warn("query_failed",
		slog.String("term", term),
		slog.Int("attempts", attempts),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// StructuralAnomaly logs a hierarchy inconsistency detected while merging
func (l *Logger) StructuralAnomaly(kind, nodeID, detail string) {
	l.Warn("structural_anomaly",
		slog.String("kind", kind),
		slog.String("node_id", nodeID),
		slog.String("detail", detail),
	)
}

// RunSummary logs the outcome of a discovery run
func (l *Logger) RunSummary(queries, failed, nodes, aliases int, stopReason string, elapsed time.Duration) {
	l.Info("discovery_run",
		slog.Int("queries", queries),
		slog.Int("failed", failed),
		slog.Int("nodes", nodes),
		slog.Int("aliases", aliases),
		slog.String("stop_reason", stopReason),
		slog.Float64("elapsed_ms", float64(elapsed.Milliseconds())),
	)
}

// SinkError logs an artifact sink failure
func (l *Logger) SinkError(sink string, err error) {
	l.Error("sink_error",
		slog.String("sink", sink),
		slog.String("error", err.Error()),
	)
}
