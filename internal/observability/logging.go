// Package observability provides context-aware structured logging. Handlers
// attach identifying attributes (version, run, stage) to a context once;
// every log call made with that context carries them automatically.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const logContextKey contextKey = "reviewd_log_context"

// LogContext holds the identifying attributes carried through a request or a
// pipeline execution.
type LogContext struct {
	VersionID  int64
	DocumentID int64
	RunID      int64
	Stage      string
	RequestID  string
}

// SetupLogger configures the default slog logger. format is "json" or "text";
// level is one of debug|info|warn|error.
func SetupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func withLogContext(ctx context.Context, lc LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// WithVersionID returns a context whose log records carry the version id.
func WithVersionID(ctx context.Context, id int64) context.Context {
	lc := getLogContext(ctx)
	lc.VersionID = id
	return withLogContext(ctx, lc)
}

// WithDocumentID returns a context whose log records carry the document id.
func WithDocumentID(ctx context.Context, id int64) context.Context {
	lc := getLogContext(ctx)
	lc.DocumentID = id
	return withLogContext(ctx, lc)
}

// WithRunID returns a context whose log records carry the review-run id.
func WithRunID(ctx context.Context, id int64) context.Context {
	lc := getLogContext(ctx)
	lc.RunID = id
	return withLogContext(ctx, lc)
}

// WithStage returns a context whose log records carry the pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := getLogContext(ctx)
	lc.Stage = stage
	return withLogContext(ctx, lc)
}

// WithRequestID returns a context whose log records carry the HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	lc := getLogContext(ctx)
	lc.RequestID = id
	return withLogContext(ctx, lc)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	lc := getLogContext(ctx)
	attrs := make([]slog.Attr, 0, 5)
	if lc.VersionID != 0 {
		attrs = append(attrs, slog.Int64("version_id", lc.VersionID))
	}
	if lc.DocumentID != 0 {
		attrs = append(attrs, slog.Int64("document_id", lc.DocumentID))
	}
	if lc.RunID != 0 {
		attrs = append(attrs, slog.Int64("run_id", lc.RunID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", lc.RequestID))
	}
	return attrs
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	all := append(contextAttrs(ctx), attrs...)
	slog.Default().LogAttrs(ctx, level, msg, all...)
}

// Debug logs at debug level with context attributes.
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs at info level with context attributes.
func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs at warn level with context attributes.
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs at error level with context attributes.
func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelError, msg, attrs...)
}
