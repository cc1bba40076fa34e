package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying logger. Request handlers pick it
// up with FromContext.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

func loggerFrom(ctx context.Context) (*Logger, bool) {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	return logger, ok && logger != nil
}

// FromContext returns the request logger, or the process default outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := loggerFrom(ctx); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// StructuredLogger writes the fixed-shape events of the API: request
// completion and attendance state changes.
type StructuredLogger struct {
	fallback *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{fallback: logger}
}

func (sl *StructuredLogger) loggerFor(ctx context.Context) *Logger {
	if logger, ok := loggerFrom(ctx); ok {
		return logger
	}
	return sl.fallback
}

// LogHTTPEnd logs a finished request at info, warn for 4xx or error for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithComponent(ComponentHTTP).
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP)
	sl.loggerFor(ctx).Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogAttendance records one attendance operation and how it ended.
func (sl *StructuredLogger) LogAttendance(ctx context.Context, operation, childID, recordID, outcome string) {
	fields := NewFields().
		WithComponent(ComponentAttendance).
		WithOperation(operation).
		WithAttendance(childID, recordID, outcome)
	sl.loggerFor(ctx).Logger.InfoContext(ctx, "Attendance operation", fields.ToSlice()...)
}
