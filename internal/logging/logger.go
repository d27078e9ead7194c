// Package logging provides the structured slog logger shared by the server.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

// Logger is a slog.Logger tagged with the component that owns it.
type Logger struct {
	*slog.Logger
	base *slog.Logger
}

// Config selects level ("debug", "info", "warn", "error") and format
// ("json" or "text").
type Config struct {
	Level     string
	Format    string
	Component string
	Output    io.Writer
}

func New(cfg Config) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	base := slog.New(handler)
	l := &Logger{Logger: base, base: base}
	if cfg.Component != "" {
		return l.Named(cfg.Component)
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard})
}

// Named returns a logger for another component sharing the same handler.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger: l.base.With(slog.String("component", component)),
		base:   l.base,
	}
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{Logger: l.Logger.With(attrs...), base: l.base}
}

// WithError adds the error message as an attribute.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithUserID adds the authenticated user id.
func (l *Logger) WithUserID(userID string) *Logger {
	return l.with(slog.String("user_id", userID))
}

// WithRequest adds the chi request id carried by ctx, if any.
func (l *Logger) WithRequest(ctx context.Context) *Logger {
	if reqID := chimw.GetReqID(ctx); reqID != "" {
		return l.with(slog.String("request_id", reqID))
	}
	return l
}

// HTTPRequestLog records one served request.
func (l *Logger) HTTPRequestLog(ctx context.Context, method, path string, status int, duration time.Duration, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	l.WithRequest(ctx).Log(ctx, level, "http request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
		slog.String("client_ip", clientIP),
	)
}

// IntoContext stores l on ctx for handlers further down the chain.
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request logger, or fallback when none was stored.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return fallback
}
