// Package logging is the orchestrator's structured logger: a small Logger
// interface over log/slog with typed field helpers and request-scoped
// context plumbing.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Field is a structured logging attribute.
type Field = slog.Attr

func String(key, value string) Field      { return slog.String(key, value) }
func Int(key string, value int) Field     { return slog.Int(key, value) }
func Bool(key string, value bool) Field   { return slog.Bool(key, value) }
func Any(key string, value any) Field     { return slog.Any(key, value) }
func Float64(key string, v float64) Field { return slog.Float64(key, v) }

// Time renders value as an RFC 3339 UTC timestamp.
func Time(key string, value time.Time) Field {
	return slog.String(key, value.UTC().Format(time.RFC3339))
}

// Duration renders value in Go duration syntax ("1m30s").
func Duration(key string, value time.Duration) Field {
	return slog.String(key, value.String())
}

// Err records err under "error"; nil yields an empty value.
func Err(err error) Field {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Entity id fields shared by every component.
func FlightPlanID(id string) Field    { return slog.String("flight_plan_id", id) }
func SatelliteID(id string) Field     { return slog.String("satellite_id", id) }
func GroundStationID(id string) Field { return slog.String("ground_station_id", id) }

// Logger is the logging surface components depend on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	AddSource bool
	// Component, when set, is attached to every record.
	Component string
	Output    io.Writer
}

// New builds a slog-backed Logger. Record times are written in UTC.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With(slog.String("component", cfg.Component))
	}
	return &slogger{l: l}
}

// NewFromEnv reads SATOPS_LOG_LEVEL and SATOPS_LOG_FORMAT, falling back to
// the unprefixed LOG_LEVEL and LOG_FORMAT.
func NewFromEnv() Logger {
	return New(Config{
		Level:     envOr("SATOPS_LOG_LEVEL", "LOG_LEVEL"),
		Format:    envOr("SATOPS_LOG_FORMAT", "LOG_FORMAT"),
		AddSource: true,
	})
}

func envOr(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Noop returns a logger that drops everything.
func Noop() Logger { return noopLogger{} }

type slogger struct {
	l *slog.Logger
}

func (s *slogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return &slogger{l: s.l.With(args...)}
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, fields...)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, fields...)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, fields...)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, fields...)
}

type noopLogger struct{}

func (noopLogger) With(...Field) Logger                    { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

// parseLevel accepts slog level names, case-insensitively, and "warning".
// Unknown names select info.
func parseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}
