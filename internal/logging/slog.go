package logging

// file: internal/logging/slog.go

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level mirrors slog levels so callers don't need to import log/slog.
type Level = slog.Level

// Supported levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// level is shared by every logger created through InitLogging, so SetLevel
// takes effect on loggers that were handed out earlier.
var level = new(slog.LevelVar)

// SlogLogger adapts *slog.Logger to the Logger interface.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// Debug logs at debug level.
func (s *SlogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }

// Info logs at info level.
func (s *SlogLogger) Info(msg string, args ...any) { s.l.Info(msg, args...) }

// Warn logs at warn level.
func (s *SlogLogger) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }

// Error logs at error level.
func (s *SlogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// WithContext attaches request-scoped values carried by ctx.
func (s *SlogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return s
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return &SlogLogger{l: s.l.With("request_id", id)}
	}
	return s
}

// WithField returns a logger that always emits key=value.
func (s *SlogLogger) WithField(key string, value any) Logger {
	return &SlogLogger{l: s.l.With(key, value)}
}

type requestIDKey struct{}

// ContextWithRequestID stores a request id for WithContext to pick up.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// InitLogging installs a JSON logger writing to w as the default logger.
// A nil writer means stderr; stdout is reserved for protocol traffic.
func InitLogging(lvl Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	level.Set(lvl)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := NewSlogLogger(slog.New(handler))
	SetDefaultLogger(logger)
	return logger
}

// SetupDefaultLogger configures stderr JSON logging from a level name.
func SetupDefaultLogger(levelName string) Logger {
	return InitLogging(ParseLevel(levelName), os.Stderr)
}

// SetLevel changes the level of all loggers created by InitLogging.
func SetLevel(lvl Level) {
	level.Set(lvl)
}

// GetLevel returns the level shared by loggers created through InitLogging.
func GetLevel() Level {
	return level.Level()
}

// ParseProtocolLevel maps a syslog-style severity name, as sent by
// logging/setLevel, onto the nearest Level. Severities above error collapse
// to error.
func ParseProtocolLevel(name string) (Level, bool) {
	switch name {
	case "debug":
		return LevelDebug, true
	case "info", "notice":
		return LevelInfo, true
	case "warning":
		return LevelWarn, true
	case "error", "critical", "alert", "emergency":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// IsDebugEnabled reports whether debug messages are currently emitted.
func IsDebugEnabled() bool {
	return level.Level() <= LevelDebug
}

// ParseLevel maps a level name to a Level. Unknown names yield info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
