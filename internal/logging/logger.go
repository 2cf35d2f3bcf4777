// Package logging is the logging facade shared by every mcpserve package.
// Components accept a Logger and never touch a backend; the slog backend in
// slog.go writes JSON to stderr because stdout carries protocol traffic.
package logging

// file: internal/logging/logger.go

import (
	"context"
	"sync/atomic"
)

// Logger is a structured, leveled logger. args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithContext adds request-scoped attributes carried by ctx, such as the
	// JSON-RPC request id.
	WithContext(ctx context.Context) Logger
	WithField(key string, value any) Logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                 {}
func (nopLogger) Info(string, ...any)                  {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) WithField(string, any) Logger       { return n }

// GetNoopLogger returns a Logger that discards everything.
func GetNoopLogger() Logger {
	return nopLogger{}
}

// OrNoop returns l, or the no-op logger when l is nil. Constructors use it so
// a zero-value option never panics.
func OrNoop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// loggerBox lets an interface value live in an atomic.Pointer.
type loggerBox struct{ Logger }

var defaultLogger atomic.Pointer[loggerBox]

func init() {
	defaultLogger.Store(&loggerBox{nopLogger{}})
}

// SetDefaultLogger replaces the logger behind GetLogger. nil is ignored.
func SetDefaultLogger(logger Logger) {
	if logger != nil {
		defaultLogger.Store(&loggerBox{logger})
	}
}

// GetLogger returns the default logger tagged with a component name.
func GetLogger(component string) Logger {
	return defaultLogger.Load().WithField("component", component)
}
