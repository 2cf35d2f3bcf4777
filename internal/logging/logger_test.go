// internal/logging/logger_test.go
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogger(t *testing.T) {
	logger := GetLogger("test")
	require.NotNil(t, logger)
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LevelDebug, &buf)
	t.Cleanup(func() { SetDefaultLogger(GetNoopLogger()) })

	logger := GetLogger("test_component")
	logger.Info("test message", "key1", "value1", "key2", 123)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "test_component", logEntry["component"])
	assert.Equal(t, "value1", logEntry["key1"])
	assert.EqualValues(t, 123, logEntry["key2"])
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogging(LevelDebug, &buf)
	t.Cleanup(func() { SetDefaultLogger(GetNoopLogger()) })

	ctx := ContextWithRequestID(context.Background(), "42")
	logger.WithContext(ctx).Debug("scoped")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "42", logEntry["request_id"])
}

func TestIsDebugEnabled(t *testing.T) {
	SetLevel(LevelInfo)
	assert.False(t, IsDebugEnabled(), "debug must be off at info level")

	SetLevel(LevelDebug)
	assert.True(t, IsDebugEnabled(), "debug must be on at debug level")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, GetNoopLogger(), OrNoop(nil))

	var buf bytes.Buffer
	logger := InitLogging(LevelInfo, &buf)
	t.Cleanup(func() { SetDefaultLogger(GetNoopLogger()) })
	assert.Same(t, logger, OrNoop(logger))
}

func TestParseProtocolLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":     LevelDebug,
		"info":      LevelInfo,
		"notice":    LevelInfo,
		"warning":   LevelWarn,
		"error":     LevelError,
		"critical":  LevelError,
		"emergency": LevelError,
	}
	for name, want := range cases {
		got, ok := ParseProtocolLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := ParseProtocolLevel("verbose")
	assert.False(t, ok)
}

func TestSetLevelIsShared(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(LevelError)
	assert.False(t, IsDebugEnabled())
	assert.Equal(t, LevelError, GetLevel())
	SetLevel(LevelDebug)
	assert.True(t, IsDebugEnabled())
}
