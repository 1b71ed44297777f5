package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerWithCore("cascade", core)

	logger.Info("reading accepted", "strategy", "direct", "value", 0.336)
	logger.With("job", "job-1").Warn("engine failure", "mode", "single-line")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "cascade", entries[0].LoggerName)
	assert.Equal(t, "reading accepted", entries[0].Message)
	assert.Equal(t, "direct", entries[0].ContextMap()["strategy"])
	assert.Equal(t, 0.336, entries[0].ContextMap()["value"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "job-1", entries[1].ContextMap()["job"])
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	SetLevel("WARN")
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	SetLevel("nonsense")
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Debug("x")
		logger.Error("y", "k", 1)
	})
}
