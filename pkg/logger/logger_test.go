package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, lvl zapcore.Level) *observer.ObservedLogs {
	prev := current.Load()
	core, logs := observer.New(lvl)
	Use(zap.New(core))
	t.Cleanup(func() { Use(prev) })
	return logs
}

func TestPackageHelpers(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Info("reconciled transfer", "transfer_id", "T1", "changed", true)
	Debug("dropped below level")
	Error("push failed", "endpoint", "https://push.example/a")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "reconciled transfer", entries[0].Message)
	assert.Equal(t, map[string]any{"transfer_id": "T1", "changed": true}, entries[0].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestWith(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	log := With("transfer_id", "T9", "event_type", "transfer.sent")
	log.Warn("booking already terminal", "booking_id", 4)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, map[string]any{
		"transfer_id": "T9",
		"event_type":  "transfer.sent",
		"booking_id":  int64(4),
	}, logs.All()[0].ContextMap())
}

func TestSetLevel(t *testing.T) {
	prev := level.Level()
	t.Cleanup(func() { level.SetLevel(prev) })

	require.NoError(t, SetLevel(""))
	assert.Equal(t, prev, level.Level())

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.Error(t, SetLevel("loud"))
}
