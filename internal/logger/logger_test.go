package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesFileAndBuffer(t *testing.T) {
	buf, err := NewLogBuffer(10, "", nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "testlab.log")

	l, err := New(Config{File: path, MaxSizeMB: 1, Buffer: buf})
	require.NoError(t, err)

	l.Named("monitor").Info("🔔 Alert fired", zap.String("alert_id", "a1"), zap.Float64("price", 1.5))
	l.Debug("hidden at info level")
	require.NoError(t, Sync(l))

	logs := buf.GetRecentLogs(0)
	require.Len(t, logs, 1)
	assert.Equal(t, "info", logs[0].Level)
	assert.Equal(t, "monitor", logs[0].Logger)
	assert.Equal(t, "a1", logs[0].Fields["alert_id"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"alert_id":"a1"`)
}

func TestNewWithoutCoresIsNop(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestPrettyCoreFormatsKnownMessages(t *testing.T) {
	inner, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(&prettyCore{core: inner}).With(zap.String("campaign_id", "c1"))

	l.Info("🚀 Campaign started", zap.String("mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"), zap.Float64("baseline", 1))
	l.Info("Alert dispatch finished", zap.String("alert_id", "a1"), zap.Int("failed", 1))
	l.Info("something else", zap.String("k", "v"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Contains(t, entries[0].Message, "Campaign c1 started on EPjF...Dt1v at 1")
	assert.Contains(t, entries[1].Message, "1 action(s) failed")
	assert.Equal(t, "something else", entries[2].Message)
	assert.Empty(t, entries[2].Context)
}
