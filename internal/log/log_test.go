package log

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceAttr_RedactsCredentials(t *testing.T) {
	replace := replaceAttr("timestamp", time.RFC3339Nano, true)

	for _, key := range []string{"access_token", "client_secret", "code", "token", "password"} {
		got := replace(nil, slog.String(key, "s3cr3t"))
		assert.Equal(t, "***", got.Value.String(), key)
	}

	got := replace(nil, slog.String("component", "linkedin"))
	assert.Equal(t, "linkedin", got.Value.String())
}

func TestReplaceAttr_Time(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	got := replaceAttr("timestamp", time.RFC3339, true)(nil, slog.Time(slog.TimeKey, ts))
	assert.Equal(t, "timestamp", got.Key)
	assert.Equal(t, "2026-01-02T02:04:05Z", got.Value.String())
}

func TestReplaceAttr_TraceLevel(t *testing.T) {
	got := replaceAttr(slog.TimeKey, time.RFC3339, false)(nil, slog.Any(slog.LevelKey, LevelTrace))
	assert.Equal(t, "TRACE", got.Value.String())
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(original) })

	for _, level := range []string{"error", "warn", "info", "debug", "trace"} {
		require.NoError(t, SetLogLevel(level))
		assert.Equal(t, level, GetLogLevel())
	}

	require.NoError(t, SetLogLevel("WARNING"))
	assert.Equal(t, "warn", GetLogLevel())

	assert.Error(t, SetLogLevel("verbose"))
	assert.Equal(t, "warn", GetLogLevel())
}
