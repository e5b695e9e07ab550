package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestInstrument_Console(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	for _, format := range []string{"", "text", "json", "JSON"} {
		require.NoError(t, instrument(context.Background(), slog.LevelInfo, format, env(nil)), format)
	}
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	err := instrument(context.Background(), slog.LevelInfo, "yaml", env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log format")
}

func TestInstrument_ExportPipeline(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	err := instrument(context.Background(), slog.LevelWarn, "text", env(map[string]string{
		EnvOTLPEndpoint: "http://127.0.0.1:4318",
		EnvOTLPProtocol: "console",
	}))
	require.NoError(t, err)

	_, isFanout := slog.Default().Handler().(fanout)
	assert.True(t, isFanout)
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))

	require.NoError(t, Shutdown(context.Background()))
	require.NoError(t, Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestInstrument_UnsupportedProtocol(t *testing.T) {
	err := instrument(context.Background(), slog.LevelInfo, "text", env(map[string]string{
		EnvOTLPEndpoint: "http://127.0.0.1:4318",
		EnvOTLPProtocol: "carrier-pigeon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvOTLPProtocol)
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug - 4, minsev.SeverityDebug},
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severity(tt.level), tt.level.String())
	}
}

func TestFanout(t *testing.T) {
	var verbose, quiet bytes.Buffer
	logger := slog.New(fanout{
		slog.NewJSONHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("project", "blog").WithGroup("token")

	logger.Debug("issued", "action", "refresh")
	assert.Contains(t, verbose.String(), `"project":"blog"`)
	assert.Contains(t, verbose.String(), `"token":{"action":"refresh"}`)
	assert.Empty(t, quiet.String())

	logger.Warn("failed")
	assert.Contains(t, quiet.String(), `"msg":"failed"`)
}
