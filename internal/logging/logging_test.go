package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegate.log")

	logger, cleanup, err := New(Config{Level: "info", Format: "json", Output: path}, nil)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("gate opened", zap.String("component", "Button"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "gate opened", entry["msg"])
	assert.Equal(t, "treegate", entry["service"])
	assert.Equal(t, "Button", entry["component"])
	assert.NotEmpty(t, entry["ts"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud", Format: "json", Output: "stderr"}, nil)
	assert.Error(t, err)
}

func TestNewLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegate.log")

	logger, cleanup, err := New(Config{Level: "warn", Format: "json", Output: path}, nil)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("below threshold")
	logger.Warn("at threshold")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "below threshold")
	assert.Contains(t, string(raw), "at threshold")
}

func TestRedactingEncoderScrubsFieldsAndPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treegate.log")

	logger, cleanup, err := New(Config{Level: "info", Format: "json", Output: path}, nil)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("credentials received",
		zap.String("api_key", "super-sensitive"),
		zap.String("note", "Bearer abc123token"),
		zap.String("plain", "visible"),
	)
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.NotContains(t, out, "super-sensitive")
	assert.NotContains(t, out, "abc123token")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "[REDACTED:pattern]")
	assert.Contains(t, out, "visible")
}

func TestNewRedactingEncoderRejectsBadPattern(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	_, err := NewRedactingEncoder(base, RedactionRules{Patterns: []string{"([a-z"}})
	assert.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("token", "abcd")
	assert.Equal(t, "[REDACTED:4]", f.String)
}

func TestTestLoggerObserves(t *testing.T) {
	logger, observed := NewTestLogger()

	logger.Warn("ceiling crossed", zap.Int64("limit", 10))

	AssertLogged(t, observed, zapcore.WarnLevel, "ceiling crossed")
	require.Len(t, observed.All(), 1)
	assert.Equal(t, int64(10), observed.All()[0].ContextMap()["limit"])
}
