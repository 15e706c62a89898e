// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bobdodd/auto-a11y-go/internal/config"
)

// memorySink lets tests capture console output without touching os.Stdout.
type memorySink struct {
	bytes.Buffer
}

func (m *memorySink) Sync() error { return nil }

func initForTest(t *testing.T, cfg config.LoggerConfig) *memorySink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(cfg, zapcore.Lock(sink))
	return sink
}

func TestInitialize_JSONFormat(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "a11y-test",
	})

	GetLogger().Info("hello", zap.String("state", "initial"))

	line := strings.TrimSpace(sink.String())
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "initial", entry["state"])
	assert.Equal(t, "a11y-test", entry["logger"])
}

func TestInitialize_LevelFiltering(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:       "warn",
		Format:      "json",
		ServiceName: "a11y-test",
	})

	GetLogger().Info("should be filtered")
	GetLogger().Warn("should appear")

	out := sink.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	sink := initForTest(t, config.LoggerConfig{
		Level:       "loud",
		Format:      "json",
		ServiceName: "a11y-test",
	})

	GetLogger().Debug("debug hidden")
	GetLogger().Info("info visible")

	out := sink.String()
	assert.NotContains(t, out, "debug hidden")
	assert.Contains(t, out, "info visible")
}

func TestGetLogger_BeforeInitialization(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// Must not panic and must hand back a usable logger.
	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("fallback logger works")
}
