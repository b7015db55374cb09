package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json")
	logger.With("component", "test").Debug("hello", "n", 1)

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"component":"test"`)
}

func TestColorHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "color")
	logger.Info("ignored")
	assert.Empty(t, buf.String())

	logger.With("component", "repo").WithGroup("q").Warn("slow query", "ms", 250)
	out := buf.String()
	assert.Contains(t, out, "slow query")
	assert.Contains(t, out, "component")
	assert.Contains(t, out, "q.ms")
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
}
