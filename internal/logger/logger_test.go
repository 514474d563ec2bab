package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(level, format)
	SetOutput(&buf)
	t.Cleanup(func() {
		Init("info", "json")
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestInit_LevelFilter(t *testing.T) {
	buf := capture(t, "warn", "json")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown 2", entry["message"])
	assert.Equal(t, "warning", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	buf := capture(t, "verbose", "json")

	Debug("hidden")
	Info("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestWithPool(t *testing.T) {
	buf := capture(t, "debug", "json")

	WithPool("pool-7").Debug("scored")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool-7", entry["pool"])
	assert.Equal(t, "scored", entry["message"])
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "info", "text")

	Error("boom %s", "now")
	assert.Contains(t, buf.String(), "level=error")
	assert.Contains(t, buf.String(), "boom now")
}
