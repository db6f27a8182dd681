package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: " warning ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLogLevel(tc.in), "level %q", tc.in)
	}
}

func TestNewLoggerWritesJSONAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)

	log.Info("hidden")
	log.Warn("shown", "room", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "abc", line["room"])
	assert.Equal(t, "WARN", line["level"])
}
