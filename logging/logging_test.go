package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestJSONFormatCarriesDefaults(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{Level: "info", Format: "json"}, "1.2.3")
	log.Info("door state changed", "door", "left")
	log.Debug("dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "garagectl", rec["service"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.Equal(t, "left", rec["door"])
	assert.Equal(t, "door state changed", rec["msg"])
}

func TestTextFormatIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{Level: "debug"}, "dev")
	log.Debug("input", "keys", "[1,2]")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "service=garagectl")
	assert.Contains(t, out, `keys=[1,2]`)
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(Config{Output: "stderr"}, "dev"))
	assert.NotNil(t, New(Config{}, "dev"))
	Discard().Error("nothing")
}
