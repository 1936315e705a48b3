package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" ERROR ", zerolog.ErrorLevel, false},
		{"TRACE", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_StructuredRecordShape(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "DEBUG", Structured: true, Output: &buf})
	require.NoError(t, err)

	logger.Warn().
		Str("url", "ws://localhost/stream").
		Int("retry_count", 2).
		Err(errors.New("boom")).
		Msg("Attempting to reconnect")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))

	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "Attempting to reconnect", rec["message"])

	ts, ok := rec["timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(TimeFormat, ts)
	assert.NoError(t, err)

	ctx, ok := rec["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ws://localhost/stream", ctx["url"])
	assert.EqualValues(t, 2, ctx["retry_count"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Len(t, rec, 4)
}

func TestNew_EmptyContextIsObject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "INFO", Structured: true, Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"context":{}`)
}

func TestNew_SuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "WARN", Structured: true, Output: &buf})
	require.NoError(t, err)

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	logger.Warn().Msg("warn")
	logger.Error().Msg("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"WARN"`)
	assert.Contains(t, lines[1], `"level":"ERROR"`)
}

func TestNew_ConsoleMode(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "INFO", Output: &buf})
	require.NoError(t, err)

	logger.Info().Str("game_id", "7").Msg("new game")
	out := buf.String()
	assert.Contains(t, out, "new game")
	assert.Contains(t, out, "game_id")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "LOUD"})
	assert.Error(t, err)
}
