package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lines decodes every JSON log line written to buf.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info").Info().Str("participantId", "guest-42").Msg("registered")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "registered", got[0]["message"])
	assert.Equal(t, "guest-42", got[0]["participantId"])
	assert.NotEmpty(t, got[0]["time"])
}

func TestNew_NilWriterUsesConsole(t *testing.T) {
	assert.NotNil(t, New(nil, "silent"))
}

func TestSubAndWith(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, "debug")

	root.Sub("router").Debug().Str("outcome", "broadcast").Msg("message routed")
	root.Sub("gateway").Sub("ws").With("connId", "conn-7").Warn().Msg("write failed")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "router", got[0]["subsystem"])
	assert.Equal(t, "broadcast", got[0]["outcome"])

	// Nested Sub writes both keys; the last one decodes.
	assert.Equal(t, "ws", got[1]["subsystem"])
	assert.Equal(t, "conn-7", got[1]["connId"])
	assert.Equal(t, "warn", got[1]["level"])
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"trace", []string{"frame received", "participant connected", "client connected", "send queue full", "bind failed"}},
		{"debug", []string{"participant connected", "client connected", "send queue full", "bind failed"}},
		{"info", []string{"client connected", "send queue full", "bind failed"}},
		{"warn", []string{"send queue full", "bind failed"}},
		{"error", []string{"bind failed"}},
		{"silent", nil},
		{"bogus", []string{"client connected", "send queue full", "bind failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tt.level)
			log.Trace().Msg("frame received")
			log.Debug().Msg("participant connected")
			log.Info().Msg("client connected")
			log.Warn().Msg("send queue full")
			log.Error().Msg("bind failed")

			var msgs []string
			for _, l := range lines(t, &buf) {
				msgs = append(msgs, l["message"].(string))
			}
			assert.Equal(t, tt.want, msgs)
		})
	}
}

func TestTraceReachesWriter(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "trace").Sub("gateway").Trace().Str("connId", "conn-1").Int("bytes", 42).Msg("frame received")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "trace", got[0]["level"])
	assert.Equal(t, float64(42), got[0]["bytes"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		valid bool
	}{
		{"trace", zerolog.TraceLevel, true},
		{"debug", zerolog.DebugLevel, true},
		{"info", zerolog.InfoLevel, true},
		{"warn", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"fatal", zerolog.FatalLevel, true},
		{"silent", zerolog.Disabled, true},
		{"TRACE", zerolog.TraceLevel, true},
		{" warn\n", zerolog.WarnLevel, true},
		{"", zerolog.InfoLevel, false},
		{"verbose", zerolog.InfoLevel, false},
		{"off", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
			assert.Equal(t, tt.valid, ValidLevel(tt.input))
		})
	}
}

func TestLevels(t *testing.T) {
	assert.Equal(t, "trace", Levels[0])
	assert.Equal(t, "silent", Levels[len(Levels)-1])
	assert.NotContains(t, Levels, "warning", "aliases are accepted but not advertised")
	for _, l := range Levels {
		assert.True(t, ValidLevel(l), l)
	}
}

func TestNewWithOptions_FileSinkGetsJSON(t *testing.T) {
	var file bytes.Buffer
	log := NewWithOptions(Options{Level: "debug", ConsoleStyle: "json", File: &file})

	log.Sub("presence").Debug().Str("participantId", "agent-1").Msg("participant connected")
	log.Trace().Msg("frame received")

	got := lines(t, &file)
	require.Len(t, got, 1)
	assert.Equal(t, "presence", got[0]["subsystem"])
	assert.Equal(t, "agent-1", got[0]["participantId"])
}

func TestZerolog_SharesLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := New(&buf, "warn").Sub("alert").Zerolog()

	assert.Equal(t, zerolog.WarnLevel, zl.GetLevel())
	zl.Info().Msg("unattended alert sent")
	assert.Empty(t, buf.String())
	zl.Warn().Msg("irc disconnected")
	assert.Contains(t, buf.String(), `"subsystem":"alert"`)
}
