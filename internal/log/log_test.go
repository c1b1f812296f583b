package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, sonic.UnmarshalString(l, &m), l)
		out = append(out, m)
	}
	return out
}

func TestLevelsAndFields(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)

	Debug("hidden")
	Info("refresh completed", "version", 3, "outcome", "ok")
	Error("refresh failed", errors.New("feed down"), "staff", "u1")

	got := lines(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "refresh completed", got[0]["message"])
	assert.EqualValues(t, 3, got[0]["version"])
	assert.Equal(t, "ok", got[0]["outcome"])
	assert.Contains(t, got[0], "time")

	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, "feed down", got[1]["error"])
	assert.Equal(t, "u1", got[1]["staff"])

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("shown")
	require.Len(t, lines(t, buf), 1)
}

func TestOddPairsAreDropped(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)

	Warn("odd", "a", 1, 42, "skipped", "dangling")
	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.EqualValues(t, 1, got[0]["a"])
	assert.NotContains(t, got[0], "dangling")
	assert.NotContains(t, got[0], "42")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"warn":    LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
