package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ retryablehttp.LeveledLogger = (*LeveledLogger)(nil)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel("info")
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("warn")

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.False(t, Enabled(InfoLevel))
	assert.True(t, Enabled(ErrorLevel))
}

func TestLeveledKeyValues(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("debug")

	Leveled("Loader").Debug("performing request", "method", "GET", "url", "https://example.com/list.txt")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[DEBUG] [Loader] performing request")
	assert.Contains(t, line, "method=GET")
	assert.Contains(t, line, "url=https://example.com/list.txt")
}
