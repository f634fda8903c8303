package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAddsAppAttrAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("sftpresume", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("remote", "/srv/a"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "app=sftpresume")
	assert.Contains(t, out, "remote=/srv/a")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.True(t, ValidLevel("info"))
	assert.False(t, ValidLevel("trace"))
}
