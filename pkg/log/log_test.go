package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "instance_id", "i-1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "instance_id=i-1")
}

func TestFromContext(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	logger := New(&bytes.Buffer{}, "info")
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx, fallback))
}
