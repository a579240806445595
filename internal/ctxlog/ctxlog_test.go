package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), base)

	ctx, logger := With(ctx, "task", 7)
	logger.Debug("first")
	FromContext(ctx).Info("second")

	out := buf.String()
	assert.Contains(t, out, "msg=first task=7")
	assert.Contains(t, out, "msg=second task=7")
}
