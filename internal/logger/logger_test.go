package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json handler respects level", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{Format: "json", Level: "warn", Output: &buf})
		require.NoError(t, err)

		l.Info("hidden")
		l.Warn("shown", "provider", "magic")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"provider":"magic"`)
	})

	t.Run("text is default", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Options{Output: &buf})
		require.NoError(t, err)
		l.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := New(Options{Format: "xml"})
		assert.Error(t, err)
		_, err = New(Options{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestInit(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Format: "json", Level: "debug", Output: &buf}))
	FromContext(WithAttemptID(context.Background(), "a-1")).Debug("installed")
	assert.Contains(t, buf.String(), `"msg":"installed"`)
	assert.Contains(t, buf.String(), `"attempt_id":"a-1"`)

	assert.Error(t, Init(Options{Format: "xml"}))
	assert.Contains(t, buf.String(), "installed", "failed init keeps the previous default")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithAttemptID(WithRequestID(context.Background(), "req-1"), "att-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "att-1", GetAttemptID(ctx))

	FromContext(ctx, base).Info("connect")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"attempt_id":"att-1"`)

	assert.Empty(t, GetRequestID(context.Background()))
}
