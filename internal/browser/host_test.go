package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mathcanvas/internal/pipeline"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Headless)
	assert.Equal(t, 1280, cfg.GetViewportWidth())
	assert.Equal(t, 800, cfg.GetViewportHeight())
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 2*time.Second, cfg.AttemptTimeout())
}

func TestConfigZeroValueFallbacks(t *testing.T) {
	var cfg Config
	assert.Equal(t, 1280, cfg.GetViewportWidth())
	assert.Equal(t, 800, cfg.GetViewportHeight())
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 2*time.Second, cfg.AttemptTimeout())

	cfg = Config{ViewportWidth: 640, ViewportHeight: 480, AttemptTimeoutMs: 500}
	assert.Equal(t, 640, cfg.GetViewportWidth())
	assert.Equal(t, 480, cfg.GetViewportHeight())
	assert.Equal(t, 500*time.Millisecond, cfg.AttemptTimeout())
}

func TestHostOperationsBeforeStart(t *testing.T) {
	h := NewHost(DefaultConfig())
	ctx := context.Background()

	assert.False(t, h.IsConnected())
	assert.Empty(t, h.ControlURL())

	_, err := h.Render(ctx, pipeline.KindGraph, "plot x", nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = h.Verify(ctx, pipeline.KindGraph, "<svg/>")
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.ErrorIs(t, h.LoadContent(ctx, "<p/>"), ErrNotStarted)

	_, err = h.MeasureElement(ctx, "#canvas")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = h.Screenshot(ctx, false)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = h.ScreenshotElement(ctx, "#canvas")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestShutdownWithoutStart(t *testing.T) {
	h := NewHost(DefaultConfig())
	assert.NoError(t, h.Shutdown(context.Background()))
}
