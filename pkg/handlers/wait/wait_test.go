package wait

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

func TestWaitInlineDelay(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config: map[string]any{"duration_ms": float64(10)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.PauseRequested)
	assert.Equal(t, int64(10), result.Output["waited_ms"])
}

func TestWaitLongDelayPauses(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config: map[string]any{"duration_ms": float64(60000)},
	})
	require.NoError(t, err)
	assert.True(t, result.PauseRequested)
	assert.Equal(t, "timer", result.PauseReason)
}

func TestWaitNoDurationPauses(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{Config: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, result.PauseRequested)
	assert.Equal(t, "manual resume", result.PauseReason)
}

func TestWaitResumeCompletes(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config:     map[string]any{"duration_ms": float64(60000)},
		ResumeData: map[string]any{"note": "resumed by operator"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.PauseRequested)
	assert.Equal(t, true, result.Output["resumed"])
	assert.Equal(t, "resumed by operator", result.Output["note"])
}

func TestWaitCancelledContext(t *testing.T) {
	h := NewHandler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Execute(ctx, handler.ExecutionContext{
		Config: map[string]any{"duration_ms": float64(1000)},
	})
	require.Error(t, err)
}
