package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

func TestTransformMapping(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config: map[string]any{
			"mapping": map[string]any{
				"full_name": "Ada Lovelace",
				"age":       float64(36),
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Ada Lovelace", result.Output["full_name"])
}

func TestTransformMissingMapping(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{Config: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
}
