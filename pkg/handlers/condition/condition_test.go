package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

func TestConditionEvaluation(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{name: "bool true", value: true, expected: true},
		{name: "bool false", value: false, expected: false},
		{name: "string true", value: "true", expected: true},
		{name: "string other", value: "yes", expected: false},
		{name: "nonzero number", value: float64(1), expected: true},
		{name: "zero number", value: float64(0), expected: false},
		{name: "nil", value: nil, expected: false},
	}

	h := NewHandler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Execute(context.Background(), handler.ExecutionContext{
				Config: map[string]any{"expression": tt.value},
			})
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, tt.expected, result.Output["result"])
		})
	}
}

func TestConditionMissingExpression(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{Config: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestConditionUnsupportedType(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config: map[string]any{"expression": []any{"not", "a", "bool"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
}
