package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPlainString(t *testing.T) {
	result, err := Render("hello", Scope{})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRenderFromOutputs(t *testing.T) {
	scope := Scope{
		Outputs: map[string]any{
			"fetch": map[string]any{"status": "ok"},
		},
	}

	result, err := Render("{{.outputs.fetch.status}}", scope)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestRenderTypedResults(t *testing.T) {
	scope := Scope{
		Input: map[string]any{"count": 5, "enabled": "true"},
	}

	count, err := Render("{{.input.count}}", scope)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, count, 0)

	enabled, err := Render("{{.input.enabled}}", scope)
	require.NoError(t, err)
	assert.Equal(t, true, enabled)
}

func TestRenderJSONResult(t *testing.T) {
	scope := Scope{Global: map[string]any{"user": `{"name":"ada"}`}}

	result, err := Render("{{.global.user}}", scope)
	require.NoError(t, err)

	obj, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", obj["name"])
}

func TestRenderInvalidExpression(t *testing.T) {
	_, err := Render("{{.input.", Scope{})
	require.Error(t, err)
}

func TestEvaluateConfigNested(t *testing.T) {
	scope := Scope{
		Trigger: map[string]any{"id": "t-1"},
		Outputs: map[string]any{"prev": map[string]any{"url": "https://example.com"}},
	}

	config := map[string]any{
		"url":    "{{.outputs.prev.url}}",
		"static": "unchanged",
		"headers": map[string]any{
			"X-Trigger": "{{.trigger.id}}",
		},
		"retries": 3,
		"tags":    []any{"a", "{{.trigger.id}}"},
	}

	evaluated, err := EvaluateConfig(config, scope)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", evaluated["url"])
	assert.Equal(t, "unchanged", evaluated["static"])
	assert.Equal(t, 3, evaluated["retries"])

	headers, ok := evaluated["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t-1", headers["X-Trigger"])

	tags, ok := evaluated["tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, "t-1", tags[1])
}

func TestEvaluateConfigNil(t *testing.T) {
	evaluated, err := EvaluateConfig(nil, Scope{})
	require.NoError(t, err)
	assert.Nil(t, evaluated)
}
