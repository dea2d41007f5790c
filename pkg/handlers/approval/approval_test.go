package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

func TestApprovalFirstInvocationPauses(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		Config: map[string]any{"approvers": []any{"ops"}},
	})
	require.NoError(t, err)
	assert.True(t, result.PauseRequested)
	assert.Equal(t, "manual approval", result.PauseReason)
	assert.Equal(t, "approval", result.ResumeCondition["type"])
	assert.NotNil(t, result.ResumeCondition["approvers"])
}

func TestApprovalResumeApproved(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		ResumeData: map[string]any{"approved": true, "approved_by": "ops", "comment": "lgtm"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.PauseRequested)
	assert.Equal(t, true, result.Output["approved"])
	assert.Equal(t, "ops", result.Output["approved_by"])
	assert.Equal(t, "lgtm", result.Output["comment"])
}

func TestApprovalResumeRejected(t *testing.T) {
	h := NewHandler()

	result, err := h.Execute(context.Background(), handler.ExecutionContext{
		ResumeData: map[string]any{"approved": false},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "approval was rejected", result.ErrorMessage)
}
