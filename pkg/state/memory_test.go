package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{{ID: "a", Type: "trigger"}, {ID: "b", Type: "action"}},
		Edges: []*models.GraphEdge{{Source: "a", Target: "b"}},
	}

	require.NoError(t, store.InitRun(ctx, "run-1", def))

	status, err := store.GetStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, status)

	require.NoError(t, store.SetStatus(ctx, "run-1", models.RunStatusRunning))

	status, err = store.GetStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, status)
}

func TestMemoryStoreUnknownRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunStateNotFound)

	err = store.SetStatus(ctx, "missing", models.RunStatusRunning)
	assert.ErrorIs(t, err, ErrRunStateNotFound)
}

func TestMemoryStoreNodeOutputs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InitRun(ctx, "run-1", &models.GraphDefinition{Nodes: []*models.GraphNode{{ID: "a", Type: "action"}}}))

	require.NoError(t, store.MarkNodeCompleted(ctx, "run-1", "a", map[string]any{"value": 42}))

	completed, err := store.CompletedNodes(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, completed["a"])

	output, err := store.NodeOutput(ctx, "run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, 42, output["value"])

	missing, err := store.NodeOutput(ctx, "run-1", "b")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreResumeData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InitRun(ctx, "run-1", &models.GraphDefinition{Nodes: []*models.GraphNode{{ID: "wait", Type: "wait"}}}))

	require.NoError(t, store.MarkNodeWaiting(ctx, "run-1", "wait", "manual approval"))
	require.NoError(t, store.SetResumeData(ctx, "run-1", "wait", map[string]any{"approved": true}))

	data, err := store.GetResumeData(ctx, "run-1", "wait")
	require.NoError(t, err)
	assert.Equal(t, true, data["approved"])

	require.NoError(t, store.ClearResumeData(ctx, "run-1", "wait"))
	require.NoError(t, store.ClearNodeWaiting(ctx, "run-1", "wait"))

	data, err = store.GetResumeData(ctx, "run-1", "wait")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryStorePartialOutputs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InitRun(ctx, "run-1", &models.GraphDefinition{Nodes: []*models.GraphNode{{ID: "a", Type: "action"}}}))

	require.NoError(t, store.SetPartialOutputs(ctx, "run-1", map[string]any{
		"a": map[string]any{"count": 3},
	}))

	outputs, err := store.PartialOutputs(ctx, "run-1")
	require.NoError(t, err)
	require.Contains(t, outputs, "a")
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InitRun(ctx, "run-1", &models.GraphDefinition{Nodes: []*models.GraphNode{{ID: "a", Type: "action"}}}))
	require.NoError(t, store.Cleanup(ctx, "run-1"))

	_, err := store.GetStatus(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunStateNotFound)
}
