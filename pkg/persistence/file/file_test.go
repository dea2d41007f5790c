package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
)

func newTestPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func newTestRun(graphVersionID string) *models.Run {
	return &models.Run{
		ID:             uuid.New().String(),
		GraphVersionID: graphVersionID,
		Status:         models.RunStatusPending,
		TriggerType:    models.TriggerTypeManual,
		TriggeredBy:    "user-1",
		MaxRetries:     models.DefaultMaxRetries,
	}
}

func TestRunRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	run := newTestRun("gv-1")
	require.NoError(t, p.Runs().Create(ctx, run))

	loaded, err := p.Runs().ByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, models.RunStatusPending, loaded.Status)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestRunRepositoryCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	run := newTestRun("gv-1")
	require.NoError(t, p.Runs().Create(ctx, run))

	err := p.Runs().Create(ctx, run)
	assert.ErrorIs(t, err, persistence.ErrRunAlreadyExists)
}

func TestRunRepositoryUpdateMissing(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	err := p.Runs().Update(ctx, newTestRun("gv-1"))
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestRunRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	completed := newTestRun("gv-1")
	completed.Status = models.RunStatusCompleted
	require.NoError(t, p.Runs().Create(ctx, completed))

	failed := newTestRun("gv-1")
	failed.Status = models.RunStatusFailed
	require.NoError(t, p.Runs().Create(ctx, failed))

	other := newTestRun("gv-2")
	require.NoError(t, p.Runs().Create(ctx, other))

	result, err := p.Runs().List(ctx, persistence.ListRunsOptions{GraphID: "gv-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = p.Runs().List(ctx, persistence.ListRunsOptions{Status: models.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, failed.ID, result.Runs[0].ID)
}

func TestRunRepositoryCountRetries(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	original := newTestRun("gv-1")
	original.Status = models.RunStatusFailed
	require.NoError(t, p.Runs().Create(ctx, original))

	retry := newTestRun("gv-1")
	retry.RetryOf = original.ID
	retry.RetryCount = 1
	require.NoError(t, p.Runs().Create(ctx, retry))

	count, err := p.Runs().CountRetries(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNodeRunRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	started := time.Now().UTC()
	nodeRun := &models.NodeRun{
		ID:        uuid.New().String(),
		RunID:     "run-1",
		NodeID:    "fetch",
		Status:    models.NodeRunStatusRunning,
		StartedAt: &started,
	}

	require.NoError(t, p.NodeRuns().Create(ctx, nodeRun))

	nodeRun.Status = models.NodeRunStatusCompleted
	nodeRun.Finish(started.Add(250 * time.Millisecond))
	require.NoError(t, p.NodeRuns().Update(ctx, nodeRun))

	loaded, err := p.NodeRuns().ByID(ctx, nodeRun.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeRunStatusCompleted, loaded.Status)
	assert.Equal(t, int64(250), loaded.DurationMs)

	byRun, err := p.NodeRuns().ByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 1)

	latest, err := p.NodeRuns().LatestByNodeID(ctx, "run-1", "fetch")
	require.NoError(t, err)
	assert.Equal(t, nodeRun.ID, latest.ID)
}

func TestNodeRunRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	_, err := p.NodeRuns().LatestByNodeID(ctx, "run-1", "missing")
	assert.ErrorIs(t, err, persistence.ErrNodeRunNotFound)
}

func TestGraphRepositoryPublishedVersion(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	def := &models.GraphDefinition{Nodes: []*models.GraphNode{{ID: "a", Type: "trigger"}}}

	draft := &models.GraphVersion{
		ID:         uuid.New().String(),
		GraphID:    "graph-1",
		Version:    "1",
		Status:     models.GraphVersionStatusDraft,
		Definition: def,
	}
	require.NoError(t, p.Graphs().SaveVersion(ctx, draft))

	_, err := p.Graphs().PublishedVersion(ctx, "graph-1")
	assert.ErrorIs(t, err, persistence.ErrPublishedVersionNotFound)

	publishedAt := time.Now().UTC()
	published := &models.GraphVersion{
		ID:          uuid.New().String(),
		GraphID:     "graph-1",
		Version:     "2",
		Status:      models.GraphVersionStatusPublished,
		Definition:  def,
		PublishedAt: &publishedAt,
	}
	require.NoError(t, p.Graphs().SaveVersion(ctx, published))

	current, err := p.Graphs().PublishedVersion(ctx, "graph-1")
	require.NoError(t, err)
	assert.Equal(t, published.ID, current.ID)

	versions, err := p.Graphs().VersionsByGraphID(ctx, "graph-1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestGraphRepositoryRejectsMalformedDefinitionOnLoad(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := NewPersistence(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "graphs"), 0750))

	// A hand-edited file whose node lacks the required type field.
	body := []byte(`{
		"id": "gv-bad",
		"graph_id": "graph-1",
		"version": "1",
		"status": "published",
		"definition": {"nodes": [{"id": "a"}]}
	}`)
	require.NoError(t, os.WriteFile(filepath.Join(root, "graphs", "gv-bad.json"), body, 0600))

	_, err := p.Graphs().VersionByID(ctx, "gv-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid definition")
}

func TestHealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.HealthCheck(context.Background()))
}
