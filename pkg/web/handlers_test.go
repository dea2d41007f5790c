package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/cmd"
	"github.com/flowrun-io/flowrun/pkg/engine"
	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
	"github.com/flowrun-io/flowrun/pkg/persistence/file"
	"github.com/flowrun-io/flowrun/pkg/state"
	"github.com/flowrun-io/flowrun/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := file.NewPersistence(t.TempDir())

	eng := engine.New(engine.Config{
		Persistence: p,
		State:       state.NewMemoryStore(),
		Registry:    cmd.NewRegistry(logger),
		Notifier:    engine.NewNotifier(nil, logger),
		Logger:      logger,
		Dispatch:    func(fn func()) { fn() },
	})

	handlers := web.NewAPIHandlers(eng, p, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	runs := app.Group("/runs")
	runs.Post("/", handlers.CreateRun)
	runs.Get("/", handlers.GetRuns)
	runs.Get("/:id", handlers.GetRun)
	runs.Get("/:id/output", handlers.GetRunOutput)
	runs.Get("/:id/nodes", handlers.GetRunNodes)
	runs.Get("/:id/nodes/:nodeId", handlers.GetRunNode)
	runs.Post("/:id/cancel", handlers.CancelRun)
	runs.Post("/:id/pause", handlers.PauseRun)
	runs.Post("/:id/resume", handlers.ResumeRun)
	runs.Post("/:id/retry", handlers.RetryRun)
	runs.Delete("/:id/state", handlers.CleanupRunState)

	app.Get("/health", handlers.HealthCheck)

	return app, p
}

func seedGraphVersion(t *testing.T, p persistence.Persistence, def *models.GraphDefinition) *models.GraphVersion {
	t.Helper()

	version := &models.GraphVersion{
		ID:         "gv-1",
		GraphID:    "graph-1",
		Version:    "1",
		Status:     models.GraphVersionStatusPublished,
		Definition: def,
	}

	require.NoError(t, p.Graphs().SaveVersion(context.Background(), version))

	return version
}

func simpleDefinition() *models.GraphDefinition {
	return &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			{ID: "start", Type: "trigger"},
			{ID: "work", Type: "action", Config: map[string]any{"step": "work"}},
		},
		Edges: []*models.GraphEdge{
			{Source: "start", Target: "work"},
		},
	}
}

func approvalDefinition() *models.GraphDefinition {
	return &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			{ID: "gate", Type: "approval"},
			{ID: "after", Type: "action"},
		},
		Edges: []*models.GraphEdge{
			{Source: "gate", Target: "after"},
		},
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) *http.Response {
	t.Helper()

	var body []byte

	if str, ok := payload.(string); ok {
		body = []byte(str)
	} else if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeRun(t *testing.T, resp *http.Response) *models.Run {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var run models.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))

	return &run
}

func TestCreateRunEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateRunRequest{
				GraphVersionID: "gv-1",
				TriggerInput:   map[string]any{"order_id": "o-1"},
				TriggeredBy:    "test-user",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing graph version id",
			requestBody: web.CreateRunRequest{
				TriggeredBy: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing triggered by",
			requestBody: web.CreateRunRequest{
				GraphVersionID: "gv-1",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown graph version",
			requestBody: web.CreateRunRequest{
				GraphVersionID: "gv-missing",
				TriggeredBy:    "test-user",
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, p := setupTestApp(t)
			seedGraphVersion(t, p, simpleDefinition())

			resp := doJSON(t, app, http.MethodPost, "/runs/", tt.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				run := decodeRun(t, resp)
				assert.NotEmpty(t, run.ID)
				assert.Equal(t, "gv-1", run.GraphVersionID)
				assert.Equal(t, "test-user", run.TriggeredBy)
			}
		})
	}
}

func TestCreateRunEndpointRejectsCyclicGraph(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			{ID: "a", Type: "action"},
			{ID: "b", Type: "action"},
		},
		Edges: []*models.GraphEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	})

	resp := doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
		GraphVersionID: "gv-1",
		TriggeredBy:    "test-user",
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetRunEndpoint(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, simpleDefinition())

	created := decodeRun(t, doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
		GraphVersionID: "gv-1",
		TriggeredBy:    "test-user",
	}))

	resp := doJSON(t, app, http.MethodGet, "/runs/"+created.ID, nil)
	run := decodeRun(t, resp)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	missing := doJSON(t, app, http.MethodGet, "/runs/does-not-exist", nil)

	defer func() { _ = missing.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestListRunsEndpoint(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, simpleDefinition())

	for range 3 {
		resp := doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
			GraphVersionID: "gv-1",
			TriggeredBy:    "test-user",
		})
		_ = resp.Body.Close()
	}

	resp := doJSON(t, app, http.MethodGet, "/runs/?status=completed&limit=2", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list web.ListRunsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Runs, 2)

	bad := doJSON(t, app, http.MethodGet, "/runs/?limit=abc", nil)

	defer func() { _ = bad.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRunOutputAndNodesEndpoints(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, simpleDefinition())

	created := decodeRun(t, doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
		GraphVersionID: "gv-1",
		TriggerInput:   map[string]any{"order_id": "o-1"},
		TriggeredBy:    "test-user",
	}))

	output := doJSON(t, app, http.MethodGet, "/runs/"+created.ID+"/output", nil)

	defer func() { _ = output.Body.Close() }()

	require.Equal(t, http.StatusOK, output.StatusCode)

	var outputBody struct {
		RunID  string         `json:"run_id"`
		Output map[string]any `json:"output"`
	}
	require.NoError(t, json.NewDecoder(output.Body).Decode(&outputBody))
	assert.Equal(t, created.ID, outputBody.RunID)
	assert.Contains(t, outputBody.Output, "work")

	nodes := doJSON(t, app, http.MethodGet, "/runs/"+created.ID+"/nodes", nil)

	defer func() { _ = nodes.Body.Close() }()

	require.Equal(t, http.StatusOK, nodes.StatusCode)

	var nodesBody struct {
		NodeRuns []*models.NodeRun `json:"node_runs"`
	}
	require.NoError(t, json.NewDecoder(nodes.Body).Decode(&nodesBody))
	assert.Len(t, nodesBody.NodeRuns, 2)

	node := doJSON(t, app, http.MethodGet, "/runs/"+created.ID+"/nodes/work", nil)

	defer func() { _ = node.Body.Close() }()

	require.Equal(t, http.StatusOK, node.StatusCode)

	missingNode := doJSON(t, app, http.MethodGet, "/runs/"+created.ID+"/nodes/ghost", nil)

	defer func() { _ = missingNode.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missingNode.StatusCode)

	missingRun := doJSON(t, app, http.MethodGet, "/runs/does-not-exist/nodes", nil)

	defer func() { _ = missingRun.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, missingRun.StatusCode)
}

func TestCancelRunEndpoint(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, approvalDefinition())

	created := decodeRun(t, doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
		GraphVersionID: "gv-1",
		TriggeredBy:    "test-user",
	}))

	resp := doJSON(t, app, http.MethodPost, "/runs/"+created.ID+"/cancel", web.CancelRunRequest{
		CancelledBy: "ops",
		Reason:      "no longer needed",
	})
	cancelled := decodeRun(t, resp)
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)
	assert.Equal(t, "ops", cancelled.CancelledBy)

	// A terminal run cannot be cancelled again.
	again := doJSON(t, app, http.MethodPost, "/runs/"+created.ID+"/cancel", web.CancelRunRequest{
		CancelledBy: "ops",
	})

	defer func() { _ = again.Body.Close() }()

	assert.Equal(t, http.StatusConflict, again.StatusCode)

	noBody := doJSON(t, app, http.MethodPost, "/runs/"+created.ID+"/cancel", web.CancelRunRequest{})

	defer func() { _ = noBody.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, noBody.StatusCode)
}

func TestResumeRunEndpoint(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	seedGraphVersion(t, p, approvalDefinition())

	created := decodeRun(t, doJSON(t, app, http.MethodPost, "/runs/", web.CreateRunRequest{
		GraphVersionID: "gv-1",
		TriggeredBy:    "test-user",
	}))

	waiting := decodeRun(t, doJSON(t, app, http.MethodGet, "/runs/"+created.ID, nil))
	require.Equal(t, models.RunStatusWaiting, waiting.Status)

	resp := doJSON(t, app, http.MethodPost, "/runs/"+created.ID+"/resume", web.ResumeRunRequest{
		ResumedBy:  "ops",
		ResumeData: map[string]any{"approved": true},
	})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	final := decodeRun(t, doJSON(t, app, http.MethodGet, "/runs/"+created.ID, nil))
	assert.Equal(t, models.RunStatusCompleted, final.Status)

	// Resuming a run that is no longer waiting conflicts.
	again := doJSON(t, app, http.MethodPost, "/runs/"+created.ID+"/resume", web.ResumeRunRequest{
		ResumedBy: "ops",
	})

	defer func() { _ = again.Body.Close() }()

	assert.Equal(t, http.StatusConflict, again.StatusCode)
}

func TestRetryRunEndpoint(t *testing.T) {
	t.Parallel()

	app, p := setupTestApp(t)
	version := seedGraphVersion(t, p, simpleDefinition())

	failed := &models.Run{
		ID:             "run-failed",
		GraphVersionID: version.ID,
		Status:         models.RunStatusFailed,
		TriggerType:    models.TriggerTypeManual,
		TriggeredBy:    "test-user",
		MaxRetries:     models.DefaultMaxRetries,
	}
	require.NoError(t, p.Runs().Create(context.Background(), failed))

	resp := doJSON(t, app, http.MethodPost, "/runs/"+failed.ID+"/retry", web.RetryRunRequest{
		TriggeredBy: "test-user",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	retry := decodeRun(t, resp)
	assert.Equal(t, failed.ID, retry.RetryOf)
	assert.Equal(t, 1, retry.RetryCount)

	// The retried run completed, which is not retryable.
	notRetryable := doJSON(t, app, http.MethodPost, "/runs/"+retry.ID+"/retry", web.RetryRunRequest{
		TriggeredBy: "test-user",
	})

	defer func() { _ = notRetryable.Body.Close() }()

	assert.Equal(t, http.StatusConflict, notRetryable.StatusCode)
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
