// Package persistence defines the durable storage contracts for runs, node
// runs and graph versions.
package persistence

import (
	"context"
	"time"

	"github.com/flowrun-io/flowrun/pkg/models"
)

// ListRunsOptions filters and pages run listings. Zero values mean no
// filtering on that dimension.
type ListRunsOptions struct {
	GraphID       string
	Owner         string
	Status        models.RunStatus
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int
	Offset        int
}

// RunListResult is one page of runs plus the unpaged total.
type RunListResult struct {
	Runs  []*models.Run
	Total int
}

// RunRepository stores the durable record of runs.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	ByID(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, opts ListRunsOptions) (*RunListResult, error)

	// CountRetries returns how many retry runs reference the given run.
	CountRetries(ctx context.Context, runID string) (int, error)
}

// NodeRunRepository stores per-node execution records.
type NodeRunRepository interface {
	Create(ctx context.Context, nodeRun *models.NodeRun) error
	Update(ctx context.Context, nodeRun *models.NodeRun) error
	ByID(ctx context.Context, id string) (*models.NodeRun, error)
	ByRunID(ctx context.Context, runID string) ([]*models.NodeRun, error)

	// LatestByNodeID returns the most recent node run for one node of a
	// run, or ErrNodeRunNotFound.
	LatestByNodeID(ctx context.Context, runID, nodeID string) (*models.NodeRun, error)
}

// GraphRepository stores versioned graph definitions.
type GraphRepository interface {
	SaveVersion(ctx context.Context, version *models.GraphVersion) error
	VersionByID(ctx context.Context, id string) (*models.GraphVersion, error)
	PublishedVersion(ctx context.Context, graphID string) (*models.GraphVersion, error)
	VersionsByGraphID(ctx context.Context, graphID string) ([]*models.GraphVersion, error)
	DeleteVersion(ctx context.Context, id string) error
}

type Persistence interface {
	Runs() RunRepository
	NodeRuns() NodeRunRepository
	Graphs() GraphRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
