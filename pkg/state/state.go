// Package state defines the fast state store port: a volatile, low-latency
// view of live run status, node outputs and waiting markers. The durable
// record of a run lives in pkg/persistence; entries here expire after a
// bounded retention window.
package state

import (
	"context"
	"errors"

	"github.com/flowrun-io/flowrun/pkg/models"
)

// ErrRunStateNotFound indicates no live state exists for the run id.
var ErrRunStateNotFound = errors.New("run state not found")

// Store is the fast state store contract used by the run coordinator and
// by status-query callers. Writes are independent, idempotent upserts with
// last-writer-wins semantics per key.
type Store interface {
	// InitRun creates the live state entry for a new run in pending status.
	InitRun(ctx context.Context, runID string, def *models.GraphDefinition) error

	SetStatus(ctx context.Context, runID string, status models.RunStatus) error
	GetStatus(ctx context.Context, runID string) (models.RunStatus, error)

	MarkNodeStarted(ctx context.Context, runID, nodeID string) error
	MarkNodeCompleted(ctx context.Context, runID, nodeID string, output map[string]any) error
	MarkNodeFailed(ctx context.Context, runID, nodeID, errorMessage string) error
	MarkNodeWaiting(ctx context.Context, runID, nodeID, reason string) error
	ClearNodeWaiting(ctx context.Context, runID, nodeID string) error

	// CompletedNodes returns the ids of nodes already completed in this run.
	CompletedNodes(ctx context.Context, runID string) (map[string]bool, error)

	// NodeOutput returns the recorded output of one node, or nil if absent.
	NodeOutput(ctx context.Context, runID, nodeID string) (map[string]any, error)

	SetRunOutput(ctx context.Context, runID string, output map[string]any) error
	GetRunOutput(ctx context.Context, runID string) (map[string]any, error)

	SetResumeData(ctx context.Context, runID, nodeID string, data map[string]any) error
	GetResumeData(ctx context.Context, runID, nodeID string) (map[string]any, error)
	ClearResumeData(ctx context.Context, runID, nodeID string) error

	// SetPartialOutputs snapshots the working context when a run pauses so
	// a later resume can restore it.
	SetPartialOutputs(ctx context.Context, runID string, outputs map[string]any) error
	PartialOutputs(ctx context.Context, runID string) (map[string]any, error)

	// Cleanup removes every live entry for the run.
	Cleanup(ctx context.Context, runID string) error

	Close() error
}
