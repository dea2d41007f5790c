// Package engine implements the run coordinator: it owns every run and
// node-run state transition, drives graph execution in dependency order and
// mediates the pause, resume, cancel and retry protocols.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowrun-io/flowrun/pkg/credential"
	"github.com/flowrun-io/flowrun/pkg/dag"
	"github.com/flowrun-io/flowrun/pkg/events"
	"github.com/flowrun-io/flowrun/pkg/handler"
	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
	"github.com/flowrun-io/flowrun/pkg/state"
)

var (
	// ErrInvalidGraph indicates the graph definition failed validation.
	ErrInvalidGraph = errors.New("graph definition is invalid")

	// ErrRunNotCancellable indicates the run is already terminal or
	// cancelling.
	ErrRunNotCancellable = errors.New("run cannot be cancelled in its current state")

	// ErrRunNotWaiting indicates a resume was requested for a run that is
	// not paused.
	ErrRunNotWaiting = errors.New("run is not waiting")

	// ErrRunNotPausable indicates a manual pause was requested for a run
	// that is not running.
	ErrRunNotPausable = errors.New("run cannot be paused in its current state")

	// ErrRunNotRetryable indicates the run is not in a retryable state.
	ErrRunNotRetryable = errors.New("run cannot be retried in its current state")

	// ErrRetryLimitReached indicates the retry lineage is exhausted.
	ErrRetryLimitReached = errors.New("retry limit reached")

	// ErrRunNotFinished indicates a state cleanup was requested for a run
	// that is not terminal.
	ErrRunNotFinished = errors.New("run is not finished")
)

// Engine coordinates run execution. It is the sole writer of run and
// node-run state; every other component observes through queries or events.
type Engine struct {
	persistence persistence.Persistence
	state       state.Store
	registry    *handler.Registry
	notifier    *Notifier
	credentials credential.Resolver
	logger      *slog.Logger

	// dispatch runs the drive loop. The default detaches a goroutine;
	// tests swap in a synchronous version.
	dispatch func(fn func())
}

// Config carries the engine's collaborators.
type Config struct {
	Persistence persistence.Persistence
	State       state.Store
	Registry    *handler.Registry
	Notifier    *Notifier
	Credentials credential.Resolver
	Logger      *slog.Logger

	// Dispatch overrides how drive loops are scheduled. Leave nil for one
	// goroutine per run; tests pass a synchronous version.
	Dispatch func(fn func())
}

// New creates a run coordinator.
func New(cfg Config) *Engine {
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = func(fn func()) { go fn() }
	}

	return &Engine{
		persistence: cfg.Persistence,
		state:       cfg.State,
		registry:    cfg.Registry,
		notifier:    cfg.Notifier,
		credentials: cfg.Credentials,
		logger:      cfg.Logger.With("module", "engine"),
		dispatch:    dispatch,
	}
}

// CreateRunParams describes a new run request.
type CreateRunParams struct {
	GraphVersionID string
	TriggerInput   map[string]any
	TriggerContext map[string]any
	TriggerType    string
	TriggeredBy    string
}

// CreateRun validates the graph version, records a pending run and starts
// driving it. The returned run reflects the pending state; execution
// progresses asynchronously.
func (e *Engine) CreateRun(ctx context.Context, params CreateRunParams) (*models.Run, error) {
	version, err := e.persistence.Graphs().VersionByID(ctx, params.GraphVersionID)
	if err != nil {
		return nil, err
	}

	parsed := dag.Parse(version.Definition)
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGraph, strings.Join(parsed.Errors, "; "))
	}

	triggerType := params.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerTypeManual
	}

	run := &models.Run{
		ID:             uuid.New().String(),
		GraphVersionID: version.ID,
		Status:         models.RunStatusPending,
		TriggerInput:   params.TriggerInput,
		TriggerContext: params.TriggerContext,
		TriggerType:    triggerType,
		TriggeredBy:    params.TriggeredBy,
		MaxRetries:     models.DefaultMaxRetries,
	}

	err = e.persistence.Runs().Create(ctx, run)
	if err != nil {
		return nil, err
	}

	err = e.state.InitRun(ctx, run.ID, version.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to init run state: %w", err)
	}

	e.logger.InfoContext(ctx, "Run created",
		"run_id", run.ID, "graph_version_id", version.ID, "triggered_by", run.TriggeredBy)

	runID := run.ID
	e.dispatch(func() {
		e.drive(context.WithoutCancel(ctx), runID, nil)
	})

	return run, nil
}

// CancelRun requests cooperative cancellation. The durable record is
// finalized here; a driver in flight observes the fast-store status at its
// next poll point and stops without executing further nodes.
func (e *Engine) CancelRun(ctx context.Context, runID, cancelledBy, reason string) (*models.Run, error) {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if !run.Status.IsCancellable() {
		return nil, fmt.Errorf("%w: status is %s", ErrRunNotCancellable, run.Status)
	}

	run.Status = models.RunStatusCancelling

	err = e.persistence.Runs().Update(ctx, run)
	if err != nil {
		return nil, err
	}

	// The fast-store flag is what the drive loop polls.
	err = e.state.SetStatus(ctx, runID, models.RunStatusCancelled)
	if err != nil && !errors.Is(err, state.ErrRunStateNotFound) {
		return nil, fmt.Errorf("failed to flag cancellation: %w", err)
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.CancelledBy = cancelledBy
	run.CancelledAt = &now
	run.CancelReason = reason
	run.ClearPauseState()
	run.Finish(now)

	err = e.persistence.Runs().Update(ctx, run)
	if err != nil {
		return nil, err
	}

	err = e.sweepNodeRuns(ctx, runID, models.NodeRunStatusCancelled)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to sweep node runs on cancel", "run_id", runID, "error", err)
	}

	version, err := e.persistence.Graphs().VersionByID(ctx, run.GraphVersionID)
	graphID := ""

	if err == nil {
		graphID = version.GraphID
	}

	e.notifier.Notify(ctx, runID, events.RunCancelled{
		BaseEvent:   events.NewBaseEvent(events.RunCancelledEvent, graphID),
		RunID:       runID,
		CancelledBy: cancelledBy,
		Reason:      reason,
		DurationMs:  run.DurationMs,
	})

	e.logger.InfoContext(ctx, "Run cancelled", "run_id", runID, "cancelled_by", cancelledBy)

	return run, nil
}

// PauseRun requests a manual pause of a running run. The driver observes
// the waiting status at its next poll point, records the node it stopped
// in front of and snapshots progress for a later resume.
func (e *Engine) PauseRun(ctx context.Context, runID, reason string) (*models.Run, error) {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusRunning {
		return nil, fmt.Errorf("%w: status is %s", ErrRunNotPausable, run.Status)
	}

	if reason == "" {
		reason = "manual pause"
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusWaiting
	run.PausedAt = &now
	run.PauseReason = reason

	err = e.persistence.Runs().Update(ctx, run)
	if err != nil {
		return nil, err
	}

	err = e.state.SetStatus(ctx, runID, models.RunStatusWaiting)
	if err != nil && !errors.Is(err, state.ErrRunStateNotFound) {
		return nil, fmt.Errorf("failed to flag pause: %w", err)
	}

	e.notifier.Notify(ctx, runID, events.RunWaiting{
		BaseEvent:   events.NewBaseEvent(events.RunWaitingEvent, ""),
		RunID:       runID,
		PauseReason: reason,
	})

	e.logger.InfoContext(ctx, "Run pause requested", "run_id", runID, "reason", reason)

	return run, nil
}

// ResumeRun injects resume data for the waiting node and restarts the
// drive loop at that node.
func (e *Engine) ResumeRun(ctx context.Context, runID string, resumeData map[string]any, resumedBy string) (*models.Run, error) {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusWaiting || run.WaitingNodeID == "" {
		return nil, fmt.Errorf("%w: status is %s", ErrRunNotWaiting, run.Status)
	}

	waitingNodeID := run.WaitingNodeID

	var pauseDurationMs int64
	if run.PausedAt != nil {
		pauseDurationMs = time.Since(*run.PausedAt).Milliseconds()
	}

	if resumeData == nil {
		resumeData = map[string]any{}
	}

	err = e.state.SetResumeData(ctx, runID, waitingNodeID, resumeData)
	if err != nil {
		return nil, fmt.Errorf("failed to store resume data: %w", err)
	}

	run.Status = models.RunStatusRunning
	run.ClearPauseState()

	err = e.persistence.Runs().Update(ctx, run)
	if err != nil {
		return nil, err
	}

	err = e.state.SetStatus(ctx, runID, models.RunStatusRunning)
	if err != nil && !errors.Is(err, state.ErrRunStateNotFound) {
		return nil, fmt.Errorf("failed to update run state: %w", err)
	}

	e.notifier.Notify(ctx, runID, events.RunResumed{
		BaseEvent:       events.NewBaseEvent(events.RunResumedEvent, ""),
		RunID:           runID,
		ResumedNodeID:   waitingNodeID,
		ResumedBy:       resumedBy,
		PauseDurationMs: pauseDurationMs,
	})

	e.logger.InfoContext(ctx, "Run resumed",
		"run_id", runID, "node_id", waitingNodeID, "resumed_by", resumedBy)

	e.dispatch(func() {
		e.drive(context.WithoutCancel(ctx), runID, &resumePoint{nodeID: waitingNodeID})
	})

	return run, nil
}

// RetryRun starts a fresh run of the same graph version, linked to the
// failed or cancelled original through the retry lineage.
func (e *Engine) RetryRun(ctx context.Context, runID, triggeredBy string) (*models.Run, error) {
	original, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if !original.Status.IsRetryable() {
		return nil, fmt.Errorf("%w: status is %s", ErrRunNotRetryable, original.Status)
	}

	if original.RetryCount >= original.MaxRetries {
		return nil, fmt.Errorf("%w: %d of %d used", ErrRetryLimitReached, original.RetryCount, original.MaxRetries)
	}

	version, err := e.persistence.Graphs().VersionByID(ctx, original.GraphVersionID)
	if err != nil {
		return nil, err
	}

	retry := &models.Run{
		ID:             uuid.New().String(),
		GraphVersionID: original.GraphVersionID,
		Status:         models.RunStatusPending,
		TriggerInput:   original.TriggerInput,
		TriggerContext: original.TriggerContext,
		TriggerType:    models.TriggerTypeRetry,
		TriggeredBy:    triggeredBy,
		RetryOf:        original.ID,
		RetryCount:     original.RetryCount + 1,
		MaxRetries:     original.MaxRetries,
	}

	err = e.persistence.Runs().Create(ctx, retry)
	if err != nil {
		return nil, err
	}

	err = e.state.InitRun(ctx, retry.ID, version.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to init run state: %w", err)
	}

	e.logger.InfoContext(ctx, "Run retried",
		"run_id", retry.ID, "retry_of", original.ID, "retry_count", retry.RetryCount)

	retryID := retry.ID
	e.dispatch(func() {
		e.drive(context.WithoutCancel(ctx), retryID, nil)
	})

	return retry, nil
}

// GetRun returns the durable run record.
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	return e.persistence.Runs().ByID(ctx, runID)
}

// ListRuns returns a filtered page of runs.
func (e *Engine) ListRuns(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	return e.persistence.Runs().List(ctx, opts)
}

// NodeRuns returns the per-node records of a run.
func (e *Engine) NodeRuns(ctx context.Context, runID string) ([]*models.NodeRun, error) {
	return e.persistence.NodeRuns().ByRunID(ctx, runID)
}

// GetRunOutput returns the final output of a completed run from the fast
// store.
func (e *Engine) GetRunOutput(ctx context.Context, runID string) (map[string]any, error) {
	_, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	return e.state.GetRunOutput(ctx, runID)
}

// CleanupRunState removes the fast-store entries of a terminal run. The
// durable record is untouched; the fast store also expires entries on its
// own retention window.
func (e *Engine) CleanupRunState(ctx context.Context, runID string) error {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return err
	}

	if !run.Status.IsTerminal() {
		return fmt.Errorf("%w: status is %s", ErrRunNotFinished, run.Status)
	}

	return e.state.Cleanup(ctx, runID)
}

// NodeData pairs a node's latest execution record with its recorded output.
type NodeData struct {
	NodeRun *models.NodeRun `json:"node_run"`
	Output  map[string]any  `json:"output,omitempty"`
}

// GetNodeData returns the latest node run for one node plus its output.
func (e *Engine) GetNodeData(ctx context.Context, runID, nodeID string) (*NodeData, error) {
	nodeRun, err := e.persistence.NodeRuns().LatestByNodeID(ctx, runID, nodeID)
	if err != nil {
		return nil, err
	}

	output, err := e.state.NodeOutput(ctx, runID, nodeID)
	if err != nil {
		return nil, err
	}

	return &NodeData{NodeRun: nodeRun, Output: output}, nil
}

// sweepNodeRuns moves every non-terminal node run of a run to a terminal
// status. Records that never started are marked skipped; started ones get
// the given status.
func (e *Engine) sweepNodeRuns(ctx context.Context, runID string, status models.NodeRunStatus) error {
	nodeRuns, err := e.persistence.NodeRuns().ByRunID(ctx, runID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, nodeRun := range nodeRuns {
		switch nodeRun.Status {
		case models.NodeRunStatusPending:
			nodeRun.Status = models.NodeRunStatusSkipped
		case models.NodeRunStatusRunning, models.NodeRunStatusWaiting:
			nodeRun.Status = status
		default:
			continue
		}

		nodeRun.Finish(now)

		err = e.persistence.NodeRuns().Update(ctx, nodeRun)
		if err != nil {
			return err
		}
	}

	return nil
}
