package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowrun-io/flowrun/pkg/dag"
	"github.com/flowrun-io/flowrun/pkg/events"
	"github.com/flowrun-io/flowrun/pkg/expression"
	"github.com/flowrun-io/flowrun/pkg/handler"
	"github.com/flowrun-io/flowrun/pkg/models"
)

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeFailed
	outcomePaused
)

type nodeOutcome struct {
	kind            outcomeKind
	output          map[string]any
	errorMessage    string
	pauseReason     string
	resumeCondition map[string]any
}

func newID() string {
	return uuid.New().String()
}

// executeNode runs one node to a completed, failed or waiting record. The
// error return is reserved for infrastructure problems; domain failures
// come back as a failed outcome.
func (e *Engine) executeNode(
	ctx context.Context,
	run *models.Run,
	version *models.GraphVersion,
	node *models.GraphNode,
	input map[string]any,
	outputs map[string]any,
	resumeData map[string]any,
) (nodeOutcome, error) {
	// A pinned sample output bypasses the handler entirely.
	if pinned, ok := version.PinnedOutputs[node.ID]; ok {
		return e.completePinnedNode(ctx, run, version, node, pinned)
	}

	canonicalType := handler.NormalizeType(node.Type)

	nodeRun, err := e.startNodeRun(ctx, run, node, canonicalType, resumeData != nil)
	if err != nil {
		return nodeOutcome{}, fmt.Errorf("failed to record node start: %w", err)
	}

	err = e.state.MarkNodeStarted(ctx, run.ID, node.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to mark node started", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, version.GraphID),
		RunID:     run.ID,
		NodeID:    node.ID,
		NodeType:  node.Type,
	})

	scope := expression.Scope{
		RunID:   run.ID,
		GraphID: version.GraphID,
		Input:   input,
		Outputs: outputs,
		Global:  run.TriggerContext,
		Trigger: run.TriggerInput,
	}

	config, err := expression.EvaluateConfig(node.Config, scope)
	if err != nil {
		return e.failNodeRun(ctx, run, version, node, nodeRun, "config evaluation failed: "+err.Error()), nil
	}

	h, err := e.registry.GetHandler(node.Type)
	if err != nil {
		failErr := e.markNodeRunFailed(ctx, run, version, node, nodeRun, err.Error())
		if failErr != nil {
			e.logger.WarnContext(ctx, "Failed to record node failure", "run_id", run.ID, "node_id", node.ID, "error", failErr)
		}

		return nodeOutcome{}, err
	}

	result, err := h.Execute(ctx, handler.ExecutionContext{
		RunID:        run.ID,
		NodeID:       node.ID,
		NodeType:     canonicalType,
		GraphID:      version.GraphID,
		GraphVersion: version.Version,
		UserID:       run.TriggeredBy,
		Config:       config,
		Input:        input,
		Global:       run.TriggerContext,
		Outputs:      outputs,
		ResumeData:   resumeData,
		Credentials:  e.credentials,
		Logger:       e.logger.With("run_id", run.ID, "node_id", node.ID),
	})
	if err != nil {
		failErr := e.markNodeRunFailed(ctx, run, version, node, nodeRun, err.Error())
		if failErr != nil {
			e.logger.WarnContext(ctx, "Failed to record node failure", "run_id", run.ID, "node_id", node.ID, "error", failErr)
		}

		return nodeOutcome{}, fmt.Errorf("handler for node %s failed: %w", node.ID, err)
	}

	if result.PauseRequested {
		return e.pauseNodeRun(ctx, run, version, node, nodeRun, result)
	}

	if !result.Success {
		return e.failNodeRun(ctx, run, version, node, nodeRun, result.ErrorMessage), nil
	}

	output := result.Output
	if output == nil {
		output = map[string]any{}
	}

	now := time.Now().UTC()
	nodeRun.Status = models.NodeRunStatusCompleted
	nodeRun.WaitingFor = ""
	nodeRun.WaitingSince = nil
	nodeRun.Finish(now)

	err = e.persistence.NodeRuns().Update(ctx, nodeRun)
	if err != nil {
		return nodeOutcome{}, fmt.Errorf("failed to record node completion: %w", err)
	}

	err = e.state.MarkNodeCompleted(ctx, run.ID, node.ID, output)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to mark node completed", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.NodeCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeCompletedEvent, version.GraphID),
		RunID:      run.ID,
		NodeID:     node.ID,
		DurationMs: nodeRun.DurationMs,
		Output:     output,
	})

	return nodeOutcome{kind: outcomeCompleted, output: output}, nil
}

// startNodeRun creates a running node run record, or reactivates the
// waiting record when the node is re-invoked after a resume.
func (e *Engine) startNodeRun(ctx context.Context, run *models.Run, node *models.GraphNode, canonicalType string, resuming bool) (*models.NodeRun, error) {
	now := time.Now().UTC()

	if resuming {
		existing, err := e.persistence.NodeRuns().LatestByNodeID(ctx, run.ID, node.ID)
		if err == nil && existing.Status == models.NodeRunStatusWaiting {
			existing.Status = models.NodeRunStatusRunning

			err = e.persistence.NodeRuns().Update(ctx, existing)
			if err != nil {
				return nil, err
			}

			return existing, nil
		}
	}

	nodeRun := &models.NodeRun{
		ID:            newID(),
		RunID:         run.ID,
		NodeID:        node.ID,
		ComponentName: canonicalType,
		Status:        models.NodeRunStatusRunning,
		StartedAt:     &now,
	}

	err := e.persistence.NodeRuns().Create(ctx, nodeRun)
	if err != nil {
		return nil, err
	}

	return nodeRun, nil
}

// completePinnedNode synthesizes a completed node run from a pinned sample
// output without invoking the handler.
func (e *Engine) completePinnedNode(ctx context.Context, run *models.Run, version *models.GraphVersion, node *models.GraphNode, pinned any) (nodeOutcome, error) {
	output, ok := pinned.(map[string]any)
	if !ok {
		output = map[string]any{"value": pinned}
	}

	now := time.Now().UTC()
	nodeRun := &models.NodeRun{
		ID:            newID(),
		RunID:         run.ID,
		NodeID:        node.ID,
		ComponentName: handler.NormalizeType(node.Type),
		Status:        models.NodeRunStatusCompleted,
		StartedAt:     &now,
		CompletedAt:   &now,
		Metadata:      map[string]any{"pinned": true},
	}

	err := e.persistence.NodeRuns().Create(ctx, nodeRun)
	if err != nil {
		return nodeOutcome{}, fmt.Errorf("failed to record pinned node run: %w", err)
	}

	err = e.state.MarkNodeCompleted(ctx, run.ID, node.ID, output)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to mark node completed", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.NodeCompleted{
		BaseEvent: events.NewBaseEvent(events.NodeCompletedEvent, version.GraphID),
		RunID:     run.ID,
		NodeID:    node.ID,
		Output:    output,
		Pinned:    true,
	})

	e.logger.InfoContext(ctx, "Node served from pinned output", "run_id", run.ID, "node_id", node.ID)

	return nodeOutcome{kind: outcomeCompleted, output: output}, nil
}

// pauseNodeRun moves the node run to waiting.
func (e *Engine) pauseNodeRun(ctx context.Context, run *models.Run, version *models.GraphVersion, node *models.GraphNode, nodeRun *models.NodeRun, result *handler.Result) (nodeOutcome, error) {
	now := time.Now().UTC()

	nodeRun.Status = models.NodeRunStatusWaiting
	nodeRun.WaitingFor = result.PauseReason
	nodeRun.WaitingSince = &now

	err := e.persistence.NodeRuns().Update(ctx, nodeRun)
	if err != nil {
		return nodeOutcome{}, fmt.Errorf("failed to record node waiting: %w", err)
	}

	err = e.state.MarkNodeWaiting(ctx, run.ID, node.ID, result.PauseReason)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to mark node waiting", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.NodeWaiting{
		BaseEvent: events.NewBaseEvent(events.NodeWaitingEvent, version.GraphID),
		RunID:     run.ID,
		NodeID:    node.ID,
		Reason:    result.PauseReason,
	})

	return nodeOutcome{
		kind:            outcomePaused,
		pauseReason:     result.PauseReason,
		resumeCondition: result.ResumeCondition,
	}, nil
}

// failNodeRun records a domain failure and returns the failed outcome. The
// drive loop decides whether an error path contains it.
func (e *Engine) failNodeRun(ctx context.Context, run *models.Run, version *models.GraphVersion, node *models.GraphNode, nodeRun *models.NodeRun, errorMessage string) nodeOutcome {
	err := e.markNodeRunFailed(ctx, run, version, node, nodeRun, errorMessage)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to record node failure", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	return nodeOutcome{kind: outcomeFailed, errorMessage: errorMessage}
}

func (e *Engine) markNodeRunFailed(ctx context.Context, run *models.Run, version *models.GraphVersion, node *models.GraphNode, nodeRun *models.NodeRun, errorMessage string) error {
	now := time.Now().UTC()

	nodeRun.Status = models.NodeRunStatusFailed
	nodeRun.ErrorMessage = errorMessage
	nodeRun.Finish(now)

	err := e.persistence.NodeRuns().Update(ctx, nodeRun)
	if err != nil {
		return err
	}

	err = e.state.MarkNodeFailed(ctx, run.ID, node.ID, errorMessage)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to mark node failed", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	contained := dag.OutgoingEdgesByType(version.Definition, node.ID).HasErrorPath()

	e.notifier.Notify(ctx, run.ID, events.NodeFailed{
		BaseEvent:  events.NewBaseEvent(events.NodeFailedEvent, version.GraphID),
		RunID:      run.ID,
		NodeID:     node.ID,
		Error:      errorMessage,
		DurationMs: nodeRun.DurationMs,
		Contained:  contained,
	})

	return nil
}
