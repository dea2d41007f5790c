package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/flowrun-io/flowrun/pkg/dag"
	"github.com/flowrun-io/flowrun/pkg/events"
	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/state"
)

// lastErrorKey holds the most recent contained failure payload in the
// outputs map, where downstream expressions can reach it.
const lastErrorKey = "_lastError"

type resumePoint struct {
	nodeID string
}

// drive executes a run from its current position to a terminal or waiting
// state. It is the only goroutine writing this run's state while it holds
// the run.
func (e *Engine) drive(ctx context.Context, runID string, resume *resumePoint) {
	logger := e.logger.With("run_id", runID)

	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load run", "error", err)

		return
	}

	version, err := e.persistence.Graphs().VersionByID(ctx, run.GraphVersionID)
	if err != nil {
		e.failRun(ctx, run, "", "", "failed to load graph version: "+err.Error(), nil, 0)

		return
	}

	parsed := dag.Parse(version.Definition)
	if !parsed.Valid {
		e.failRun(ctx, run, version.GraphID, "", "graph definition is invalid: "+strings.Join(parsed.Errors, "; "), nil, 0)

		return
	}

	outputs := map[string]any{}
	activated := map[string]bool{}
	errorActivated := map[string]bool{}
	startIdx := 0

	var lastOutput map[string]any

	if resume == nil {
		now := time.Now().UTC()
		run.Status = models.RunStatusRunning
		run.StartedAt = &now

		err = e.persistence.Runs().Update(ctx, run)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark run running", "error", err)

			return
		}

		err = e.state.SetStatus(ctx, runID, models.RunStatusRunning)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to update run state", "error", err)
		}

		e.notifier.Notify(ctx, runID, events.RunStarted{
			BaseEvent:    events.NewBaseEvent(events.RunStartedEvent, version.GraphID),
			RunID:        runID,
			GraphVersion: version.Version,
			TriggerType:  run.TriggerType,
			TriggerInput: run.TriggerInput,
			TriggeredBy:  run.TriggeredBy,
		})
	} else {
		startIdx, lastOutput, err = e.restoreProgress(ctx, runID, parsed, version, resume, outputs, activated, errorActivated)
		if err != nil {
			e.failRun(ctx, run, version.GraphID, "", "failed to restore run progress: "+err.Error(), outputs, 0)

			return
		}
	}

	executedCount := 0

	for i := startIdx; i < len(parsed.ExecutionOrder); i++ {
		nodeID := parsed.ExecutionOrder[i]

		// Cancellation poll. CancelRun already finalized the durable
		// record and swept node runs; the driver just stops.
		status, err := e.state.GetStatus(ctx, runID)
		if err == nil && (status == models.RunStatusCancelled || status == models.RunStatusCancelling) {
			logger.InfoContext(ctx, "Run cancellation observed, stopping", "node_id", nodeID)

			return
		}

		// Missing state means the entries were cleaned up or expired. If
		// the durable record is already terminal the run was finalized
		// elsewhere and the driver must not keep executing.
		if errors.Is(err, state.ErrRunStateNotFound) {
			current, loadErr := e.persistence.Runs().ByID(ctx, runID)
			if loadErr == nil && current.Status.IsTerminal() {
				logger.InfoContext(ctx, "Run already finalized, stopping", "node_id", nodeID)

				return
			}
		}

		// An externally requested pause. Record the node the driver
		// stopped in front of and snapshot progress for the resume.
		if err == nil && status == models.RunStatusWaiting {
			e.observePause(ctx, runID, nodeID, outputs)

			return
		}

		node := version.Definition.NodeByID(nodeID)
		if node == nil {
			e.failRun(ctx, run, version.GraphID, nodeID, "execution order references unknown node "+nodeID, outputs, executedCount)

			return
		}

		// A node with dependencies runs only if some incoming edge was
		// activated by its source's outcome. Non-activated nodes leave no
		// node run record.
		if len(parsed.Dependencies[nodeID]) > 0 && !activated[nodeID] {
			continue
		}

		// Every node sees the trigger input with the most recent output
		// overlaid, so trigger fields survive upstream nodes that do not
		// forward them.
		input := make(map[string]any, len(run.TriggerInput)+len(lastOutput))
		for k, v := range run.TriggerInput {
			input[k] = v
		}

		for k, v := range lastOutput {
			input[k] = v
		}

		var resumeData map[string]any

		if resume != nil && nodeID == resume.nodeID {
			resumeData, err = e.state.GetResumeData(ctx, runID, nodeID)
			if err != nil {
				e.failRun(ctx, run, version.GraphID, nodeID, "failed to load resume data: "+err.Error(), outputs, executedCount)

				return
			}
		}

		outcome, err := e.executeNode(ctx, run, version, node, input, outputs, resumeData)
		if err != nil {
			e.failRun(ctx, run, version.GraphID, nodeID, err.Error(), outputs, executedCount)

			return
		}

		edges := dag.OutgoingEdgesByType(version.Definition, nodeID)

		switch outcome.kind {
		case outcomePaused:
			e.pauseRun(ctx, run, version.GraphID, nodeID, outcome, outputs)

			return

		case outcomeCompleted:
			outputs[nodeID] = outcome.output
			lastOutput = outcome.output
			executedCount++

			activateTargets(activated, edges.Success, edges.Always)

			if resumeData != nil {
				_ = e.state.ClearResumeData(ctx, runID, nodeID)
				_ = e.state.ClearNodeWaiting(ctx, runID, nodeID)
			}

		case outcomeFailed:
			if !edges.HasErrorPath() {
				// A failing node on an error route must not escalate into
				// a second failure; the node run is already recorded, the
				// run moves on.
				if errorActivated[nodeID] {
					logger.WarnContext(ctx, "Error path node failed, continuing",
						"node_id", nodeID, "error", outcome.errorMessage)

					continue
				}

				e.failRun(ctx, run, version.GraphID, nodeID, outcome.errorMessage, outputs, executedCount)

				return
			}

			errorPayload := map[string]any{
				"error":        true,
				"errorMessage": outcome.errorMessage,
				"errorType":    node.Type,
				"failedNodeId": nodeID,
			}

			outputs[nodeID] = errorPayload
			outputs[lastErrorKey] = errorPayload
			lastOutput = errorPayload
			executedCount++

			activateTargets(activated, edges.Error, edges.Always)
			activateTargets(errorActivated, edges.Error, edges.Always)

			logger.WarnContext(ctx, "Node failure contained by error path",
				"node_id", nodeID, "error", outcome.errorMessage)
		}
	}

	e.completeRun(ctx, run, version.GraphID, parsed, outputs, executedCount)
}

// restoreProgress rebuilds the in-memory execution state after a pause.
func (e *Engine) restoreProgress(
	ctx context.Context,
	runID string,
	parsed *dag.ParseResult,
	version *models.GraphVersion,
	resume *resumePoint,
	outputs map[string]any,
	activated map[string]bool,
	errorActivated map[string]bool,
) (int, map[string]any, error) {
	partial, err := e.state.PartialOutputs(ctx, runID)
	if err != nil {
		return 0, nil, err
	}

	for nodeID, output := range partial {
		outputs[nodeID] = output
	}

	completed, err := e.state.CompletedNodes(ctx, runID)
	if err != nil {
		return 0, nil, err
	}

	startIdx := 0

	var lastOutput map[string]any

	for i, nodeID := range parsed.ExecutionOrder {
		if nodeID == resume.nodeID {
			startIdx = i

			break
		}

		edges := dag.OutgoingEdgesByType(version.Definition, nodeID)

		if completed[nodeID] {
			activateTargets(activated, edges.Success, edges.Always)

			if output, ok := outputs[nodeID].(map[string]any); ok {
				lastOutput = output
			}

			continue
		}

		// A prior contained failure left an error payload as this node's
		// output; reactivate its error path.
		if payload, ok := outputs[nodeID].(map[string]any); ok {
			if isError, _ := payload["error"].(bool); isError {
				activateTargets(activated, edges.Error, edges.Always)
				activateTargets(errorActivated, edges.Error, edges.Always)

				lastOutput = payload
			}
		}
	}

	return startIdx, lastOutput, nil
}

func activateTargets(activated map[string]bool, edgeSets ...[]*models.GraphEdge) {
	for _, set := range edgeSets {
		for _, edge := range set {
			activated[edge.Target] = true
		}
	}
}

// observePause finalizes a manual pause from the driver's side: PauseRun
// already set the waiting status, the driver knows where it stopped.
func (e *Engine) observePause(ctx context.Context, runID, nodeID string, outputs map[string]any) {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err == nil && run.Status == models.RunStatusWaiting {
		run.WaitingNodeID = nodeID

		err = e.persistence.Runs().Update(ctx, run)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to record pause position", "run_id", runID, "error", err)
		}
	}

	err = e.state.SetPartialOutputs(ctx, runID, outputs)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to snapshot partial outputs", "run_id", runID, "error", err)
	}

	e.logger.InfoContext(ctx, "Run pause observed, stopping", "run_id", runID, "node_id", nodeID)
}

// pauseRun persists the waiting state and snapshots outputs so a later
// resume can restore them.
func (e *Engine) pauseRun(ctx context.Context, run *models.Run, graphID, nodeID string, outcome nodeOutcome, outputs map[string]any) {
	now := time.Now().UTC()

	run.Status = models.RunStatusWaiting
	run.PausedAt = &now
	run.WaitingNodeID = nodeID
	run.PauseReason = outcome.pauseReason
	run.ResumeCondition = outcome.resumeCondition

	err := e.persistence.Runs().Update(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist pause state", "run_id", run.ID, "error", err)
	}

	err = e.state.SetPartialOutputs(ctx, run.ID, outputs)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to snapshot partial outputs", "run_id", run.ID, "error", err)
	}

	err = e.state.SetStatus(ctx, run.ID, models.RunStatusWaiting)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to update run state", "run_id", run.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.RunWaiting{
		BaseEvent:       events.NewBaseEvent(events.RunWaitingEvent, graphID),
		RunID:           run.ID,
		WaitingNodeID:   nodeID,
		PauseReason:     outcome.pauseReason,
		ResumeCondition: outcome.resumeCondition,
	})

	e.logger.InfoContext(ctx, "Run paused",
		"run_id", run.ID, "node_id", nodeID, "reason", outcome.pauseReason)
}

// completeRun finalizes a successful run. The run output is the collected
// output of the graph's exit points.
func (e *Engine) completeRun(ctx context.Context, run *models.Run, graphID string, parsed *dag.ParseResult, outputs map[string]any, executedCount int) {
	finalOutput := map[string]any{}

	for _, nodeID := range parsed.ExitPoints {
		if output, ok := outputs[nodeID]; ok {
			finalOutput[nodeID] = output
		}
	}

	err := e.state.SetRunOutput(ctx, run.ID, finalOutput)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to store run output", "run_id", run.ID, "error", err)
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.ClearPauseState()
	run.Finish(now)

	err = e.persistence.Runs().Update(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to finalize run", "run_id", run.ID, "error", err)

		return
	}

	err = e.state.SetStatus(ctx, run.ID, models.RunStatusCompleted)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to update run state", "run_id", run.ID, "error", err)
	}

	e.notifier.Notify(ctx, run.ID, events.RunCompleted{
		BaseEvent:     events.NewBaseEvent(events.RunCompletedEvent, graphID),
		RunID:         run.ID,
		DurationMs:    run.DurationMs,
		NodesExecuted: executedCount,
		Output:        finalOutput,
	})

	e.logger.InfoContext(ctx, "Run completed",
		"run_id", run.ID, "duration_ms", run.DurationMs, "nodes_executed", executedCount)
}

// failRun finalizes a failed run with its partial outputs preserved for
// inspection.
func (e *Engine) failRun(ctx context.Context, run *models.Run, graphID, failedNodeID, errorMessage string, outputs map[string]any, executedCount int) {
	now := time.Now().UTC()

	run.Status = models.RunStatusFailed
	run.ErrorMessage = errorMessage
	run.ClearPauseState()
	run.Finish(now)

	err := e.persistence.Runs().Update(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to finalize failed run", "run_id", run.ID, "error", err)
	}

	err = e.state.SetStatus(ctx, run.ID, models.RunStatusFailed)
	if err != nil && !errors.Is(err, state.ErrRunStateNotFound) {
		e.logger.ErrorContext(ctx, "Failed to update run state", "run_id", run.ID, "error", err)
	}

	if len(outputs) > 0 {
		err = e.state.SetPartialOutputs(ctx, run.ID, outputs)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to snapshot partial outputs", "run_id", run.ID, "error", err)
		}
	}

	e.notifier.Notify(ctx, run.ID, events.RunFailed{
		BaseEvent:      events.NewBaseEvent(events.RunFailedEvent, graphID),
		RunID:          run.ID,
		FailedNodeID:   failedNodeID,
		Error:          errorMessage,
		DurationMs:     run.DurationMs,
		PartialOutputs: outputs,
	})

	e.logger.ErrorContext(ctx, "Run failed",
		"run_id", run.ID, "node_id", failedNodeID, "error", errorMessage, "nodes_executed", executedCount)
}
