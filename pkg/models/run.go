// Package models defines the core domain models for graph run execution.
package models

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusWaiting    RunStatus = "waiting"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelling RunStatus = "cancelling"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// IsCancellable reports whether a cancel request is accepted in this state.
func (s RunStatus) IsCancellable() bool {
	return s == RunStatusPending || s == RunStatusRunning || s == RunStatusWaiting
}

// IsRetryable reports whether a run in this state may be retried.
func (s RunStatus) IsRetryable() bool {
	return s == RunStatusFailed || s == RunStatusCancelled
}

// TriggerType identifies how a run was started.
const (
	TriggerTypeManual = "manual"
	TriggerTypeRetry  = "retry"
)

// DefaultMaxRetries bounds the retry lineage of a run.
const DefaultMaxRetries = 3

// Run represents one execution instance of a graph version.
//
// Pause fields are set only while Status is "waiting"; cancel fields only
// once a cancel request has been accepted.
type Run struct {
	ID             string         `json:"id"`
	GraphVersionID string         `json:"graph_version_id" validate:"required"`
	Status         RunStatus      `json:"status"           validate:"required"`
	TriggerInput   map[string]any `json:"trigger_input,omitempty"`
	TriggerContext map[string]any `json:"trigger_context,omitempty"`
	TriggerType    string         `json:"trigger_type"`
	TriggeredBy    string         `json:"triggered_by"     validate:"required"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// Pause state, populated while waiting for external input.
	PausedAt        *time.Time     `json:"paused_at,omitempty"`
	WaitingNodeID   string         `json:"waiting_node_id,omitempty"`
	PauseReason     string         `json:"pause_reason,omitempty"`
	ResumeCondition map[string]any `json:"resume_condition,omitempty"`

	// Retry lineage.
	RetryOf    string `json:"retry_of,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	// Cancellation record.
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClearPauseState resets all pause fields, used when transitioning back to running.
func (r *Run) ClearPauseState() {
	r.PausedAt = nil
	r.WaitingNodeID = ""
	r.PauseReason = ""
	r.ResumeCondition = nil
}

// Finish stamps CompletedAt and DurationMs for a terminal transition.
func (r *Run) Finish(at time.Time) {
	r.CompletedAt = &at
	if r.StartedAt != nil {
		r.DurationMs = at.Sub(*r.StartedAt).Milliseconds()
	}
}
