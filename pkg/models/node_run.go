package models

import "time"

// NodeRunStatus defines the possible states of a node execution within a run.
type NodeRunStatus string

const (
	NodeRunStatusPending   NodeRunStatus = "pending"
	NodeRunStatusRunning   NodeRunStatus = "running"
	NodeRunStatusWaiting   NodeRunStatus = "waiting"
	NodeRunStatusCompleted NodeRunStatus = "completed"
	NodeRunStatusFailed    NodeRunStatus = "failed"
	NodeRunStatusCancelled NodeRunStatus = "cancelled"
	NodeRunStatusSkipped   NodeRunStatus = "skipped"
)

// NodeRun records one node's execution within one run. Identity is the
// (RunID, NodeID) pair; records are never reused across runs.
type NodeRun struct {
	ID               string         `json:"id"`
	RunID            string         `json:"run_id"            validate:"required"`
	NodeID           string         `json:"node_id"           validate:"required"`
	ComponentName    string         `json:"component_name"`
	ComponentVersion string         `json:"component_version"`
	Status           NodeRunStatus  `json:"status"            validate:"required"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	DurationMs       int64          `json:"duration_ms"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ErrorStack       string         `json:"error_stack,omitempty"`
	RetryCount       int            `json:"retry_count"`
	WaitingFor       string         `json:"waiting_for,omitempty"`
	WaitingSince     *time.Time     `json:"waiting_since,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Finish stamps CompletedAt and DurationMs for a terminal transition.
func (n *NodeRun) Finish(at time.Time) {
	n.CompletedAt = &at
	if n.StartedAt != nil {
		n.DurationMs = at.Sub(*n.StartedAt).Milliseconds()
	}
}
