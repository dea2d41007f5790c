// Package events defines the run lifecycle notifications published on the
// event bus. Notifications are observational; no engine decision depends on
// a subscriber seeing them.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "flowrun.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"
	RunWaitingEvent   EventType = "run.waiting"
	RunResumedEvent   EventType = "run.resumed"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"
	NodeWaitingEvent   EventType = "node.waiting"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	GraphID   string         `json:"graph_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	RunID        string         `json:"run_id"`
	GraphVersion string         `json:"graph_version"`
	TriggerType  string         `json:"trigger_type"`
	TriggerInput map[string]any `json:"trigger_input,omitempty"`
	TriggeredBy  string         `json:"triggered_by,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID         string         `json:"run_id"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	Output        map[string]any `json:"output,omitempty"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID          string         `json:"run_id"`
	FailedNodeID   string         `json:"failed_node_id,omitempty"`
	Error          string         `json:"error"`
	DurationMs     int64          `json:"duration_ms"`
	PartialOutputs map[string]any `json:"partial_outputs,omitempty"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	RunID       string `json:"run_id"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type RunWaiting struct {
	BaseEvent

	RunID           string         `json:"run_id"`
	WaitingNodeID   string         `json:"waiting_node_id"`
	PauseReason     string         `json:"pause_reason"`
	ResumeCondition map[string]any `json:"resume_condition,omitempty"`
}

func (e RunWaiting) GetType() EventType {
	return RunWaitingEvent
}

type RunResumed struct {
	BaseEvent

	RunID           string `json:"run_id"`
	ResumedNodeID   string `json:"resumed_node_id"`
	ResumedBy       string `json:"resumed_by,omitempty"`
	PauseDurationMs int64  `json:"pause_duration_ms"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type NodeStarted struct {
	BaseEvent

	RunID    string `json:"run_id"`
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	RunID      string         `json:"run_id"`
	NodeID     string         `json:"node_id"`
	DurationMs int64          `json:"duration_ms"`
	Output     map[string]any `json:"output,omitempty"`
	Pinned     bool           `json:"pinned,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	NodeID     string `json:"node_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
	Contained  bool   `json:"contained"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type NodeWaiting struct {
	BaseEvent

	RunID  string `json:"run_id"`
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

func (e NodeWaiting) GetType() EventType {
	return NodeWaitingEvent
}

func NewBaseEvent(eventType EventType, graphID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		GraphID:   graphID,
		Metadata:  make(map[string]any),
	}
}
