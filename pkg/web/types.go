// Package web provides the HTTP surface for run management.
package web

import (
	"github.com/flowrun-io/flowrun/pkg/models"
)

// CreateRunRequest represents the request body for starting a new run.
type CreateRunRequest struct {
	GraphVersionID string         `json:"graph_version_id" validate:"required"`
	TriggerInput   map[string]any `json:"trigger_input"`
	TriggerContext map[string]any `json:"trigger_context"`
	TriggerType    string         `json:"trigger_type"     validate:"omitempty,oneof=manual retry webhook schedule"`
	TriggeredBy    string         `json:"triggered_by"     validate:"required"`
}

// CancelRunRequest represents the request body for cancelling a run.
type CancelRunRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason"`
}

// PauseRunRequest represents the request body for manually pausing a run.
type PauseRunRequest struct {
	Reason string `json:"reason"`
}

// ResumeRunRequest represents the request body for resuming a waiting run.
type ResumeRunRequest struct {
	ResumedBy  string         `json:"resumed_by" validate:"required"`
	ResumeData map[string]any `json:"resume_data"`
}

// RetryRunRequest represents the request body for retrying a failed or
// cancelled run.
type RetryRunRequest struct {
	TriggeredBy string `json:"triggered_by" validate:"required"`
}

// ListRunsResponse is one page of runs plus pagination metadata.
type ListRunsResponse struct {
	Runs   []*models.Run `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
