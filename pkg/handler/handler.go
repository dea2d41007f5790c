// Package handler defines the node handler contract. A handler executes one
// node type; the run coordinator resolves handlers through the Registry and
// never depends on concrete implementations.
package handler

import (
	"context"
	"log/slog"
)

// ExecutionContext carries everything a handler may need for one node
// invocation. Outputs holds prior node results keyed by node id; Input is
// the coordinator's pick for the node's primary input.
type ExecutionContext struct {
	RunID        string
	NodeID       string
	NodeType     string
	GraphID      string
	GraphVersion string
	UserID       string

	// Config is the node's configuration after expression evaluation.
	Config map[string]any

	// Input is the run's trigger input with the most recent upstream
	// output overlaid. Entry nodes see the trigger input alone.
	Input map[string]any

	// Global is the run-scoped context shared by every node.
	Global map[string]any

	// Outputs maps node id to that node's recorded output.
	Outputs map[string]any

	// ResumeData is non-nil only when the node is re-invoked after a pause
	// was resolved.
	ResumeData map[string]any

	// Credentials resolves credential references from node config.
	Credentials CredentialResolver

	Logger *slog.Logger
}

// CredentialResolver resolves a credential id to its secret material.
type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID string) (map[string]string, error)
}

// Result is the outcome of one handler invocation. A handler reports domain
// failure through Success=false and ErrorMessage; the error return is
// reserved for infrastructure problems.
type Result struct {
	Success bool
	Output  map[string]any

	// PauseRequested asks the coordinator to park the run at this node.
	PauseRequested  bool
	PauseReason     string
	ResumeCondition map[string]any

	ErrorMessage string
}

// Handler executes one node type.
type Handler interface {
	// Type returns the canonical node type this handler serves.
	Type() string

	Execute(ctx context.Context, ec ExecutionContext) (*Result, error)
}
