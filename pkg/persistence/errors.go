// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrNodeRunNotFound indicates a node run was not found.
	ErrNodeRunNotFound = errors.New("node run not found")

	// ErrGraphVersionNotFound indicates a graph version was not found.
	ErrGraphVersionNotFound = errors.New("graph version not found")

	// ErrPublishedVersionNotFound indicates no published version exists for
	// the given graph.
	ErrPublishedVersionNotFound = errors.New("published graph version not found")

	// ErrRunAlreadyExists indicates a run with the same identifier already
	// exists.
	ErrRunAlreadyExists = errors.New("run already exists")

	// ErrInvalidRunStatus indicates an invalid run status was provided.
	ErrInvalidRunStatus = errors.New("invalid run status")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op      string // Operation being performed (e.g., "ByID", "Create", "Update")
	RunID   string // Run ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for run %s: %s (%v)", e.Op, e.RunID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// NodeRunError wraps node-run-related errors with additional context.
type NodeRunError struct {
	Op     string
	RunID  string
	NodeID string
	Err    error
}

func (e *NodeRunError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in run %s: %v", e.Op, e.NodeID, e.RunID, e.Err)
}

func (e *NodeRunError) Unwrap() error {
	return e.Err
}

func (e *NodeRunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// GraphError wraps graph-version-related errors with additional context.
type GraphError struct {
	Op        string
	GraphID   string
	VersionID string
	Err       error
}

func (e *GraphError) Error() string {
	target := e.VersionID
	if target == "" {
		target = "graph " + e.GraphID
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, target, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNodeRunNotFound checks if an error indicates a node run was not found.
func IsNodeRunNotFound(err error) bool {
	return errors.Is(err, ErrNodeRunNotFound)
}

// IsGraphVersionNotFound checks if an error indicates a graph version was
// not found.
func IsGraphVersionNotFound(err error) bool {
	return errors.Is(err, ErrGraphVersionNotFound)
}
