// Package action implements the generic action handler. It is also the
// registry fallback for node types nothing else serves, so unknown types
// degrade to a passthrough instead of failing the run.
package action

import (
	"context"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return handler.FallbackType
}

func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	output := map[string]any{}

	for k, v := range ec.Input {
		output[k] = v
	}

	// Config keys overlay the input so a node can inject static fields.
	for k, v := range ec.Config {
		output[k] = v
	}

	return &handler.Result{Success: true, Output: output}, nil
}
