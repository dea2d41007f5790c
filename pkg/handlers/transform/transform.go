// Package transform implements the data mapping node handler.
package transform

import (
	"context"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "transform"
}

// Execute returns the node's "mapping" config as output. The mapping values
// are templated against prior outputs and rendered before dispatch, so here
// they are already concrete.
func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	mapping, ok := ec.Config["mapping"].(map[string]any)
	if !ok {
		return &handler.Result{
			Success:      false,
			ErrorMessage: "transform node requires a 'mapping' config object",
		}, nil
	}

	return &handler.Result{Success: true, Output: mapping}, nil
}
