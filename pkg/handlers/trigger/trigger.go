// Package trigger implements the entry node handler. It passes the run's
// trigger input downstream unchanged.
package trigger

import (
	"context"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "trigger"
}

func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	output := ec.Input
	if output == nil {
		output = map[string]any{}
	}

	return &handler.Result{Success: true, Output: output}, nil
}
