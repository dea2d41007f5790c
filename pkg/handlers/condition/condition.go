// Package condition implements the branching node handler.
package condition

import (
	"context"
	"fmt"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "condition"
}

// Execute reads the pre-evaluated "expression" config value and reports it
// as a boolean result. Expression rendering happens before dispatch, so by
// the time the handler runs the value is already a concrete type.
func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	raw, ok := ec.Config["expression"]
	if !ok {
		return &handler.Result{
			Success:      false,
			ErrorMessage: "condition node requires an 'expression' config value",
		}, nil
	}

	result, err := toBool(raw)
	if err != nil {
		return &handler.Result{
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	return &handler.Result{
		Success: true,
		Output:  map[string]any{"result": result},
	}, nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true", nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("condition expression evaluated to non-boolean type %T", value)
	}
}
