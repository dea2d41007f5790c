// Package approval implements the manual approval node handler. The first
// invocation parks the run; the resume re-invocation records the decision.
package approval

import (
	"context"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "approval"
}

func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	if ec.ResumeData != nil {
		approved, _ := ec.ResumeData["approved"].(bool)

		output := map[string]any{"approved": approved}
		if comment, ok := ec.ResumeData["comment"]; ok {
			output["comment"] = comment
		}

		if approver, ok := ec.ResumeData["approved_by"]; ok {
			output["approved_by"] = approver
		}

		if !approved {
			return &handler.Result{
				Success:      false,
				Output:       output,
				ErrorMessage: "approval was rejected",
			}, nil
		}

		return &handler.Result{Success: true, Output: output}, nil
	}

	condition := map[string]any{"type": "approval"}
	if approvers, ok := ec.Config["approvers"]; ok {
		condition["approvers"] = approvers
	}

	return &handler.Result{
		Success:         true,
		PauseRequested:  true,
		PauseReason:     "manual approval",
		ResumeCondition: condition,
	}, nil
}
