// Package wait implements the wait node handler. A wait node parks the run
// until an external resume arrives; short in-process delays are served
// inline.
package wait

import (
	"context"
	"time"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

// maxInlineDelay bounds how long a wait node may block the coordinator
// goroutine. Longer waits pause the run instead.
const maxInlineDelay = 5 * time.Second

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "wait"
}

func (h *Handler) Execute(ctx context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	// Re-invocation after a resume completes the node.
	if ec.ResumeData != nil {
		output := map[string]any{"resumed": true}
		for k, v := range ec.ResumeData {
			output[k] = v
		}

		return &handler.Result{Success: true, Output: output}, nil
	}

	delay := delayFromConfig(ec.Config)

	if delay > 0 && delay <= maxInlineDelay {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		return &handler.Result{
			Success: true,
			Output:  map[string]any{"waited_ms": delay.Milliseconds()},
		}, nil
	}

	reason := "timer"
	if delay == 0 {
		reason = "manual resume"
	}

	return &handler.Result{
		Success:        true,
		PauseRequested: true,
		PauseReason:    reason,
		ResumeCondition: map[string]any{
			"type":     reason,
			"delay_ms": delay.Milliseconds(),
		},
	}, nil
}

func delayFromConfig(config map[string]any) time.Duration {
	raw, ok := config["duration_ms"]
	if !ok {
		return 0
	}

	switch v := raw.(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	default:
		return 0
	}
}
