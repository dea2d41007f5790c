// Package lognode implements the log node handler, which writes a message
// to the run's logger and passes its input through.
package lognode

import (
	"context"

	"github.com/flowrun-io/flowrun/pkg/handler"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return "log"
}

func (h *Handler) Execute(_ context.Context, ec handler.ExecutionContext) (*handler.Result, error) {
	message, _ := ec.Config["message"].(string)
	if message == "" {
		message = "log node reached"
	}

	level, _ := ec.Config["level"].(string)

	logger := ec.Logger.With("node_id", ec.NodeID)

	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}

	output := ec.Input
	if output == nil {
		output = map[string]any{}
	}

	return &handler.Result{Success: true, Output: output}, nil
}
