package cmd

import (
	"log/slog"

	"github.com/flowrun-io/flowrun/pkg/handler"
	"github.com/flowrun-io/flowrun/pkg/handlers/action"
	"github.com/flowrun-io/flowrun/pkg/handlers/approval"
	"github.com/flowrun-io/flowrun/pkg/handlers/condition"
	"github.com/flowrun-io/flowrun/pkg/handlers/httprequest"
	"github.com/flowrun-io/flowrun/pkg/handlers/lognode"
	"github.com/flowrun-io/flowrun/pkg/handlers/transform"
	"github.com/flowrun-io/flowrun/pkg/handlers/trigger"
	"github.com/flowrun-io/flowrun/pkg/handlers/wait"
)

// NewRegistry creates a handler registry with all native node handlers
// registered.
func NewRegistry(logger *slog.Logger) *handler.Registry {
	reg := handler.NewRegistry(logger)

	reg.Register(trigger.NewHandler())
	reg.Register(action.NewHandler())
	reg.Register(condition.NewHandler())
	reg.Register(httprequest.NewHandler())
	reg.Register(transform.NewHandler())
	reg.Register(lognode.NewHandler())
	reg.Register(wait.NewHandler())
	reg.Register(approval.NewHandler())

	return reg
}
