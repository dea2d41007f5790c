package engine

import (
	"context"
	"log/slog"

	"github.com/flowrun-io/flowrun/pkg/eventbus"
)

// Notifier publishes run lifecycle events. Publishing is best-effort: a
// broker failure is logged and never fails the run.
type Notifier struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewNotifier creates a notifier over the given publisher. A nil publisher
// disables notifications.
func NewNotifier(publisher eventbus.EventPublisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger.With("module", "notifier"),
	}
}

func (n *Notifier) Notify(ctx context.Context, key string, event eventbus.Event) {
	if n.publisher == nil {
		return
	}

	err := n.publisher.Publish(ctx, key, event)
	if err != nil {
		n.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}
