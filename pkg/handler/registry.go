package handler

import (
	"fmt"
	"log/slog"
	"sync"
)

// FallbackType is the handler used when no handler is registered for a
// node's canonical type. Runs keep going on unknown types instead of
// failing at dispatch.
const FallbackType = "action"

// Registry holds the node handlers available to the run coordinator.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("module", "handler_registry"),
	}
}

// Register adds a handler under its canonical type, replacing any previous
// registration for that type.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Type()]; exists {
		r.logger.Warn("Replacing registered handler", "type", h.Type())
	}

	r.handlers[h.Type()] = h
}

// HasHandler reports whether a handler is registered for the node type
// after alias normalization.
func (r *Registry) HasHandler(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[NormalizeType(nodeType)]

	return ok
}

// GetHandler resolves the handler for a node type. Types without a
// registration fall back to the generic action handler; an error means not
// even the fallback is registered.
func (r *Registry) GetHandler(nodeType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical := NormalizeType(nodeType)

	if h, ok := r.handlers[canonical]; ok {
		return h, nil
	}

	if h, ok := r.handlers[FallbackType]; ok {
		r.logger.Debug("No handler for node type, using fallback", "type", nodeType, "canonical", canonical)

		return h, nil
	}

	return nil, fmt.Errorf("no handler registered for node type %q and no fallback available", nodeType)
}

// Types returns the registered canonical handler types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	return types
}
