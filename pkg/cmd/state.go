package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/flowrun-io/flowrun/pkg/state"
)

// NewStateStore selects the fast run-state store. A redis:// or rediss://
// URL gets the Redis store; an empty URL falls back to the in-memory store,
// which is only safe for a single process.
func NewStateStore(ctx context.Context, logger *slog.Logger, redisURL string) (state.Store, error) {
	if redisURL == "" {
		logger.Warn("No REDIS_URL configured, using in-memory run state")

		return state.NewMemoryStore(), nil
	}

	if !strings.HasPrefix(redisURL, "redis://") && !strings.HasPrefix(redisURL, "rediss://") {
		return nil, fmt.Errorf("unsupported state store url: %s", redisURL)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	store, err := state.NewRedisStore(ctx, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return store, nil
}
