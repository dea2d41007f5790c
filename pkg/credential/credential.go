// Package credential resolves credential references found in node
// configuration. Secret material never enters run state or node outputs;
// handlers receive it only for the duration of one invocation.
package credential

import (
	"context"
	"fmt"
	"sync"
)

// Resolver resolves a credential id to its secret material.
type Resolver interface {
	Resolve(ctx context.Context, credentialID string) (map[string]string, error)
}

// StaticResolver serves credentials from an in-process map. It backs
// single-node deployments and tests; production setups plug in their own
// Resolver.
type StaticResolver struct {
	mu          sync.RWMutex
	credentials map[string]map[string]string
}

// NewStaticResolver creates a resolver over a fixed credential set.
func NewStaticResolver(credentials map[string]map[string]string) *StaticResolver {
	if credentials == nil {
		credentials = make(map[string]map[string]string)
	}

	return &StaticResolver{credentials: credentials}
}

func (r *StaticResolver) Resolve(_ context.Context, credentialID string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	secret, ok := r.credentials[credentialID]
	if !ok {
		return nil, fmt.Errorf("credential not found: %s", credentialID)
	}

	// Copy so handlers cannot mutate the stored secret.
	out := make(map[string]string, len(secret))
	for k, v := range secret {
		out[k] = v
	}

	return out, nil
}

// Set adds or replaces a credential.
func (r *StaticResolver) Set(credentialID string, secret map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentials[credentialID] = secret
}
