package connect

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory connects a validated Connection and returns its Account.
type Factory func(ctx context.Context, conn *Connection) (*Account, error)

// Registry maps provider IDs to backend factories
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderID]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ProviderID]Factory)}
}

// Register installs factory for provider, replacing any previous one
func (r *Registry) Register(provider ProviderID, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Resolve returns the factory for conn.Provider(). It has no side effects.
func (r *Registry) Resolve(conn *Connection) (Factory, error) {
	if conn == nil {
		return nil, invalidf("", "connection is required")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[conn.provider]
	if !ok || f == nil {
		return nil, newError(KindUnsupported, conn.provider, "resolve", fmt.Errorf("no backend registered for %q", conn.provider))
	}
	return f, nil
}

// Providers returns the registered provider IDs, sorted
func (r *Registry) Providers() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ProviderID, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
