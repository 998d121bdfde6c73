// Package agents implements the registry port: an in-memory registry of
// agents plus a NATS-backed remote agent that dispatches work to out-of-process
// workers and waits for the correlated result.
package agents

import (
	"fmt"
	"sort"
	"sync"

	"github.com/crucible-dev/crucible/internal/domain"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/port/registry"
)

// Registry is a mutex-guarded in-memory implementation of registry.Registry.
type Registry struct {
	mu     sync.RWMutex
	agents map[agent.Type]registry.Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[agent.Type]registry.Agent)}
}

// Register adds an agent. Registering the same type twice is a
// programming error.
func (r *Registry) Register(a registry.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Type()]; exists {
		return fmt.Errorf("agent %s already registered", a.Type())
	}
	r.agents[a.Type()] = a
	return nil
}

// Get returns the agent for the given type.
func (r *Registry) Get(agentType agent.Type) (registry.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentType]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentType, domain.ErrNotFound)
	}
	return a, nil
}

// List returns every registered agent sorted by type.
func (r *Registry) List() []registry.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]registry.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Type() < all[j].Type() })
	return all
}
