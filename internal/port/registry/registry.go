// Package registry defines the agent registry port (interface).
package registry

import (
	"context"

	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/task"
)

// Agent is the port interface for one executable agent.
type Agent interface {
	// Type returns the agent's role identifier.
	Type() agent.Type

	// Description returns a short human-readable summary of the agent's role.
	Description() string

	// IsAvailable reports whether the agent can accept work right now.
	IsAvailable() bool

	// Status returns the agent's current lifecycle status.
	Status() agent.Status

	// Run executes one task to completion. The credential is the API key
	// forwarded to whatever model backend the agent talks to.
	Run(ctx context.Context, t *task.Task, credential string) (*task.Result, error)
}

// Registry is the port interface for resolving agents by type.
type Registry interface {
	// Get returns the agent registered for the given type, or
	// domain.ErrNotFound if no such agent exists.
	Get(agentType agent.Type) (Agent, error)

	// List returns every registered agent.
	List() []Agent
}
