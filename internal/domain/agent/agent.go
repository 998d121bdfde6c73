// Package agent defines the closed set of agent types and the agent status model.
package agent

import (
	"fmt"
	"strings"
)

// Type identifies a specialized agent. The set is closed: every circuit,
// registry entry, and log line is keyed by one of these values.
type Type string

const (
	TypeExplore   Type = "explore"
	TypeCoder     Type = "coder"
	TypeBuilder   Type = "builder"
	TypeTester    Type = "tester"
	TypeDeployer  Type = "deployer"
	TypeReviewer  Type = "reviewer"
	TypeFixer     Type = "fixer"
	TypeArchitect Type = "architect"
)

// Types lists every valid agent type in a stable order.
func Types() []Type {
	return []Type{
		TypeExplore,
		TypeCoder,
		TypeBuilder,
		TypeTester,
		TypeDeployer,
		TypeReviewer,
		TypeFixer,
		TypeArchitect,
	}
}

// Valid reports whether t is one of the closed set of agent types.
func (t Type) Valid() bool {
	switch t {
	case TypeExplore, TypeCoder, TypeBuilder, TypeTester,
		TypeDeployer, TypeReviewer, TypeFixer, TypeArchitect:
		return true
	}
	return false
}

// ParseType case-folds s into an agent Type.
// Returns an error if s does not name a known agent.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return t, nil
}

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)
