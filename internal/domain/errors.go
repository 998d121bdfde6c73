// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrCircuitOpen indicates the agent's circuit breaker is rejecting work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrAgentBusy indicates the target agent is already running a task.
var ErrAgentBusy = errors.New("agent is busy")
