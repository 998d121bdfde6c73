// Package resilience provides reliability patterns for agent dispatch.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/crucible-dev/crucible/internal/domain/agent"
)

// ErrCircuitOpen is returned when a circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the admission state of a single agent's circuit.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the thresholds shared by all per-agent circuits.
type Config struct {
	FailureThreshold int           // failures inside FailureWindow that trip the circuit
	SuccessThreshold int           // consecutive half-open successes that close it
	ResetTimeout     time.Duration // open duration before a probe is admitted
	FailureWindow    time.Duration // trailing window for counting failures
}

// circuit is the mutable state of one agent's breaker.
// All access goes through Breaker.mu.
type circuit struct {
	state                State
	failures             []time.Time // never older than FailureWindow after prune
	consecutiveSuccesses int
	lastFailure          time.Time
	lastFailureReason    string
	lastStateChange      time.Time
	openedAt             time.Time
}

// Stats is a read-only snapshot of one agent's circuit.
type Stats struct {
	Agent                agent.Type `json:"agent"`
	State                State      `json:"state"`
	FailureCount         int        `json:"failure_count"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastFailure          time.Time  `json:"last_failure,omitzero"`
	LastFailureReason    string     `json:"last_failure_reason,omitempty"`
	LastStateChange      time.Time  `json:"last_state_change,omitzero"`
	OpenedAt             time.Time  `json:"opened_at,omitzero"`
	Allowed              bool       `json:"allowed"`
}

// Breaker maintains one independent circuit per agent type.
// Circuits are created lazily on first access and live for the process
// lifetime unless explicitly reset.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	circuits map[agent.Type]*circuit
	now      func() time.Time // injectable for tests
}

// NewBreaker creates a Breaker with the given thresholds.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[agent.Type]*circuit),
		now:      time.Now,
	}
}

// SetClock replaces the breaker's clock. Test use only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// get returns the circuit for a, creating it closed. Caller holds b.mu.
func (b *Breaker) get(a agent.Type) *circuit {
	c, ok := b.circuits[a]
	if !ok {
		c = &circuit{state: StateClosed, lastStateChange: b.now()}
		b.circuits[a] = c
	}
	return c
}

// prune drops failures older than the trailing window. Caller holds b.mu.
func (b *Breaker) prune(c *circuit) {
	cutoff := b.now().Add(-b.cfg.FailureWindow)
	kept := c.failures[:0]
	for _, t := range c.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.failures = kept
}

// Allow reports whether a request for the agent may proceed.
// Not a pure query: an expired OPEN circuit transitions to HALF_OPEN here,
// admitting the probe request.
func (b *Breaker) Allow(a agent.Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(a)
	b.prune(c)

	switch c.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) >= b.cfg.ResetTimeout {
			c.state = StateHalfOpen
			c.consecutiveSuccesses = 0
			c.lastStateChange = b.now()
			return true
		}
		return false
	}
	return false
}

// RecordSuccess notes a successful call for the agent.
// SuccessThreshold consecutive successes close a half-open circuit.
func (b *Breaker) RecordSuccess(a agent.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(a)
	b.prune(c)
	c.consecutiveSuccesses++

	switch c.state {
	case StateHalfOpen:
		if c.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			c.state = StateClosed
			c.failures = nil
			c.lastStateChange = b.now()
		}
	case StateClosed:
		// A success clears the windowed failure count.
		c.failures = nil
	}
}

// RecordFailure notes a failed call for the agent. A half-open circuit
// reopens immediately; a closed one opens once the windowed failure count
// reaches the threshold.
func (b *Breaker) RecordFailure(a agent.Type, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(a)
	b.prune(c)

	now := b.now()
	c.failures = append(c.failures, now)
	c.lastFailure = now
	c.lastFailureReason = reason
	c.consecutiveSuccesses = 0

	if c.state == StateHalfOpen || (c.state == StateClosed && len(c.failures) >= b.cfg.FailureThreshold) {
		b.open(c)
	}
}

// open transitions a circuit to OPEN and resets its counters. Caller holds b.mu.
func (b *Breaker) open(c *circuit) {
	c.state = StateOpen
	c.failures = nil
	c.consecutiveSuccesses = 0
	c.openedAt = b.now()
	c.lastStateChange = c.openedAt
}

// State returns the agent's current circuit state without side effects.
func (b *Breaker) State(a agent.Type) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(a).state
}

// Stats returns a snapshot of the agent's circuit. Allowed is computed
// without mutating state: an expired OPEN circuit reports true even though
// the HALF_OPEN transition only happens on the next Allow call.
func (b *Breaker) Stats(a agent.Type) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(a)
	b.prune(c)

	allowed := true
	if c.state == StateOpen {
		allowed = b.now().Sub(c.openedAt) >= b.cfg.ResetTimeout
	}

	return Stats{
		Agent:                a,
		State:                c.state,
		FailureCount:         len(c.failures),
		ConsecutiveSuccesses: c.consecutiveSuccesses,
		LastFailure:          c.lastFailure,
		LastFailureReason:    c.lastFailureReason,
		LastStateChange:      c.lastStateChange,
		OpenedAt:             c.openedAt,
		Allowed:              allowed,
	}
}

// StatsAll returns a snapshot for every known agent type.
func (b *Breaker) StatsAll() []Stats {
	out := make([]Stats, 0, len(agent.Types()))
	for _, a := range agent.Types() {
		out = append(out, b.Stats(a))
	}
	return out
}

// Reset returns the agent's circuit to a fresh closed state.
func (b *Breaker) Reset(a agent.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuits[a] = &circuit{state: StateClosed, lastStateChange: b.now()}
}

// ResetAll resets every circuit.
func (b *Breaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuits = make(map[agent.Type]*circuit)
}

// ForceOpen trips the agent's circuit regardless of its failure history.
func (b *Breaker) ForceOpen(a agent.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open(b.get(a))
}

// ForceClose closes the agent's circuit and clears its failure history.
func (b *Breaker) ForceClose(a agent.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(a)
	c.state = StateClosed
	c.failures = nil
	c.consecutiveSuccesses = 0
	c.lastStateChange = b.now()
}

// Outcome is the uniform envelope returned by Execute.
type Outcome[T any] struct {
	Success      bool
	Result       T
	Err          error
	CircuitState State
	Blocked      bool
}

// Execute wraps a unit of work with circuit admission and bookkeeping.
// A blocked call returns immediately without invoking fn. Otherwise fn runs
// and its outcome is recorded, error or not, so admission decisions always
// see the latest result.
func Execute[T any](b *Breaker, a agent.Type, fn func() (T, error)) Outcome[T] {
	if !b.Allow(a) {
		var zero T
		return Outcome[T]{
			Success:      false,
			Result:       zero,
			Err:          ErrCircuitOpen,
			CircuitState: b.State(a),
			Blocked:      true,
		}
	}

	result, err := fn()
	if err != nil {
		b.RecordFailure(a, err.Error())
	} else {
		b.RecordSuccess(a)
	}

	return Outcome[T]{
		Success:      err == nil,
		Result:       result,
		Err:          err,
		CircuitState: b.State(a),
	}
}
