// Package decision defines the orchestration decision union and the strict
// parser that turns a raw LLM response into exactly one decision shape.
package decision

import (
	"fmt"

	"github.com/crucible-dev/crucible/internal/domain/agent"
)

// Action tags the decision union.
type Action string

const (
	ActionDelegate        Action = "delegate"
	ActionDecompose       Action = "decompose"
	ActionComplete        Action = "complete"
	ActionExecuteDirectly Action = "execute_directly"
)

// Subtask is one entry of a decompose decision. Dependencies reference
// sibling subtasks within the same batch by synthetic id ("subtask-N").
type Subtask struct {
	Type         agent.Type `json:"type"`
	Prompt       string     `json:"prompt"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Priority     int        `json:"priority,omitempty"`
}

// Decision is the validated, normalized output of one orchestration cycle.
// Exactly one of the action-specific field groups is populated.
type Decision struct {
	Action Action `json:"action"`

	// delegate
	TargetAgent agent.Type        `json:"target_agent,omitempty"`
	Task        string            `json:"task,omitempty"`
	Context     map[string]string `json:"context,omitempty"`

	// decompose
	Subtasks []Subtask `json:"subtasks,omitempty"`

	// complete / execute_directly
	Response  string   `json:"response,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`
}

// ValidationError is returned when an LLM tool invocation fails strict
// validation. It is fatal for the current decision cycle.
type ValidationError struct {
	Tool   string
	Reason string
	Input  string // truncated raw input for diagnostics
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid %s call: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid %s call: %s (input: %s)", e.Tool, e.Reason, e.Input)
}
