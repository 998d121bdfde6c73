// Package runner executes the heterogeneous actions agents propose (shell
// commands, file writes, git operations, scripts) against the sandbox, one
// at a time and in arrival order. Each action moves through a small
// lifecycle state machine; failures never stop the queue.
package runner

import "time"

// ActionType tags the action union.
type ActionType string

const (
	ActionShell   ActionType = "shell"
	ActionFile    ActionType = "file"
	ActionGit     ActionType = "git"
	ActionPython  ActionType = "python"
	ActionGitHub  ActionType = "github"
	ActionRestart ActionType = "restart"
)

// State is an action's lifecycle state. Terminal states (complete,
// aborted, failed) are never re-entered.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateAborted  State = "aborted"
	StateFailed   State = "failed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted || s == StateFailed
}

// Action is one proposed sandbox operation.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Agent       string     `json:"agent,omitempty"`
	Description string     `json:"description,omitempty"`

	// Command is the shell command line for shell, git, github, and
	// restart actions, and the interpreter invocation for python actions
	// without inline source.
	Command string `json:"command,omitempty"`

	// Path and Content describe file actions. Content doubles as inline
	// source for python actions.
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Status is a snapshot of one action's tracked state.
type Status struct {
	Action   Action    `json:"action"`
	State    State     `json:"state"`
	Error    string    `json:"error,omitempty"`
	Executed bool      `json:"executed"`
	Updated  time.Time `json:"updated"`
}
