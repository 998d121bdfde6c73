// Package task defines the Task and Result domain entities.
package task

import (
	"time"

	"github.com/crucible-dev/crucible/internal/domain/agent"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Source identifies which component created a task.
type Source string

const (
	SourceUser          Source = "user"
	SourceOrchestrator  Source = "orchestrator"
	SourceDecomposition Source = "decomposition"
)

// Metadata carries lineage information for a task.
type Metadata struct {
	ParentTaskID       string `json:"parent_task_id,omitempty"`
	Source             Source `json:"source"`
	DecompositionDepth int    `json:"decomposition_depth"`
}

// Task represents a unit of work assigned to an agent.
// It is immutable once dispatched.
type Task struct {
	ID        string            `json:"id"`
	Type      agent.Type        `json:"type"`
	Prompt    string            `json:"prompt"`
	Context   map[string]string `json:"context,omitempty"`
	Status    Status            `json:"status"`
	Metadata  Metadata          `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// ErrorCode is a machine-readable failure category carried in a Result.
type ErrorCode string

const (
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"
	CodeAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentBusy       ErrorCode = "AGENT_BUSY"
	CodeMaxDepth        ErrorCode = "MAX_DEPTH_EXCEEDED"
	CodeNoSubtasks      ErrorCode = "NO_SUBTASKS"
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	CodeTimeout         ErrorCode = "TIMEOUT"
)

// Error is a structured, machine-readable task failure.
type Error struct {
	Code        ErrorCode         `json:"code"`
	Message     string            `json:"message"`
	Recoverable bool              `json:"recoverable"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

// Result holds the outcome of an agent run. Never mutated after return.
type Result struct {
	Success   bool              `json:"success"`
	Output    string            `json:"output"`
	Artifacts []string          `json:"artifacts,omitempty"`
	Errors    []Error           `json:"errors,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Fail builds a failed Result with a single structured error.
func Fail(code ErrorCode, message string, recoverable bool) *Result {
	return &Result{
		Success: false,
		Output:  message,
		Errors: []Error{{
			Code:        code,
			Message:     message,
			Recoverable: recoverable,
		}},
	}
}
