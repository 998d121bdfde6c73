package runner

import (
	"fmt"
	"time"
)

// PythonExecutionError wraps a failure while running a python action.
type PythonExecutionError struct {
	ActionID string
	Err      error
}

func (e *PythonExecutionError) Error() string {
	return fmt.Sprintf("python execution failed (action %s): %v", e.ActionID, e.Err)
}

func (e *PythonExecutionError) Unwrap() error { return e.Err }

// ShellExecutionError wraps a failure while running a shell-like action.
type ShellExecutionError struct {
	ActionID string
	Type     ActionType
	ExitCode int
	Err      error
}

func (e *ShellExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s execution failed (action %s): %v", e.Type, e.ActionID, e.Err)
	}
	return fmt.Sprintf("%s execution failed (action %s): exit code %d", e.Type, e.ActionID, e.ExitCode)
}

func (e *ShellExecutionError) Unwrap() error { return e.Err }

// AgentExecutionError wraps any other failure during action execution.
type AgentExecutionError struct {
	ActionID string
	Type     ActionType
	Err      error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("%s action %s failed: %v", e.Type, e.ActionID, e.Err)
}

func (e *AgentExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports an action that exceeded its execution timeout.
type TimeoutError struct {
	ActionID string
	Type     ActionType
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s action %s timed out after %s", e.Type, e.ActionID, e.Timeout)
}
