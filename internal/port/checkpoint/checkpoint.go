// Package checkpoint defines the checkpoint scheduler port (interface).
// Checkpoints are durable markers around orchestration steps so a crashed
// or aborted task can be resumed or audited later.
package checkpoint

import (
	"context"
	"time"
)

// Phase says where in a delegation a checkpoint was taken.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Kind classifies a checkpoint record.
type Kind string

const (
	KindDelegation Kind = "delegation"
	KindSubtask    Kind = "subtask"
	KindError      Kind = "error"
)

// Record is one persisted checkpoint.
type Record struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Phase     Phase     `json:"phase,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Scheduler is the port interface for creating and querying checkpoints.
// Implementations must tolerate checkpoint failures being ignored by
// callers; a failed checkpoint never aborts the work it brackets.
type Scheduler interface {
	// CreateDelegationCheckpoint records the state around a delegation.
	CreateDelegationCheckpoint(ctx context.Context, taskID, agentType string, phase Phase) error

	// CreateSubtaskCheckpoint records completion of one decomposition subtask.
	CreateSubtaskCheckpoint(ctx context.Context, taskID, subtaskID string) error

	// CreateErrorCheckpoint records a failure with its message.
	CreateErrorCheckpoint(ctx context.Context, taskID, message string) error

	// List returns all checkpoints for a task, oldest first.
	List(ctx context.Context, taskID string) ([]Record, error)

	// Prune deletes checkpoints older than the cutoff and returns the
	// number removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
