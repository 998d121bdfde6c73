package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crucible-dev/crucible/internal/port/checkpoint"
)

// CheckpointStore implements checkpoint.Scheduler using PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a store backed by the given connection pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// CreateDelegationCheckpoint records the state around a delegation.
func (s *CheckpointStore) CreateDelegationCheckpoint(ctx context.Context, taskID, agentType string, phase checkpoint.Phase) error {
	return s.insert(ctx, checkpoint.Record{
		TaskID: taskID,
		Kind:   checkpoint.KindDelegation,
		Phase:  phase,
		Agent:  agentType,
	})
}

// CreateSubtaskCheckpoint records completion of one decomposition subtask.
func (s *CheckpointStore) CreateSubtaskCheckpoint(ctx context.Context, taskID, subtaskID string) error {
	return s.insert(ctx, checkpoint.Record{
		TaskID: taskID,
		Kind:   checkpoint.KindSubtask,
		Detail: subtaskID,
	})
}

// CreateErrorCheckpoint records a failure with its message.
func (s *CheckpointStore) CreateErrorCheckpoint(ctx context.Context, taskID, message string) error {
	return s.insert(ctx, checkpoint.Record{
		TaskID: taskID,
		Kind:   checkpoint.KindError,
		Detail: message,
	})
}

func (s *CheckpointStore) insert(ctx context.Context, r checkpoint.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (id, task_id, kind, phase, agent, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), r.TaskID, string(r.Kind), string(r.Phase), r.Agent, r.Detail)
	if err != nil {
		return fmt.Errorf("insert checkpoint for task %s: %w", r.TaskID, err)
	}
	return nil
}

// List returns all checkpoints for a task, oldest first.
func (s *CheckpointStore) List(ctx context.Context, taskID string) ([]checkpoint.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, kind, phase, agent, detail, created_at
		 FROM checkpoints WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var records []checkpoint.Record
	for rows.Next() {
		var r checkpoint.Record
		var kind, phase string
		if err := rows.Scan(&r.ID, &r.TaskID, &kind, &phase, &r.Agent, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		r.Kind = checkpoint.Kind(kind)
		r.Phase = checkpoint.Phase(phase)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes checkpoints older than the cutoff and returns the number removed.
func (s *CheckpointStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}
