// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Event types emitted by the orchestration and action layers.
const (
	EventTaskProgress   = "task:progress"
	EventTaskDelegated  = "task:delegated"
	EventTaskComplete   = "task:complete"
	EventLevelStart     = "level:start"
	EventLevelComplete  = "level:complete"
	EventActionState    = "action:state"
	EventBreakerTripped = "breaker:tripped"
)

// TaskProgress is the payload for task:progress events.
type TaskProgress struct {
	TaskID    string `json:"task_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current"`
}

// ActionState is the payload for action:state events.
type ActionState struct {
	ActionID string `json:"action_id"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// BreakerTripped is the payload for breaker:tripped events.
type BreakerTripped struct {
	Agent  string `json:"agent"`
	State  string `json:"state"`
	Reason string `json:"reason"`
}
