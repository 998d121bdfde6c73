package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/task"
	"github.com/crucible-dev/crucible/internal/port/messagequeue"
)

// Dispatcher owns the shared result subscription for all remote agents.
// Results come back on a single subject and are routed to the dispatching
// agent by task ID.
type Dispatcher struct {
	queue   messagequeue.Queue
	waiters *syncWaiter[messagequeue.ResultPayload]
	cancel  func()
}

// NewDispatcher subscribes to the shared result subject. Call Close to
// drop the subscription.
func NewDispatcher(ctx context.Context, queue messagequeue.Queue) (*Dispatcher, error) {
	d := &Dispatcher{
		queue:   queue,
		waiters: newSyncWaiter[messagequeue.ResultPayload]("agent"),
	}

	cancel, err := queue.Subscribe(ctx, messagequeue.SubjectAgentResult, d.onResult)
	if err != nil {
		return nil, fmt.Errorf("subscribe agent results: %w", err)
	}
	d.cancel = cancel
	return d, nil
}

func (d *Dispatcher) onResult(_ context.Context, _ string, data []byte) error {
	var payload messagequeue.ResultPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshal agent result: %w", err)
	}
	d.waiters.deliver(payload.TaskID, &payload)
	return nil
}

// Close cancels the result subscription.
func (d *Dispatcher) Close() {
	if d.cancel != nil {
		d.cancel()
	}
}

// RemoteAgent implements the registry agent port by dispatching work over
// the message queue and waiting for the correlated result.
type RemoteAgent struct {
	agentType   agent.Type
	description string
	dispatcher  *Dispatcher
	timeout     time.Duration
	busy        atomic.Bool
}

// NewRemoteAgent creates a queue-backed agent for the given type.
func NewRemoteAgent(agentType agent.Type, description string, d *Dispatcher, timeout time.Duration) *RemoteAgent {
	return &RemoteAgent{
		agentType:   agentType,
		description: description,
		dispatcher:  d,
		timeout:     timeout,
	}
}

// Type returns the agent's role identifier.
func (a *RemoteAgent) Type() agent.Type { return a.agentType }

// Description returns a short summary of the agent's role.
func (a *RemoteAgent) Description() string { return a.description }

// IsAvailable reports whether the agent can accept work right now. A
// remote agent handles one task at a time; the queue connection must be up.
func (a *RemoteAgent) IsAvailable() bool {
	return !a.busy.Load() && a.dispatcher.queue.IsConnected()
}

// Status returns the agent's current lifecycle status.
func (a *RemoteAgent) Status() agent.Status {
	if a.busy.Load() {
		return agent.StatusRunning
	}
	return agent.StatusIdle
}

// Run publishes the task to the agent's dispatch subject and blocks until
// the correlated result arrives, the timeout expires, or ctx is cancelled.
func (a *RemoteAgent) Run(ctx context.Context, t *task.Task, credential string) (*task.Result, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("agent %s is already running a task", a.agentType)
	}
	defer a.busy.Store(false)

	payload, err := json.Marshal(messagequeue.DispatchPayload{
		TaskID:     t.ID,
		Agent:      string(a.agentType),
		Prompt:     t.Prompt,
		Context:    t.Context,
		Credential: credential,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}

	ch := a.dispatcher.waiters.register(t.ID)
	defer a.dispatcher.waiters.unregister(t.ID)

	subject := fmt.Sprintf("%s.%s", messagequeue.SubjectAgentDispatch, a.agentType)
	if err := a.dispatcher.queue.Publish(ctx, subject, payload); err != nil {
		return nil, fmt.Errorf("dispatch task %s: %w", t.ID, err)
	}
	slog.Info("task dispatched", "task_id", t.ID, "agent", a.agentType, "subject", subject)

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return resultFromPayload(result), nil
	case <-timer.C:
		return nil, fmt.Errorf("agent %s timed out after %s on task %s", a.agentType, a.timeout, t.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func resultFromPayload(p *messagequeue.ResultPayload) *task.Result {
	r := &task.Result{
		Success:   p.Success,
		Output:    p.Output,
		Artifacts: p.Artifacts,
	}
	if !p.Success {
		msg := p.Error
		if msg == "" {
			msg = "agent reported failure without detail"
		}
		r.Errors = append(r.Errors, task.Error{
			Code:        task.CodeExecutionFailed,
			Message:     msg,
			Recoverable: true,
		})
	}
	return r
}
