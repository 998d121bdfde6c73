package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	crotel "github.com/crucible-dev/crucible/internal/adapter/otel"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/port/broadcast"
	"github.com/crucible-dev/crucible/internal/port/sandbox"
	"github.com/crucible-dev/crucible/internal/security"
)

// tracked is the runner's record of one observed action.
type tracked struct {
	action   Action
	state    State
	errMsg   string
	executed bool
	cancel   context.CancelFunc
	updated  time.Time
}

// Runner serializes action execution: a single worker goroutine drains a
// FIFO queue, so actions run one at a time in arrival order. A failed
// action is logged and the queue moves on.
type Runner struct {
	sb          sandbox.Sandbox
	checker     *security.Checker
	broadcaster broadcast.Broadcaster
	metrics     *crotel.Metrics
	cfg         config.Runner

	mu     sync.Mutex
	states map[string]*tracked
	queue  chan string
	dev    devServer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// New creates a Runner. Call Start before registering actions and Close
// on shutdown. The broadcaster and metrics may be nil.
func New(sb sandbox.Sandbox, checker *security.Checker, b broadcast.Broadcaster, m *crotel.Metrics, cfg config.Runner) *Runner {
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}
	return &Runner{
		sb:          sb,
		checker:     checker,
		broadcaster: b,
		metrics:     m,
		cfg:         cfg,
		states:      make(map[string]*tracked),
		queue:       make(chan string, capacity),
		now:         time.Now,
	}
}

// Start launches the worker goroutine. The runner stops when ctx is
// cancelled or Close is called.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case id := <-r.queue:
				r.process(ctx, id)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the worker and kills any tracked dev server. Pending actions
// that never ran stay pending.
func (r *Runner) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.dev.stop()
}

// Register observes a new action and enqueues it. Re-registering an action
// that has already executed is a no-op.
func (r *Runner) Register(a Action) error {
	if a.ID == "" {
		return fmt.Errorf("action has no id")
	}

	r.mu.Lock()
	if existing, ok := r.states[a.ID]; ok {
		r.mu.Unlock()
		if existing.executed {
			slog.Debug("action already executed, ignoring", "action_id", a.ID)
			return nil
		}
		return fmt.Errorf("action %s is already registered", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	r.states[a.ID] = &tracked{action: a, state: StatePending, updated: r.now()}
	r.mu.Unlock()

	r.notify(a, StatePending, "")

	select {
	case r.queue <- a.ID:
		return nil
	default:
		r.transition(a.ID, StateFailed, "action queue is full")
		return fmt.Errorf("action queue is full (capacity %d)", cap(r.queue))
	}
}

// Abort cancels an action. A pending action moves straight to aborted; a
// running action has its process killed and is marked aborted by the
// worker. Terminal actions are left alone.
func (r *Runner) Abort(id string) {
	r.mu.Lock()
	t, ok := r.states[id]
	if !ok || t.state.Terminal() {
		r.mu.Unlock()
		return
	}
	if t.state == StatePending {
		t.state = StateAborted
		t.updated = r.now()
		action := t.action
		r.mu.Unlock()
		r.notify(action, StateAborted, "")
		return
	}
	cancel := t.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of one action's state.
func (r *Runner) Status(id string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.states[id]
	if !ok {
		return Status{}, false
	}
	return Status{
		Action:   t.action,
		State:    t.state,
		Error:    t.errMsg,
		Executed: t.executed,
		Updated:  t.updated,
	}, true
}

// All returns snapshots of every tracked action.
func (r *Runner) All() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.states))
	for _, t := range r.states {
		out = append(out, Status{
			Action:   t.action,
			State:    t.state,
			Error:    t.errMsg,
			Executed: t.executed,
			Updated:  t.updated,
		})
	}
	return out
}

func (r *Runner) process(ctx context.Context, id string) {
	r.mu.Lock()
	t, ok := r.states[id]
	if !ok || t.state != StatePending {
		// Aborted while queued, or unknown.
		r.mu.Unlock()
		return
	}
	actx, cancel := context.WithCancel(ctx)
	t.state = StateRunning
	t.executed = true
	t.cancel = cancel
	t.updated = r.now()
	action := t.action
	r.mu.Unlock()
	defer cancel()

	r.notify(action, StateRunning, "")
	start := r.now()
	sctx, span := crotel.StartActionSpan(actx, action.ID, string(action.Type))
	err := r.execute(sctx, action)
	span.End()

	if r.metrics != nil {
		r.metrics.ActionsRun.Add(ctx, 1)
		r.metrics.ActionSeconds.Record(ctx, r.now().Sub(start).Seconds())
	}

	switch {
	case err == nil:
		r.transition(id, StateComplete, "")
	case errors.Is(actx.Err(), context.Canceled) && ctx.Err() == nil:
		// Killed by Abort, not by runner shutdown.
		r.transition(id, StateAborted, "")
	default:
		slog.Error("action failed", "action_id", id, "type", action.Type, "error", err)
		r.transition(id, StateFailed, err.Error())
	}
}

func (r *Runner) transition(id string, state State, errMsg string) {
	r.mu.Lock()
	t, ok := r.states[id]
	if !ok || t.state.Terminal() {
		r.mu.Unlock()
		return
	}
	t.state = state
	t.errMsg = errMsg
	t.updated = r.now()
	action := t.action
	r.mu.Unlock()

	r.notify(action, state, errMsg)
}

func (r *Runner) notify(a Action, state State, errMsg string) {
	slog.Info("action state", "action_id", a.ID, "type", a.Type, "state", state)
	if r.broadcaster != nil {
		r.broadcaster.BroadcastEvent(context.Background(), broadcast.EventActionState, broadcast.ActionState{
			ActionID: a.ID,
			Type:     string(a.Type),
			State:    string(state),
			Error:    errMsg,
		})
	}
}

// execute dispatches one action by type. Every action kind is handled
// here; an unknown type is a generic execution error.
func (r *Runner) execute(ctx context.Context, a Action) error {
	switch a.Type {
	case ActionShell:
		return r.executeShell(ctx, a)
	case ActionGit, ActionGitHub:
		return r.executeCommand(ctx, a, r.cfg.ShellTimeout)
	case ActionFile:
		return r.executeFile(ctx, a)
	case ActionPython:
		return r.executePython(ctx, a)
	case ActionRestart:
		if err := r.dev.restart(ctx, r.sb, r.cfg.DevServerReady); err != nil {
			return &AgentExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
		}
		return nil
	default:
		return &AgentExecutionError{ActionID: a.ID, Type: a.Type, Err: fmt.Errorf("unknown action type")}
	}
}

func (r *Runner) executeShell(ctx context.Context, a Action) error {
	if err := r.gateCommand(ctx, a); err != nil {
		return err
	}
	if isDevServerCommand(a.Command) {
		// The action context stays attached so an abort during the
		// ready scan kills the server; start detaches the process
		// itself once it is up.
		if err := r.dev.start(ctx, r.sb, a.Command, r.cfg.DevServerReady); err != nil {
			return &ShellExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
		}
		return nil
	}
	return r.runToCompletion(ctx, a, r.cfg.ShellTimeout)
}

func (r *Runner) executeCommand(ctx context.Context, a Action, timeout time.Duration) error {
	if err := r.gateCommand(ctx, a); err != nil {
		return err
	}
	return r.runToCompletion(ctx, a, timeout)
}

// gateCommand applies the security verdict. A blocked command is fatal
// before anything is spawned; an approval-level command is logged only.
func (r *Runner) gateCommand(ctx context.Context, a Action) error {
	v := r.checker.Check(ctx, a.Command)
	if !v.Allowed {
		if r.metrics != nil {
			r.metrics.ActionsBlocked.Add(ctx, 1)
		}
		return security.BlockedError(a.Command, v)
	}
	if v.Level == security.LevelCaution {
		slog.Warn("command flagged for approval", "action_id", a.ID, "reason", v.Message)
	}
	return nil
}

func (r *Runner) runToCompletion(ctx context.Context, a Action, timeout time.Duration) error {
	p, err := r.sb.Spawn(ctx, a.Command)
	if err != nil {
		return &ShellExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
	}
	go drain(p)

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := p.Wait(tctx)
	if err != nil {
		_ = p.Kill()
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{ActionID: a.ID, Type: a.Type, Timeout: timeout}
		}
		return &ShellExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
	}
	if code != 0 {
		return &ShellExecutionError{ActionID: a.ID, Type: a.Type, ExitCode: code}
	}
	return nil
}

func (r *Runner) executeFile(ctx context.Context, a Action) error {
	if err := security.ValidatePath(a.Path); err != nil {
		return &AgentExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
	}
	if err := r.sb.WriteFile(ctx, a.Path, []byte(a.Content)); err != nil {
		return &AgentExecutionError{ActionID: a.ID, Type: a.Type, Err: err}
	}
	return nil
}

// executePython runs inline source by materializing it as a scratch file
// in the workspace, or runs the given interpreter command directly.
func (r *Runner) executePython(ctx context.Context, a Action) error {
	cmd := a.Command
	if a.Content != "" {
		scratch := fmt.Sprintf("scratch/%s.py", a.ID)
		if err := r.sb.WriteFile(ctx, scratch, []byte(a.Content)); err != nil {
			return &PythonExecutionError{ActionID: a.ID, Err: err}
		}
		cmd = "python3 " + scratch
	}
	if cmd == "" {
		return &PythonExecutionError{ActionID: a.ID, Err: fmt.Errorf("no command or source")}
	}

	if err := r.runToCompletion(ctx, Action{ID: a.ID, Type: a.Type, Command: cmd}, r.cfg.PythonTimeout); err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return err
		}
		return &PythonExecutionError{ActionID: a.ID, Err: err}
	}
	return nil
}
