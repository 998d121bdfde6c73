// Package service contains the orchestration logic: turning a validated
// decision into delegated or decomposed work, guarded by the circuit
// breaker and bracketed with checkpoints.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	crotel "github.com/crucible-dev/crucible/internal/adapter/otel"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/decision"
	"github.com/crucible-dev/crucible/internal/domain/task"
	"github.com/crucible-dev/crucible/internal/port/broadcast"
	"github.com/crucible-dev/crucible/internal/port/checkpoint"
	"github.com/crucible-dev/crucible/internal/port/registry"
	"github.com/crucible-dev/crucible/internal/resilience"
	"github.com/crucible-dev/crucible/internal/scheduler"
	"github.com/crucible-dev/crucible/internal/secrets"
)

// Orchestrator executes orchestration decisions against the agent registry.
type Orchestrator struct {
	breaker     *resilience.Breaker
	registry    registry.Registry
	checkpoints checkpoint.Scheduler
	hub         broadcast.Broadcaster
	metrics     *crotel.Metrics
	vault       *secrets.Vault
	cfg         config.Orchestrator
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator with all dependencies. The hub,
// metrics, and vault may be nil.
func NewOrchestrator(
	breaker *resilience.Breaker,
	reg registry.Registry,
	checkpoints checkpoint.Scheduler,
	hub broadcast.Broadcaster,
	metrics *crotel.Metrics,
	vault *secrets.Vault,
	cfg config.Orchestrator,
) *Orchestrator {
	return &Orchestrator{
		breaker:     breaker,
		registry:    reg,
		checkpoints: checkpoints,
		hub:         hub,
		metrics:     metrics,
		vault:       vault,
		cfg:         cfg,
		now:         time.Now,
	}
}

// ExecuteDecision dispatches one validated decision for the given parent
// task and returns the combined result.
func (o *Orchestrator) ExecuteDecision(ctx context.Context, d *decision.Decision, parent *task.Task) (*task.Result, error) {
	switch d.Action {
	case decision.ActionDelegate:
		return o.executeDelegation(ctx, parent, d)
	case decision.ActionDecompose:
		return o.executeDecomposition(ctx, parent, d)
	case decision.ActionComplete, decision.ActionExecuteDirectly:
		return &task.Result{
			Success:   true,
			Output:    d.Response,
			Artifacts: d.Artifacts,
		}, nil
	default:
		return nil, fmt.Errorf("unknown decision action %q", d.Action)
	}
}

// executeDelegation routes the parent task to one agent. Admission is
// checked in a fixed order: circuit first, then registry lookup, then
// availability. An open circuit never reaches the registry.
func (o *Orchestrator) executeDelegation(ctx context.Context, parent *task.Task, d *decision.Decision) (*task.Result, error) {
	target := d.TargetAgent
	ctx, span := crotel.StartDelegationSpan(ctx, parent.ID, string(target))
	defer span.End()
	start := o.now()

	if o.metrics != nil {
		o.metrics.Delegations.Add(ctx, 1)
	}

	if !o.breaker.Allow(target) {
		slog.Warn("delegation blocked by open circuit", "task_id", parent.ID, "agent", target)
		r := task.Fail(task.CodeCircuitOpen,
			fmt.Sprintf("agent %s is temporarily unavailable (circuit open)", target), true)
		r.Errors[0].Suggestion = "retry after the reset timeout, or delegate to a different agent"
		return o.annotate(r, target), nil
	}

	a, err := o.registry.Get(target)
	if err != nil {
		r := task.Fail(task.CodeAgentNotFound,
			fmt.Sprintf("no agent registered for type %s", target), false)
		return o.annotate(r, target), nil
	}

	if !a.IsAvailable() {
		r := task.Fail(task.CodeAgentBusy,
			fmt.Sprintf("agent %s is busy", target), true)
		r.Errors[0].Suggestion = "retry shortly or route to another agent"
		return o.annotate(r, target), nil
	}

	child := o.childTask(parent, target, d.Task, d.Context)
	o.delegationCheckpoint(ctx, child.ID, target, checkpoint.PhaseBefore)
	o.broadcastEvent(broadcast.EventTaskDelegated, map[string]string{
		"task_id": child.ID,
		"agent":   string(target),
	})

	result, runErr := o.runAgent(ctx, a, child)

	// Circuit bookkeeping happens on every exit path so a propagated
	// error still counts against future admission. The error checkpoint
	// is written first so the trail holds the failure even if recording
	// it panics or the caller unwinds.
	if runErr != nil {
		o.errorCheckpoint(ctx, child.ID, runErr.Error())
		o.breaker.RecordFailure(target, runErr.Error())
		o.recordDelegationFailure(ctx)
		o.delegationCheckpoint(ctx, child.ID, target, checkpoint.PhaseAfter)
		return nil, fmt.Errorf("agent %s run: %w", target, runErr)
	}
	if result.Success {
		o.breaker.RecordSuccess(target)
	} else {
		o.breaker.RecordFailure(target, firstErrorMessage(result))
		o.recordDelegationFailure(ctx)
	}

	o.delegationCheckpoint(ctx, child.ID, target, checkpoint.PhaseAfter)
	if o.metrics != nil {
		o.metrics.DelegationSeconds.Record(ctx, o.now().Sub(start).Seconds())
	}

	return o.annotate(result, target), nil
}

// executeDecomposition fans the parent out into dependency-ordered
// subtasks and aggregates the per-level results.
func (o *Orchestrator) executeDecomposition(ctx context.Context, parent *task.Task, d *decision.Decision) (*task.Result, error) {
	if parent.Metadata.DecompositionDepth >= o.cfg.MaxDecompositionDepth {
		slog.Warn("decomposition refused at depth limit",
			"task_id", parent.ID,
			"depth", parent.Metadata.DecompositionDepth,
		)
		r := task.Fail(task.CodeMaxDepth,
			fmt.Sprintf("decomposition depth %d reached the limit %d",
				parent.Metadata.DecompositionDepth, o.cfg.MaxDecompositionDepth), false)
		r.Errors[0].Suggestion = "delegate directly or complete the task instead"
		return r, nil
	}
	if len(d.Subtasks) == 0 {
		return task.Fail(task.CodeNoSubtasks, "decompose decision carries no subtasks", false), nil
	}

	ctx, span := crotel.StartDecompositionSpan(ctx, parent.ID, len(d.Subtasks))
	defer span.End()
	if o.metrics != nil {
		o.metrics.Decompositions.Add(ctx, 1)
	}

	defs := o.subtaskDefinitions(parent, d.Subtasks)
	graph, err := scheduler.BuildGraph(defs)
	if err != nil {
		return nil, fmt.Errorf("build dependency graph for %s: %w", parent.ID, err)
	}

	exec := scheduler.NewExecutor(scheduler.Options{
		MaxConcurrency:  o.cfg.MaxConcurrency,
		ContinueOnError: o.cfg.ContinueOnError,
		TaskTimeout:     o.cfg.SubtaskTimeout,
		OnLevelStart: func(level, count int) {
			o.broadcastEvent(broadcast.EventLevelStart, map[string]string{
				"task_id":  parent.ID,
				"level":    strconv.Itoa(level),
				"subtasks": strconv.Itoa(count),
			})
		},
		OnTaskComplete: func(completed, total int, r scheduler.Result) {
			o.broadcastEvent(broadcast.EventTaskProgress, broadcast.TaskProgress{
				TaskID:    parent.ID,
				Completed: completed,
				Total:     total,
				Current:   r.ID,
			})
		},
		OnLevelComplete: func(level int, results []scheduler.Result) {
			o.broadcastEvent(broadcast.EventLevelComplete, map[string]string{
				"task_id": parent.ID,
				"level":   strconv.Itoa(level),
			})
		},
	}, o.subtaskExecutor(parent))

	outcome, err := exec.Execute(ctx, graph)
	if err != nil {
		o.errorCheckpoint(ctx, parent.ID, err.Error())
		return nil, fmt.Errorf("execute decomposition of %s: %w", parent.ID, err)
	}

	return o.aggregate(parent, outcome), nil
}

// subtaskExecutor is the per-subtask callback: the same circuit, registry,
// and availability gates as delegation, plus subtask/error checkpoints.
func (o *Orchestrator) subtaskExecutor(parent *task.Task) scheduler.ExecuteFunc {
	return func(ctx context.Context, t *task.Task, agentType agent.Type) (*task.Result, error) {
		if o.metrics != nil {
			o.metrics.SubtasksRun.Add(ctx, 1)
		}

		if !o.breaker.Allow(agentType) {
			return task.Fail(task.CodeCircuitOpen,
				fmt.Sprintf("agent %s is temporarily unavailable (circuit open)", agentType), true), nil
		}
		a, err := o.registry.Get(agentType)
		if err != nil {
			return task.Fail(task.CodeAgentNotFound,
				fmt.Sprintf("no agent registered for type %s", agentType), false), nil
		}
		if !a.IsAvailable() {
			return task.Fail(task.CodeAgentBusy,
				fmt.Sprintf("agent %s is busy", agentType), true), nil
		}

		result, runErr := o.runAgent(ctx, a, t)
		if runErr != nil {
			o.errorCheckpoint(ctx, parent.ID, fmt.Sprintf("subtask %s: %v", t.ID, runErr))
			o.breaker.RecordFailure(agentType, runErr.Error())
			return nil, runErr
		}

		o.subtaskCheckpoint(ctx, parent.ID, t.ID)
		if result.Success {
			o.breaker.RecordSuccess(agentType)
		} else {
			o.breaker.RecordFailure(agentType, firstErrorMessage(result))
		}
		return result, nil
	}
}

// subtaskDefinitions converts decision subtasks into graph definitions,
// rewriting sibling dependency ids into the child task id form.
func (o *Orchestrator) subtaskDefinitions(parent *task.Task, subtasks []decision.Subtask) []scheduler.Subtask {
	stepID := func(i int) string { return fmt.Sprintf("%s-step-%d", parent.ID, i) }

	defs := make([]scheduler.Subtask, len(subtasks))
	for i, st := range subtasks {
		deps := make([]string, 0, len(st.Dependencies))
		for _, dep := range st.Dependencies {
			idx, err := strconv.Atoi(strings.TrimPrefix(dep, "subtask-"))
			if err != nil {
				// Already in final form.
				deps = append(deps, dep)
				continue
			}
			deps = append(deps, stepID(idx))
		}

		defs[i] = scheduler.Subtask{
			ID:    stepID(i),
			Agent: st.Type,
			Task: &task.Task{
				ID:     stepID(i),
				Type:   st.Type,
				Prompt: st.Prompt,
				Status: task.StatusPending,
				Metadata: task.Metadata{
					ParentTaskID:       parent.ID,
					Source:             task.SourceDecomposition,
					DecompositionDepth: parent.Metadata.DecompositionDepth + 1,
				},
				CreatedAt: o.now(),
			},
			Dependencies: deps,
		}
	}
	return defs
}

// aggregate folds the executor outcome into one combined result: artifacts
// concatenated, a per-level report in ascending order, and the stats
// attached as data.
func (o *Orchestrator) aggregate(parent *task.Task, outcome *scheduler.Outcome) *task.Result {
	byLevel := make(map[int][]scheduler.Result)
	maxLevel := 0
	var artifacts []string
	var errs []task.Error

	for _, r := range outcome.Results {
		byLevel[r.Level] = append(byLevel[r.Level], r)
		if r.Level > maxLevel {
			maxLevel = r.Level
		}
		if r.Result != nil {
			artifacts = append(artifacts, r.Result.Artifacts...)
			if !r.Success {
				errs = append(errs, r.Result.Errors...)
			}
		}
	}

	var report strings.Builder
	fmt.Fprintf(&report, "Decomposed %s into %d subtasks across %d levels: %d succeeded, %d failed.\n",
		parent.ID, outcome.Stats.Total, outcome.Stats.Levels, outcome.Stats.Successful, outcome.Stats.Failed)
	for level := 0; level <= maxLevel; level++ {
		results, ok := byLevel[level]
		if !ok {
			continue
		}
		fmt.Fprintf(&report, "Level %d:\n", level)
		for _, r := range results {
			status := "ok"
			if !r.Success {
				status = "failed"
			}
			summary := ""
			if r.Result != nil {
				summary = firstLine(r.Result.Output)
			}
			fmt.Fprintf(&report, "  %s [%s] %s\n", r.ID, status, summary)
		}
	}

	stats := outcome.Stats
	return &task.Result{
		Success:   stats.Failed == 0,
		Output:    report.String(),
		Artifacts: artifacts,
		Errors:    errs,
		Data: map[string]string{
			"subtasks":            strconv.Itoa(stats.Total),
			"levels":              strconv.Itoa(stats.Levels),
			"successful":          strconv.Itoa(stats.Successful),
			"failed":              strconv.Itoa(stats.Failed),
			"total_time":          stats.TotalTime.String(),
			"parallel_efficiency": strconv.FormatFloat(stats.ParallelEfficiency, 'f', 2, 64),
		},
	}
}

func (o *Orchestrator) childTask(parent *task.Task, target agent.Type, prompt string, taskCtx map[string]string) *task.Task {
	return &task.Task{
		ID:      fmt.Sprintf("%s-%s-%d", parent.ID, target, o.now().Unix()),
		Type:    target,
		Prompt:  prompt,
		Context: taskCtx,
		Status:  task.StatusPending,
		Metadata: task.Metadata{
			ParentTaskID:       parent.ID,
			Source:             task.SourceOrchestrator,
			DecompositionDepth: parent.Metadata.DecompositionDepth,
		},
		CreatedAt: o.now(),
	}
}

func (o *Orchestrator) runAgent(ctx context.Context, a registry.Agent, t *task.Task) (*task.Result, error) {
	if o.cfg.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.AgentTimeout)
		defer cancel()
	}
	credential := ""
	if o.vault != nil {
		credential = o.vault.Get(secrets.KeyAgentCredential)
	}
	result, err := a.Run(ctx, t, credential)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("agent %s returned no result", a.Type())
	}
	return result, nil
}

// annotate attaches the delegated agent and its circuit state to the result.
func (o *Orchestrator) annotate(r *task.Result, target agent.Type) *task.Result {
	if r.Data == nil {
		r.Data = make(map[string]string)
	}
	r.Data["delegated_agent"] = string(target)
	r.Data["circuit_state"] = string(o.breaker.State(target))
	return r
}

// Checkpoint failures are logged, never fatal to the work they bracket.

func (o *Orchestrator) delegationCheckpoint(ctx context.Context, taskID string, target agent.Type, phase checkpoint.Phase) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.CreateDelegationCheckpoint(ctx, taskID, string(target), phase); err != nil {
		slog.Error("delegation checkpoint failed", "task_id", taskID, "phase", phase, "error", err)
	}
}

func (o *Orchestrator) subtaskCheckpoint(ctx context.Context, taskID, subtaskID string) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.CreateSubtaskCheckpoint(ctx, taskID, subtaskID); err != nil {
		slog.Error("subtask checkpoint failed", "task_id", taskID, "subtask_id", subtaskID, "error", err)
	}
}

func (o *Orchestrator) errorCheckpoint(ctx context.Context, taskID, message string) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.CreateErrorCheckpoint(ctx, taskID, message); err != nil {
		slog.Error("error checkpoint failed", "task_id", taskID, "error", err)
	}
}

func (o *Orchestrator) recordDelegationFailure(ctx context.Context) {
	if o.metrics != nil {
		o.metrics.DelegationsFailed.Add(ctx, 1)
	}
}

func (o *Orchestrator) broadcastEvent(eventType string, payload any) {
	if o.hub != nil {
		o.hub.BroadcastEvent(context.Background(), eventType, payload)
	}
}

func firstErrorMessage(r *task.Result) string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return "agent reported failure"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
