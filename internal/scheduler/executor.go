package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/task"
)

// ExecuteFunc runs one subtask and returns its result. Implementations
// should honor ctx cancellation; a subtask that ignores it keeps running
// past its timeout even though the executor has already recorded a
// timeout failure for it.
type ExecuteFunc func(ctx context.Context, t *task.Task, a agent.Type) (*task.Result, error)

// Result is the outcome of one subtask within a graph execution.
type Result struct {
	ID       string        `json:"id"`
	Level    int           `json:"level"`
	Success  bool          `json:"success"`
	Result   *task.Result  `json:"result"`
	Duration time.Duration `json:"duration"`
}

// Stats aggregates a full graph execution.
type Stats struct {
	Total              int           `json:"total"`
	Successful         int           `json:"successful"`
	Failed             int           `json:"failed"`
	Levels             int           `json:"levels"`
	TotalTime          time.Duration `json:"total_time"`
	ParallelEfficiency float64       `json:"parallel_efficiency"`
}

// Outcome bundles per-subtask results with aggregate statistics.
type Outcome struct {
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
}

// Options configures an Executor.
type Options struct {
	MaxConcurrency  int
	ContinueOnError bool
	TaskTimeout     time.Duration

	// Progress callbacks; any may be nil.
	OnLevelStart    func(level, count int)
	OnTaskComplete  func(completed, total int, r Result)
	OnLevelComplete func(level int, results []Result)
}

// Executor runs a Graph's levels strictly in order, bounding concurrency
// within each level with a weighted semaphore.
type Executor struct {
	opts Options
	run  ExecuteFunc
	now  func() time.Time
}

// NewExecutor creates an Executor around the injected per-subtask run function.
func NewExecutor(opts Options, run ExecuteFunc) *Executor {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Executor{opts: opts, run: run, now: time.Now}
}

// Execute runs every level of the graph. Subtasks within a level race with
// no defined completion order; the level-complete callback fires only after
// all of them finish or time out. With ContinueOnError unset, a failed
// subtask stops scheduling after its level and the remaining subtasks are
// reported as skipped failures.
func (e *Executor) Execute(ctx context.Context, g *Graph) (*Outcome, error) {
	start := e.now()
	total := g.Size()
	sem := semaphore.NewWeighted(int64(e.opts.MaxConcurrency))

	var (
		mu        sync.Mutex
		results   []Result
		completed int
		nominal   time.Duration
		stopEarly bool
	)

	levels := g.Levels()
	for levelIdx, level := range levels {
		if stopEarly {
			for _, st := range level {
				results = append(results, skippedResult(st, levelIdx))
			}
			continue
		}

		if e.opts.OnLevelStart != nil {
			e.opts.OnLevelStart(levelIdx, len(level))
		}
		slog.Info("level started", "level", levelIdx, "subtasks", len(level))

		levelResults := make([]Result, len(level))
		var wg sync.WaitGroup

		for i, st := range level {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Let already-launched subtasks finish so no callback
				// fires after the caller has seen the error.
				wg.Wait()
				return nil, fmt.Errorf("acquire execution slot: %w", err)
			}

			wg.Add(1)
			go func(slot int, st Subtask) {
				defer wg.Done()
				defer sem.Release(1)

				r := e.runOne(ctx, st, levelIdx)
				levelResults[slot] = r

				mu.Lock()
				completed++
				done := completed
				nominal += r.Duration
				mu.Unlock()

				if e.opts.OnTaskComplete != nil {
					e.opts.OnTaskComplete(done, total, r)
				}
			}(i, st)
		}

		wg.Wait()

		results = append(results, levelResults...)
		if e.opts.OnLevelComplete != nil {
			e.opts.OnLevelComplete(levelIdx, levelResults)
		}
		slog.Info("level complete", "level", levelIdx, "subtasks", len(levelResults))

		if !e.opts.ContinueOnError {
			for _, r := range levelResults {
				if !r.Success {
					stopEarly = true
					break
				}
			}
		}
	}

	wall := e.now().Sub(start)
	stats := Stats{
		Total:     total,
		Levels:    len(levels),
		TotalTime: wall,
	}
	for _, r := range results {
		if r.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	if wall > 0 {
		stats.ParallelEfficiency = float64(nominal) / float64(wall)
	}

	return &Outcome{Results: results, Stats: stats}, nil
}

// runOne executes a single subtask, racing it against the per-task timeout.
// On expiry the subtask resolves as a timeout failure; the underlying work
// is only stopped if the run function honors the cancelled context.
func (e *Executor) runOne(ctx context.Context, st Subtask, level int) Result {
	start := e.now()

	tctx := ctx
	var cancel context.CancelFunc
	if e.opts.TaskTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, e.opts.TaskTimeout)
		defer cancel()
	}

	type outcome struct {
		res *task.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.run(tctx, st.Task, st.Agent)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		dur := e.now().Sub(start)
		if out.err != nil {
			slog.Warn("subtask failed", "subtask", st.ID, "agent", st.Agent, "error", out.err)
			return Result{
				ID:       st.ID,
				Level:    level,
				Success:  false,
				Result:   task.Fail(task.CodeExecutionFailed, out.err.Error(), true),
				Duration: dur,
			}
		}
		res := out.res
		if res == nil {
			res = task.Fail(task.CodeExecutionFailed, "executor returned no result", true)
		}
		return Result{
			ID:       st.ID,
			Level:    level,
			Success:  res.Success,
			Result:   res,
			Duration: dur,
		}
	case <-tctx.Done():
		dur := e.now().Sub(start)
		slog.Warn("subtask timed out", "subtask", st.ID, "agent", st.Agent, "timeout", e.opts.TaskTimeout)
		return Result{
			ID:      st.ID,
			Level:   level,
			Success: false,
			Result: task.Fail(task.CodeTimeout,
				fmt.Sprintf("subtask %s timed out after %s", st.ID, e.opts.TaskTimeout), true),
			Duration: dur,
		}
	}
}

func skippedResult(st Subtask, level int) Result {
	return Result{
		ID:      st.ID,
		Level:   level,
		Success: false,
		Result:  task.Fail(task.CodeExecutionFailed, "skipped: an earlier level failed", true),
	}
}
