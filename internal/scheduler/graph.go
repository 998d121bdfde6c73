// Package scheduler builds dependency-ordered execution levels from subtask
// batches and runs them with bounded intra-level concurrency.
package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/task"
)

// Subtask is one executable unit of a decomposition batch. Dependencies
// reference sibling subtask ids within the same batch only.
type Subtask struct {
	ID           string
	Agent        agent.Type
	Task         *task.Task
	Dependencies []string
}

// Graph holds a batch of subtasks ordered into execution levels.
// Level k contains every subtask whose dependencies are fully satisfied
// by levels 0..k-1.
type Graph struct {
	subtasks []Subtask
	levels   [][]Subtask
}

// BuildGraph validates a subtask batch and computes its execution levels.
// Dangling dependency ids and cycles are rejected. A dependency declared on
// a later subtask is accepted (it resolves) but logged as suspicious, since
// it usually indicates the planner emitted subtasks out of order.
func BuildGraph(subtasks []Subtask) (*Graph, error) {
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("graph requires at least one subtask")
	}

	index := make(map[string]int, len(subtasks))
	for i, st := range subtasks {
		if st.ID == "" {
			return nil, fmt.Errorf("subtask %d has no id", i)
		}
		if _, dup := index[st.ID]; dup {
			return nil, fmt.Errorf("duplicate subtask id %q", st.ID)
		}
		index[st.ID] = i
	}

	for i, st := range subtasks {
		for _, dep := range st.Dependencies {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("subtask %q depends on nonexistent subtask %q", st.ID, dep)
			}
			if j >= i {
				slog.Warn("subtask depends on a later sibling, possible cycle",
					"subtask", st.ID,
					"depends_on", dep,
				)
			}
		}
	}

	levels, err := levelize(subtasks, index)
	if err != nil {
		return nil, err
	}

	return &Graph{subtasks: subtasks, levels: levels}, nil
}

// levelize places subtasks into levels by repeatedly taking every not-yet-
// placed subtask whose dependencies are all placed. A pass that places
// nothing while work remains means the remainder forms a cycle.
func levelize(subtasks []Subtask, index map[string]int) ([][]Subtask, error) {
	placed := make([]bool, len(subtasks))
	remaining := len(subtasks)
	var levels [][]Subtask

	for remaining > 0 {
		var level []Subtask
		var levelIdx []int

		for i, st := range subtasks {
			if placed[i] {
				continue
			}
			ready := true
			for _, dep := range st.Dependencies {
				if !placed[index[dep]] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, st)
				levelIdx = append(levelIdx, i)
			}
		}

		if len(level) == 0 {
			var stuck []string
			for i, st := range subtasks {
				if !placed[i] {
					stuck = append(stuck, st.ID)
				}
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("dependency cycle among subtasks: %s", strings.Join(stuck, ", "))
		}

		for _, i := range levelIdx {
			placed[i] = true
		}
		remaining -= len(level)
		levels = append(levels, level)
	}

	return levels, nil
}

// Levels returns the ordered execution levels.
func (g *Graph) Levels() [][]Subtask {
	return g.levels
}

// Size returns the total number of subtasks in the graph.
func (g *Graph) Size() int {
	return len(g.subtasks)
}
