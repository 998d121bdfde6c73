package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/crucible-dev/crucible/internal/domain"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/task"
)

type stubAgent struct {
	agentType agent.Type
}

func (s *stubAgent) Type() agent.Type      { return s.agentType }
func (s *stubAgent) Description() string   { return "stub" }
func (s *stubAgent) IsAvailable() bool     { return true }
func (s *stubAgent) Status() agent.Status  { return agent.StatusIdle }
func (s *stubAgent) Run(_ context.Context, _ *task.Task, _ string) (*task.Result, error) {
	return &task.Result{Success: true}, nil
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAgent{agentType: agent.TypeCoder}); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, err := r.Get(agent.TypeCoder)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Type() != agent.TypeCoder {
		t.Fatalf("wrong agent: %s", a.Type())
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(agent.TypeDeployer)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAgent{agentType: agent.TypeTester}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&stubAgent{agentType: agent.TypeTester}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, at := range []agent.Type{agent.TypeTester, agent.TypeCoder, agent.TypeBuilder} {
		if err := r.Register(&stubAgent{agentType: at}); err != nil {
			t.Fatalf("register %s: %v", at, err)
		}
	}

	all := r.List()
	if len(all) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Type() >= all[i].Type() {
			t.Fatalf("list not sorted: %s before %s", all[i-1].Type(), all[i].Type())
		}
	}
}
