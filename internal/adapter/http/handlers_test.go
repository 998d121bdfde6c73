package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/domain"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/decision"
	"github.com/crucible-dev/crucible/internal/domain/task"
	"github.com/crucible-dev/crucible/internal/port/checkpoint"
	"github.com/crucible-dev/crucible/internal/port/registry"
	"github.com/crucible-dev/crucible/internal/resilience"
	"github.com/crucible-dev/crucible/internal/service"
)

type stubAgent struct {
	agentType agent.Type
	result    *task.Result
}

func (s *stubAgent) Type() agent.Type     { return s.agentType }
func (s *stubAgent) Description() string  { return "stub" }
func (s *stubAgent) IsAvailable() bool    { return true }
func (s *stubAgent) Status() agent.Status { return agent.StatusIdle }

func (s *stubAgent) Run(_ context.Context, _ *task.Task, _ string) (*task.Result, error) {
	if s.result != nil {
		return s.result, nil
	}
	return &task.Result{Success: true, Output: "ok"}, nil
}

type stubRegistry struct {
	agents map[agent.Type]registry.Agent
}

func (s *stubRegistry) Get(t agent.Type) (registry.Agent, error) {
	a, ok := s.agents[t]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *stubRegistry) List() []registry.Agent {
	out := make([]registry.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

type stubCheckpoints struct {
	records []checkpoint.Record
}

func (s *stubCheckpoints) CreateDelegationCheckpoint(context.Context, string, string, checkpoint.Phase) error {
	return nil
}
func (s *stubCheckpoints) CreateSubtaskCheckpoint(context.Context, string, string) error { return nil }
func (s *stubCheckpoints) CreateErrorCheckpoint(context.Context, string, string) error   { return nil }

func (s *stubCheckpoints) List(_ context.Context, taskID string) ([]checkpoint.Record, error) {
	var out []checkpoint.Record
	for _, r := range s.records {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubCheckpoints) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func newTestServer(t *testing.T) (*httptest.Server, *resilience.Breaker) {
	t.Helper()

	br := resilience.NewBreaker(resilience.Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		FailureWindow:    time.Minute,
	})
	reg := &stubRegistry{agents: map[agent.Type]registry.Agent{
		agent.TypeCoder: &stubAgent{agentType: agent.TypeCoder},
	}}
	cps := &stubCheckpoints{records: []checkpoint.Record{
		{ID: "cp-1", TaskID: "task-1", Kind: checkpoint.KindDelegation},
	}}
	orch := service.NewOrchestrator(br, reg, cps, nil, nil, nil, config.Orchestrator{
		MaxConcurrency:        3,
		SubtaskTimeout:        time.Minute,
		MaxDecompositionDepth: 3,
		ContinueOnError:       true,
	})
	h := NewHandlers(br, reg, orch, nil, cps, nil)

	srv := httptest.NewServer(NewRouter(h, config.Server{CORSOrigin: "*"}))
	t.Cleanup(srv.Close)
	return srv, br
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestListAgents(t *testing.T) {
	srv, _ := newTestServer(t)

	var agents []agentInfo
	if code := getJSON(t, srv.URL+"/api/v1/agents", &agents); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(agents) != 1 || agents[0].Type != agent.TypeCoder {
		t.Fatalf("unexpected agents: %v", agents)
	}
	if agents[0].Circuit != string(resilience.StateClosed) {
		t.Fatalf("unexpected circuit state: %s", agents[0].Circuit)
	}
}

func TestCircuitEndpoints(t *testing.T) {
	srv, br := newTestServer(t)
	br.ForceOpen(agent.TypeCoder)

	var stats resilience.Stats
	if code := getJSON(t, srv.URL+"/api/v1/circuits/coder", &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if stats.State != resilience.StateOpen {
		t.Fatalf("expected open circuit, got %s", stats.State)
	}

	if code := postJSON(t, srv.URL+"/api/v1/circuits/coder/reset", nil, &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if stats.State != resilience.StateClosed {
		t.Fatalf("reset did not close the circuit: %s", stats.State)
	}
}

func TestGetCircuitUnknownAgent(t *testing.T) {
	srv, _ := newTestServer(t)

	if code := getJSON(t, srv.URL+"/api/v1/circuits/wizard", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown agent type, got %d", code)
	}
}

func TestExecuteDecisionDelegates(t *testing.T) {
	srv, _ := newTestServer(t)

	req := decisionRequest{
		Response: decision.Response{
			ToolCall: &decision.ToolCall{
				Name:      decision.ToolDelegate,
				Arguments: json.RawMessage(`{"agent":"coder","task":"write the handler"}`),
			},
		},
		Task: task.Task{ID: "task-1", Prompt: "build it"},
	}

	var out decisionResult
	if code := postJSON(t, srv.URL+"/api/v1/decisions", req, &out); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if out.Decision.Action != decision.ActionDelegate {
		t.Fatalf("unexpected action: %s", out.Decision.Action)
	}
	if !out.Result.Success {
		t.Fatalf("expected successful delegation, got %+v", out.Result)
	}
}

func TestExecuteDecisionValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	req := decisionRequest{
		Response: decision.Response{
			ToolCall: &decision.ToolCall{Name: "unknown_tool", Arguments: json.RawMessage(`{}`)},
		},
		Task: task.Task{ID: "task-1"},
	}

	if code := postJSON(t, srv.URL+"/api/v1/decisions", req, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid tool, got %d", code)
	}
}

func TestExecuteDecisionRequiresTaskID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := decisionRequest{Response: decision.Response{Text: "done"}}
	if code := postJSON(t, srv.URL+"/api/v1/decisions", req, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing task id, got %d", code)
	}
}

func TestListCheckpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	var records []checkpoint.Record
	if code := getJSON(t, srv.URL+"/api/v1/tasks/task-1/checkpoints", &records); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(records) != 1 || records[0].ID != "cp-1" {
		t.Fatalf("unexpected records: %v", records)
	}
}

func TestBearerAuthRejectsWithoutToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	br := resilience.NewBreaker(resilience.Config{FailureThreshold: 3, SuccessThreshold: 2, ResetTimeout: time.Second, FailureWindow: time.Minute})
	reg := &stubRegistry{agents: map[agent.Type]registry.Agent{}}
	h := NewHandlers(br, reg, nil, nil, &stubCheckpoints{}, nil)
	srv := httptest.NewServer(NewRouter(h, config.Server{CORSOrigin: "*", APITokenHash: string(hash)}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/agents")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// Health stays open even with auth enabled.
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", resp.StatusCode)
	}

	// Correct token passes.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", resp.StatusCode)
	}
}
