package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-dev/crucible/internal/adapter/ws"
	"github.com/crucible-dev/crucible/internal/domain/agent"
	"github.com/crucible-dev/crucible/internal/domain/decision"
	"github.com/crucible-dev/crucible/internal/domain/task"
	"github.com/crucible-dev/crucible/internal/port/checkpoint"
	"github.com/crucible-dev/crucible/internal/port/registry"
	"github.com/crucible-dev/crucible/internal/resilience"
	"github.com/crucible-dev/crucible/internal/runner"
	"github.com/crucible-dev/crucible/internal/service"
)

// Handlers bundles the orchestration services exposed over HTTP.
type Handlers struct {
	breaker      *resilience.Breaker
	registry     registry.Registry
	orchestrator *service.Orchestrator
	runner       *runner.Runner
	checkpoints  checkpoint.Scheduler
	hub          *ws.Hub

	now func() time.Time
}

// NewHandlers creates the handler set. hub may be nil, in which case the
// WebSocket endpoint responds 503.
func NewHandlers(
	breaker *resilience.Breaker,
	reg registry.Registry,
	orchestrator *service.Orchestrator,
	run *runner.Runner,
	checkpoints checkpoint.Scheduler,
	hub *ws.Hub,
) *Handlers {
	return &Handlers{
		breaker:      breaker,
		registry:     reg,
		orchestrator: orchestrator,
		runner:       run,
		checkpoints:  checkpoints,
		hub:          hub,
		now:          time.Now,
	}
}

// Health reports liveness and the current WebSocket connection count.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.hub != nil {
		resp["ws_connections"] = h.hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

type agentInfo struct {
	Type        agent.Type   `json:"type"`
	Description string       `json:"description"`
	Available   bool         `json:"available"`
	Status      agent.Status `json:"status"`
	Circuit     string       `json:"circuit"`
}

// ListAgents returns every registered agent with its availability and
// circuit state.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.registry.List()
	infos := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, agentInfo{
			Type:        a.Type(),
			Description: a.Description(),
			Available:   a.IsAvailable(),
			Status:      a.Status(),
			Circuit:     string(h.breaker.State(a.Type())),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// ListCircuits returns a stats snapshot for every known circuit.
func (h *Handlers) ListCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.breaker.StatsAll())
}

// GetCircuit returns the stats snapshot for one agent's circuit.
func (h *Handlers) GetCircuit(w http.ResponseWriter, r *http.Request) {
	t, err := agent.ParseType(urlParam(r, "agent"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.breaker.Stats(t))
}

// ResetCircuit force-closes one agent's circuit and clears its history.
func (h *Handlers) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	t, err := agent.ParseType(urlParam(r, "agent"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.breaker.Reset(t)
	writeJSON(w, http.StatusOK, h.breaker.Stats(t))
}

// ResetAllCircuits clears every circuit.
func (h *Handlers) ResetAllCircuits(w http.ResponseWriter, _ *http.Request) {
	h.breaker.ResetAll()
	writeJSON(w, http.StatusOK, h.breaker.StatsAll())
}

// decisionRequest carries one raw LLM response plus the task it answers.
type decisionRequest struct {
	Response decision.Response `json:"response"`
	Task     task.Task         `json:"task"`
}

type decisionResult struct {
	Decision *decision.Decision `json:"decision"`
	Result   *task.Result       `json:"result"`
}

// ExecuteDecision parses a raw LLM response into a decision and executes it
// against the given task. Validation failures are 400s; admission failures
// (open circuit, busy agent) come back 200 with success:false in the result.
func (h *Handlers) ExecuteDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	if req.Task.ID == "" {
		writeError(w, http.StatusBadRequest, "task.id is required")
		return
	}

	d, err := decision.Parse(&req.Response)
	if err != nil {
		writeDomainError(w, err, "invalid decision")
		return
	}

	result, err := h.orchestrator.ExecuteDecision(r.Context(), d, &req.Task)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResult{Decision: d, Result: result})
}

// ListCheckpoints returns the checkpoint trail for a task.
func (h *Handlers) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	records, err := h.checkpoints.List(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// RegisterAction enqueues one action for execution and returns its
// pending status.
func (h *Handlers) RegisterAction(w http.ResponseWriter, r *http.Request) {
	a, ok := readJSON[runner.Action](w, r)
	if !ok {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = h.now()
	}

	if err := h.runner.Register(a); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	status, _ := h.runner.Status(a.ID)
	writeJSON(w, http.StatusAccepted, status)
}

// ListActions returns a snapshot of every tracked action.
func (h *Handlers) ListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.All())
}

// GetAction returns one action's status.
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	status, ok := h.runner.Status(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// AbortAction requests cancellation of a pending or running action.
// Aborting an unknown or already-terminal action is a no-op.
func (h *Handlers) AbortAction(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	h.runner.Abort(id)
	status, ok := h.runner.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleWS upgrades the request to a WebSocket event stream.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	h.hub.HandleWS(w, r)
}
