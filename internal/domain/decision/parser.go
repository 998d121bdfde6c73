package decision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crucible-dev/crucible/internal/domain/agent"
)

// Tool names the orchestrator LLM may invoke.
const (
	ToolDelegate       = "delegate_to_agent"
	ToolCreateSubtasks = "create_subtasks"
	ToolCompleteTask   = "complete_task"
)

// MaxSubtasks caps the number of entries accepted in a create_subtasks call.
const MaxSubtasks = 20

// minTaskLength below which a task description is logged as suspicious.
const minTaskLength = 10

// ToolCall is a single structured tool invocation from the LLM.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is the raw material for one orchestration decision: the text the
// LLM produced and, optionally, the tool it invoked.
type Response struct {
	Text     string    `json:"text"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// Parse validates and normalizes an LLM response into exactly one decision.
// Any validation failure is fatal for the decision cycle: the returned error
// is a *ValidationError and no partial decision is produced.
func Parse(resp *Response) (*Decision, error) {
	if resp.ToolCall == nil {
		if strings.TrimSpace(resp.Text) == "" {
			slog.Warn("empty response with no tool call, executing directly anyway")
		}
		return &Decision{
			Action:    ActionExecuteDirectly,
			Response:  resp.Text,
			Reasoning: "no tool call in response",
		}, nil
	}

	switch resp.ToolCall.Name {
	case ToolDelegate:
		return parseDelegate(resp.ToolCall)
	case ToolCreateSubtasks:
		return parseCreateSubtasks(resp.ToolCall)
	case ToolCompleteTask:
		return parseCompleteTask(resp.ToolCall)
	default:
		return nil, &ValidationError{
			Tool:   resp.ToolCall.Name,
			Reason: "unknown tool",
			Input:  truncate(string(resp.ToolCall.Arguments), 200),
		}
	}
}

type delegateArgs struct {
	Agent   string            `json:"agent"`
	Task    string            `json:"task"`
	Context map[string]string `json:"context,omitempty"`
}

func parseDelegate(call *ToolCall) (*Decision, error) {
	var args delegateArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, &ValidationError{
			Tool:   call.Name,
			Reason: fmt.Sprintf("malformed arguments: %v", err),
			Input:  truncate(string(call.Arguments), 200),
		}
	}

	target, err := agent.ParseType(args.Agent)
	if err != nil {
		return nil, &ValidationError{
			Tool:   call.Name,
			Reason: err.Error(),
			Input:  truncate(string(call.Arguments), 200),
		}
	}

	taskDesc := strings.TrimSpace(args.Task)
	if taskDesc == "" {
		return nil, &ValidationError{Tool: call.Name, Reason: "task must be a non-empty string"}
	}
	if len(taskDesc) < minTaskLength {
		slog.Warn("suspiciously short delegation task", "agent", target, "task", taskDesc)
	}

	return &Decision{
		Action:      ActionDelegate,
		TargetAgent: target,
		Task:        taskDesc,
		Context:     args.Context,
		Reasoning:   fmt.Sprintf("delegated to %s", target),
	}, nil
}

type subtaskArgs struct {
	Tasks []struct {
		Description string `json:"description"`
		Agent       string `json:"agent,omitempty"`
		DependsOn   []int  `json:"dependsOn,omitempty"`
		Priority    int    `json:"priority,omitempty"`
	} `json:"tasks"`
	Reasoning string `json:"reasoning,omitempty"`
}

func parseCreateSubtasks(call *ToolCall) (*Decision, error) {
	var args subtaskArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, &ValidationError{
			Tool:   call.Name,
			Reason: fmt.Sprintf("malformed arguments: %v", err),
			Input:  truncate(string(call.Arguments), 200),
		}
	}

	if len(args.Tasks) == 0 {
		return nil, &ValidationError{Tool: call.Name, Reason: "tasks must be a non-empty array"}
	}
	if len(args.Tasks) > MaxSubtasks {
		return nil, &ValidationError{
			Tool:   call.Name,
			Reason: fmt.Sprintf("too many subtasks: %d (max %d)", len(args.Tasks), MaxSubtasks),
		}
	}

	subtasks := make([]Subtask, len(args.Tasks))
	for i, t := range args.Tasks {
		desc := strings.TrimSpace(t.Description)
		if desc == "" {
			return nil, &ValidationError{
				Tool:   call.Name,
				Reason: fmt.Sprintf("subtask %d has no description", i),
			}
		}

		agentType := agent.TypeCoder // default worker
		if t.Agent != "" {
			parsed, err := agent.ParseType(t.Agent)
			if err != nil {
				return nil, &ValidationError{
					Tool:   call.Name,
					Reason: fmt.Sprintf("subtask %d: %v", i, err),
				}
			}
			agentType = parsed
		}

		deps := make([]string, 0, len(t.DependsOn))
		for _, d := range t.DependsOn {
			if d < 0 || d >= len(args.Tasks) {
				return nil, &ValidationError{
					Tool:   call.Name,
					Reason: fmt.Sprintf("subtask %d: dependency index %d out of range [0,%d)", i, d, len(args.Tasks)),
				}
			}
			if d >= i {
				// Forward or self reference. Accepted but flagged: the
				// dependency graph will reject it only if it forms a cycle.
				slog.Warn("subtask dependency references a later subtask",
					"subtask", i,
					"depends_on", d,
				)
			}
			deps = append(deps, fmt.Sprintf("subtask-%d", d))
		}

		subtasks[i] = Subtask{
			Type:         agentType,
			Prompt:       desc,
			Dependencies: deps,
			Priority:     t.Priority,
		}
	}

	return &Decision{
		Action:    ActionDecompose,
		Subtasks:  subtasks,
		Reasoning: args.Reasoning,
	}, nil
}

type completeArgs struct {
	Result    string `json:"result"`
	Summary   string `json:"summary,omitempty"`
	Artifacts []any  `json:"artifacts,omitempty"`
}

func parseCompleteTask(call *ToolCall) (*Decision, error) {
	var args completeArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, &ValidationError{
			Tool:   call.Name,
			Reason: fmt.Sprintf("malformed arguments: %v", err),
			Input:  truncate(string(call.Arguments), 200),
		}
	}

	if strings.TrimSpace(args.Result) == "" {
		return nil, &ValidationError{Tool: call.Name, Reason: "result must be a non-empty string"}
	}

	var artifacts []string
	for i, a := range args.Artifacts {
		s, ok := a.(string)
		if !ok {
			slog.Warn("dropping non-string artifact entry", "index", i, "value", fmt.Sprintf("%v", a))
			continue
		}
		artifacts = append(artifacts, s)
	}

	reasoning := args.Summary
	if reasoning == "" {
		reasoning = "task complete"
	}

	return &Decision{
		Action:    ActionComplete,
		Response:  args.Result,
		Artifacts: artifacts,
		Reasoning: reasoning,
	}, nil
}

// truncate shortens s to at most n bytes for log/error output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
