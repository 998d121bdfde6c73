package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/crucible-dev/crucible/internal/domain/agent"
)

func call(t *testing.T, name string, args any) *ToolCall {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return &ToolCall{Name: name, Arguments: raw}
}

func TestParseNoToolCallExecutesDirectly(t *testing.T) {
	d, err := Parse(&Response{Text: "I will just answer this myself."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionExecuteDirectly {
		t.Fatalf("expected execute_directly, got %s", d.Action)
	}
	if d.Response != "I will just answer this myself." {
		t.Fatalf("response text not carried through: %q", d.Response)
	}
}

func TestParseEmptyResponseStillExecutesDirectly(t *testing.T) {
	d, err := Parse(&Response{Text: "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionExecuteDirectly {
		t.Fatalf("expected execute_directly, got %s", d.Action)
	}
	// The original text is preserved, not replaced with synthesized content.
	if strings.TrimSpace(d.Response) != "" {
		t.Fatalf("expected empty response preserved, got %q", d.Response)
	}
}

func TestParseDelegate(t *testing.T) {
	d, err := Parse(&Response{ToolCall: call(t, ToolDelegate, map[string]any{
		"agent":   "Tester",
		"task":    "run the integration suite against staging",
		"context": map[string]string{"branch": "main"},
	})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionDelegate {
		t.Fatalf("expected delegate, got %s", d.Action)
	}
	if d.TargetAgent != agent.TypeTester {
		t.Fatalf("agent name should be case-folded, got %s", d.TargetAgent)
	}
	if d.Context["branch"] != "main" {
		t.Fatalf("context not carried through: %v", d.Context)
	}
}

func TestParseDelegateUnknownAgent(t *testing.T) {
	_, err := Parse(&Response{ToolCall: call(t, ToolDelegate, map[string]any{
		"agent": "wizard",
		"task":  "cast a spell over the build",
	})})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Tool != ToolDelegate {
		t.Fatalf("error should name the tool, got %q", verr.Tool)
	}
}

func TestParseDelegateEmptyTask(t *testing.T) {
	_, err := Parse(&Response{ToolCall: call(t, ToolDelegate, map[string]any{
		"agent": "coder",
		"task":  "   ",
	})})
	if err == nil {
		t.Fatal("expected error for blank task")
	}
}

func TestParseSubtasksRewritesDependencyIndices(t *testing.T) {
	d, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": []map[string]any{
			{"description": "scaffold the new api package"},
			{"description": "wire handlers into the router", "dependsOn": []int{0}},
		},
	})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionDecompose {
		t.Fatalf("expected decompose, got %s", d.Action)
	}
	if len(d.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(d.Subtasks))
	}
	deps := d.Subtasks[1].Dependencies
	if len(deps) != 1 || deps[0] != "subtask-0" {
		t.Fatalf("expected dependsOn rewritten to subtask-0, got %v", deps)
	}
}

func TestParseSubtasksDefaultAgent(t *testing.T) {
	d, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": []map[string]any{{"description": "implement the retry logic"}},
	})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Subtasks[0].Type != agent.TypeCoder {
		t.Fatalf("expected default agent coder, got %s", d.Subtasks[0].Type)
	}
}

func TestParseSubtasksOutOfRangeDependencyFails(t *testing.T) {
	for _, idx := range []int{-1, 2, 99} {
		_, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
			"tasks": []map[string]any{
				{"description": "first step of the plan"},
				{"description": "second step of the plan", "dependsOn": []int{idx}},
			},
		})})
		if err == nil {
			t.Fatalf("expected error for dependency index %d", idx)
		}
	}
}

func TestParseSubtasksForwardReferenceAccepted(t *testing.T) {
	d, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": []map[string]any{
			{"description": "finish after the next one", "dependsOn": []int{1}},
			{"description": "runs first despite its position"},
		},
	})})
	if err != nil {
		t.Fatalf("forward reference within range must not fail: %v", err)
	}
	if d.Subtasks[0].Dependencies[0] != "subtask-1" {
		t.Fatalf("unexpected rewrite: %v", d.Subtasks[0].Dependencies)
	}
}

func TestParseSubtasksCountLimit(t *testing.T) {
	makeTasks := func(n int) []map[string]any {
		tasks := make([]map[string]any, n)
		for i := range tasks {
			tasks[i] = map[string]any{"description": fmt.Sprintf("step number %d of the plan", i)}
		}
		return tasks
	}

	if _, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": makeTasks(MaxSubtasks),
	})}); err != nil {
		t.Fatalf("%d subtasks should be accepted: %v", MaxSubtasks, err)
	}

	_, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": makeTasks(MaxSubtasks + 1),
	})})
	if err == nil {
		t.Fatalf("%d subtasks should be rejected", MaxSubtasks+1)
	}
}

func TestParseSubtasksEmptyArrayFails(t *testing.T) {
	_, err := Parse(&Response{ToolCall: call(t, ToolCreateSubtasks, map[string]any{
		"tasks": []map[string]any{},
	})})
	if err == nil {
		t.Fatal("expected error for empty tasks array")
	}
}

func TestParseComplete(t *testing.T) {
	d, err := Parse(&Response{ToolCall: call(t, ToolCompleteTask, map[string]any{
		"result":    "all endpoints migrated",
		"summary":   "migration finished",
		"artifacts": []any{"api/server.go", 42, "api/routes.go"},
	})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != ActionComplete {
		t.Fatalf("expected complete, got %s", d.Action)
	}
	// Non-string artifact entries are dropped, not fatal.
	if len(d.Artifacts) != 2 || d.Artifacts[0] != "api/server.go" || d.Artifacts[1] != "api/routes.go" {
		t.Fatalf("unexpected artifacts: %v", d.Artifacts)
	}
}

func TestParseCompleteRequiresResult(t *testing.T) {
	_, err := Parse(&Response{ToolCall: call(t, ToolCompleteTask, map[string]any{
		"summary": "done, trust me",
	})})
	if err == nil {
		t.Fatal("expected error for missing result")
	}
}

func TestParseUnknownTool(t *testing.T) {
	_, err := Parse(&Response{ToolCall: call(t, "launch_missiles", map[string]any{})})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestParseMalformedArguments(t *testing.T) {
	_, err := Parse(&Response{ToolCall: &ToolCall{
		Name:      ToolDelegate,
		Arguments: json.RawMessage(`{"agent": `),
	}})
	if err == nil {
		t.Fatal("expected error for malformed JSON arguments")
	}
}
