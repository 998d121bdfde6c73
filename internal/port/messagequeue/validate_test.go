package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateDispatch(t *testing.T) {
	data := []byte(`{"task_id":"t1","agent":"coder","prompt":"implement the parser"}`)
	if err := Validate(SubjectAgentDispatch+".coder", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateResult(t *testing.T) {
	data := []byte(`{"task_id":"t1","agent":"coder","success":true,"output":"done","artifacts":["main.go"]}`)
	if err := Validate(SubjectAgentResult, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateProgress(t *testing.T) {
	data := []byte(`{"task_id":"t1","completed":2,"total":5,"current":"t1-step-2"}`)
	if err := Validate(SubjectTaskProgress, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubjectPasses(t *testing.T) {
	if err := Validate("some.future.subject", []byte(`{"foo":"bar"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectAgentResult, []byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateWrongShape(t *testing.T) {
	err := Validate(SubjectAgentStatus, []byte(`"just a string"`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected schema error, got: %v", err)
	}
}
