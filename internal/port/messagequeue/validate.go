package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case strings.HasPrefix(subject, SubjectAgentDispatch+"."):
		target = &DispatchPayload{}
	case subject == SubjectAgentResult:
		target = &ResultPayload{}
	case subject == SubjectAgentStatus:
		target = &StatusPayload{}
	case subject == SubjectTaskProgress:
		target = &ProgressPayload{}
	case subject == SubjectActionState:
		target = &ActionStatePayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
