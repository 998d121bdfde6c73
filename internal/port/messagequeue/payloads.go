package messagequeue

// DispatchPayload is the schema for agents.dispatch.{type} messages.
type DispatchPayload struct {
	TaskID     string            `json:"task_id"`
	Agent      string            `json:"agent"`
	Prompt     string            `json:"prompt"`
	Context    map[string]string `json:"context,omitempty"`
	Credential string            `json:"credential,omitempty"`
}

// ResultPayload is the schema for agents.result messages.
type ResultPayload struct {
	TaskID    string   `json:"task_id"`
	Agent     string   `json:"agent"`
	Success   bool     `json:"success"`
	Output    string   `json:"output"`
	Artifacts []string `json:"artifacts,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// StatusPayload is the schema for agents.status messages.
type StatusPayload struct {
	Agent     string `json:"agent"`
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

// ProgressPayload is the schema for tasks.progress messages.
type ProgressPayload struct {
	TaskID    string `json:"task_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current"`
}

// ActionStatePayload is the schema for actions.state messages.
type ActionStatePayload struct {
	ActionID string `json:"action_id"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}
