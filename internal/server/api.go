package server

import "github.com/randalmurphal/taskgraph/pkg/taskgraph"

// RunRequest starts a run. Query is copied into the workflow's input field
// unless Inputs sets that field itself.
type RunRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	MaxSteps  int            `json:"max_steps,omitempty"`
}

// ResumeRequest resumes a suspended run. Updates are merged into the
// suspended state with the usual field strategies.
type ResumeRequest struct {
	Updates map[string]any `json:"updates,omitempty"`
}

// RunResponse reports how a run or resume ended.
type RunResponse struct {
	RunID     string         `json:"run_id"`
	SessionID string         `json:"session_id"`
	Workflow  string         `json:"workflow"`
	Status    string         `json:"status"`
	State     map[string]any `json:"state"`
	Node      string         `json:"node,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Steps     int            `json:"steps"`
	Path      []string       `json:"path"`
	Error     *ErrorBody     `json:"error,omitempty"`
	Cached    bool           `json:"cached,omitempty"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WorkflowInfo describes a registered workflow.
type WorkflowInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Input       string `json:"input,omitempty"`
}

func newRunResponse(workflow, sessionID string, result taskgraph.Result, err error) RunResponse {
	resp := RunResponse{
		RunID:     result.RunID,
		SessionID: sessionID,
		Workflow:  workflow,
		Status:    result.Status.String(),
		State:     result.State.Snapshot(),
		Node:      result.Node,
		Reason:    result.Reason,
		Steps:     result.Steps,
		Path:      result.Path,
	}
	if resp.Path == nil {
		resp.Path = []string{}
	}
	if err != nil {
		resp.Error = &ErrorBody{Kind: taskgraph.KindOf(err).String(), Message: err.Error()}
	}
	return resp
}
