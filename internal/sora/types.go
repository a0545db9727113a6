package sora

import "encoding/json"

// State represents the lifecycle state of a video generation.
type State string

const (
	StateQueued     State = "queued"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CreateOptions describes a new video generation request.
type CreateOptions struct {
	Prompt         string
	Model          string
	Seconds        int
	Size           string
	ReferenceImage []byte
}

type createRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Seconds string `json:"seconds"`
	Size    string `json:"size"`
}

type remixRequest struct {
	Prompt string `json:"prompt"`
}

type videoResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Error    json.RawMessage `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
}

// errorMessage extracts a human-readable message from the error field,
// which the API returns either as a bare string or as an object.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj apiError
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// StatusResult is the normalized outcome of a status check.
type StatusResult struct {
	State    State
	Progress int
	Error    string
}
