// Package comet provides an HTTP client for CometAPI-compatible video
// generation endpoints (Sora models behind the /videos surface).
package comet

import "encoding/json"

// State represents the state of a CometAPI video generation.
type State string

// CometAPI generation states.
const (
	StateQueued     State = "queued"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// IsTerminal returns true if the state is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CreateOptions contains the parameters for creating a video.
type CreateOptions struct {
	Prompt         string // Video description
	Model          string // e.g. "sora-2", "sora-2-pro"
	Seconds        int    // Clip duration (4, 8, or 12 for Sora models)
	Size           string // Resolution as "WxH", e.g. "720x1280"
	ReferenceImage []byte // Optional PNG bytes for image-seeded generation
}

// createResponse is the response from POST /videos.
type createResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// statusResponse is the response from GET /videos/{id}.
type statusResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
	// The output URL field name varies across deployments.
	VideoURL  string `json:"video_url,omitempty"`
	URL       string `json:"url,omitempty"`
	ResultURL string `json:"result_url,omitempty"`
}

// outputURL returns the first populated output URL variant.
func (r *statusResponse) outputURL() string {
	switch {
	case r.VideoURL != "":
		return r.VideoURL
	case r.URL != "":
		return r.URL
	default:
		return r.ResultURL
	}
}

// errorMessage extracts a message from the error field, which is either
// a bare string or an object with a "message" key.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// StatusResult contains the result of polling a generation.
type StatusResult struct {
	State     State
	Progress  int    // 0-100 when reported
	Error     string // Only set when State is StateFailed
	OutputURL string // Only set when State is StateCompleted and a URL was returned
}
