// Package generation provides the common interface for video generation
// providers. A concrete provider is chosen once at process construction;
// the worker pipeline never branches on provider identity.
package generation

import "context"

// State represents the provider-side state of a generation.
type State string

// Common generation states across providers.
const (
	StateQueued     State = "queued"      // Accepted but not yet running
	StateInProgress State = "in_progress" // Rendering
	StateCompleted  State = "completed"   // Finished successfully
	StateFailed     State = "failed"      // Failed with error
)

// IsTerminal returns true if the state represents a final state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CreateRequest contains the parameters for starting a generation.
type CreateRequest struct {
	// Prompt is the generation prompt; for remixes, the change description.
	Prompt string
	// Model is the generation model identifier.
	Model string
	// DurationSeconds is the clip duration, already snapped to the
	// model's allowed set.
	DurationSeconds int
	// Size is the output resolution as "WxH".
	Size string
	// ReferenceImage holds optional image bytes for image-seeded generation.
	ReferenceImage []byte
	// RemixSourceID names an existing generation to derive from. Empty
	// for fresh generations.
	RemixSourceID string
}

// StatusResult contains the result of polling a generation's status.
type StatusResult struct {
	// State is the provider-side state mapped to the common set.
	State State
	// Progress is the completion percentage (0-100) when the provider
	// reports one.
	Progress int
	// Error is the provider's error message (failed only).
	Error string
	// OutputRef is the opaque handle to pass to Download (completed only).
	OutputRef string
}

// Generator defines the capability interface over an external rendering
// service: submit, poll, download.
type Generator interface {
	// Create starts a generation and returns the provider's id for it.
	Create(ctx context.Context, req CreateRequest) (generationID string, err error)

	// Status polls a generation.
	Status(ctx context.Context, generationID string) (StatusResult, error)

	// Download fetches the finished artifact named by OutputRef.
	Download(ctx context.Context, outputRef string) ([]byte, error)
}
