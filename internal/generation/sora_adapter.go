package generation

import (
	"context"

	"github.com/vidforge/vidforge/internal/sora"
)

// SoraGenerator adapts the OpenAI Videos client to the Generator
// interface. Remixes use the provider's native remix endpoint.
type SoraGenerator struct {
	client sora.Client
}

var _ Generator = (*SoraGenerator)(nil)

// NewSoraGenerator creates a Generator backed by the OpenAI Videos API.
func NewSoraGenerator(client sora.Client) *SoraGenerator {
	return &SoraGenerator{client: client}
}

// Create starts a generation, routing remix requests to the remix endpoint.
func (g *SoraGenerator) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.RemixSourceID != "" {
		return g.client.Remix(ctx, req.RemixSourceID, req.Prompt)
	}

	return g.client.Create(ctx, sora.CreateOptions{
		Prompt:         req.Prompt,
		Model:          req.Model,
		Seconds:        req.DurationSeconds,
		Size:           req.Size,
		ReferenceImage: req.ReferenceImage,
	})
}

// Status polls a generation and maps the provider state. Completed
// generations are downloaded by ID through the content endpoint.
func (g *SoraGenerator) Status(ctx context.Context, generationID string) (StatusResult, error) {
	res, err := g.client.Status(ctx, generationID)
	if err != nil {
		return StatusResult{}, err
	}

	out := StatusResult{
		State:    mapSoraState(res.State),
		Progress: res.Progress,
		Error:    res.Error,
	}
	if out.State == StateCompleted {
		out.OutputRef = generationID
	}
	return out, nil
}

// Download fetches the finished video bytes.
func (g *SoraGenerator) Download(ctx context.Context, outputRef string) ([]byte, error) {
	return g.client.Download(ctx, outputRef)
}

func mapSoraState(s sora.State) State {
	switch s {
	case sora.StateQueued:
		return StateQueued
	case sora.StateInProgress:
		return StateInProgress
	case sora.StateCompleted:
		return StateCompleted
	case sora.StateFailed:
		return StateFailed
	default:
		return State(s)
	}
}
