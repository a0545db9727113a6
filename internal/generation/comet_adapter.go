package generation

import (
	"context"
	"fmt"

	"github.com/vidforge/vidforge/internal/comet"
)

// CometGenerator adapts the CometAPI client to the Generator interface.
// The API has no remix endpoint, so remixes are expressed as fresh
// generations with a derived prompt.
type CometGenerator struct {
	client comet.Client
}

var _ Generator = (*CometGenerator)(nil)

// NewCometGenerator creates a Generator backed by the CometAPI.
func NewCometGenerator(client comet.Client) *CometGenerator {
	return &CometGenerator{client: client}
}

// Create starts a generation. Remix requests are rewritten into a
// derived prompt because the provider cannot reference prior output.
func (g *CometGenerator) Create(ctx context.Context, req CreateRequest) (string, error) {
	prompt := req.Prompt
	if req.RemixSourceID != "" {
		prompt = fmt.Sprintf("Based on the previous video, apply the following changes: %s", req.Prompt)
	}

	return g.client.Create(ctx, comet.CreateOptions{
		Prompt:         prompt,
		Model:          req.Model,
		Seconds:        req.DurationSeconds,
		Size:           req.Size,
		ReferenceImage: req.ReferenceImage,
	})
}

// Status polls a generation and maps the provider state.
func (g *CometGenerator) Status(ctx context.Context, generationID string) (StatusResult, error) {
	res, err := g.client.Status(ctx, generationID)
	if err != nil {
		return StatusResult{}, err
	}

	out := StatusResult{
		State:    mapCometState(res.State),
		Progress: res.Progress,
		Error:    res.Error,
	}
	if out.State == StateCompleted {
		// Prefer the direct output URL; fall back to the generation ID,
		// which Download resolves through the authenticated endpoint.
		out.OutputRef = res.OutputURL
		if out.OutputRef == "" {
			out.OutputRef = generationID
		}
	}
	return out, nil
}

// Download fetches the finished video bytes.
func (g *CometGenerator) Download(ctx context.Context, outputRef string) ([]byte, error) {
	return g.client.Download(ctx, outputRef)
}

func mapCometState(s comet.State) State {
	switch s {
	case comet.StateQueued:
		return StateQueued
	case comet.StateInProgress:
		return StateInProgress
	case comet.StateCompleted:
		return StateCompleted
	case comet.StateFailed:
		return StateFailed
	default:
		return State(s)
	}
}
