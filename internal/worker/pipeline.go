// Package worker executes queued tasks: it claims them, drives the
// generation provider, composes multi-clip results, and delivers the
// finished video.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vidforge/vidforge/internal/delivery"
	"github.com/vidforge/vidforge/internal/generation"
	"github.com/vidforge/vidforge/internal/media"
	"github.com/vidforge/vidforge/internal/results"
	"github.com/vidforge/vidforge/internal/storage"
	"github.com/vidforge/vidforge/internal/task"
)

var (
	// ErrPollTimeout is returned when a generation does not reach a
	// terminal state within the polling ceiling.
	ErrPollTimeout = errors.New("generation polling timed out")
	// ErrGenerationFailed is returned when the provider reports failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// FailureNotice is the message sent to the destination when a task
// fails. It is deliberately generic: provider error text stays
// server-side, in the task row and the logs.
const FailureNotice = "Unfortunately, video generation failed. Please try again."

// Pipeline drives a claimed task from creation through delivery.
type Pipeline struct {
	repo         task.Repository
	gen          generation.Generator
	composer     media.Composer
	store        storage.Storage
	deliverer    delivery.Deliverer
	recent       results.Cache
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger
}

// NewPipeline assembles a Pipeline. pollInterval and pollTimeout bound
// the provider polling loop.
func NewPipeline(
	repo task.Repository,
	gen generation.Generator,
	composer media.Composer,
	store storage.Storage,
	deliverer delivery.Deliverer,
	recent results.Cache,
	pollInterval, pollTimeout time.Duration,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		repo:         repo,
		gen:          gen,
		composer:     composer,
		store:        store,
		deliverer:    deliverer,
		recent:       recent,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
}

// Run processes one task id from the queue. It claims the task first;
// ids whose task is no longer queued (redeliveries, cancellations) are
// skipped without error. Any processing failure is written to the task
// as a terminal state, so Run itself only errors on claim problems.
func (p *Pipeline) Run(ctx context.Context, taskID string) (err error) {
	claimed, ok, err := p.repo.Claim(ctx, taskID)
	if err != nil {
		return fmt.Errorf("claim task %s: %w", taskID, err)
	}
	if !ok {
		p.logger.Info("skipping task not in queued state", slog.String("task_id", taskID))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", slog.String("task_id", taskID), slog.Any("panic", r))
			p.failTask(ctx, claimed, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	p.logger.Info("task claimed",
		slog.String("task_id", claimed.ID),
		slog.String("kind", string(claimed.Kind)))

	video, generationID, runErr := p.produce(ctx, claimed)
	if runErr != nil {
		p.logger.Error("task failed",
			slog.String("task_id", claimed.ID),
			slog.String("error", runErr.Error()))
		p.failTask(ctx, claimed, runErr.Error())
		return nil
	}

	p.finish(ctx, claimed, video, generationID)
	return nil
}

// produce runs the generation flow for the task's kind and returns the
// finished video bytes plus the provider generation id behind them.
func (p *Pipeline) produce(ctx context.Context, t *task.Task) ([]byte, string, error) {
	if t.Kind == task.KindLongVideo && t.NumClips > 1 {
		return p.produceLong(ctx, t)
	}
	return p.produceSingle(ctx, t)
}

// produceSingle handles single-clip and remix tasks.
func (p *Pipeline) produceSingle(ctx context.Context, t *task.Task) ([]byte, string, error) {
	generationID, err := p.gen.Create(ctx, generation.CreateRequest{
		Prompt:          t.Prompt,
		Model:           t.Model,
		DurationSeconds: t.DurationSeconds,
		Size:            t.Resolution,
		ReferenceImage:  t.ReferenceImage,
		RemixSourceID:   t.RemixSourceID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create generation: %w", err)
	}

	if err := p.repo.Update(ctx, t.ID, func(stored *task.Task) error {
		return stored.SetGenerationID(generationID)
	}); err != nil {
		p.logger.Error("could not persist generation id",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
	}

	outputRef, err := p.poll(ctx, t.ID, generationID, func(progress int) int { return progress })
	if err != nil {
		return nil, "", err
	}

	video, err := p.gen.Download(ctx, outputRef)
	if err != nil {
		return nil, "", fmt.Errorf("download result: %w", err)
	}
	return video, generationID, nil
}

// produceLong renders each clip in sequence with continuation prompts
// and stitches them losslessly. Any clip failure fails the whole task;
// no partial result is delivered.
func (p *Pipeline) produceLong(ctx context.Context, t *task.Task) ([]byte, string, error) {
	var scratch []string
	defer func() {
		if len(scratch) > 0 {
			if err := p.store.CleanupTemp(context.WithoutCancel(ctx), scratch); err != nil {
				p.logger.Warn("scratch cleanup failed", slog.String("error", err.Error()))
			}
		}
	}()

	var lastGenerationID string
	for i := 0; i < t.NumClips; i++ {
		prompt := clipPrompt(t.Prompt, i, t.NumClips)

		generationID, err := p.gen.Create(ctx, generation.CreateRequest{
			Prompt:          prompt,
			Model:           t.Model,
			DurationSeconds: t.DurationSeconds,
			Size:            t.Resolution,
			ReferenceImage:  referenceForClip(t, i),
		})
		if err != nil {
			return nil, "", fmt.Errorf("create clip %d/%d: %w", i+1, t.NumClips, err)
		}
		lastGenerationID = generationID

		if i == 0 {
			if err := p.repo.Update(ctx, t.ID, func(stored *task.Task) error {
				return stored.SetGenerationID(generationID)
			}); err != nil {
				p.logger.Error("could not persist generation id",
					slog.String("task_id", t.ID),
					slog.String("error", err.Error()))
			}
		}

		clipIndex := i
		outputRef, err := p.poll(ctx, t.ID, generationID, func(progress int) int {
			return (clipIndex*100 + progress) / t.NumClips
		})
		if err != nil {
			return nil, "", fmt.Errorf("clip %d/%d: %w", i+1, t.NumClips, err)
		}

		clip, err := p.gen.Download(ctx, outputRef)
		if err != nil {
			return nil, "", fmt.Errorf("download clip %d/%d: %w", i+1, t.NumClips, err)
		}

		path, err := p.store.SaveTemp(ctx, fmt.Sprintf("%s_clip%d", t.ID, i), bytes.NewReader(clip))
		if err != nil {
			return nil, "", fmt.Errorf("spill clip %d/%d: %w", i+1, t.NumClips, err)
		}
		scratch = append(scratch, path)
	}

	clips := make([][]byte, 0, len(scratch))
	for i, path := range scratch {
		reader, err := p.store.LoadTemp(ctx, path)
		if err != nil {
			return nil, "", fmt.Errorf("load clip %d: %w", i+1, err)
		}
		clip, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read clip %d: %w", i+1, err)
		}
		clips = append(clips, clip)
	}

	video, err := p.composer.Stitch(ctx, clips)
	if err != nil {
		return nil, "", fmt.Errorf("stitch clips: %w", err)
	}
	return video, lastGenerationID, nil
}

// poll watches a generation until it completes, failing on provider
// error or when the ceiling elapses. mapProgress translates per-clip
// progress into overall task progress before it is persisted.
func (p *Pipeline) poll(ctx context.Context, taskID, generationID string, mapProgress func(int) int) (string, error) {
	deadline := time.NewTimer(p.pollTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("polling cancelled: %w", ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("%w after %s", ErrPollTimeout, p.pollTimeout)
		case <-ticker.C:
		}

		status, err := p.gen.Status(ctx, generationID)
		if err != nil {
			return "", fmt.Errorf("poll generation: %w", err)
		}

		if overall := mapProgress(status.Progress); overall > 0 {
			if err := p.repo.Update(ctx, taskID, func(stored *task.Task) error {
				stored.SetProgress(overall)
				return nil
			}); err != nil {
				p.logger.Warn("could not persist progress",
					slog.String("task_id", taskID),
					slog.String("error", err.Error()))
			}
		}

		switch status.State {
		case generation.StateCompleted:
			return status.OutputRef, nil
		case generation.StateFailed:
			if status.Error != "" {
				return "", fmt.Errorf("%w: %s", ErrGenerationFailed, status.Error)
			}
			return "", ErrGenerationFailed
		}
	}
}

// finish stores the result, marks the task completed, and delivers it.
// The completion write happens before delivery: a delivery failure
// leaves the task completed with the failure flagged for resend.
func (p *Pipeline) finish(ctx context.Context, t *task.Task, video []byte, generationID string) {
	resultRef, err := p.store.StoreResult(ctx, t.ID, bytes.NewReader(video))
	if err != nil {
		p.logger.Error("could not store result",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
		p.failTask(ctx, t, "store result: "+err.Error())
		return
	}

	if err := p.repo.Update(ctx, t.ID, func(stored *task.Task) error {
		return stored.Complete(resultRef)
	}); err != nil {
		p.logger.Error("could not mark task completed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
		return
	}

	if err := p.recent.RecordRecent(ctx, t.OwnerID, generationID); err != nil {
		p.logger.Warn("could not record recent generation",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
	}

	if _, err := p.deliverer.Deliver(ctx, t.ChatID, video, t.Prompt); err != nil {
		p.logger.Error("delivery failed, result kept for resend",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
		if updErr := p.repo.Update(ctx, t.ID, func(stored *task.Task) error {
			stored.SetDeliveryError(err.Error())
			return nil
		}); updErr != nil {
			p.logger.Error("could not record delivery error",
				slog.String("task_id", t.ID),
				slog.String("error", updErr.Error()))
		}
		return
	}

	p.logger.Info("task completed and delivered", slog.String("task_id", t.ID))
}

// failTask writes the terminal failed state and notifies the user.
func (p *Pipeline) failTask(ctx context.Context, t *task.Task, msg string) {
	// The terminal write must survive a cancelled worker context.
	ctx = context.WithoutCancel(ctx)

	if err := p.repo.Update(ctx, t.ID, func(stored *task.Task) error {
		if stored.IsTerminal() {
			return nil
		}
		return stored.Fail(msg)
	}); err != nil {
		p.logger.Error("could not mark task failed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
	}

	if err := p.deliverer.NotifyFailure(ctx, t.ChatID, FailureNotice); err != nil {
		p.logger.Warn("could not send failure notice",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
	}
}

// clipPrompt derives the per-clip prompt for composite videos. Later
// clips instruct the model to continue from the previous scene.
func clipPrompt(prompt string, index, total int) string {
	if index == 0 {
		return fmt.Sprintf("Part %d/%d: %s", index+1, total, prompt)
	}
	return fmt.Sprintf("Continue the video seamlessly from the previous scene. Part %d/%d: %s",
		index+1, total, prompt)
}

// referenceForClip limits the reference image to the first clip.
func referenceForClip(t *task.Task, index int) []byte {
	if index == 0 {
		return t.ReferenceImage
	}
	return nil
}
