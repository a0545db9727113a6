package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vidforge/vidforge/internal/catalog"
	"github.com/vidforge/vidforge/internal/queue"
	"github.com/vidforge/vidforge/internal/results"
)

var (
	// ErrPromptRequired is returned when a submission carries no prompt.
	ErrPromptRequired = errors.New("prompt is required")
	// ErrNoRecentResults is returned when a remix has nothing to derive from.
	ErrNoRecentResults = errors.New("no recent results to remix")
	// ErrRemixIndexOutOfRange is returned when the requested recent index
	// does not exist.
	ErrRemixIndexOutOfRange = errors.New("remix index out of range")
	// ErrSourceNotRemixable is returned when the remix source task has
	// no completed generation behind it.
	ErrSourceNotRemixable = errors.New("source task is not remixable")
)

// Service coordinates task submission: validation, durable persistence,
// and handoff to the work queue.
type Service struct {
	repo     Repository
	queue    queue.Queue
	recent   results.Cache
	maxClips int
	logger   *slog.Logger
}

// NewService creates a Service. maxClips bounds composite requests.
func NewService(repo Repository, q queue.Queue, recent results.Cache, maxClips int, logger *slog.Logger) *Service {
	if maxClips < 1 {
		maxClips = 1
	}
	return &Service{
		repo:     repo,
		queue:    q,
		recent:   recent,
		maxClips: maxClips,
		logger:   logger,
	}
}

// SubmitParams describes a new generation request.
type SubmitParams struct {
	OwnerID         int64
	ChatID          int64
	Prompt          string
	Model           string
	DurationSeconds int
	NumClips        int
	Resolution      string
	ReferenceImage  []byte
}

// Submit validates the request, persists a queued task, and enqueues it.
// The row is written before the enqueue so a broker failure can be
// recorded against it.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Task, error) {
	if params.Prompt == "" {
		return nil, ErrPromptRequired
	}

	model := params.Model
	if model == "" {
		model = catalog.DefaultModel
	}
	if !catalog.ValidModel(model) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownModel, model)
	}

	resolution := params.Resolution
	if resolution == "" {
		resolution = catalog.DefaultResolution
	}
	if !catalog.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownResolution, resolution)
	}

	duration, err := catalog.SnapDuration(model, params.DurationSeconds)
	if err != nil {
		return nil, err
	}

	numClips := params.NumClips
	if numClips < 1 {
		numClips = 1
	}
	if numClips > s.maxClips {
		numClips = s.maxClips
	}

	t := New()
	t.OwnerID = params.OwnerID
	t.ChatID = params.ChatID
	t.Prompt = params.Prompt
	t.Model = model
	t.DurationSeconds = duration
	t.NumClips = numClips
	t.Resolution = resolution
	t.ReferenceImage = params.ReferenceImage
	if numClips > 1 {
		t.Kind = KindLongVideo
	}

	return s.persistAndEnqueue(ctx, t)
}

// RemixParams describes a remix request. RecentIndex selects from the
// owner's recent generations, 0 being the newest.
type RemixParams struct {
	OwnerID     int64
	ChatID      int64
	Prompt      string
	RecentIndex int
	Model       string
	Resolution  string
}

// SubmitRemix resolves the remix source from the owner's recent
// generations and submits a remix task.
func (s *Service) SubmitRemix(ctx context.Context, params RemixParams) (*Task, error) {
	if params.Prompt == "" {
		return nil, ErrPromptRequired
	}

	recent, err := s.recent.Recent(ctx, params.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("look up recent results: %w", err)
	}
	if len(recent) == 0 {
		return nil, ErrNoRecentResults
	}
	if params.RecentIndex < 0 || params.RecentIndex >= len(recent) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRemixIndexOutOfRange, params.RecentIndex, len(recent))
	}

	model := params.Model
	if model == "" {
		model = catalog.DefaultModel
	}
	if !catalog.ValidModel(model) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownModel, model)
	}

	resolution := params.Resolution
	if resolution == "" {
		resolution = catalog.DefaultResolution
	}
	if !catalog.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownResolution, resolution)
	}

	// Remix duration follows the source generation on the provider
	// side; use the model's minimum as the recorded value.
	duration, err := catalog.SnapDuration(model, 0)
	if err != nil {
		return nil, err
	}

	t := New()
	t.Kind = KindRemix
	t.OwnerID = params.OwnerID
	t.ChatID = params.ChatID
	t.Prompt = params.Prompt
	t.Model = model
	t.DurationSeconds = duration
	t.Resolution = resolution
	t.RemixSourceID = recent[params.RecentIndex]

	return s.persistAndEnqueue(ctx, t)
}

// SubmitRemixOf submits a remix derived from an existing completed
// task. The source must have finished successfully so a provider
// generation exists to derive from.
func (s *Service) SubmitRemixOf(ctx context.Context, sourceTaskID, prompt string) (*Task, error) {
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	source, err := s.repo.FindByID(ctx, sourceTaskID)
	if err != nil {
		return nil, err
	}
	if source.Status != StatusCompleted || source.GenerationID == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrSourceNotRemixable, sourceTaskID, source.Status)
	}

	t := New()
	t.Kind = KindRemix
	t.OwnerID = source.OwnerID
	t.ChatID = source.ChatID
	t.Prompt = prompt
	t.Model = source.Model
	t.DurationSeconds = source.DurationSeconds
	t.Resolution = source.Resolution
	t.RemixSourceID = source.GenerationID

	return s.persistAndEnqueue(ctx, t)
}

// persistAndEnqueue writes the queued row, then hands the id to the
// queue. If the enqueue fails the row is failed so it never dangles in
// queued with no message behind it.
func (s *Service) persistAndEnqueue(ctx context.Context, t *Task) (*Task, error) {
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	if err := s.queue.Enqueue(ctx, t.ID); err != nil {
		s.logger.Error("enqueue failed, failing task",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))

		failErr := s.repo.Update(ctx, t.ID, func(stored *Task) error {
			return stored.Fail("enqueue failed: " + err.Error())
		})
		if failErr != nil {
			s.logger.Error("could not record enqueue failure",
				slog.String("task_id", t.ID),
				slog.String("error", failErr.Error()))
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	s.logger.Info("task submitted",
		slog.String("task_id", t.ID),
		slog.String("kind", string(t.Kind)),
		slog.String("model", t.Model),
		slog.Int("num_clips", t.NumClips))

	return t, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, taskID string) (*Task, error) {
	return s.repo.FindByID(ctx, taskID)
}

// List returns all known tasks.
func (s *Service) List(ctx context.Context) ([]*Task, error) {
	return s.repo.List(ctx)
}

// Cancel withdraws a task that is still queued. Tasks already picked up
// by a worker cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, taskID string) error {
	if err := s.repo.CancelQueued(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("task cancelled", slog.String("task_id", taskID))
	return nil
}
