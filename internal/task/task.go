// Package task provides the Task aggregate for the video generation
// pipeline: the durable record of one generation request, its state
// machine, and the repository port it is persisted through.
package task

import (
	"errors"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/task/id"
)

// Kind distinguishes the three shapes of generation request.
type Kind string

const (
	// KindSingle is a plain single-clip generation.
	KindSingle Kind = "single"
	// KindLongVideo is a composite stitched from several clips.
	KindLongVideo Kind = "long_video"
	// KindRemix derives a new video from an existing generation.
	KindRemix Kind = "remix"
)

// Status represents the current state of a Task.
type Status string

const (
	// StatusQueued indicates the task is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusInProgress indicates a worker owns the task.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the task reached a terminal error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Static errors for task state handling.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrGenerationIDSet is returned when the external generation ID would be overwritten.
	ErrGenerationIDSet = errors.New("generation ID already set")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Task represents one video generation request and its lifecycle.
// A task is mutated by at most one worker at a time; ownership is taken
// with the repository's Claim compare-and-swap.
type Task struct {
	mu sync.RWMutex

	// ID is the unique identifier for this task.
	ID string
	// Kind is the request shape: single, long_video, or remix.
	Kind Kind
	// OwnerID references the requesting user.
	OwnerID int64
	// ChatID is the delivery destination for the result.
	ChatID int64
	// Prompt is the generation prompt; for remixes, the change description.
	Prompt string
	// Model is the generation model identifier.
	Model string
	// DurationSeconds is the per-clip duration, snapped to the model's allowed set.
	DurationSeconds int
	// NumClips is 1 for single/remix tasks, >1 for long videos.
	NumClips int
	// Resolution is the output resolution as "WxH".
	Resolution string
	// ReferenceImage holds optional image bytes for image-seeded generation.
	ReferenceImage []byte
	// RemixSourceID is the generation this remix derives from (metadata only).
	RemixSourceID string

	// Status is the current lifecycle state.
	Status Status
	// Progress is the percentage of completion (0-100), non-decreasing
	// while the task is in progress.
	Progress int
	// GenerationID is the external provider's id, set once after a
	// successful create call and never mutated afterwards.
	GenerationID string
	// ResultRef is the opaque handle of the stored artifact (success only).
	ResultRef string
	// ErrorMessage is the failure cause (failure only).
	ErrorMessage string
	// DeliveryError records a delivery failure after successful generation.
	// The task stays completed; this field flags it for operator resend.
	DeliveryError string

	// CreatedAt is when the task was created.
	CreatedAt time.Time
	// StartedAt is when a worker claimed the task.
	StartedAt time.Time
	// CompletedAt is when the task reached a terminal state.
	CompletedAt time.Time
	// UpdatedAt is when the task was last updated.
	UpdatedAt time.Time
}

// New creates a new queued Task with a generated ID.
func New() *Task {
	now := time.Now()
	return &Task{
		ID:        id.Generate(),
		Kind:      KindSingle,
		Status:    StatusQueued,
		NumClips:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new queued Task with the specified ID.
// Useful for testing or when the ID is generated externally.
func NewWithID(taskID string) *Task {
	t := New()
	t.ID = taskID
	return t
}

// TransitionTo attempts to change the task status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (t *Task) TransitionTo(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(status)
}

func (t *Task) transitionLocked(status Status) error {
	if !canTransition(t.Status, status) {
		return ErrInvalidTransition
	}

	t.Status = status
	t.UpdatedAt = time.Now()

	switch status {
	case StatusInProgress:
		t.StartedAt = t.UpdatedAt
	case StatusCompleted, StatusFailed:
		t.CompletedAt = t.UpdatedAt
	}

	return nil
}

// Start transitions the task from queued to in_progress.
func (t *Task) Start() error {
	return t.TransitionTo(StatusInProgress)
}

// Complete transitions the task to completed with the stored artifact
// reference and forces progress to 100.
func (t *Task) Complete(resultRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	t.ResultRef = resultRef
	t.Progress = 100
	return nil
}

// Fail transitions the task to failed with an error message.
func (t *Task) Fail(errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.transitionLocked(StatusFailed); err != nil {
		return err
	}
	t.ErrorMessage = errMsg
	return nil
}

// SetGenerationID records the external provider's id. The id is
// write-once: a second call returns ErrGenerationIDSet.
func (t *Task) SetGenerationID(genID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.GenerationID != "" {
		return ErrGenerationIDSet
	}
	t.GenerationID = genID
	t.UpdatedAt = time.Now()
	return nil
}

// SetProgress updates the progress percentage. Values are clamped to
// 0-100 and regressions are ignored so progress never decreases.
func (t *Task) SetProgress(progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if progress > 100 {
		progress = 100
	}
	if progress <= t.Progress {
		return
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
}

// SetDeliveryError flags the task for operator resend after a delivery
// failure. The lifecycle state is not touched.
func (t *Task) SetDeliveryError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DeliveryError = msg
	t.UpdatedAt = time.Now()
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the task for safe reads.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ref []byte
	if t.ReferenceImage != nil {
		ref = make([]byte, len(t.ReferenceImage))
		copy(ref, t.ReferenceImage)
	}

	return &Task{
		ID:              t.ID,
		Kind:            t.Kind,
		OwnerID:         t.OwnerID,
		ChatID:          t.ChatID,
		Prompt:          t.Prompt,
		Model:           t.Model,
		DurationSeconds: t.DurationSeconds,
		NumClips:        t.NumClips,
		Resolution:      t.Resolution,
		ReferenceImage:  ref,
		RemixSourceID:   t.RemixSourceID,
		Status:          t.Status,
		Progress:        t.Progress,
		GenerationID:    t.GenerationID,
		ResultRef:       t.ResultRef,
		ErrorMessage:    t.ErrorMessage,
		DeliveryError:   t.DeliveryError,
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}
