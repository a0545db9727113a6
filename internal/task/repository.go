package task

import (
	"context"
	"errors"
	"time"
)

// Static errors for repository operations.
var (
	// ErrTaskNotFound is returned when a task cannot be found by ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotCancellable is returned when cancellation is requested for a
	// task that is no longer queued. In-progress tasks run to a terminal
	// state; terminal tasks stay where they are.
	ErrNotCancellable = errors.New("task is not cancellable")
)

// Repository defines the persistence port for tasks. Implementations
// must make Claim and CancelQueued atomic: they are the single-writer
// lease that keeps duplicate queue deliveries and cancellation races
// from producing two owners for one task.
type Repository interface {
	// Save persists a new task.
	Save(ctx context.Context, t *Task) error

	// FindByID retrieves a task by its unique identifier.
	// Returns ErrTaskNotFound if the task does not exist.
	FindByID(ctx context.Context, id string) (*Task, error)

	// List returns all tasks. Tasks are never hard-deleted; the store is
	// the audit record.
	List(ctx context.Context) ([]*Task, error)

	// Claim atomically transitions a queued task to in_progress and
	// returns it. When the task exists but is not queued (already
	// claimed, cancelled, or terminal) it returns (nil, false, nil):
	// redelivery of the job reference is a no-op, not an error.
	Claim(ctx context.Context, id string) (*Task, bool, error)

	// Update applies fn to the task under the store's write lock and
	// persists the result. Only the worker holding the claim may call it.
	Update(ctx context.Context, id string, fn func(*Task) error) error

	// CancelQueued atomically transitions a queued task to failed with a
	// cancellation message. Returns ErrNotCancellable when the task is
	// in progress or terminal.
	CancelQueued(ctx context.Context, id string) error

	// FailStale fails every in_progress task whose lease (StartedAt) is
	// older than the given age, returning the IDs it touched. This is
	// the lease-expiry recovery path for crashed workers; the lease age
	// must exceed the polling ceiling so legitimately polling tasks are
	// never reclaimed.
	FailStale(ctx context.Context, olderThan time.Duration) ([]string, error)

	// StaleQueued returns the IDs of queued tasks older than the given
	// age. A row queued that long has likely lost its job reference
	// (e.g. the process crashed between committing the queue offset and
	// claiming); re-enqueueing those IDs is safe because Claim dedupes.
	StaleQueued(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// CancelledMessage is the error message recorded on user cancellation.
const CancelledMessage = "cancelled by user"

// LeaseExpiredMessage is the error message recorded by FailStale.
const LeaseExpiredMessage = "worker lease expired"
