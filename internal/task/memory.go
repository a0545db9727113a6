package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with a mutex for thread-safe access and implements the
// claim/cancel compare-and-swaps under that lock. Suitable for
// development and testing; swap for PostgresRepository in production.
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryRepository creates a new in-memory task repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tasks: make(map[string]*Task),
	}
}

// Save persists a task to the in-memory storage.
// Creates a clone to avoid external mutations.
func (r *MemoryRepository) Save(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t.Clone()
	return nil
}

// FindByID retrieves a task by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// List returns all tasks in the repository.
func (r *MemoryRepository) List(_ context.Context) ([]*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		result = append(result, t.Clone())
	}
	// Newest first, matching the postgres ordering.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Claim atomically moves a queued task to in_progress.
func (r *MemoryRepository) Claim(_ context.Context, id string) (*Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, false, ErrTaskNotFound
	}
	if t.Status != StatusQueued {
		return nil, false, nil
	}
	if err := t.Start(); err != nil {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

// Update applies fn to the stored task under the repository lock.
func (r *MemoryRepository) Update(_ context.Context, id string, fn func(*Task) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	return fn(t)
}

// CancelQueued fails a queued task with the cancellation message.
func (r *MemoryRepository) CancelQueued(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != StatusQueued {
		return ErrNotCancellable
	}
	return t.Fail(CancelledMessage)
}

// FailStale fails in_progress tasks with leases older than olderThan.
func (r *MemoryRepository) FailStale(_ context.Context, olderThan time.Duration) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var failed []string
	for id, t := range r.tasks {
		if t.Status == StatusInProgress && t.StartedAt.Before(cutoff) {
			if err := t.Fail(LeaseExpiredMessage); err == nil {
				failed = append(failed, id)
			}
		}
	}
	return failed, nil
}

// StaleQueued returns ids of queued tasks created before the cutoff.
func (r *MemoryRepository) StaleQueued(_ context.Context, olderThan time.Duration) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var ids []string
	for id, t := range r.tasks {
		if t.Status == StatusQueued && t.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
