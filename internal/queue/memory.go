package queue

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned when enqueueing to a closed memory queue.
var ErrQueueClosed = errors.New("queue is closed")

// Compile-time checks that MemoryQueue implements both sides.
var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

// MemoryQueue is a channel-backed queue for development and testing.
// Both the producer and consumer sides run in one process.
type MemoryQueue struct {
	jobs   chan string
	closed chan struct{}
}

// NewMemoryQueue creates a memory queue with the given buffer size.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryQueue{
		jobs:   make(chan string, buffer),
		closed: make(chan struct{}),
	}
}

// Enqueue publishes a job reference.
func (q *MemoryQueue) Enqueue(ctx context.Context, taskID string) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	case q.jobs <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers job references to handler until ctx is cancelled or
// the queue is closed and drained.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case taskID := <-q.jobs:
			// Handler errors do not stop consumption: a failed job is a
			// failed task, not a failed queue.
			_ = handler(ctx, taskID)
		case <-q.closed:
			// Deliver what was enqueued before the close.
			for {
				select {
				case taskID := <-q.jobs:
					_ = handler(ctx, taskID)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting new jobs.
func (q *MemoryQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
