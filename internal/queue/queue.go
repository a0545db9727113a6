// Package queue provides the work-queue port for task job references.
// The payload of a job is the task ID and nothing else: the task store
// is the single source of truth for parameters. Delivery is
// at-least-once; consumers must tolerate redelivery (the task
// repository's Claim compare-and-swap makes duplicates a no-op).
package queue

import "context"

// Handler processes one delivered job reference.
type Handler func(ctx context.Context, taskID string) error

// Queue is the producer side: it enqueues a job reference.
type Queue interface {
	// Enqueue publishes a job referencing only the task ID.
	Enqueue(ctx context.Context, taskID string) error
}

// Consumer is the worker side: it delivers job references to a handler
// until the context is cancelled.
type Consumer interface {
	// Consume blocks, invoking handler for each delivered job reference.
	// Returns when ctx is cancelled or the underlying transport fails.
	Consume(ctx context.Context, handler Handler) error
}
