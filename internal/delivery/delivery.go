// Package delivery pushes finished videos and failure notices to the
// requesting user.
package delivery

import "context"

// Deliverer defines the outbound channel for task outcomes.
type Deliverer interface {
	// Deliver sends a finished video to the destination chat and
	// returns an opaque message reference.
	Deliver(ctx context.Context, chatID int64, video []byte, caption string) (messageRef string, err error)

	// NotifyFailure sends a human-readable failure notice.
	NotifyFailure(ctx context.Context, chatID int64, text string) error
}
