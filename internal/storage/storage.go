// Package storage provides scratch and result artifact storage.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for clip scratch space and final result
// artifacts. Intermediate clips live in scratch only; finished videos
// are stored durably and addressed by an opaque result reference.
type Storage interface {
	// SaveTemp saves data to a scratch file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a scratch file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified scratch files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// StoreResult stores a finished video durably and returns an opaque
	// reference that can later be resolved back to the bytes.
	StoreResult(ctx context.Context, taskID string, data io.Reader) (resultRef string, err error)
}
