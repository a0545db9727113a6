// Package media provides lossless video composition on top of the
// ffmpeg CLI.
package media

import "context"

// ClipParams describes the stream parameters that must match across
// clips for a lossless concat.
type ClipParams struct {
	Codec     string
	Width     int
	Height    int
	PixFmt    string
	FrameRate string
}

// Composer defines the interface for assembling generated clips into a
// single video. Implementations must never re-encode: clips that cannot
// be joined losslessly are rejected.
type Composer interface {
	// Stitch concatenates the clips in order into one video using
	// stream copy. All clips must share identical stream parameters;
	// a mismatch fails with ErrHeterogeneousClips.
	Stitch(ctx context.Context, clips [][]byte) ([]byte, error)

	// Probe returns the video stream parameters of a clip.
	Probe(ctx context.Context, clip []byte) (ClipParams, error)

	// Duration returns the duration in seconds of a video.
	Duration(ctx context.Context, video []byte) (float64, error)
}
