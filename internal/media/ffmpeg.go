package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrNoClips is returned when no clips are provided for stitching.
	ErrNoClips = errors.New("no clips provided")
	// ErrHeterogeneousClips is returned when clips differ in stream
	// parameters and cannot be joined without re-encoding.
	ErrHeterogeneousClips = errors.New("clips have mismatched stream parameters")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a clip contains no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
)

// FFmpegComposer implements Composer using the ffmpeg and ffprobe CLIs.
type FFmpegComposer struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegComposer creates a new FFmpegComposer. Empty paths default
// to "ffmpeg" and "ffprobe" resolved via PATH.
func NewFFmpegComposer(ffmpegPath, ffprobePath string) *FFmpegComposer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegComposer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

var _ Composer = (*FFmpegComposer)(nil)

// Stitch concatenates clips in order using the concat demuxer with
// stream copy. Clips are verified to share identical stream parameters
// first; Stitch never re-encodes.
func (c *FFmpegComposer) Stitch(ctx context.Context, clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}
	if len(clips) == 1 {
		return clips[0], nil
	}

	dir, err := os.MkdirTemp("", "stitch-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	paths := make([]string, len(clips))
	for i, clip := range clips {
		path := filepath.Join(dir, fmt.Sprintf("clip-%03d.mp4", i))
		if err := os.WriteFile(path, clip, 0600); err != nil {
			return nil, fmt.Errorf("write clip %d: %w", i, err)
		}
		paths[i] = path
	}

	if err := c.checkUniform(ctx, paths); err != nil {
		return nil, err
	}

	listFile, err := createConcatList(dir, paths)
	if err != nil {
		return nil, fmt.Errorf("create concat list: %w", err)
	}

	output := filepath.Join(dir, "output.mp4")
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
	if err := c.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(output) // #nosec G304 - path is built from our own temp dir
	if err != nil {
		return nil, fmt.Errorf("read stitched output: %w", err)
	}
	return data, nil
}

// checkUniform probes every clip and fails if any differs from the first.
func (c *FFmpegComposer) checkUniform(ctx context.Context, paths []string) error {
	first, err := c.probePath(ctx, paths[0])
	if err != nil {
		return fmt.Errorf("probe clip 0: %w", err)
	}

	for i, path := range paths[1:] {
		params, err := c.probePath(ctx, path)
		if err != nil {
			return fmt.Errorf("probe clip %d: %w", i+1, err)
		}
		if params != first {
			return fmt.Errorf("%w: clip 0 is %+v, clip %d is %+v",
				ErrHeterogeneousClips, first, i+1, params)
		}
	}
	return nil
}

// Probe returns the video stream parameters of a clip.
func (c *FFmpegComposer) Probe(ctx context.Context, clip []byte) (ClipParams, error) {
	path, cleanup, err := writeTemp(clip)
	if err != nil {
		return ClipParams{}, err
	}
	defer cleanup()
	return c.probePath(ctx, path)
}

func (c *FFmpegComposer) probePath(ctx context.Context, path string) (ClipParams, error) {
	out, err := c.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,pix_fmt,r_frame_rate",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	if err != nil {
		return ClipParams{}, err
	}

	var params ClipParams
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "codec_name":
			params.Codec = value
		case "width":
			params.Width, _ = strconv.Atoi(value)
		case "height":
			params.Height, _ = strconv.Atoi(value)
		case "pix_fmt":
			params.PixFmt = value
		case "r_frame_rate":
			params.FrameRate = value
		}
	}

	if params.Codec == "" {
		return ClipParams{}, fmt.Errorf("%w in %s", ErrNoVideoStream, filepath.Base(path))
	}
	return params, nil
}

// Duration returns the duration in seconds of a video.
func (c *FFmpegComposer) Duration(ctx context.Context, video []byte) (float64, error) {
	path, cleanup, err := writeTemp(video)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	out, err := c.runFFprobe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// createConcatList writes the file list consumed by ffmpeg's concat demuxer.
func createConcatList(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range paths {
		// Escape single quotes in path
		escaped := strings.ReplaceAll(path, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}
	return f.Name(), nil
}

// writeTemp spills bytes to a temp file and returns its path with a
// cleanup func.
func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "media-*.mp4")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (c *FFmpegComposer) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

func (c *FFmpegComposer) runFFprobe(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}
	return stdout.String(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
