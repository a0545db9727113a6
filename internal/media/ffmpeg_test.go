package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestClip renders a solid-color test clip and returns its bytes.
func createTestClip(t *testing.T, duration float64, color, size string) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:r=25:d=%.1f", color, size, duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test clip: %v\noutput: %s", err, output)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read test clip: %v", err)
	}
	return data
}

func TestNewFFmpegComposer(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		c := NewFFmpegComposer("", "")
		if c.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", c.ffmpegPath)
		}
		if c.ffprobePath != "ffprobe" {
			t.Errorf("expected default path 'ffprobe', got %q", c.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		c := NewFFmpegComposer("/opt/ffmpeg", "/opt/ffprobe")
		if c.ffmpegPath != "/opt/ffmpeg" {
			t.Errorf("expected custom path, got %q", c.ffmpegPath)
		}
	})
}

func TestStitch_NoClips(t *testing.T) {
	c := NewFFmpegComposer("", "")
	_, err := c.Stitch(context.Background(), nil)
	if !errors.Is(err, ErrNoClips) {
		t.Errorf("expected ErrNoClips, got %v", err)
	}
}

func TestStitch_SingleClipPassthrough(t *testing.T) {
	c := NewFFmpegComposer("", "")
	clip := []byte("single-clip-bytes")

	out, err := c.Stitch(context.Background(), [][]byte{clip})
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if string(out) != string(clip) {
		t.Error("single clip should be returned unchanged")
	}
}

func TestStitch_UniformClips(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewFFmpegComposer("", "")
	ctx := context.Background()

	clips := [][]byte{
		createTestClip(t, 2.0, "red", "64x64"),
		createTestClip(t, 2.0, "blue", "64x64"),
		createTestClip(t, 2.0, "green", "64x64"),
	}

	out, err := c.Stitch(ctx, clips)
	if err != nil {
		t.Fatalf("Stitch failed: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("stitched output is empty")
	}

	duration, err := c.Duration(ctx, out)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if duration < 5.5 || duration > 6.5 {
		t.Errorf("expected duration around 6s, got %.2f", duration)
	}
}

func TestStitch_HeterogeneousClipsFailFast(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewFFmpegComposer("", "")

	clips := [][]byte{
		createTestClip(t, 2.0, "red", "64x64"),
		createTestClip(t, 2.0, "blue", "128x128"),
	}

	_, err := c.Stitch(context.Background(), clips)
	if !errors.Is(err, ErrHeterogeneousClips) {
		t.Errorf("expected ErrHeterogeneousClips, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewFFmpegComposer("", "")
	clip := createTestClip(t, 1.0, "red", "64x64")

	params, err := c.Probe(context.Background(), clip)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if params.Codec != "h264" {
		t.Errorf("expected codec h264, got %q", params.Codec)
	}
	if params.Width != 64 || params.Height != 64 {
		t.Errorf("expected 64x64, got %dx%d", params.Width, params.Height)
	}
	if params.PixFmt != "yuv420p" {
		t.Errorf("expected pix_fmt yuv420p, got %q", params.PixFmt)
	}
}

func TestProbe_NotAVideo(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewFFmpegComposer("", "")
	_, err := c.Probe(context.Background(), []byte("not a video at all"))
	if err == nil {
		t.Error("expected error probing garbage bytes")
	}
}

func TestDuration(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewFFmpegComposer("", "")
	clip := createTestClip(t, 3.0, "red", "64x64")

	duration, err := c.Duration(context.Background(), clip)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if duration < 2.5 || duration > 3.5 {
		t.Errorf("expected duration around 3s, got %.2f", duration)
	}
}
