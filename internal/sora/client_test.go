package sora

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	c, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL(baseURL),
		WithMaxRetries(2),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestCreate_JSONRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/videos", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sora-2-pro", req["model"])
		assert.Equal(t, "a storm at sea", req["prompt"])
		assert.Equal(t, "12", req["seconds"])
		assert.Equal(t, "1280x720", req["size"])

		_, _ = w.Write([]byte(`{"id":"video_abc","status":"queued"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.Create(context.Background(), CreateOptions{
		Prompt:  "a storm at sea",
		Model:   "sora-2-pro",
		Seconds: 12,
		Size:    "1280x720",
	})
	require.NoError(t, err)
	assert.Equal(t, "video_abc", id)
}

func TestCreate_MultipartWithReferenceImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "animate", r.FormValue("prompt"))
		file, header, err := r.FormFile("input_reference")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "reference.png", header.Filename)

		_, _ = w.Write([]byte(`{"id":"video_ref"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.Create(context.Background(), CreateOptions{
		Prompt:         "animate",
		Model:          "sora-2",
		Seconds:        4,
		Size:           "720x1280",
		ReferenceImage: []byte{0x89, 0x50},
	})
	require.NoError(t, err)
	assert.Equal(t, "video_ref", id)
}

func TestRemix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/video_old/remix", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "make it night time", req["prompt"])

		_, _ = w.Write([]byte(`{"id":"video_new","status":"queued"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.Remix(context.Background(), "video_old", "make it night time")
	require.NoError(t, err)
	assert.Equal(t, "video_new", id)
}

func TestRemix_RequiresID(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Remix(context.Background(), "", "prompt")
	assert.ErrorIs(t, err, ErrGenerationIDRequired)
}

func TestStatus_StateMapping(t *testing.T) {
	tests := []struct {
		provider string
		want     State
	}{
		{"queued", StateQueued},
		{"in_progress", StateInProgress},
		{"processing", StateInProgress},
		{"completed", StateCompleted},
		{"failed", StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/videos/video_1", r.URL.Path)
				_, _ = w.Write([]byte(`{"id":"video_1","status":"` + tt.provider + `","progress":30}`))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			res, err := c.Status(context.Background(), "video_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.State)
			assert.Equal(t, 30, res.Progress)
		})
	}
}

func TestStatus_FailedCarriesErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"v","status":"failed","error":{"message":"moderation rejected"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Status(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "moderation rejected", res.Error)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/video_1/content", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	data, err := c.Download(context.Background(), "video_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4-bytes"), data)
}

func TestCreate_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"video_retry"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.Create(context.Background(), CreateOptions{Prompt: "x", Model: "sora-2", Seconds: 4, Size: "720x1280"})
	require.NoError(t, err)
	assert.Equal(t, "video_retry", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreate_DoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid size"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Create(context.Background(), CreateOptions{Prompt: "x", Model: "sora-2", Seconds: 4, Size: "bogus"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
