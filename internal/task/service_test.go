package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidforge/vidforge/internal/catalog"
	"github.com/vidforge/vidforge/internal/results"
)

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, taskID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, taskID)
	return nil
}

func newTestService(q *fakeQueue, cache results.Cache) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cache == nil {
		cache = results.NewMemoryCache()
	}
	return NewService(repo, q, cache, 3, logger), repo
}

func TestSubmit_Defaults(t *testing.T) {
	q := &fakeQueue{}
	svc, repo := newTestService(q, nil)

	created, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID: 1,
		ChatID:  10,
		Prompt:  "a quiet forest",
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.DefaultModel, created.Model)
	assert.Equal(t, catalog.DefaultResolution, created.Resolution)
	assert.Equal(t, 4, created.DurationSeconds)
	assert.Equal(t, 1, created.NumClips)
	assert.Equal(t, KindSingle, created.Kind)
	assert.Equal(t, StatusQueued, created.Status)

	stored, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, stored.Status)
	assert.Equal(t, []string{created.ID}, q.enqueued)
}

func TestSubmit_SnapsDurationDown(t *testing.T) {
	q := &fakeQueue{}
	svc, _ := newTestService(q, nil)

	created, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID:         1,
		ChatID:          10,
		Prompt:          "a storm",
		Model:           "sora-2",
		DurationSeconds: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, created.DurationSeconds)
}

func TestSubmit_ClampsClipCount(t *testing.T) {
	q := &fakeQueue{}
	svc, _ := newTestService(q, nil)

	created, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID:  1,
		ChatID:   10,
		Prompt:   "an epic",
		NumClips: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created.NumClips)
	assert.Equal(t, KindLongVideo, created.Kind)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	q := &fakeQueue{}
	svc, _ := newTestService(q, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitParams{OwnerID: 1, ChatID: 10})
	assert.ErrorIs(t, err, ErrPromptRequired)

	_, err = svc.Submit(ctx, SubmitParams{OwnerID: 1, ChatID: 10, Prompt: "x", Model: "nonexistent"})
	assert.ErrorIs(t, err, catalog.ErrUnknownModel)

	_, err = svc.Submit(ctx, SubmitParams{OwnerID: 1, ChatID: 10, Prompt: "x", Resolution: "999x999"})
	assert.ErrorIs(t, err, catalog.ErrUnknownResolution)

	assert.Empty(t, q.enqueued, "nothing should be enqueued on validation failure")
}

func TestSubmit_EnqueueFailureFailsTask(t *testing.T) {
	q := &fakeQueue{err: errors.New("broker down")}
	svc, repo := newTestService(q, nil)

	_, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID: 1,
		ChatID:  10,
		Prompt:  "doomed",
	})
	require.Error(t, err)

	tasks, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].ErrorMessage, "enqueue failed")
}

func TestSubmitRemix(t *testing.T) {
	cache := results.NewMemoryCache()
	require.NoError(t, cache.RecordRecent(context.Background(), 1, "gen-old"))
	require.NoError(t, cache.RecordRecent(context.Background(), 1, "gen-new"))

	q := &fakeQueue{}
	svc, _ := newTestService(q, cache)

	created, err := svc.SubmitRemix(context.Background(), RemixParams{
		OwnerID: 1,
		ChatID:  10,
		Prompt:  "make it snow",
	})
	require.NoError(t, err)

	assert.Equal(t, KindRemix, created.Kind)
	assert.Equal(t, "gen-new", created.RemixSourceID)
	assert.Equal(t, StatusQueued, created.Status)
	assert.Equal(t, []string{created.ID}, q.enqueued)
}

func TestSubmitRemix_SelectsByIndex(t *testing.T) {
	cache := results.NewMemoryCache()
	require.NoError(t, cache.RecordRecent(context.Background(), 1, "gen-old"))
	require.NoError(t, cache.RecordRecent(context.Background(), 1, "gen-new"))

	svc, _ := newTestService(&fakeQueue{}, cache)

	created, err := svc.SubmitRemix(context.Background(), RemixParams{
		OwnerID:     1,
		ChatID:      10,
		Prompt:      "make it snow",
		RecentIndex: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "gen-old", created.RemixSourceID)
}

func TestSubmitRemix_NoRecentResults(t *testing.T) {
	svc, _ := newTestService(&fakeQueue{}, nil)

	_, err := svc.SubmitRemix(context.Background(), RemixParams{
		OwnerID: 1,
		ChatID:  10,
		Prompt:  "make it snow",
	})
	assert.ErrorIs(t, err, ErrNoRecentResults)
}

func TestSubmitRemix_IndexOutOfRange(t *testing.T) {
	cache := results.NewMemoryCache()
	require.NoError(t, cache.RecordRecent(context.Background(), 1, "gen-1"))

	svc, _ := newTestService(&fakeQueue{}, cache)

	_, err := svc.SubmitRemix(context.Background(), RemixParams{
		OwnerID:     1,
		ChatID:      10,
		Prompt:      "make it snow",
		RecentIndex: 5,
	})
	assert.ErrorIs(t, err, ErrRemixIndexOutOfRange)
}

func TestSubmitRemixOf(t *testing.T) {
	q := &fakeQueue{}
	svc, repo := newTestService(q, nil)
	ctx := context.Background()

	source, err := svc.Submit(ctx, SubmitParams{OwnerID: 1, ChatID: 10, Prompt: "original"})
	require.NoError(t, err)

	// Not remixable while still queued.
	_, err = svc.SubmitRemixOf(ctx, source.ID, "make it snow")
	assert.ErrorIs(t, err, ErrSourceNotRemixable)

	require.NoError(t, repo.Update(ctx, source.ID, func(stored *Task) error {
		if err := stored.Start(); err != nil {
			return err
		}
		if err := stored.SetGenerationID("gen-7"); err != nil {
			return err
		}
		return stored.Complete("/results/source.mp4")
	}))

	remix, err := svc.SubmitRemixOf(ctx, source.ID, "make it snow")
	require.NoError(t, err)
	assert.Equal(t, KindRemix, remix.Kind)
	assert.Equal(t, "gen-7", remix.RemixSourceID)
	assert.Equal(t, source.Model, remix.Model)
	assert.Equal(t, int64(10), remix.ChatID)

	_, err = svc.SubmitRemixOf(ctx, "task-missing", "prompt")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCancel(t *testing.T) {
	q := &fakeQueue{}
	svc, repo := newTestService(q, nil)
	ctx := context.Background()

	created, err := svc.Submit(ctx, SubmitParams{OwnerID: 1, ChatID: 10, Prompt: "cancel me"})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, created.ID))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, CancelledMessage, stored.ErrorMessage)

	// A second cancel hits a terminal task.
	err = svc.Cancel(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}
