package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tk := NewWithID("task-1")
	tk.Prompt = "a dog in space"

	if err := repo.Save(ctx, tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := repo.FindByID(ctx, "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Prompt != "a dog in space" {
		t.Errorf("unexpected prompt %q", found.Prompt)
	}

	// Mutating the returned task must not touch the stored one.
	found.Prompt = "changed"
	again, _ := repo.FindByID(ctx, "task-1")
	if again.Prompt != "a dog in space" {
		t.Error("FindByID returned a shared reference")
	}
}

func TestMemoryRepository_FindMissing(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nope")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryRepository_Claim(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tk := NewWithID("task-1")
	_ = repo.Save(ctx, tk)

	claimed, ok, err := repo.Claim(ctx, "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
	if claimed.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", claimed.Status)
	}

	// Redelivery: second claim is a no-op, not an error.
	_, ok, err = repo.Claim(ctx, "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second claim to be rejected")
	}
}

func TestMemoryRepository_Claim_Race(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, NewWithID("task-1"))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := repo.Claim(ctx, "task-1"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one claimer to win, got %d", wins)
	}
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Save(ctx, NewWithID("task-1"))
	_, _, _ = repo.Claim(ctx, "task-1")

	err := repo.Update(ctx, "task-1", func(tk *Task) error {
		tk.SetProgress(42)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, _ := repo.FindByID(ctx, "task-1")
	if found.Progress != 42 {
		t.Errorf("expected progress 42, got %d", found.Progress)
	}
}

func TestMemoryRepository_CancelQueued(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	t.Run("queued task cancels to failed", func(t *testing.T) {
		_ = repo.Save(ctx, NewWithID("q"))
		if err := repo.CancelQueued(ctx, "q"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		found, _ := repo.FindByID(ctx, "q")
		if found.Status != StatusFailed {
			t.Errorf("expected failed, got %s", found.Status)
		}
		if found.ErrorMessage != CancelledMessage {
			t.Errorf("unexpected message %q", found.ErrorMessage)
		}
	})

	t.Run("in_progress task is rejected", func(t *testing.T) {
		_ = repo.Save(ctx, NewWithID("p"))
		_, _, _ = repo.Claim(ctx, "p")
		if err := repo.CancelQueued(ctx, "p"); !errors.Is(err, ErrNotCancellable) {
			t.Errorf("expected ErrNotCancellable, got %v", err)
		}
		found, _ := repo.FindByID(ctx, "p")
		if found.Status != StatusInProgress {
			t.Errorf("cancellation mutated an in_progress task to %s", found.Status)
		}
	})

	t.Run("terminal task is rejected", func(t *testing.T) {
		tk := NewWithID("done")
		_ = tk.Start()
		_ = tk.Complete("ref")
		_ = repo.Save(ctx, tk)
		if err := repo.CancelQueued(ctx, "done"); !errors.Is(err, ErrNotCancellable) {
			t.Errorf("expected ErrNotCancellable, got %v", err)
		}
	})
}

func TestMemoryRepository_FailStale(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	stale := NewWithID("stale")
	_ = repo.Save(ctx, stale)
	_, _, _ = repo.Claim(ctx, "stale")
	_ = repo.Update(ctx, "stale", func(tk *Task) error {
		tk.StartedAt = time.Now().Add(-time.Hour)
		return nil
	})

	fresh := NewWithID("fresh")
	_ = repo.Save(ctx, fresh)
	_, _, _ = repo.Claim(ctx, "fresh")

	queued := NewWithID("queued")
	_ = repo.Save(ctx, queued)

	failed, err := repo.FailStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failed) != 1 || failed[0] != "stale" {
		t.Fatalf("expected only the stale task, got %v", failed)
	}

	got, _ := repo.FindByID(ctx, "stale")
	if got.Status != StatusFailed || got.ErrorMessage != LeaseExpiredMessage {
		t.Errorf("stale task not failed with lease message: %s %q", got.Status, got.ErrorMessage)
	}
	gotFresh, _ := repo.FindByID(ctx, "fresh")
	if gotFresh.Status != StatusInProgress {
		t.Errorf("fresh lease was reclaimed: %s", gotFresh.Status)
	}
	gotQueued, _ := repo.FindByID(ctx, "queued")
	if gotQueued.Status != StatusQueued {
		t.Errorf("queued task touched by FailStale: %s", gotQueued.Status)
	}
}

func TestMemoryRepository_StaleQueued(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	old := NewWithID("old-queued")
	old.CreatedAt = time.Now().Add(-time.Hour)
	_ = repo.Save(ctx, old)

	fresh := NewWithID("fresh-queued")
	_ = repo.Save(ctx, fresh)

	running := NewWithID("old-running")
	running.CreatedAt = time.Now().Add(-time.Hour)
	_ = repo.Save(ctx, running)
	_, _, _ = repo.Claim(ctx, "old-running")

	ids, err := repo.StaleQueued(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old-queued" {
		t.Fatalf("expected only the old queued task, got %v", ids)
	}

	got, _ := repo.FindByID(ctx, "old-queued")
	if got.Status != StatusQueued {
		t.Errorf("StaleQueued must not mutate: %s", got.Status)
	}
}
