package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/queue"
	"github.com/vidforge/vidforge/internal/task"
)

// Runner processes a single task id.
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Pool bounds concurrent task processing with a semaphore. Each queue
// delivery borrows a slot; redeliveries for tasks that already left the
// queued state are filtered by the claim inside the Runner.
type Pool struct {
	runner Runner
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a Pool running at most size tasks concurrently.
func NewPool(runner Runner, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		runner: runner,
		sem:    make(chan struct{}, size),
		logger: logger,
	}
}

// Submit schedules a task id for processing. It blocks until a slot is
// free or the context is cancelled, then runs the task asynchronously.
func (p *Pool) Submit(ctx context.Context, taskID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()

		if err := p.runner.Run(ctx, taskID); err != nil {
			p.logger.Error("task run failed",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Wait blocks until all in-flight tasks finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// StaleReaper periodically recovers tasks stranded by crashed workers:
// in-progress tasks whose lease expired are failed, and queued tasks
// whose job reference was lost (the offset was committed but the
// process died before the claim) are re-enqueued. Re-enqueueing is
// safe because the claim dedupes.
type StaleReaper struct {
	repo     task.Repository
	queue    queue.Queue
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewStaleReaper creates a reaper that every interval fails in-progress
// tasks older than maxAge and re-enqueues queued tasks older than maxAge.
func NewStaleReaper(repo task.Repository, q queue.Queue, interval, maxAge time.Duration, logger *slog.Logger) *StaleReaper {
	return &StaleReaper{
		repo:     repo,
		queue:    q,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled.
func (r *StaleReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := r.repo.FailStale(ctx, r.maxAge)
			if err != nil {
				r.logger.Error("stale sweep failed", slog.String("error", err.Error()))
				continue
			}
			for _, id := range ids {
				r.logger.Warn("failed stale task", slog.String("task_id", id))
			}

			orphans, err := r.repo.StaleQueued(ctx, r.maxAge)
			if err != nil {
				r.logger.Error("orphan sweep failed", slog.String("error", err.Error()))
				continue
			}
			for _, id := range orphans {
				if err := r.queue.Enqueue(ctx, id); err != nil {
					r.logger.Error("could not re-enqueue orphaned task",
						slog.String("task_id", id),
						slog.String("error", err.Error()))
					continue
				}
				r.logger.Warn("re-enqueued orphaned task", slog.String("task_id", id))
			}
		}
	}
}
