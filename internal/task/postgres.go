package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository persists tasks in PostgreSQL via pgxpool.
//
// Expected schema:
//
//	CREATE TABLE video_tasks (
//	    id               TEXT PRIMARY KEY,
//	    kind             TEXT NOT NULL,
//	    owner_id         BIGINT NOT NULL,
//	    chat_id          BIGINT NOT NULL,
//	    prompt           TEXT NOT NULL,
//	    model            TEXT NOT NULL,
//	    duration_seconds INT NOT NULL,
//	    num_clips        INT NOT NULL DEFAULT 1,
//	    resolution       TEXT NOT NULL,
//	    reference_image  BYTEA,
//	    remix_source_id  TEXT NOT NULL DEFAULT '',
//	    status           TEXT NOT NULL,
//	    progress         INT NOT NULL DEFAULT 0,
//	    generation_id    TEXT NOT NULL DEFAULT '',
//	    result_ref       TEXT NOT NULL DEFAULT '',
//	    error_message    TEXT NOT NULL DEFAULT '',
//	    delivery_error   TEXT NOT NULL DEFAULT '',
//	    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    started_at       TIMESTAMPTZ,
//	    completed_at     TIMESTAMPTZ,
//	    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX video_tasks_status_idx ON video_tasks (status);
//
// Rows are never deleted; the table is the audit and billing record.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a task repository backed by the pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const taskColumns = `id, kind, owner_id, chat_id, prompt, model, duration_seconds,
	num_clips, resolution, reference_image, remix_source_id, status, progress,
	generation_id, result_ref, error_message, delivery_error,
	created_at, started_at, completed_at, updated_at`

// Save inserts a new task row.
func (r *PostgresRepository) Save(ctx context.Context, t *Task) error {
	c := t.Clone()
	_, err := r.db.Exec(ctx, `
		INSERT INTO video_tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		c.ID, c.Kind, c.OwnerID, c.ChatID, c.Prompt, c.Model, c.DurationSeconds,
		c.NumClips, c.Resolution, c.ReferenceImage, c.RemixSourceID, c.Status, c.Progress,
		c.GenerationID, c.ResultRef, c.ErrorMessage, c.DeliveryError,
		c.CreatedAt, nullTime(c.StartedAt), nullTime(c.CompletedAt), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// FindByID retrieves a task by its ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM video_tasks WHERE id = $1`, id)
	return scanTask(row)
}

// List returns all tasks, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM video_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Claim performs the queued -> in_progress compare-and-swap. The WHERE
// clause on status makes the swap atomic: of any number of concurrent
// claimers exactly one sees RowsAffected == 1.
func (r *PostgresRepository) Claim(ctx context.Context, id string) (*Task, bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE video_tasks
		SET status = $1, started_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3`,
		StatusInProgress, id, StatusQueued,
	)
	if err != nil {
		return nil, false, fmt.Errorf("claim task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or not queued; distinguish for the caller.
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	t, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Update loads the row FOR UPDATE, applies fn, and writes the mutable
// columns back in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn func(*Task) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM video_tasks WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if err != nil {
		return err
	}

	if err := fn(t); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE video_tasks
		SET status = $1, progress = $2, generation_id = $3, result_ref = $4,
		    error_message = $5, delivery_error = $6,
		    started_at = $7, completed_at = $8, updated_at = $9
		WHERE id = $10`,
		t.Status, t.Progress, t.GenerationID, t.ResultRef,
		t.ErrorMessage, t.DeliveryError,
		nullTime(t.StartedAt), nullTime(t.CompletedAt), time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	return tx.Commit(ctx)
}

// CancelQueued performs the queued -> failed("cancelled") compare-and-swap.
func (r *PostgresRepository) CancelQueued(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE video_tasks
		SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4`,
		StatusFailed, CancelledMessage, id, StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}

// FailStale fails in_progress rows whose lease started before the cutoff.
func (r *PostgresRepository) FailStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE video_tasks
		SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		WHERE status = $3 AND started_at < $4
		RETURNING id`,
		StatusFailed, LeaseExpiredMessage, StatusInProgress, time.Now().Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaleQueued returns ids of queued rows created before the cutoff.
func (r *PostgresRepository) StaleQueued(ctx context.Context, olderThan time.Duration) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM video_tasks
		WHERE status = $1 AND created_at < $2`,
		StatusQueued, time.Now().Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale queued tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanTask reads one task row, mapping nullable timestamps.
func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var startedAt, completedAt *time.Time

	err := row.Scan(
		&t.ID, &t.Kind, &t.OwnerID, &t.ChatID, &t.Prompt, &t.Model, &t.DurationSeconds,
		&t.NumClips, &t.Resolution, &t.ReferenceImage, &t.RemixSourceID, &t.Status, &t.Progress,
		&t.GenerationID, &t.ResultRef, &t.ErrorMessage, &t.DeliveryError,
		&t.CreatedAt, &startedAt, &completedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if startedAt != nil {
		t.StartedAt = *startedAt
	}
	if completedAt != nil {
		t.CompletedAt = *completedAt
	}
	return &t, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
