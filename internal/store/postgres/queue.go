package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docforge/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Default retry policy
const (
	MaxAttempts       = 3
	VisibilityTimeout = 5 * time.Minute
)

// Enqueue adds a pipeline task to the task_queue.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID, taskName string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	if visibleAfter.IsZero() {
		visibleAfter = time.Now()
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	executor := s.getExecutor(tx)

	query := `
		INSERT INTO task_queue (job_id, task_name, payload, visible_after)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query, jobID, taskName, payload, visibleAfter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s task for job %s: %w", taskName, jobID, err)
	}

	return id, nil
}

// DequeueBatch claims up to 'limit' visible tasks atomically using
// SELECT ... FOR UPDATE SKIP LOCKED. Returns nil slice if none are available.
func (s *Store) DequeueBatch(ctx context.Context, limit int) ([]store.TaskItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, job_id, task_name, payload, attempt
		FROM task_queue
		WHERE visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`

	rows, err := tx.QueryContext(ctx, selectQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("batch dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.TaskItem
	var taskIDs []int64

	for rows.Next() {
		var item store.TaskItem
		if err := rows.Scan(&item.ID, &item.JobID, &item.TaskName, &item.Payload, &item.Attempt); err != nil {
			return nil, fmt.Errorf("batch dequeue scan failed: %w", err)
		}
		// Attempt is pre-increment; the claim below bumps it.
		item.Attempt++
		items = append(items, item)
		taskIDs = append(taskIDs, item.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch dequeue rows error: %w", err)
	}

	// Empty queue
	if len(items) == 0 {
		return nil, nil
	}

	// Bulk claim: push visibility forward and count the attempt.
	_, err = tx.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'),
		    attempt = attempt + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(taskIDs))
	if err != nil {
		return nil, fmt.Errorf("batch visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// Complete removes a successfully processed task from the queue.
func (s *Store) Complete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, "DELETE FROM task_queue WHERE id = $1", taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task %d: %w", taskID, err)
	}
	return nil
}

// Fail handles a failed task execution with retries. Within the retry bound
// the task is made visible again after an exponential backoff; beyond it the
// task is dropped and terminal=true tells the caller to fail the job.
func (s *Store) Fail(ctx context.Context, tx store.DBTransaction, taskID int64, errMsg string) (bool, error) {
	executor := s.getExecutor(tx)

	var attempt int
	err := executor.QueryRowContext(ctx, "SELECT attempt FROM task_queue WHERE id = $1", taskID).Scan(&attempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Task already gone (completed elsewhere or dropped): nothing to do.
			return false, nil
		}
		return false, err
	}

	if attempt < MaxAttempts {
		// RETRY: exponential backoff (10s * 2^attempt)
		backoff := time.Duration(10*(1<<attempt)) * time.Second
		_, err = executor.ExecContext(ctx, `
			UPDATE task_queue
			SET visible_after = NOW() + ($1 * INTERVAL '1 second'),
			    last_error = $2
			WHERE id = $3
		`, backoff.Seconds(), errMsg, taskID)
		if err != nil {
			return false, fmt.Errorf("failed to reschedule task %d: %w", taskID, err)
		}
		return false, nil
	}

	// Retry bound exhausted: drop the task and report terminal failure.
	_, err = executor.ExecContext(ctx, "DELETE FROM task_queue WHERE id = $1", taskID)
	if err != nil {
		return false, fmt.Errorf("failed to drop exhausted task %d: %w", taskID, err)
	}
	return true, nil
}

// SetVisibleAfter extends the heartbeat.
func (s *Store) SetVisibleAfter(ctx context.Context, tx store.DBTransaction, taskID int64, visibleAfter time.Time) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = $1
		WHERE id = $2
	`, visibleAfter, taskID)
	return err
}

// Count tracks count of items in queue.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_queue").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}
