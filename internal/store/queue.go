// Package store contains the database layer for docforge.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue defines the interface for pipeline task queue operations.
// Delivery is at-least-once: a task may be claimed again after its
// visibility timeout expires, so handlers must be idempotent.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Queue interface {
	// Enqueue adds a new task to the queue.
	Enqueue(ctx context.Context, tx DBTransaction, jobID uuid.UUID, taskName string, payload json.RawMessage, visibleAfter time.Time) (int64, error)

	// DequeueBatch claims up to 'limit' visible tasks atomically.
	// Returns nil slice if the queue is empty.
	DequeueBatch(ctx context.Context, limit int) ([]TaskItem, error)

	// Complete removes a successfully processed task from the queue.
	Complete(ctx context.Context, tx DBTransaction, taskID int64) error

	// Fail reschedules the task with backoff, or drops it once the retry
	// bound is exhausted. Returns terminal=true in the exhausted case so
	// the caller can mark the owning job failed.
	Fail(ctx context.Context, tx DBTransaction, taskID int64, errMsg string) (terminal bool, err error)

	// SetVisibleAfter extends the visibility timeout (heartbeat).
	SetVisibleAfter(ctx context.Context, tx DBTransaction, taskID int64, visibleAfter time.Time) error

	// Count tracks count of items in queue.
	Count(ctx context.Context) (int64, error)
}

// TaskItem represents a claimed task from the queue.
type TaskItem struct {
	ID       int64
	JobID    uuid.UUID
	TaskName string
	Payload  json.RawMessage
	Attempt  int
}
