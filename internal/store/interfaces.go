package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by UpdateJob when the job row was modified
// since the caller's read. The caller must re-read and retry its own logic.
var ErrVersionConflict = errors.New("store: job version conflict")

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("store: not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// JobStore handles the persistence of generation jobs.
type JobStore interface {
	// CreateJob inserts a new job record at version 1.
	CreateJob(ctx context.Context, tx DBTransaction, job *Job) error

	// GetJob returns the job including its current version.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// UpdateJob writes the job's mutable fields if and only if the stored
	// version still equals expectedVersion. On success the stored version
	// becomes expectedVersion+1 and job.Version is updated to match.
	// Returns ErrVersionConflict if another writer got there first.
	UpdateJob(ctx context.Context, tx DBTransaction, job *Job, expectedVersion int64) error
}
