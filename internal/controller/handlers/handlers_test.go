package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"docforge/internal/store"
	"docforge/internal/template"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	// Job Hooks
	beginTxErr   error
	createJobErr error
	getJobResp   *store.Job
	getJobErr    error
	updateJobErr error
	enqueueErr   error
	pingErr      error

	// Spies (to verify arguments passed by handlers)
	createdJob      *store.Job
	updatedJob      *store.Job
	enqueuedTasks   []string
	dequeueBatchErr error
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	m.createdJob = job
	return m.createJobErr
}

func (m *mockStore) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.getJobResp, m.getJobErr
}

func (m *mockStore) UpdateJob(ctx context.Context, tx store.DBTransaction, job *store.Job, expectedVersion int64) error {
	m.updatedJob = job
	return m.updateJobErr
}

func (m *mockStore) Enqueue(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID, taskName string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	m.enqueuedTasks = append(m.enqueuedTasks, taskName)
	return 1, m.enqueueErr
}

func (m *mockStore) DequeueBatch(ctx context.Context, limit int) ([]store.TaskItem, error) {
	return nil, m.dequeueBatchErr
}

func (m *mockStore) Complete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	return nil
}

func (m *mockStore) Fail(ctx context.Context, tx store.DBTransaction, taskID int64, errMsg string) (bool, error) {
	return false, nil
}

func (m *mockStore) SetVisibleAfter(ctx context.Context, tx store.DBTransaction, taskID int64, visibleAfter time.Time) error {
	return nil
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

// Mock Clarifier
type mockClarifier struct {
	question string
	err      error
}

func (m *mockClarifier) Clarify(ctx context.Context, jobID uuid.UUID, fn func(delta string)) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if fn != nil && m.question != "" {
		fn(m.question)
	}
	return m.question, nil
}

// newTestHandlers builds Handlers over a temp-dir registry containing one
// template "brief" with placeholders topic and audience.
func newTestHandlers(t *testing.T, mock *mockStore) *Handlers {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "brief.md"), []byte("About {{topic}} for {{audience}}."), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mock, template.NewRegistry(dir), &mockClarifier{}, "postgres://test", logger)
}
