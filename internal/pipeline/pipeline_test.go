package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"docforge/internal/events"
	"docforge/internal/llm"
	"docforge/internal/store"
	"docforge/internal/template"
)

// Shared in-memory fakes. The store enforces the same compare-and-swap
// contract as the Postgres implementation so version races are exercised
// for real; the queue records enqueues in order.

type fakeTx struct{}

func (fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}
func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*store.Job

	// failUpdates forces the next n UpdateJob calls to report a version
	// conflict without applying, simulating lost races.
	failUpdates int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*store.Job)}
}

func cloneJob(j *store.Job) *store.Job {
	c := *j
	c.Answers = make(map[string]string, len(j.Answers))
	for k, v := range j.Answers {
		c.Answers[k] = v
	}
	c.Sections = make(map[string]store.Section, len(j.Sections))
	for k, v := range j.Sections {
		c.Sections[k] = v
	}
	return &c
}

func (m *memStore) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Version = 1
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) UpdateJob(ctx context.Context, tx store.DBTransaction, job *store.Job, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates > 0 {
		m.failUpdates--
		return store.ErrVersionConflict
	}
	cur, ok := m.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	next := cloneJob(job)
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now()
	m.jobs[job.ID] = next
	job.Version = next.Version
	return nil
}

func (m *memStore) BeginTx(ctx context.Context) (store.Tx, error) {
	return fakeTx{}, nil
}

type memQueue struct {
	mu     sync.Mutex
	nextID int64
	tasks  []store.TaskItem
}

func (q *memQueue) Enqueue(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID, taskName string, payload json.RawMessage, visibleAfter time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.tasks = append(q.tasks, store.TaskItem{ID: q.nextID, JobID: jobID, TaskName: taskName, Payload: payload})
	return q.nextID, nil
}

func (q *memQueue) DequeueBatch(ctx context.Context, limit int) ([]store.TaskItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		limit = 1
	}
	if limit > len(q.tasks) {
		limit = len(q.tasks)
	}
	out := q.tasks[:limit]
	q.tasks = q.tasks[limit:]
	return out, nil
}

func (q *memQueue) Complete(ctx context.Context, tx store.DBTransaction, taskID int64) error {
	return nil
}

func (q *memQueue) Fail(ctx context.Context, tx store.DBTransaction, taskID int64, errMsg string) (bool, error) {
	return false, nil
}

func (q *memQueue) SetVisibleAfter(ctx context.Context, tx store.DBTransaction, taskID int64, visibleAfter time.Time) error {
	return nil
}

func (q *memQueue) Count(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks)), nil
}

// named returns the queued tasks matching a task name.
func (q *memQueue) named(taskName string) []store.TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []store.TaskItem
	for _, t := range q.tasks {
		if t.TaskName == taskName {
			out = append(out, t)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) phases() []events.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Phase, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Phase)
	}
	return out
}

func (p *recordingPublisher) countPhase(phase events.Phase) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Phase == phase {
			n++
		}
	}
	return n
}

// deltas concatenates the Delta fragments of one phase in publish order.
func (p *recordingPublisher) deltas(phase events.Phase, section string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out string
	for _, ev := range p.events {
		if ev.Phase == phase && ev.Section == section {
			out += ev.Delta
		}
	}
	return out
}

// fakeStream replays fragments, optionally failing before completion.
type fakeStream struct {
	frags []string
	i     int
	err   error
}

func (s *fakeStream) Recv() (string, error) {
	if s.i >= len(s.frags) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	frag := s.frags[s.i]
	s.i++
	return frag, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeLLM scripts responses keyed by the system prompt of the request.
type fakeLLM struct {
	mu       sync.Mutex
	scripts  map[string][]*fakeStream
	calls    []string
	requests [][]llm.Message
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{scripts: make(map[string][]*fakeStream)}
}

func (f *fakeLLM) script(systemPrompt string, s *fakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[systemPrompt] = append(f.scripts[systemPrompt], s)
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []llm.Message, temperature float64) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(messages) == 0 {
		return nil, errors.New("no messages")
	}
	system := messages[0].Content
	f.calls = append(f.calls, system)
	f.requests = append(f.requests, messages)
	queued := f.scripts[system]
	if len(queued) == 0 {
		return nil, fmt.Errorf("no scripted response for %q", system)
	}
	f.scripts[system] = queued[1:]
	return queued[0], nil
}

// testEnv bundles the orchestrator with its fakes and a one-template registry.
type testEnv struct {
	store *memStore
	queue *memQueue
	llm   *fakeLLM
	pub   *recordingPublisher
	orch  *Orchestrator
	tmpl  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "brief.md"), []byte("Write about {{topic}} for {{audience}}."), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	st := newMemStore()
	q := &memQueue{}
	client := newFakeLLM()
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		store: st,
		queue: q,
		llm:   client,
		pub:   pub,
		orch:  New(st, q, client, pub, template.NewRegistry(dir), DefaultConfig(), logger),
		tmpl:  "brief",
	}
}

// seedJob creates a job directly in the fake store.
func (e *testEnv) seedJob(t *testing.T, stage store.Stage, mutate func(*store.Job)) uuid.UUID {
	t.Helper()
	job := &store.Job{
		ID:       uuid.New(),
		Owner:    "alice",
		Template: e.tmpl,
		Answers:  map[string]string{"topic": "queues", "audience": "engineers"},
		Stage:    stage,
		Sections: map[string]store.Section{},
	}
	if mutate != nil {
		mutate(job)
	}
	if err := e.store.CreateJob(context.Background(), nil, job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job.ID
}
