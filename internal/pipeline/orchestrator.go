// Package pipeline is the job pipeline orchestrator: it owns the stage state
// machine Outline -> Draft(N) -> Join -> Refine, the fan-out/join tracking,
// and the idempotency rules that make at-least-once task execution safe.
//
// Workers share no memory; the persisted job record is the only coordination
// point. Every mutation goes through an optimistic-concurrency write
// (store.JobStore.UpdateJob keyed on version), and the join check-and-submit
// commits the stage change together with the refine enqueue in one database
// transaction, so concurrent last-section completions cannot both fire it.
package pipeline

import (
	"context"
	"log/slog"

	"docforge/internal/events"
	"docforge/internal/llm"
	"docforge/internal/store"
	"docforge/internal/template"
)

// Store combines job persistence with transaction control so stage-advancing
// writes and their follow-on enqueues commit atomically.
type Store interface {
	store.JobStore
	BeginTx(ctx context.Context) (store.Tx, error)
}

// Config holds the per-stage generation temperatures.
type Config struct {
	OutlineTemperature float64
	DraftTemperature   float64
	SummaryTemperature float64
	RefineTemperature  float64
}

// DefaultConfig returns the stock stage temperatures.
func DefaultConfig() Config {
	return Config{
		OutlineTemperature: 0.3,
		DraftTemperature:   0.4,
		SummaryTemperature: 0.2,
		RefineTemperature:  0.25,
	}
}

// Orchestrator sequences a job through its stages. It is safe for concurrent
// use; all instance state is immutable after construction.
type Orchestrator struct {
	store     Store
	queue     store.Queue
	llm       llm.Client
	events    events.Publisher
	templates *template.Registry
	logger    *slog.Logger
	cfg       Config
}

// New creates an orchestrator. A nil publisher disables event emission.
func New(st Store, q store.Queue, client llm.Client, pub events.Publisher, reg *template.Registry, cfg Config, logger *slog.Logger) *Orchestrator {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     st,
		queue:     q,
		llm:       client,
		events:    pub,
		templates: reg,
		logger:    logger,
		cfg:       cfg,
	}
}

// publish emits a best-effort event. Failures are logged and swallowed:
// event delivery must never block or fail a stage transition.
func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Warn("event publish failed",
			"job_id", ev.JobID,
			"phase", ev.Phase,
			"error", err,
		)
	}
}
