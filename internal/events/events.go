// Package events carries best-effort progress events from pipeline workers
// to live viewers. Delivery is telemetry, not a correctness channel: a
// dropped event is never re-derived from persisted state, and publishing
// never blocks or fails a stage transition.
package events

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Phase identifies what kind of progress an event reports.
type Phase string

const (
	PhaseOutlining   Phase = "OUTLINING"
	PhaseOutlineDone Phase = "OUTLINE_DONE"
	PhaseSection     Phase = "SECTION"
	PhaseSectionDone Phase = "SECTION_DONE"
	PhaseRefining    Phase = "REFINING"
	PhaseDone        Phase = "DONE"
	PhaseFailed      Phase = "FAILED"
)

// Event is one progress update for a job. Delta carries a single streamed
// text fragment; Section is set for section-scoped phases.
type Event struct {
	JobID   uuid.UUID `json:"job_id"`
	Phase   Phase     `json:"phase"`
	Section string    `json:"section,omitempty"`
	Delta   string    `json:"delta,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Publisher broadcasts events keyed by job id. Implementations must not
// return delivery failures to the pipeline as hard errors; Publish errors
// are for logging only.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// ChannelName returns the Postgres notification channel for a job.
// Dashes are stripped so the name stays a plain identifier.
func ChannelName(jobID uuid.UUID) string {
	return "docforge_job_" + strings.ReplaceAll(jobID.String(), "-", "")
}
