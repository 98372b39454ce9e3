// Package store contains the database layer for docforge.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Stage represents the lifecycle phase of a generation job.
// Stages only move forward; ERROR is reachable from any non-terminal stage.
type Stage string

const (
	StageAwaitingInput Stage = "AWAITING_INPUT"
	StageQueued        Stage = "QUEUED"
	StageOutlining     Stage = "OUTLINING"
	StageDrafting      Stage = "DRAFTING"
	StageRefining      Stage = "REFINING"
	StageDone          Stage = "DONE"
	StageError         Stage = "ERROR"
)

// stageOrder defines the forward partial order of the state machine.
// AWAITING_INPUT and QUEUED share a rank.
var stageOrder = map[Stage]int{
	StageAwaitingInput: 0,
	StageQueued:        0,
	StageOutlining:     1,
	StageDrafting:      2,
	StageRefining:      3,
	StageDone:          4,
	StageError:         4,
}

// Terminal reports whether a job in this stage will never change again.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// Before reports whether s comes strictly before other on the forward path.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Section holds the drafted text of one outline section plus the short
// summary fed into higher-numbered sections as context.
type Section struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// Job is the persisted record of one document generation job. It is the only
// shared mutable state between workers: all pipeline coordination happens
// through optimistic-concurrency writes of this record.
type Job struct {
	ID       uuid.UUID
	Owner    string
	Template string

	// Answers maps template placeholder names to user-supplied values.
	// The map grows via merge and never shrinks.
	Answers map[string]string

	Stage   Stage
	Outline string

	// Sections maps section id (1..ExpectedSections, as decimal strings)
	// to the drafted result. Entries are upserted, never removed.
	Sections map[string]Section

	// ExpectedSections is derived from the outline structure exactly once
	// when the outline completes and is immutable afterwards.
	ExpectedSections int

	Final string

	// Version increases by one on every successful write and is the
	// compare-and-swap token for UpdateJob.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SectionsComplete reports whether every expected section has been drafted.
func (j *Job) SectionsComplete() bool {
	return len(j.Sections) >= j.ExpectedSections
}
