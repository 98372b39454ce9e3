package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docforge/internal/events"
	"docforge/internal/store"

	"github.com/google/uuid"
)

// EnterOutlining moves a job from QUEUED/AWAITING_INPUT to OUTLINING.
// Re-entry on a job already at or past OUTLINING is a no-op: one OUTLINING
// event is published per job no matter how often the trigger is duplicated.
func (o *Orchestrator) EnterOutlining(ctx context.Context, jobID uuid.UUID) error {
	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		switch job.Stage {
		case store.StageQueued, store.StageAwaitingInput:
		default:
			return nil
		}

		missing, err := o.templates.Missing(job.Template, job.Answers)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: answers missing for %v", ErrPreconditionFailed, missing)
		}

		job.Stage = store.StageOutlining
		if err := o.store.UpdateJob(ctx, nil, job, job.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseOutlining})
		return nil
	}
}

// CompleteOutline persists the outline, fixes the expected section count, and
// fans out one drafting task per derived section id. The guard on OUTLINING
// makes a second completion for an already-past job a pure no-op, so drafting
// work is never resubmitted. An outline with zero detected sections is a
// degenerate join: the job goes straight to REFINING.
func (o *Orchestrator) CompleteOutline(ctx context.Context, jobID uuid.UUID, outline string) error {
	if strings.TrimSpace(outline) == "" {
		return fmt.Errorf("%w: empty outline", ErrPreconditionFailed)
	}

	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Stage != store.StageOutlining {
			if store.StageOutlining.Before(job.Stage) {
				// Outline already completed by an earlier attempt.
				return nil
			}
			return fmt.Errorf("%w: cannot complete outline in stage %s", ErrPreconditionFailed, job.Stage)
		}

		n := CountSections(outline)
		job.Outline = outline
		job.ExpectedSections = n

		degenerate := n == 0
		if degenerate {
			job.Stage = store.StageRefining
		} else {
			job.Stage = store.StageDrafting
		}

		tx, err := o.store.BeginTx(ctx)
		if err != nil {
			return err
		}

		if err := o.store.UpdateJob(ctx, tx, job, job.Version); err != nil {
			tx.Rollback()
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		if degenerate {
			if _, err := o.queue.Enqueue(ctx, tx, jobID, TaskRefine, nil, time.Time{}); err != nil {
				tx.Rollback()
				return err
			}
		} else {
			for i := 1; i <= n; i++ {
				payload, err := json.Marshal(DraftPayload{Section: strconv.Itoa(i)})
				if err != nil {
					tx.Rollback()
					return err
				}
				if _, err := o.queue.Enqueue(ctx, tx, jobID, TaskDraftSection, payload, time.Time{}); err != nil {
					tx.Rollback()
					return err
				}
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseOutlineDone})
		if degenerate {
			o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseRefining})
		}
		return nil
	}
}

// RecordSectionResult upserts one drafted section and performs the join
// check. Completions arrive in any order and may be duplicated; overwriting
// an existing entry is harmless because refinement reads the map only after
// the join fires. Exactly one caller wins the compare-and-swap that flips
// DRAFTING to REFINING, and that winner enqueues refinement in the same
// transaction; losers re-read, see REFINING, and only record their section.
func (o *Orchestrator) RecordSectionResult(ctx context.Context, jobID uuid.UUID, sectionID, text, summary string) error {
	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Stage == store.StageError {
			// Job already failed terminally; drop the result.
			return nil
		}

		n, err := strconv.Atoi(sectionID)
		if err != nil || n < 1 || n > job.ExpectedSections {
			return fmt.Errorf("%w: section %q out of range 1..%d", ErrPreconditionFailed, sectionID, job.ExpectedSections)
		}
		if job.Outline == "" {
			return fmt.Errorf("%w: no outline recorded", ErrPreconditionFailed)
		}

		switch job.Stage {
		case store.StageOutlining:
			// First completion can race the outline task's own stage write.
			job.Stage = store.StageDrafting
		case store.StageDrafting, store.StageRefining, store.StageDone:
			// Post-join duplicates are accepted as overwrites.
		default:
			return fmt.Errorf("%w: cannot record section in stage %s", ErrPreconditionFailed, job.Stage)
		}

		if job.Sections == nil {
			job.Sections = make(map[string]store.Section)
		}
		job.Sections[sectionID] = store.Section{Text: text, Summary: summary}

		fires := job.Stage == store.StageDrafting && job.SectionsComplete()
		if fires {
			job.Stage = store.StageRefining
		}

		tx, err := o.store.BeginTx(ctx)
		if err != nil {
			return err
		}

		if err := o.store.UpdateJob(ctx, tx, job, job.Version); err != nil {
			tx.Rollback()
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		if fires {
			if _, err := o.queue.Enqueue(ctx, tx, jobID, TaskRefine, nil, time.Time{}); err != nil {
				tx.Rollback()
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseSectionDone, Section: sectionID})
		if fires {
			o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseRefining})
		}
		return nil
	}
}

// EnterRefining is the idempotent re-entry guard at the head of the refine
// task. The join winner normally advanced the stage already, making this a
// no-op; it only performs the transition itself when the stage write was
// lost between join and task pickup.
func (o *Orchestrator) EnterRefining(ctx context.Context, jobID uuid.UUID) error {
	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Stage == store.StageRefining || job.Stage.Terminal() {
			return nil
		}
		if job.Stage != store.StageDrafting || !job.SectionsComplete() {
			return fmt.Errorf("%w: cannot refine in stage %s with %d/%d sections", ErrPreconditionFailed, job.Stage, len(job.Sections), job.ExpectedSections)
		}

		job.Stage = store.StageRefining
		if err := o.store.UpdateJob(ctx, nil, job, job.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseRefining})
		return nil
	}
}

// CompleteRefine writes the final document exactly once and closes the job.
func (o *Orchestrator) CompleteRefine(ctx context.Context, jobID uuid.UUID, finalText string) error {
	if strings.TrimSpace(finalText) == "" {
		return fmt.Errorf("%w: empty final document", ErrPreconditionFailed)
	}

	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Stage.Terminal() {
			return nil
		}
		if job.Stage != store.StageRefining {
			return fmt.Errorf("%w: cannot complete refine in stage %s", ErrPreconditionFailed, job.Stage)
		}

		job.Final = finalText
		job.Stage = store.StageDone
		if err := o.store.UpdateJob(ctx, nil, job, job.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseDone})
		return nil
	}
}

// MarkFailed moves a job to ERROR after its retry budget is exhausted and
// publishes the terminal failure event. Terminal jobs are left untouched.
func (o *Orchestrator) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error {
	for {
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Stage.Terminal() {
			return nil
		}

		job.Stage = store.StageError
		if err := o.store.UpdateJob(ctx, nil, job, job.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return err
		}

		o.logger.Error("job failed terminally", "job_id", jobID, "reason", reason)
		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseFailed, Error: reason})
		return nil
	}
}
