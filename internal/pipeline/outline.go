package pipeline

import (
	"context"
	"regexp"

	"docforge/internal/events"
	"docforge/internal/llm"
	"docforge/internal/store"

	"github.com/google/uuid"
)

const outlineSystemPrompt = "Return only a Markdown outline."

// h1Re matches top-level markdown headings on their own line. Matching whole
// lines instead of raw substrings keeps marker text inside section bodies
// from inflating the count.
var h1Re = regexp.MustCompile(`(?m)^# `)

// CountSections returns the number of drafting sections an outline fans out
// to: one per H1 heading. Computed exactly once at outline completion and
// persisted; never recomputed afterwards.
func CountSections(outline string) int {
	return len(h1Re.FindAllStringIndex(outline, -1))
}

// RunOutline is the outline task handler: render the template with the job's
// answers, stream the outline from the generation service, and complete the
// outline stage. Safe to re-execute: a job whose outline is already complete
// skips straight to a successful return.
func (o *Orchestrator) RunOutline(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if store.StageOutlining.Before(job.Stage) || job.Stage == store.StageError {
		// Retried attempt after the outline already completed (or the job died).
		return nil
	}

	if err := o.EnterOutlining(ctx, jobID); err != nil {
		return err
	}

	prompt, err := o.templates.Render(job.Template, job.Answers)
	if err != nil {
		return err
	}

	stream, err := o.llm.ChatStream(ctx, []llm.Message{
		{Role: "system", Content: outlineSystemPrompt},
		{Role: "user", Content: prompt},
	}, o.cfg.OutlineTemperature)
	if err != nil {
		return err
	}

	outline, err := llm.Drain(stream, func(delta string) {
		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseOutlining, Delta: delta})
	})
	if err != nil {
		// Partial output is discarded; the whole task retries from scratch.
		return err
	}

	return o.CompleteOutline(ctx, jobID, outline)
}
