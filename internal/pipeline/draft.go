package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"docforge/internal/events"
	"docforge/internal/llm"
	"docforge/internal/store"

	"github.com/google/uuid"
)

const (
	draftSystemPrompt   = "Write only the requested section in Markdown."
	summarySystemPrompt = "Summarize the section in at most 50 words."
)

// draftContext is the context block handed to the drafting call: the job's
// answers, the full outline, and summaries of lower-numbered sections only.
type draftContext struct {
	Answers  map[string]string `json:"answers"`
	Outline  string            `json:"outline"`
	Previous map[string]string `json:"previous"`
}

// previousSummaries collects summaries of sections numbered strictly below k.
// Sections not yet drafted are simply absent: drafting never blocks on
// lower-numbered sections, it just sees less context.
func previousSummaries(job *store.Job, k int) map[string]string {
	prev := make(map[string]string)
	for id, sec := range job.Sections {
		n, err := strconv.Atoi(id)
		if err != nil || n >= k {
			continue
		}
		prev[id] = sec.Summary
	}
	return prev
}

// RunDraftSection is the draft_section task handler: draft one section from
// the outline plus lower-numbered summaries, summarize it, and record the
// result through the join tracker. A retried attempt that finds its section
// already recorded returns success without regenerating.
func (o *Orchestrator) RunDraftSection(ctx context.Context, jobID uuid.UUID, sectionID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Stage.Terminal() {
		return nil
	}
	if _, done := job.Sections[sectionID]; done {
		// Work already done for this precise input: successful no-op.
		return nil
	}

	k, err := strconv.Atoi(sectionID)
	if err != nil || k < 1 || k > job.ExpectedSections {
		return fmt.Errorf("%w: section %q out of range 1..%d", ErrPreconditionFailed, sectionID, job.ExpectedSections)
	}
	if job.Outline == "" {
		return fmt.Errorf("%w: drafting scheduled before outline", ErrPreconditionFailed)
	}

	reqCtx := draftContext{
		Answers:  job.Answers,
		Outline:  job.Outline,
		Previous: previousSummaries(job, k),
	}
	userMsg, err := json.Marshal(map[string]any{
		"context": reqCtx,
		"section": sectionID,
	})
	if err != nil {
		return err
	}

	stream, err := o.llm.ChatStream(ctx, []llm.Message{
		{Role: "system", Content: draftSystemPrompt},
		{Role: "user", Content: string(userMsg)},
	}, o.cfg.DraftTemperature)
	if err != nil {
		return err
	}

	text, err := llm.Drain(stream, func(delta string) {
		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseSection, Section: sectionID, Delta: delta})
	})
	if err != nil {
		return err
	}

	// Second, non-streamed call for the short summary that feeds
	// higher-numbered sections.
	sumStream, err := o.llm.ChatStream(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: text},
	}, o.cfg.SummaryTemperature)
	if err != nil {
		return err
	}
	summary, err := llm.Drain(sumStream, nil)
	if err != nil {
		return err
	}

	return o.RecordSectionResult(ctx, jobID, sectionID, text, summary)
}
