package pipeline

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"docforge/internal/events"
	"docforge/internal/llm"
	"docforge/internal/store"

	"github.com/google/uuid"
)

const refineSystemPrompt = "Polish the draft, fix style, return the final Markdown document."

// AssembleDraft joins the drafted sections in ascending section-id order.
func AssembleDraft(job *store.Job) string {
	ids := make([]string, 0, len(job.Sections))
	for id := range job.Sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, job.Sections[id].Text)
	}
	return strings.Join(parts, "\n\n")
}

// RunRefine is the refine task handler: assemble the drafted sections in
// order, stream the polished document, and close the job. The map snapshot
// is read only after the join fired, so it always holds every section.
func (o *Orchestrator) RunRefine(ctx context.Context, jobID uuid.UUID) error {
	if err := o.EnterRefining(ctx, jobID); err != nil {
		return err
	}

	// Re-read after the stage guard so we refine the post-join snapshot.
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Stage.Terminal() {
		// Already finished (duplicate refine delivery) or failed.
		return nil
	}

	stream, err := o.llm.ChatStream(ctx, []llm.Message{
		{Role: "system", Content: refineSystemPrompt},
		{Role: "user", Content: AssembleDraft(job)},
	}, o.cfg.RefineTemperature)
	if err != nil {
		return err
	}

	final, err := llm.Drain(stream, func(delta string) {
		o.publish(ctx, events.Event{JobID: jobID, Phase: events.PhaseRefining, Delta: delta})
	})
	if err != nil {
		return err
	}

	return o.CompleteRefine(ctx, jobID, final)
}
