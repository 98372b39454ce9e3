package pipeline

import (
	"context"
	"encoding/json"

	"docforge/internal/llm"

	"github.com/google/uuid"
)

const clarifySystemPrompt = "You are an AI product manager. " +
	"For any missing fields, ask the user ONE clear question at a time. " +
	`Return JSON: {"question": "...", "field": "placeholder"}`

// Clarify streams a single follow-up question for a job still missing
// answers. fn receives each fragment in generation order; the return value
// is the full question payload. Jobs with nothing missing return "".
//
// This runs synchronously in the request path, not through the task queue:
// it mutates no job state and needs no retry semantics.
func (o *Orchestrator) Clarify(ctx context.Context, jobID uuid.UUID, fn func(delta string)) (string, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}

	missing, err := o.templates.Missing(job.Template, job.Answers)
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return "", nil
	}

	userMsg, err := json.Marshal(map[string]any{
		"known":   job.Answers,
		"missing": missing,
	})
	if err != nil {
		return "", err
	}

	stream, err := o.llm.ChatStream(ctx, []llm.Message{
		{Role: "system", Content: clarifySystemPrompt},
		{Role: "user", Content: string(userMsg)},
	}, 0)
	if err != nil {
		return "", err
	}

	return llm.Drain(stream, fn)
}
