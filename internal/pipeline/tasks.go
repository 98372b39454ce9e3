package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"docforge/internal/store"
)

// Task names submitted to the queue. Delivery is at-least-once, so every
// handler behind these names is written to be idempotent under duplicate
// execution with identical arguments.
const (
	TaskOutline      = "outline"
	TaskDraftSection = "draft_section"
	TaskRefine       = "refine"
)

// DraftPayload carries the section id for a draft_section task.
type DraftPayload struct {
	Section string `json:"section"`
}

// Handle dispatches a claimed queue task to its stage handler.
// Unknown task names are permanent failures.
func (o *Orchestrator) Handle(ctx context.Context, task store.TaskItem) error {
	switch task.TaskName {
	case TaskOutline:
		return o.RunOutline(ctx, task.JobID)
	case TaskDraftSection:
		var p DraftPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad draft payload: %v", ErrPreconditionFailed, err)
		}
		return o.RunDraftSection(ctx, task.JobID, p.Section)
	case TaskRefine:
		return o.RunRefine(ctx, task.JobID)
	default:
		return fmt.Errorf("%w: unknown task %q", ErrPreconditionFailed, task.TaskName)
	}
}
