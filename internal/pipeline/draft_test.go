package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/events"
	"docforge/internal/store"
)

func TestPreviousSummaries(t *testing.T) {
	job := &store.Job{
		Sections: map[string]store.Section{
			"1": {Text: "a", Summary: "sum a"},
			"2": {Text: "b", Summary: "sum b"},
			"4": {Text: "d", Summary: "sum d"},
		},
	}

	prev := previousSummaries(job, 4)
	assert.Equal(t, map[string]string{"1": "sum a", "2": "sum b"}, prev)

	// The first section never has context.
	assert.Empty(t, previousSummaries(job, 1))
}

func TestRunDraftSection_DraftsAndRecords(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDrafting, func(j *store.Job) {
		j.Outline = "# A\n# B"
		j.ExpectedSections = 2
		j.Sections = map[string]store.Section{"1": {Text: "a text", Summary: "a sum"}}
	})
	env.llm.script(draftSystemPrompt, &fakeStream{frags: []string{"section ", "two ", "text"}})
	env.llm.script(summarySystemPrompt, &fakeStream{frags: []string{"short summary"}})

	require.NoError(t, env.orch.RunDraftSection(context.Background(), jobID, "2"))

	job, err := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "section two text", job.Sections["2"].Text)
	assert.Equal(t, "short summary", job.Sections["2"].Summary)
	// Last section recorded: the join fires.
	assert.Equal(t, store.StageRefining, job.Stage)
	assert.Len(t, env.queue.named(TaskRefine), 1)

	// The drafting prompt carries the lower-numbered summary as context.
	require.Len(t, env.llm.requests, 2)
	var draftReq struct {
		Context struct {
			Previous map[string]string `json:"previous"`
		} `json:"context"`
		Section string `json:"section"`
	}
	require.NoError(t, json.Unmarshal([]byte(env.llm.requests[0][1].Content), &draftReq))
	assert.Equal(t, "2", draftReq.Section)
	assert.Equal(t, map[string]string{"1": "a sum"}, draftReq.Context.Previous)

	// Token stream reaches viewers in generation order.
	assert.Equal(t, "section two text", env.pub.deltas(events.PhaseSection, "2"))
}

func TestRunDraftSection_AlreadyRecordedIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDrafting, func(j *store.Job) {
		j.Outline = "# A\n# B"
		j.ExpectedSections = 2
		j.Sections = map[string]store.Section{"1": {Text: "done", Summary: "s"}}
	})

	// No scripted stream: regeneration would fail the test.
	require.NoError(t, env.orch.RunDraftSection(context.Background(), jobID, "1"))
	assert.Empty(t, env.llm.calls)

	job, err := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "done", job.Sections["1"].Text)
}

func TestRunDraftSection_TerminalJobIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageError, func(j *store.Job) {
		j.Outline = "# A"
		j.ExpectedSections = 1
	})

	require.NoError(t, env.orch.RunDraftSection(context.Background(), jobID, "1"))
	assert.Empty(t, env.llm.calls)
}

func TestRunDraftSection_OutOfRange(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDrafting, func(j *store.Job) {
		j.Outline = "# A"
		j.ExpectedSections = 1
	})

	err := env.orch.RunDraftSection(context.Background(), jobID, "5")
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestRunDraftSection_StreamFailureRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDrafting, func(j *store.Job) {
		j.Outline = "# A"
		j.ExpectedSections = 1
	})
	streamErr := errors.New("stream cut")
	env.llm.script(draftSystemPrompt, &fakeStream{frags: []string{"partial "}, err: streamErr})

	err := env.orch.RunDraftSection(context.Background(), jobID, "1")
	require.ErrorIs(t, err, streamErr)

	job, getErr := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Empty(t, job.Sections)
	assert.Equal(t, store.StageDrafting, job.Stage)
}
