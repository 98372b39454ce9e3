package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/events"
	"docforge/internal/store"
)

func TestAssembleDraft_NumericOrder(t *testing.T) {
	job := &store.Job{
		Sections: map[string]store.Section{
			"10": {Text: "tenth"},
			"2":  {Text: "second"},
			"1":  {Text: "first"},
		},
	}

	// "10" sorts after "2" numerically, not lexically.
	assert.Equal(t, "first\n\nsecond\n\ntenth", AssembleDraft(job))
}

func TestRunRefine_AssemblesStreamsAndCloses(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageRefining, func(j *store.Job) {
		j.Outline = "# A\n# B"
		j.ExpectedSections = 2
		j.Sections = map[string]store.Section{
			"1": {Text: "alpha"},
			"2": {Text: "beta"},
		}
	})
	env.llm.script(refineSystemPrompt, &fakeStream{frags: []string{"final ", "document"}})

	require.NoError(t, env.orch.RunRefine(context.Background(), jobID))

	job, err := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.StageDone, job.Stage)
	assert.Equal(t, "final document", job.Final)

	// The refine prompt carries the assembled draft in section order.
	require.Len(t, env.llm.requests, 1)
	assert.Equal(t, "alpha\n\nbeta", env.llm.requests[0][1].Content)

	assert.Equal(t, "final document", env.pub.deltas(events.PhaseRefining, ""))
	assert.Equal(t, 1, env.pub.countPhase(events.PhaseDone))
}

func TestRunRefine_CatchesUpMissedStageWrite(t *testing.T) {
	// The refine task was delivered but the join winner's stage write was
	// rolled back with its transaction never reaching DRAFTING->REFINING.
	// EnterRefining at the head of the task performs it instead.
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDrafting, func(j *store.Job) {
		j.Outline = "# A"
		j.ExpectedSections = 1
		j.Sections = map[string]store.Section{"1": {Text: "only"}}
	})
	env.llm.script(refineSystemPrompt, &fakeStream{frags: []string{"polished"}})

	require.NoError(t, env.orch.RunRefine(context.Background(), jobID))

	job, err := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.StageDone, job.Stage)
	assert.Equal(t, "polished", job.Final)
}

func TestRunRefine_DuplicateDeliveryAfterDone(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.seedJob(t, store.StageDone, func(j *store.Job) {
		j.Final = "already final"
	})

	// No scripted stream: a regeneration attempt would fail the test.
	require.NoError(t, env.orch.RunRefine(context.Background(), jobID))

	job, err := env.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "already final", job.Final)
	assert.Empty(t, env.llm.calls)
}
