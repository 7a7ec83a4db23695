package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presentos/internal/model"
)

func TestSynthesize_PartialFailure(t *testing.T) {
	s := New(nil)
	intents := []model.Intent{
		{Kind: model.KindCreateTask, Clause: "add a task to file taxes", Confidence: 0.65},
		{Kind: model.KindRunResearch, Clause: "research kite spots", Confidence: 0.8, Index: 1},
	}
	scores := []model.DimensionScore{{P: 0.8, A: 0.4}, {E: 0.8, P: 0.2}}
	results := []model.CapabilityResult{
		{StepID: "i0.task-management", Capability: "task-management", Intent: intents[0], Role: model.RolePrimary, Status: model.StatusSucceeded, Summary: "Created task: file taxes"},
		{StepID: "i1.research", Capability: "research", Intent: intents[1], Role: model.RolePrimary, Status: model.StatusTimeout, Failure: &model.Failure{Kind: model.FailureTimeout}},
	}
	awards := []model.Award{{Dimension: model.Producer, Amount: 10, Capability: "task-management", StepID: "i0.task-management"}}

	resp := s.Synthesize(intents, scores, results, awards)

	assert.Contains(t, resp.Text, "Created task: file taxes")
	assert.Contains(t, resp.Text, "Not completed:")
	assert.Contains(t, resp.Text, `"research kite spots" (research): timed out`)
	assert.Equal(t, []string{"task-management:create-task"}, resp.ActionTags)
	assert.Equal(t, []string{"+10 Producer XP (task-management)"}, resp.AwardDescriptions)
	require.Len(t, resp.Failures, 1)
	// 置信度最高的是 research
	assert.Equal(t, model.Entrepreneur, resp.DominantDimension)
}

func TestSynthesize_TotalOverOddInput(t *testing.T) {
	s := New(nil)
	cases := [][]model.CapabilityResult{
		nil,
		{{Status: model.StatusSkipped}},
		{{Status: model.StatusFailed, Failure: &model.Failure{Kind: "Weird", Message: "?"}}},
		{{Status: model.StatusSucceeded}},
	}
	for _, results := range cases {
		resp := s.Synthesize(nil, nil, results, nil)
		assert.NotEmpty(t, resp.Text)
		assert.NotNil(t, resp.ActionTags)
		assert.Equal(t, model.Dimension(""), resp.DominantDimension)
	}
}

func TestSynthesize_DominantTieUsesEarlierIntent(t *testing.T) {
	s := New(nil)
	intents := []model.Intent{{Confidence: 0.7}, {Confidence: 0.7}}
	scores := []model.DimensionScore{{I: 0.9}, {A: 0.9}}
	resp := s.Synthesize(intents, scores, nil, nil)
	assert.Equal(t, model.Integrator, resp.DominantDimension)
}

func TestSynthesize_FallbackPhrasingAndSkip(t *testing.T) {
	s := New(nil)
	in := model.Intent{Kind: model.KindScheduleEvent, Clause: "schedule sync with Tom", Params: map[string]string{"title": "sync", "when": "Friday 3pm"}}
	results := []model.CapabilityResult{
		{Capability: "scheduling", Intent: in, Role: model.RolePrimary, Status: model.StatusSucceeded},
		{Capability: "participant-notify", Intent: in, Role: model.RoleSecondary, Status: model.StatusSkipped,
			Failure: &model.Failure{Kind: model.FailureSkipped, Message: "dependency i0.scheduling did not succeed"}},
	}
	resp := s.Synthesize([]model.Intent{in}, []model.DimensionScore{{A: 0.7}}, results, nil)

	assert.Contains(t, resp.Text, "Scheduled: sync (Friday 3pm).")
	assert.Contains(t, resp.Text, `participant-notify for "schedule sync with Tom": skipped, dependency i0.scheduling did not succeed`)
}

func TestClarify(t *testing.T) {
	resp := New(nil).Clarify()
	assert.True(t, resp.Clarification)
	assert.Empty(t, resp.ActionTags)
	assert.Empty(t, resp.Awards)
	assert.Contains(t, resp.Text, "rephrase")
}
