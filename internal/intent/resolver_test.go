package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/internal/model"
)

type countingClassifier struct {
	calls int
	fixed model.Intent
}

func (c *countingClassifier) Classify(ctx context.Context, clause string) (model.Intent, error) {
	c.calls++
	in := c.fixed
	in.Clause = clause
	return in, nil
}

func TestSplitClauses(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Schedule team sync Friday 3pm and check my emails", []string{"Schedule team sync Friday 3pm", "check my emails"}},
		{"Book lunch with Tom and Anna", []string{"Book lunch with Tom and Anna"}},
		{"Add a task to file taxes, then send an email to Sarah", []string{"Add a task to file taxes", "send an email to Sarah"}},
		{"Check the weather; research kite spots. Remind me to call mom!", []string{"Check the weather", "research kite spots", "Remind me to call mom"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitClauses(tt.text))
		})
	}
}

func TestResolve_ExampleUtterance(t *testing.T) {
	r := NewResolver(Config{}, nil, zap.NewNop())

	intents, err := r.Resolve(context.Background(), model.Utterance{Text: "Schedule team sync Friday 3pm and check my emails"})
	require.NoError(t, err)
	require.Len(t, intents, 2)

	assert.Equal(t, model.KindScheduleEvent, intents[0].Kind)
	assert.Equal(t, "Friday 3pm", intents[0].Param("when"))
	assert.Equal(t, "team sync", intents[0].Param("title"))
	assert.Equal(t, 0, intents[0].Index)

	assert.Equal(t, model.KindCheckStatus, intents[1].Kind)
	assert.Equal(t, "email", intents[1].Param("target"))
	assert.Equal(t, 1, intents[1].Index)

	for _, in := range intents {
		assert.GreaterOrEqual(t, in.Confidence, DefaultMinConfidence)
	}
}

func TestResolve_BelowThreshold(t *testing.T) {
	c := &countingClassifier{fixed: model.Intent{Kind: model.KindCreateTask, Confidence: 0.20}}
	r := NewResolver(Config{}, c, zap.NewNop())

	_, err := r.Resolve(context.Background(), model.Utterance{Text: "hmm, whatever"})
	require.ErrorIs(t, err, ErrUnresolvedIntent)
}

func TestResolve_Gibberish(t *testing.T) {
	r := NewResolver(Config{}, nil, zap.NewNop())
	_, err := r.Resolve(context.Background(), model.Utterance{Text: "blorp zzz"})
	require.ErrorIs(t, err, ErrUnresolvedIntent)
}

func TestResolve_DropsOnlyWeakClauses(t *testing.T) {
	r := NewResolver(Config{}, nil, zap.NewNop())
	intents, err := r.Resolve(context.Background(), model.Utterance{Text: "check the surf forecast and tell me something"})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.KindCheckEnvironment, intents[0].Kind)
}

func TestResolve_CachesByNormalizedText(t *testing.T) {
	c := &countingClassifier{fixed: model.Intent{Kind: model.KindRunResearch, Confidence: 0.8, Params: map[string]string{"topic": "x"}}}
	r := NewResolver(Config{}, c, zap.NewNop())
	ctx := context.Background()

	first, err := r.Resolve(ctx, model.Utterance{Text: "Research kite spots"})
	require.NoError(t, err)
	first[0].Params["topic"] = "mutated"

	second, err := r.Resolve(ctx, model.Utterance{Text: "  research   KITE spots "})
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, "x", second[0].Param("topic"))
}

func TestResolve_CacheKeyFollowsClauseBoundaries(t *testing.T) {
	c := &countingClassifier{fixed: model.Intent{Kind: model.KindRunResearch, Confidence: 0.8}}
	r := NewResolver(Config{}, c, zap.NewNop())
	ctx := context.Background()

	split, err := r.Resolve(ctx, model.Utterance{Text: "Research kite spots. Check my emails"})
	require.NoError(t, err)
	require.Len(t, split, 2)

	// 同样的词、不同的切分，不能命中上一次的缓存
	joined, err := r.Resolve(ctx, model.Utterance{Text: "Research kite spots check my emails"})
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, 3, c.calls)

	fresh := NewResolver(Config{}, &countingClassifier{fixed: c.fixed}, zap.NewNop())
	want, err := fresh.Resolve(ctx, model.Utterance{Text: "Research kite spots check my emails"})
	require.NoError(t, err)
	assert.Equal(t, want, joined)
}

func TestKeywordClassifier_Kinds(t *testing.T) {
	tests := []struct {
		clause string
		want   model.IntentKind
	}{
		{"send an email to Sarah about the launch", model.KindSendEmail},
		{"what's my budget looking like", model.KindCheckFinance},
		{"summarize yesterday's meeting", model.KindSummarizeMeeting},
		{"who is Marco", model.KindRecallContact},
		{"add a task to renew passport", model.KindCreateTask},
		{"check my calendar", model.KindCheckStatus},
	}
	c := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			in, err := c.Classify(context.Background(), tt.clause)
			require.NoError(t, err)
			assert.Equal(t, tt.want, in.Kind)
			assert.GreaterOrEqual(t, in.Confidence, DefaultMinConfidence)
		})
	}
}
