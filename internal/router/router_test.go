package router

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"presentos/internal/capability"
	"presentos/internal/model"
	"presentos/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCap struct {
	name  string
	calls int32
	fn    func(ctx context.Context, call int32, req capability.Request) (capability.Response, error)
}

func (f *fakeCap) Name() string { return f.name }

func (f *fakeCap) Invoke(ctx context.Context, req capability.Request) (capability.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, n, req)
}

func (f *fakeCap) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func ok(summary string) func(context.Context, int32, capability.Request) (capability.Response, error) {
	return func(context.Context, int32, capability.Request) (capability.Response, error) {
		return capability.Response{Summary: summary}, nil
	}
}

func blockUntilDone(ctx context.Context, _ int32, _ capability.Request) (capability.Response, error) {
	<-ctx.Done()
	return capability.Response{}, ctx.Err()
}

func newRouter(t *testing.T, caps ...capability.Capability) *Router {
	t.Helper()
	reg, err := registry.New(registry.Defaults())
	require.NoError(t, err)
	return New(Config{}, reg, capability.NewSet(caps...), zap.NewNop())
}

func step(id, capName string, kind model.IntentKind, mutating bool, deps ...string) model.PlanStep {
	return model.PlanStep{
		ID:               id,
		Capability:       capName,
		Intent:           model.Intent{Kind: kind},
		Role:             model.RolePrimary,
		DependsOn:        deps,
		Timeout:          time.Second,
		Mutating:         mutating,
		ParallelEligible: len(deps) == 0,
	}
}

func TestExecute_ParallelSteps(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(ctx context.Context, _ int32, _ capability.Request) (capability.Response, error) {
		wg.Done()
		waited := make(chan struct{})
		go func() { wg.Wait(); close(waited) }()
		select {
		case <-waited:
			return capability.Response{Summary: "done"}, nil
		case <-ctx.Done():
			return capability.Response{}, ctx.Err()
		}
	}
	sched := &fakeCap{name: registry.Scheduling, fn: barrier}
	msg := &fakeCap{name: registry.Messaging, fn: barrier}
	r := newRouter(t, sched, msg)

	plan := model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.scheduling", registry.Scheduling, model.KindScheduleEvent, true),
		step("i1.messaging", registry.Messaging, model.KindCheckStatus, false),
	}}
	results := r.Execute(context.Background(), plan, model.ContextSnapshot{})

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, model.StatusSucceeded, res.Status, res.StepID)
	}
}

func TestExecute_PartialFailure(t *testing.T) {
	a := &fakeCap{name: registry.TaskManagement, fn: ok("Created task")}
	b := &fakeCap{name: registry.Research, fn: blockUntilDone}
	r := newRouter(t, a, b)

	sb := step("i1.research", registry.Research, model.KindRunResearch, false)
	sb.Timeout = 30 * time.Millisecond
	plan := model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.task-management", registry.TaskManagement, model.KindCreateTask, true),
		sb,
	}}
	results := r.Execute(context.Background(), plan, model.ContextSnapshot{})

	assert.Equal(t, model.StatusSucceeded, results[0].Status)
	assert.Equal(t, "Created task", results[0].Summary)
	assert.Equal(t, model.StatusTimeout, results[1].Status)
	assert.Equal(t, model.FailureTimeout, results[1].Failure.Kind)
	// 只读步骤超时后重试一次
	assert.Equal(t, 2, b.Calls())
	assert.Equal(t, 2, results[1].Attempts)
}

func TestExecute_ReadOnlyRetriedOnce(t *testing.T) {
	flaky := &fakeCap{name: registry.Finance, fn: func(ctx context.Context, call int32, _ capability.Request) (capability.Response, error) {
		if call == 1 {
			return capability.Response{}, model.NewFailure(model.FailureRateLimited, "slow down")
		}
		return capability.Response{Summary: "Spent 40% of budget"}, nil
	}}
	r := newRouter(t, flaky)

	results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.finance", registry.Finance, model.KindCheckFinance, false),
	}}, model.ContextSnapshot{})

	assert.Equal(t, model.StatusSucceeded, results[0].Status)
	assert.Equal(t, 2, results[0].Attempts)
	assert.Equal(t, 2, flaky.Calls())
}

func TestExecute_DispatchCaps(t *testing.T) {
	unavailable := func(context.Context, int32, capability.Request) (capability.Response, error) {
		return capability.Response{}, model.NewFailure(model.FailureUnavailable, "down")
	}
	notFound := func(context.Context, int32, capability.Request) (capability.Response, error) {
		return capability.Response{}, model.NewFailure(model.FailureNotFound, "no such contact")
	}
	tests := []struct {
		name      string
		capName   string
		kind      model.IntentKind
		mutating  bool
		fn        func(context.Context, int32, capability.Request) (capability.Response, error)
		wantCalls int
	}{
		{"read-only transient", registry.Environment, model.KindCheckEnvironment, false, unavailable, 2},
		{"read-only permanent", registry.RelationshipMemory, model.KindRecallContact, false, notFound, 1},
		{"mutating transient", registry.Messaging, model.KindSendEmail, true, unavailable, 1},
		{"mutating permanent", registry.Scheduling, model.KindScheduleEvent, true, notFound, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCap{name: tt.capName, fn: tt.fn}
			r := newRouter(t, c)
			results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{
				step("s", tt.capName, tt.kind, tt.mutating),
			}}, model.ContextSnapshot{})

			assert.Equal(t, model.StatusFailed, results[0].Status)
			assert.Equal(t, tt.wantCalls, c.Calls())
			assert.Equal(t, tt.wantCalls, results[0].Attempts)
		})
	}
}

func TestExecute_DependentSkipped(t *testing.T) {
	sched := &fakeCap{name: registry.Scheduling, fn: func(context.Context, int32, capability.Request) (capability.Response, error) {
		return capability.Response{}, model.NewFailure(model.FailureInvalidInput, "no time given")
	}}
	notify := &fakeCap{name: registry.ParticipantNotify, fn: ok("notified")}
	logDecision := &fakeCap{name: registry.DecisionLog, fn: ok("logged")}
	r := newRouter(t, sched, notify, logDecision)

	plan := model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.scheduling", registry.Scheduling, model.KindScheduleEvent, true),
		step("i0.participant-notify", registry.ParticipantNotify, model.KindScheduleEvent, true, "i0.scheduling"),
		step("i0.decision-log", registry.DecisionLog, model.KindScheduleEvent, true),
	}}
	results := r.Execute(context.Background(), plan, model.ContextSnapshot{})

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, model.StatusSkipped, results[1].Status)
	assert.Equal(t, model.FailureSkipped, results[1].Failure.Kind)
	assert.Equal(t, 0, notify.Calls())
	assert.Equal(t, model.StatusSucceeded, results[2].Status)
}

func TestExecute_UpstreamPayload(t *testing.T) {
	sched := &fakeCap{name: registry.Scheduling, fn: func(context.Context, int32, capability.Request) (capability.Response, error) {
		return capability.Response{Summary: "booked", Data: json.RawMessage(`{"event_id":"ev-1"}`)}, nil
	}}
	var got json.RawMessage
	notify := &fakeCap{name: registry.ParticipantNotify, fn: func(_ context.Context, _ int32, req capability.Request) (capability.Response, error) {
		got = req.Upstream["i0.scheduling"]
		return capability.Response{Summary: "notified"}, nil
	}}
	r := newRouter(t, sched, notify)

	results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.participant-notify", registry.ParticipantNotify, model.KindScheduleEvent, true, "i0.scheduling"),
		step("i0.scheduling", registry.Scheduling, model.KindScheduleEvent, true),
	}}, model.ContextSnapshot{})

	assert.Equal(t, "i0.participant-notify", results[0].StepID)
	assert.Equal(t, model.StatusSucceeded, results[0].Status)
	assert.JSONEq(t, `{"event_id":"ev-1"}`, string(got))
}

func TestExecute_BudgetExceeded(t *testing.T) {
	slow := &fakeCap{name: registry.Scheduling, fn: blockUntilDone}
	notify := &fakeCap{name: registry.ParticipantNotify, fn: ok("notified")}
	r := newRouter(t, slow, notify)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := r.Execute(ctx, model.CapabilityPlan{Steps: []model.PlanStep{
		step("i0.scheduling", registry.Scheduling, model.KindScheduleEvent, true),
		step("i0.participant-notify", registry.ParticipantNotify, model.KindScheduleEvent, true, "i0.scheduling"),
	}}, model.ContextSnapshot{})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.StatusTimeout, results[0].Status)
	assert.Equal(t, model.StatusSkipped, results[1].Status)
	assert.Equal(t, 0, notify.Calls())
}

func TestExecute_CapabilityIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	stuck := &fakeCap{name: registry.Environment, fn: func(context.Context, int32, capability.Request) (capability.Response, error) {
		<-release
		return capability.Response{}, nil
	}}
	r := New(Config{}, mustRegistry(t), capability.NewSet(stuck), zap.NewNop())

	s := step("i0.environment", registry.Environment, model.KindCheckEnvironment, true)
	s.Timeout = 20 * time.Millisecond
	results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{s}}, model.ContextSnapshot{})
	close(release)

	assert.Equal(t, model.StatusTimeout, results[0].Status)
	assert.Equal(t, 1, stuck.Calls())
}

func TestExecute_PanicAndMissingImplementation(t *testing.T) {
	boom := &fakeCap{name: registry.Finance, fn: func(context.Context, int32, capability.Request) (capability.Response, error) {
		panic("boom")
	}}
	r := newRouter(t, boom)

	results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{
		step("a", registry.Finance, model.KindCheckFinance, true),
		step("b", registry.Research, model.KindRunResearch, false),
	}}, model.ContextSnapshot{})

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, model.FailureUnavailable, results[0].Failure.Kind)
	assert.Equal(t, model.StatusFailed, results[1].Status)
}

func TestExecute_CircularDependency(t *testing.T) {
	c := &fakeCap{name: registry.Finance, fn: ok("x")}
	r := newRouter(t, c)

	results := r.Execute(context.Background(), model.CapabilityPlan{Steps: []model.PlanStep{
		step("a", registry.Finance, model.KindCheckFinance, false, "b"),
		step("b", registry.Finance, model.KindCheckFinance, false, "a"),
	}}, model.ContextSnapshot{})

	for _, res := range results {
		assert.Equal(t, model.StatusSkipped, res.Status)
	}
	assert.Equal(t, 0, c.Calls())
}

func mustRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Defaults())
	require.NoError(t, err)
	return reg
}
