package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/internal/capability"
	"presentos/internal/model"
	"presentos/internal/notify"
)

type fixedBalance struct{ b model.ExperienceBalance }

func (f fixedBalance) Balance(context.Context) (model.ExperienceBalance, error) { return f.b, nil }

type fixedContext struct{ snap model.ContextSnapshot }

func (f fixedContext) Refresh(context.Context) (model.ContextSnapshot, error) { return f.snap, nil }

// onceLocker mimics the Redis SETNX deduper.
type onceLocker struct{ seen map[string]bool }

func (l *onceLocker) AcquireOnce(_ context.Context, key string) bool {
	if l.seen[key] {
		return false
	}
	l.seen[key] = true
	return true
}

var evening = time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)

func newQueue(t *testing.T) *notify.Queue {
	t.Helper()
	q, err := notify.NewQueue(notify.Config{}, notify.NewMemoryStore(0), zap.NewNop())
	require.NoError(t, err)
	return q.WithClock(func() time.Time { return evening })
}

func TestNextSummary(t *testing.T) {
	s, err := New(Config{}, nil, nil, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC), time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 6, 23, 30, 0, 0, time.UTC), time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.NextSummary(tt.now))
	}
}

func TestNextSummary_Midnight(t *testing.T) {
	midnight := 0
	s, err := New(Config{SummaryHour: &midnight}, nil, nil, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), s.NextSummary(now))
}

func TestNew_RejectsSummaryHourOutOfRange(t *testing.T) {
	for _, h := range []int{-1, 24} {
		hour := h
		_, err := New(Config{SummaryHour: &hour}, nil, nil, nil, nil, nil, zap.NewNop())
		require.Error(t, err, "hour %d", h)
	}
}

func TestEveningSummary_OncePerDayAcrossReplicas(t *testing.T) {
	q := newQueue(t)
	balance := fixedBalance{b: model.ExperienceBalance{P: 60, A: 30, E: 5, I: 5, Total: 100}}
	tasks := CapabilityTaskCounter{Capability: capability.Func{N: "task-management", Fn: func(_ context.Context, req capability.Request) (capability.Response, error) {
		assert.Equal(t, "tasks", req.Params["target"])
		data, _ := json.Marshal(map[string]int{"completed": 4})
		return capability.Response{Data: data}, nil
	}}}
	locker := &onceLocker{seen: map[string]bool{}}

	for i := 0; i < 2; i++ {
		s, err := New(Config{}, nil, balance, tasks, q, locker, zap.NewNop())
		require.NoError(t, err)
		s.WithClock(func() time.Time { return evening })
		require.NoError(t, s.EveningSummary(context.Background()))
	}

	list, err := q.List(context.Background(), model.NotificationFilter{Type: model.NotificationEveningSummary})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Body, "4 actions completed today")
	assert.Contains(t, list[0].Body, "Entrepreneur lagging")
}

func TestRefreshContext_FavorableEnvironment(t *testing.T) {
	q := newQueue(t)
	snap := model.ContextSnapshot{Environment: &model.EnvironmentState{
		Condition:   "surf",
		Favorable:   true,
		Window:      model.TimeWindow{Start: evening.Add(time.Hour), End: evening.Add(3 * time.Hour)},
		CollectedAt: evening,
	}}
	s, err := New(Config{}, fixedContext{snap: snap}, nil, nil, q, nil, zap.NewNop())
	require.NoError(t, err)
	s.WithClock(func() time.Time { return evening })

	s.RefreshContext(context.Background())
	s.RefreshContext(context.Background())

	list, err := q.List(context.Background(), model.NotificationFilter{Type: model.NotificationEnvironmentAlert})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "surf", list[0].Subject)
	assert.Contains(t, list[0].Body, "21:00")
}

func TestRefreshContext_StaleEnvironmentIgnored(t *testing.T) {
	q := newQueue(t)
	snap := model.ContextSnapshot{Environment: &model.EnvironmentState{
		Condition:   "surf",
		Favorable:   true,
		CollectedAt: evening.Add(-2 * time.Hour),
	}}
	s, err := New(Config{}, fixedContext{snap: snap}, nil, nil, q, nil, zap.NewNop())
	require.NoError(t, err)
	s.WithClock(func() time.Time { return evening })

	s.RefreshContext(context.Background())

	n, err := q.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStart_StopsOnCancel(t *testing.T) {
	q := newQueue(t)
	s, err := New(Config{RefreshInterval: 10 * time.Millisecond}, fixedContext{}, fixedBalance{}, nil, q, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
