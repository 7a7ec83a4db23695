package contextstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/internal/model"
)

func energyCollector(level int, at func() time.Time, calls *int32) StaticCollector {
	return StaticCollector{K: model.ContextEnergy, Fn: func(ctx context.Context) (model.ContextSnapshot, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return model.ContextSnapshot{Energy: &model.EnergyState{Level: level, CollectedAt: at()}}, nil
	}}
}

func TestRefresh_MergesAndKeepsFailedEntries(t *testing.T) {
	now := time.Now()
	s := NewStore(Config{}, zap.NewNop(),
		energyCollector(70, func() time.Time { return now }, nil),
		StaticCollector{K: model.ContextCalendar, Fn: func(ctx context.Context) (model.ContextSnapshot, error) {
			return model.ContextSnapshot{}, errors.New("calendar down")
		}},
	)
	s.Set(model.ContextSnapshot{Calendar: &model.CalendarLoad{BusyRatio: 0.5, CollectedAt: now.Add(-time.Minute)}})

	snap, err := s.Refresh(context.Background())
	require.Error(t, err)
	require.NotNil(t, snap.Energy)
	assert.Equal(t, 70, snap.Energy.Level)
	require.NotNil(t, snap.Calendar)
	assert.Equal(t, 0.5, snap.Calendar.BusyRatio)
	assert.Equal(t, snap, s.Current())
}

func TestUpdate_KeepsConcurrentSet(t *testing.T) {
	now := time.Now()
	s := NewStore(Config{}, zap.NewNop())
	energy := &model.EnergyState{Level: 65, CollectedAt: now}
	calendar := &model.CalendarLoad{BusyRatio: 0.4, CollectedAt: now}

	calls := 0
	snap := s.update(func(cur model.ContextSnapshot) model.ContextSnapshot {
		calls++
		if calls == 1 {
			// 读取之后、替换之前有推送写入
			s.Set(model.ContextSnapshot{Calendar: calendar})
		}
		return merge(cur, model.ContextSnapshot{Energy: energy})
	})

	assert.Equal(t, 2, calls)
	assert.Same(t, energy, snap.Energy)
	assert.Same(t, calendar, snap.Calendar)
	assert.Equal(t, snap, s.Current())
}

func TestFresh_SkipsRefreshWhenValid(t *testing.T) {
	var calls int32
	now := time.Now()
	s := NewStore(Config{}, zap.NewNop(), energyCollector(50, func() time.Time { return now }, &calls))
	s.Set(model.ContextSnapshot{
		Energy:      &model.EnergyState{Level: 20, CollectedAt: now},
		Environment: &model.EnvironmentState{CollectedAt: now},
		Calendar:    &model.CalendarLoad{CollectedAt: now},
	})

	snap, err := s.Fresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Energy.Level)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFresh_RefreshesStaleEntry(t *testing.T) {
	var calls int32
	now := time.Now()
	s := NewStore(Config{}, zap.NewNop(), energyCollector(55, func() time.Time { return now }, &calls))
	s.Set(model.ContextSnapshot{Energy: &model.EnergyState{Level: 20, CollectedAt: now.Add(-time.Hour)}})

	snap, err := s.Fresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, snap.Energy.Level)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReaders_SeeWholeSnapshots(t *testing.T) {
	var n int32
	s := NewStore(Config{}, zap.NewNop(), StaticCollector{K: model.ContextEnergy, Fn: func(ctx context.Context) (model.ContextSnapshot, error) {
		v := int(atomic.AddInt32(&n, 1))
		at := time.Unix(int64(v), 0)
		return model.ContextSnapshot{
			Energy:   &model.EnergyState{Level: v % 100, CollectedAt: at},
			Calendar: &model.CalendarLoad{BusyRatio: float64(v%100) / 100, CollectedAt: at},
		}, nil
	}})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Refresh(ctx)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Current()
				if snap.Energy == nil {
					continue
				}
				// 同一次采集写入的两个条目必须一起出现
				assert.Equal(t, snap.Energy.CollectedAt, snap.Calendar.CollectedAt)
			}
		}()
	}
	wg.Wait()
}

func TestDecodeEntry(t *testing.T) {
	snap, err := DecodeEntry(model.ContextEnergy, []byte(`{"level":35,"collected_at":"2026-05-04T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, 35, snap.Energy.Level)

	_, err = DecodeEntry(model.ContextEnergy, []byte(`{"level":135}`))
	require.Error(t, err)

	snap, err = DecodeEntry(model.ContextEnvironment, []byte(`{"condition":"kite","favorable":true,"surf_score":8.5}`))
	require.NoError(t, err)
	assert.True(t, snap.Environment.Favorable)

	_, err = DecodeEntry(model.ContextCalendar, []byte(`not json`))
	require.Error(t, err)
}
