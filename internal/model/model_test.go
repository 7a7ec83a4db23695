package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDimensionScore_Dominant(t *testing.T) {
	tests := []struct {
		name  string
		score DimensionScore
		want  Dimension
	}{
		{"clear winner", DimensionScore{P: 0.2, A: 0.9, E: 0.1, I: 0.3}, Administrator},
		{"negative magnitude counts", DimensionScore{P: 0.2, A: 0.1, E: -0.8, I: 0.3}, Entrepreneur},
		{"tie P and I prefers P", DimensionScore{P: 0.5, I: 0.5}, Producer},
		{"tie I and A prefers I", DimensionScore{A: 0.5, I: -0.5}, Integrator},
		{"tie E and A prefers E", DimensionScore{A: 0.4, E: 0.4}, Entrepreneur},
		{"all zero", DimensionScore{}, Producer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.score.Dominant(nil))
		})
	}
}

func TestDimensionScore_WithClamps(t *testing.T) {
	s := DimensionScore{}.With(Producer, 1.7).With(Integrator, -3)
	assert.Equal(t, 1.0, s.P)
	assert.Equal(t, -1.0, s.I)
}

func TestExperienceBalance_AddKeepsTotal(t *testing.T) {
	b := ExperienceBalance{}
	for i, d := range []Dimension{Producer, Administrator, Producer, Integrator, Entrepreneur} {
		b = b.Add(d, i+3)
		assert.True(t, b.Consistent())
	}
	assert.Equal(t, b.P+b.A+b.E+b.I, b.Total)
}

func TestLevelFor_Monotonic(t *testing.T) {
	prev := 0
	for total := 0; total <= 5000; total += 7 {
		lvl := LevelFor(total, 50)
		assert.GreaterOrEqual(t, lvl, prev)
		prev = lvl
	}
	assert.Equal(t, 0, LevelFor(49, 50))
	assert.Equal(t, 1, LevelFor(50, 50))
	assert.Equal(t, 2, LevelFor(200, 50))
}

func TestContextSnapshot_Valid(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	snap := ContextSnapshot{
		Energy:      &EnergyState{Level: 30, CollectedAt: now.Add(-10 * time.Minute)},
		Environment: &EnvironmentState{CollectedAt: now.Add(-61 * time.Minute)},
		Calendar:    &CalendarLoad{CollectedAt: now.Add(-5 * time.Minute)},
	}
	assert.True(t, snap.Valid(ContextEnergy, now))
	assert.False(t, snap.Valid(ContextEnvironment, now))
	assert.True(t, snap.Valid(ContextCalendar, now))
	assert.Equal(t, []ContextKind{ContextEnvironment}, snap.StaleKinds(now))

	snap.Staleness = map[ContextKind]time.Duration{ContextEnergy: 5 * time.Minute}
	assert.False(t, snap.Valid(ContextEnergy, now))
}

func TestNotification_DedupKeyUsesDay(t *testing.T) {
	a := Notification{Type: NotificationBalanceAlert, Subject: "E", CreatedAt: time.Date(2026, 5, 4, 1, 0, 0, 0, time.UTC)}
	b := Notification{Type: NotificationBalanceAlert, Subject: "E", CreatedAt: time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)}
	c := Notification{Type: NotificationBalanceAlert, Subject: "E", CreatedAt: time.Date(2026, 5, 5, 0, 1, 0, 0, time.UTC)}
	assert.Equal(t, a.DedupKey(nil), b.DedupKey(nil))
	assert.NotEqual(t, a.DedupKey(nil), c.DedupKey(nil))
}
