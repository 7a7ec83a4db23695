package model

import "time"

// ContextKind 情境快照中的条目类型
type ContextKind string

const (
	ContextEnergy      ContextKind = "energy"
	ContextEnvironment ContextKind = "environment"
	ContextCalendar    ContextKind = "calendar"
)

var ContextKinds = []ContextKind{ContextEnergy, ContextEnvironment, ContextCalendar}

// DefaultStaleness 各条目默认有效期
var DefaultStaleness = map[ContextKind]time.Duration{
	ContextEnergy:      15 * time.Minute,
	ContextEnvironment: 60 * time.Minute,
	ContextCalendar:    5 * time.Minute,
}

// TimeWindow half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

type EnergyState struct {
	// Level 0-100
	Level       int       `json:"level"`
	CollectedAt time.Time `json:"collected_at"`
}

type EnvironmentState struct {
	Condition   string     `json:"condition"`
	SurfScore   float64    `json:"surf_score"`
	RainRisk    string     `json:"rain_risk"`
	Favorable   bool       `json:"favorable"`
	Window      TimeWindow `json:"window"`
	CollectedAt time.Time  `json:"collected_at"`
}

type CalendarLoad struct {
	// BusyRatio busy/free ratio for the current day, 0-1
	BusyRatio   float64      `json:"busy_ratio"`
	FreeWindows []TimeWindow `json:"free_windows"`
	CollectedAt time.Time    `json:"collected_at"`
}

// ContextSnapshot 不可变快照，刷新时整体替换
type ContextSnapshot struct {
	Energy      *EnergyState      `json:"energy,omitempty"`
	Environment *EnvironmentState `json:"environment,omitempty"`
	Calendar    *CalendarLoad     `json:"calendar,omitempty"`

	// Staleness 覆盖默认有效期
	Staleness map[ContextKind]time.Duration `json:"-"`
}

func (s ContextSnapshot) threshold(kind ContextKind) time.Duration {
	if d, ok := s.Staleness[kind]; ok && d > 0 {
		return d
	}
	return DefaultStaleness[kind]
}

func (s ContextSnapshot) collectedAt(kind ContextKind) (time.Time, bool) {
	switch kind {
	case ContextEnergy:
		if s.Energy != nil {
			return s.Energy.CollectedAt, true
		}
	case ContextEnvironment:
		if s.Environment != nil {
			return s.Environment.CollectedAt, true
		}
	case ContextCalendar:
		if s.Calendar != nil {
			return s.Calendar.CollectedAt, true
		}
	}
	return time.Time{}, false
}

// Valid reports whether the entry exists and is not older than its staleness threshold.
func (s ContextSnapshot) Valid(kind ContextKind, now time.Time) bool {
	at, ok := s.collectedAt(kind)
	if !ok {
		return false
	}
	return now.Sub(at) <= s.threshold(kind)
}

// StaleKinds lists missing or expired entries.
func (s ContextSnapshot) StaleKinds(now time.Time) []ContextKind {
	var out []ContextKind
	for _, k := range ContextKinds {
		if !s.Valid(k, now) {
			out = append(out, k)
		}
	}
	return out
}
