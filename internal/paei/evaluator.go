package paei

import (
	"fmt"
	"time"

	"presentos/internal/model"
	"presentos/internal/registry"
)

type Config struct {
	BaseWeights        map[model.IntentKind]model.DimensionScore `yaml:"base_weights"`
	LowEnergyThreshold int                                       `yaml:"low_energy_threshold"`
	LowEnergyFactor    float64                                   `yaml:"low_energy_factor"`
	TieOrder           []model.Dimension                         `yaml:"tie_order"`
	// RescheduleKinds intents that may get a competing reschedule suggestion
	RescheduleKinds []model.IntentKind                   `yaml:"reschedule_kinds"`
	Secondaries     map[model.IntentKind][]SecondaryRule `yaml:"secondaries"`
}

func (c Config) withDefaults() Config {
	base := DefaultBaseWeights()
	for k, v := range c.BaseWeights {
		base[k] = v
	}
	c.BaseWeights = base
	if c.LowEnergyThreshold <= 0 {
		c.LowEnergyThreshold = 40
	}
	if c.LowEnergyFactor <= 0 {
		c.LowEnergyFactor = 0.3
	}
	if len(c.TieOrder) != len(model.Dimensions) {
		c.TieOrder = model.DefaultTieOrder
	}
	if c.RescheduleKinds == nil {
		c.RescheduleKinds = []model.IntentKind{model.KindScheduleEvent, model.KindCreateTask}
	}
	if c.Secondaries == nil {
		c.Secondaries = DefaultSecondaries()
	}
	return c
}

// Evaluator PAEI 评估器，给定相同意图和快照时结果确定
type Evaluator struct {
	cfg      Config
	registry *registry.Registry
	now      func() time.Time
}

func NewEvaluator(cfg Config, reg *registry.Registry) *Evaluator {
	return &Evaluator{cfg: cfg.withDefaults(), registry: reg, now: time.Now}
}

// WithClock pins the staleness clock.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

func (e *Evaluator) Dominant(s model.DimensionScore) model.Dimension {
	return s.Dominant(e.cfg.TieOrder)
}

// Weights 基础权重经情境扰动后的结果
func (e *Evaluator) Weights(in model.Intent, snap model.ContextSnapshot) model.DimensionScore {
	score := e.cfg.BaseWeights[in.Kind]
	if snap.Valid(model.ContextEnergy, e.now()) && snap.Energy.Level < e.cfg.LowEnergyThreshold {
		f := e.cfg.LowEnergyFactor
		score = score.
			With(model.Producer, score.P*(1-f)).
			With(model.Integrator, score.I+f)
	}
	return score
}

// NeedsFresh reports whether the reschedule decision for these intents would rely on stale context.
func (e *Evaluator) NeedsFresh(intents []model.Intent, snap model.ContextSnapshot) bool {
	now := e.now()
	for _, in := range intents {
		if !e.rescheduleEligible(in.Kind) {
			continue
		}
		if !snap.Valid(model.ContextEnvironment, now) || !snap.Valid(model.ContextCalendar, now) {
			return true
		}
	}
	return false
}

func (e *Evaluator) rescheduleEligible(k model.IntentKind) bool {
	for _, rk := range e.cfg.RescheduleKinds {
		if rk == k {
			return true
		}
	}
	return false
}

// favorableWindow 环境有利且与空闲时间重叠
func (e *Evaluator) favorableWindow(snap model.ContextSnapshot) (model.TimeWindow, bool) {
	now := e.now()
	if !snap.Valid(model.ContextEnvironment, now) || !snap.Valid(model.ContextCalendar, now) {
		return model.TimeWindow{}, false
	}
	env := snap.Environment
	if !env.Favorable {
		return model.TimeWindow{}, false
	}
	for _, free := range snap.Calendar.FreeWindows {
		if free.Overlaps(env.Window) {
			return env.Window, true
		}
	}
	return model.TimeWindow{}, false
}

// Score weighs one intent and builds its plan steps.
func (e *Evaluator) Score(in model.Intent, snap model.ContextSnapshot) (model.DimensionScore, model.CapabilityPlan, error) {
	score := e.Weights(in, snap)
	dominant := e.Dominant(score)

	contract, err := e.registry.ForIntent(in)
	if err != nil {
		return score, model.CapabilityPlan{}, err
	}
	primary := model.PlanStep{
		ID:               stepID(in.Index, contract.Name),
		Capability:       contract.Name,
		Intent:           in,
		Role:             model.RolePrimary,
		Timeout:          contract.Timeout,
		Mutating:         contract.MutatingFor(in.Kind),
		ParallelEligible: true,
		Dimension:        dominant,
	}
	plan := model.CapabilityPlan{Steps: []model.PlanStep{primary}}

	for _, rule := range e.cfg.Secondaries[in.Kind] {
		if rule.RequiresParam != "" && in.Param(rule.RequiresParam) == "" {
			continue
		}
		sc, ok := e.registry.Get(rule.Capability)
		if !ok {
			return score, model.CapabilityPlan{}, fmt.Errorf("%w: secondary %s", registry.ErrNoCapability, rule.Capability)
		}
		step := model.PlanStep{
			ID:               stepID(in.Index, sc.Name),
			Capability:       sc.Name,
			Intent:           in,
			Role:             model.RoleSecondary,
			Timeout:          sc.Timeout,
			Mutating:         sc.MutatingFor(in.Kind),
			ParallelEligible: !rule.UsesPrimaryOutput,
			Dimension:        dominant,
		}
		if rule.UsesPrimaryOutput {
			step.DependsOn = []string{primary.ID}
		}
		plan.Steps = append(plan.Steps, step)
	}

	if e.rescheduleEligible(in.Kind) {
		if window, ok := e.favorableWindow(snap); ok {
			step, err := e.rescheduleStep(in, snap, window)
			if err != nil {
				return score, model.CapabilityPlan{}, err
			}
			plan.Steps = append(plan.Steps, step)
		}
	}
	return score, plan, nil
}

func (e *Evaluator) rescheduleStep(in model.Intent, snap model.ContextSnapshot, window model.TimeWindow) (model.PlanStep, error) {
	suggest := model.Intent{
		Kind: model.KindSuggestReschedule,
		Params: map[string]string{
			"condition":    snap.Environment.Condition,
			"window_start": window.Start.Format(time.RFC3339),
			"window_end":   window.End.Format(time.RFC3339),
			"displaces":    string(in.Kind),
		},
		Confidence: in.Confidence / 2,
		Clause:     in.Clause,
		Index:      in.Index,
		Injected:   true,
	}
	contract, err := e.registry.ForIntent(suggest)
	if err != nil {
		return model.PlanStep{}, err
	}
	score := e.Weights(suggest, snap)
	return model.PlanStep{
		ID:               stepID(in.Index, string(model.KindSuggestReschedule)),
		Capability:       contract.Name,
		Intent:           suggest,
		Role:             model.RoleSecondary,
		Timeout:          contract.Timeout,
		Mutating:         contract.MutatingFor(suggest.Kind),
		ParallelEligible: true,
		Dimension:        e.Dominant(score),
	}, nil
}

// Plan merges the per-intent plans in intent order.
func (e *Evaluator) Plan(intents []model.Intent, snap model.ContextSnapshot) ([]model.DimensionScore, model.CapabilityPlan, error) {
	scores := make([]model.DimensionScore, 0, len(intents))
	var plan model.CapabilityPlan
	for _, in := range intents {
		score, p, err := e.Score(in, snap)
		if err != nil {
			return nil, model.CapabilityPlan{}, err
		}
		scores = append(scores, score)
		plan.Steps = append(plan.Steps, p.Steps...)
	}
	return scores, plan, nil
}

func stepID(index int, name string) string {
	return fmt.Sprintf("i%d.%s", index, name)
}
