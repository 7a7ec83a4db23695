package paei

import (
	"presentos/internal/model"
	"presentos/internal/registry"
)

// DefaultBaseWeights 每种意图的基础维度权重
func DefaultBaseWeights() map[model.IntentKind]model.DimensionScore {
	return map[model.IntentKind]model.DimensionScore{
		model.KindCreateTask:        {P: 0.8, A: 0.4, E: 0.1, I: 0.1},
		model.KindScheduleEvent:     {P: 0.6, A: 0.7, E: 0.1, I: 0.3},
		model.KindSendEmail:         {P: 0.3, A: 0.2, E: 0.1, I: 0.7},
		model.KindRunResearch:       {P: 0.2, A: 0.1, E: 0.8, I: 0.1},
		model.KindCheckStatus:       {P: 0.3, A: 0.6, E: 0.0, I: 0.1},
		model.KindSummarizeMeeting:  {P: 0.3, A: 0.5, E: 0.1, I: 0.4},
		model.KindCheckFinance:      {P: 0.2, A: 0.8, E: 0.2, I: 0.0},
		model.KindCheckEnvironment:  {P: 0.1, A: 0.1, E: 0.5, I: 0.3},
		model.KindRecallContact:     {P: 0.1, A: 0.1, E: 0.1, I: 0.9},
		model.KindSuggestReschedule: {P: -0.2, A: 0.1, E: 0.3, I: 0.6},
	}
}

// SecondaryRule adds a secondary capability to an intent's plan.
type SecondaryRule struct {
	Capability string `yaml:"capability"`
	// RequiresParam only when the intent carries this parameter
	RequiresParam string `yaml:"requires_param"`
	// UsesPrimaryOutput makes the step depend on the primary step
	UsesPrimaryOutput bool `yaml:"uses_primary_output"`
}

func DefaultSecondaries() map[model.IntentKind][]SecondaryRule {
	return map[model.IntentKind][]SecondaryRule{
		model.KindScheduleEvent: {
			{Capability: registry.ParticipantNotify, RequiresParam: "participants", UsesPrimaryOutput: true},
		},
		model.KindSendEmail: {
			{Capability: registry.DecisionLog},
		},
	}
}
