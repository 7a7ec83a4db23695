package model

import (
	"encoding/json"
	"time"
)

// StepRole 主步骤或次要步骤
type StepRole string

const (
	RolePrimary   StepRole = "primary"
	RoleSecondary StepRole = "secondary"
)

// PlanStep 一次能力调用
type PlanStep struct {
	ID         string        `json:"id"`
	Capability string        `json:"capability"`
	Intent     Intent        `json:"intent"`
	Role       StepRole      `json:"role"`
	DependsOn  []string      `json:"depends_on,omitempty"`
	Timeout    time.Duration `json:"timeout"`
	Mutating   bool          `json:"mutating"`
	// ParallelEligible 没有数据依赖的步骤
	ParallelEligible bool `json:"parallel_eligible"`
	// Dimension dominant dimension of the intent this step serves
	Dimension Dimension `json:"dimension"`
}

// CapabilityPlan 有序步骤集合
type CapabilityPlan struct {
	Steps []PlanStep `json:"steps"`
}

func (p CapabilityPlan) Step(id string) (PlanStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return PlanStep{}, false
}

// StepStatus 步骤最终状态
type StepStatus string

const (
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusTimeout   StepStatus = "timeout"
	StatusSkipped   StepStatus = "skipped"
)

// CapabilityResult 一个步骤的执行结果
type CapabilityResult struct {
	StepID     string          `json:"step_id"`
	Capability string          `json:"capability"`
	Intent     Intent          `json:"intent"`
	Role       StepRole        `json:"role"`
	Status     StepStatus      `json:"status"`
	Summary    string          `json:"summary,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Failure    *Failure        `json:"failure,omitempty"`
	Elapsed    time.Duration   `json:"elapsed"`
	Attempts   int             `json:"attempts"`
}

func (r CapabilityResult) Succeeded() bool { return r.Status == StatusSucceeded }
