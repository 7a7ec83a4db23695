package model

import "math"

// ExperienceBalance 四个维度的经验计数，Total 恒等于四者之和
type ExperienceBalance struct {
	P       int   `json:"P"`
	A       int   `json:"A"`
	E       int   `json:"E"`
	I       int   `json:"I"`
	Total   int   `json:"total"`
	Level   int   `json:"level"`
	Version int64 `json:"version"`
}

func (b ExperienceBalance) Get(d Dimension) int {
	switch d {
	case Producer:
		return b.P
	case Administrator:
		return b.A
	case Entrepreneur:
		return b.E
	case Integrator:
		return b.I
	}
	return 0
}

// Add returns a copy with amount added to d and Total kept consistent.
func (b ExperienceBalance) Add(d Dimension, amount int) ExperienceBalance {
	switch d {
	case Producer:
		b.P += amount
	case Administrator:
		b.A += amount
	case Entrepreneur:
		b.E += amount
	case Integrator:
		b.I += amount
	}
	b.Total += amount
	return b
}

func (b ExperienceBalance) Consistent() bool {
	return b.P >= 0 && b.A >= 0 && b.E >= 0 && b.I >= 0 && b.Total == b.P+b.A+b.E+b.I
}

// Share of total for d, 0 when total is 0.
func (b ExperienceBalance) Share(d Dimension) float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Get(d)) / float64(b.Total)
}

// LevelFor computes floor(sqrt(total / k)).
func LevelFor(total int, k float64) int {
	if total <= 0 || k <= 0 {
		return 0
	}
	return int(math.Floor(math.Sqrt(float64(total) / k)))
}

// Award 一次经验发放
type Award struct {
	Dimension  Dimension `json:"dimension"`
	Amount     int       `json:"amount"`
	Capability string    `json:"capability"`
	StepID     string    `json:"step_id"`
}
