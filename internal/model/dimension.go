package model

import "math"

// Dimension PAEI 四个决策维度之一
type Dimension string

const (
	Producer      Dimension = "P"
	Administrator Dimension = "A"
	Entrepreneur  Dimension = "E"
	Integrator    Dimension = "I"
)

// Dimensions 固定顺序，用于遍历
var Dimensions = []Dimension{Producer, Administrator, Entrepreneur, Integrator}

// DefaultTieOrder dominant dimension tie-break: Producer > Integrator > Entrepreneur > Administrator.
var DefaultTieOrder = []Dimension{Producer, Integrator, Entrepreneur, Administrator}

func (d Dimension) Name() string {
	switch d {
	case Producer:
		return "Producer"
	case Administrator:
		return "Administrator"
	case Entrepreneur:
		return "Entrepreneur"
	case Integrator:
		return "Integrator"
	}
	return string(d)
}

func (d Dimension) Valid() bool {
	switch d {
	case Producer, Administrator, Entrepreneur, Integrator:
		return true
	}
	return false
}

// DimensionScore 每个维度的有符号权重，取值 [-1, 1]
type DimensionScore struct {
	P float64 `json:"P" yaml:"P"`
	A float64 `json:"A" yaml:"A"`
	E float64 `json:"E" yaml:"E"`
	I float64 `json:"I" yaml:"I"`
}

func (s DimensionScore) Get(d Dimension) float64 {
	switch d {
	case Producer:
		return s.P
	case Administrator:
		return s.A
	case Entrepreneur:
		return s.E
	case Integrator:
		return s.I
	}
	return 0
}

// With returns a copy with d set to w clamped to [-1, 1].
func (s DimensionScore) With(d Dimension, w float64) DimensionScore {
	w = math.Max(-1, math.Min(1, w))
	switch d {
	case Producer:
		s.P = w
	case Administrator:
		s.A = w
	case Entrepreneur:
		s.E = w
	case Integrator:
		s.I = w
	}
	return s
}

// Dominant returns the argmax of |weight|, ties resolved by order (first wins).
// A nil or incomplete order falls back to DefaultTieOrder.
func (s DimensionScore) Dominant(order []Dimension) Dimension {
	if len(order) != len(Dimensions) {
		order = DefaultTieOrder
	}
	best := order[0]
	bestAbs := math.Abs(s.Get(best))
	for _, d := range order[1:] {
		if abs := math.Abs(s.Get(d)); abs > bestAbs {
			best, bestAbs = d, abs
		}
	}
	return best
}
