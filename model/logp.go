package model

import (
	"math"
)

// LogP is the result of evaluating a log-density: either a feasible score or
// the zero-probability outcome. Infeasible is an expected result, not an
// error.
type LogP struct {
	Value    float64
	Feasible bool
}

// Infeasible is the zero-probability result
var Infeasible = LogP{Value: math.Inf(-1), Feasible: false}

// Ok wraps a log-probability. A score of -Inf is the same thing as zero
// probability, so it comes back as Infeasible.
func Ok(v float64) LogP {
	if math.IsInf(v, -1) {
		return Infeasible
	}
	return LogP{Value: v, Feasible: true}
}

// Faulty is true when a feasible score is not a usable number
func (lp LogP) Faulty() bool {
	return lp.Feasible && (math.IsNaN(lp.Value) || math.IsInf(lp.Value, 0))
}

// LogDensity evaluates the log-probability of value given the node's
// parents. It must not have side effects.
type LogDensity func(value []float64, p Parents) LogP

// Compute returns the value of a deterministic node from its parents.
type Compute func(p Parents) []float64

// Rand is the random source a prior draw may use.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	ExpFloat64() float64
	Intn(n int) int
}

// RandomFunc draws a new value for a stochastic from its prior given the
// current parent values.
type RandomFunc func(r Rand, p Parents) []float64
