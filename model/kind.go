package model

import (
	"math"

	"github.com/pkg/errors"
)

// NumericKind is the value type a stochastic carries. It is validated once
// when a node is created and drives rounding in the proposal step.
type NumericKind int

// Supported numeric kinds
const (
	Real NumericKind = iota
	Integer
	Boolean
)

func (k NumericKind) String() string {
	switch k {
	case Real:
		return "real"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	}
	return "unknown"
}

// Role distinguishes random variables from deterministic functions of their
// parents.
type Role int

// Node roles
const (
	Stochastic Role = iota
	Deterministic
)

func (r Role) String() string {
	if r == Deterministic {
		return "deterministic"
	}
	return "stochastic"
}

// checkValue makes sure every element of a value is legal for kind
func (k NumericKind) checkValue(value []float64) error {
	for i, x := range value {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Errorf("element %d is %v", i, x)
		}
		switch k {
		case Integer:
			if x != math.Trunc(x) {
				return errors.Errorf("element %d (%v) is not integral", i, x)
			}
		case Boolean:
			if x != 0 && x != 1 {
				return errors.Errorf("element %d (%v) is not boolean", i, x)
			}
		}
	}
	return nil
}
