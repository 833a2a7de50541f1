// Package trace stores the history of sampled node values. A chain appends
// one row per tallied node per iteration; step methods read recent rows back
// (for example to bootstrap a proposal covariance).
package trace

import (
	"math"
)

// End is an open stop index for Slice: read through the newest row
const End = math.MaxInt

// Backend is the trace store interface. Values are flattened node values.
// Slice follows Python conventions: negative indices count back from the
// end and out-of-range bounds are clamped, so Slice(name, -100, End) is the
// last (at most) 100 rows. An unknown name is an empty trace, not an error.
type Backend interface {
	Append(name string, value []float64) error
	Slice(name string, start, stop int) ([][]float64, error)
	Len(name string) (int, error)
	Close() error
}

// bounds turns Python-style slice indices into a clamped [lo, hi) range
// over n rows. hi < lo never happens: an empty range has lo == hi.
func bounds(n, start, stop int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}

	lo, hi := clamp(start), clamp(stop)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
