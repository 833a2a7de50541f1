package rand

import (
	mrand "math/rand"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator is a Mersenne twister PRNG with the math/rand helpers layered on
// top. A Generator is NOT safe for concurrent use: every chain gets its own.
type Generator struct {
	mt *mt19937.MT19937
	r  *mrand.Rand
}

func newGenerator(mt *mt19937.MT19937) *Generator {
	return &Generator{
		mt: mt,
		r:  mrand.New(mt),
	}
}

// NewGenerator returns a new PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	mt := mt19937.New()
	mt.Seed(seed)
	return newGenerator(mt), nil
}

// NewGeneratorSlice seeds with a key slice, matching the reference MT19937-64
// init_by_array
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.New("Empty seed key")
	}

	mt := mt19937.New()
	mt.SeedFromSlice(key)
	return newGenerator(mt), nil
}

// Int63 provides the same interface as Go's math/rand
func (g *Generator) Int63() int64 {
	return g.mt.Int63()
}

// Int63n is uniform on [0, n)
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}
	return g.r.Int63n(n)
}

// Intn is uniform on [0, n)
func (g *Generator) Intn(n int) int {
	if n <= 0 {
		panic("invalid argument to Intn")
	}
	return g.r.Intn(n)
}

// Float64 is uniform on [0, 1)
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// NormFloat64 is a standard normal draw
func (g *Generator) NormFloat64() float64 {
	return g.r.NormFloat64()
}

// ExpFloat64 is an exponential draw with rate 1
func (g *Generator) ExpFloat64() float64 {
	return g.r.ExpFloat64()
}

// NormVector fills dst with independent standard normal draws and returns it
func (g *Generator) NormVector(dst []float64) []float64 {
	for i := range dst {
		dst[i] = g.r.NormFloat64()
	}
	return dst
}
