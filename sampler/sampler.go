package sampler

import (
	"go.uber.org/zap"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/trace"
)

// A StepMethod updates the stochastics it owns. One call to Step is one
// complete update; a chain calls every method once per iteration.
type StepMethod interface {
	Name() string
	Stochastics() []int
	Step() error
}

// Source is the random source a step method draws from. rand.Generator
// implements it.
type Source interface {
	model.Rand
	NormVector(dst []float64) []float64
}

type options struct {
	log     *zap.Logger
	backend trace.Backend
	metrics *Metrics
}

// Option configures a step method
type Option func(*options)

// WithLogger sets the logger (the default discards everything)
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithBackend gives a step method read access to previous draws
func WithBackend(b trace.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMetrics reports counters to m
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
