package sampler

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/adaptmc/model"
)

// AdaptiveConfig is the construction surface of an AdaptiveMetropolis step
// method. Scales are proposal variances keyed by node name.
type AdaptiveConfig struct {
	Delay        int                  `yaml:"delay" validate:"gte=0"`
	Interval     int                  `yaml:"interval" validate:"gte=1"`
	Greedy       bool                 `yaml:"greedy"`
	Scales       map[string][]float64 `yaml:"scales" validate:"omitempty,dive,min=1,dive,gt=0"`
	Epsilon      float64              `yaml:"epsilon" validate:"gte=0"`
	ValueScaling float64              `yaml:"value_scaling" validate:"gt=0"`
	TraceWindow  int                  `yaml:"trace_window" validate:"gte=0"`

	// Covariance is an explicit initial proposal covariance over the
	// members in ID order.
	Covariance *mat.SymDense `yaml:"-" validate:"-"`
}

// DefaultAdaptiveConfig returns the standard settings
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Delay:        1000,
		Interval:     100,
		Greedy:       true,
		Epsilon:      1e-5,
		ValueScaling: 20,
		TraceWindow:  2000,
	}
}

var validate = validator.New()

// Validate checks the field constraints
func (c AdaptiveConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(model.ErrConfiguration, "Invalid adaptive config: %v", err)
	}
	return nil
}
