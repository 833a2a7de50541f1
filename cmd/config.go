package cmd

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/sampler"
)

// RunConfig is everything the run command needs. It can be loaded from a
// YAML file with --config; flags given on the command line win.
type RunConfig struct {
	Model       string                 `yaml:"model" validate:"required"`
	Iter        int                    `yaml:"iter" validate:"gte=1"`
	Burn        int                    `yaml:"burn" validate:"gte=0,ltfield=Iter"`
	Thin        int                    `yaml:"thin" validate:"gte=1"`
	Chains      int                    `yaml:"chains" validate:"gte=1,lte=64"`
	Seed        int64                  `yaml:"seed"`
	Trace       string                 `yaml:"trace" validate:"oneof=ram sqlite"`
	TraceFile   string                 `yaml:"trace_file" validate:"required_if=Trace sqlite"`
	MetricsAddr string                 `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	Adaptive    sampler.AdaptiveConfig `yaml:"adaptive"`
}

// DefaultRunConfig is used for anything not in the file or on the command line
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model:    "bivariate",
		Iter:     20000,
		Burn:     5000,
		Thin:     1,
		Chains:   2,
		Seed:     1,
		Trace:    "ram",
		Adaptive: sampler.DefaultAdaptiveConfig(),
	}
}

var validate = validator.New()

// Validate checks the run and adaptive settings
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(model.ErrConfiguration, "Invalid run config: %v", err)
	}
	return c.Adaptive.Validate()
}

// loadRunConfig reads path over the defaults. An empty path means defaults
// only.
func loadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if len(path) < 1 {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "Could not read config file %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(model.ErrConfiguration, "Could not parse config file %s: %v", path, err)
	}
	return cfg, nil
}

// runFlags holds the values bound to the run command's flags
type runFlags struct {
	model       string
	iter        int
	burn        int
	thin        int
	chains      int
	trace       string
	traceFile   string
	metricsAddr string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	def := DefaultRunConfig()
	fs.StringVarP(&f.model, "model", "m", def.Model, "Built-in model to sample")
	fs.IntVarP(&f.iter, "iter", "i", def.Iter, "Iterations per chain")
	fs.IntVarP(&f.burn, "burn", "b", def.Burn, "Iterations discarded at the start of each chain")
	fs.IntVarP(&f.thin, "thin", "t", def.Thin, "Keep every thin-th iteration after burn-in")
	fs.IntVarP(&f.chains, "chains", "n", def.Chains, "Number of independent chains")
	fs.StringVar(&f.trace, "trace", def.Trace, "Trace backend: ram or sqlite")
	fs.StringVar(&f.traceFile, "trace-file", def.TraceFile, "SQLite trace database (sqlite backend only)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", def.MetricsAddr, "Serve prometheus metrics on this address while running")
}

// apply overrides cfg with every flag the user actually set
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *RunConfig) {
	if fs.Changed("model") {
		cfg.Model = f.model
	}
	if fs.Changed("iter") {
		cfg.Iter = f.iter
	}
	if fs.Changed("burn") {
		cfg.Burn = f.burn
	}
	if fs.Changed("thin") {
		cfg.Thin = f.thin
	}
	if fs.Changed("chains") {
		cfg.Chains = f.chains
	}
	if fs.Changed("trace") {
		cfg.Trace = f.trace
	}
	if fs.Changed("trace-file") {
		cfg.TraceFile = f.traceFile
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}
