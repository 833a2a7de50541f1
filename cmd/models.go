package cmd

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/CraigKelly/adaptmc/dist"
	"github.com/CraigKelly/adaptmc/model"
)

// demoModel is a built-in model. Every chain calls build for its own graph.
type demoModel struct {
	build  func() (*model.Graph, error)
	blocks [][]string           // Nodes sampled jointly by one adaptive step method
	scales map[string][]float64 // Default proposal variances
}

var demoModels = map[string]demoModel{
	"bivariate": {
		build:  bivariateModel,
		blocks: [][]string{{"A", "B"}},
		scales: map[string][]float64{"A": {1}, "B": {1}},
	},
	"bounded": {
		build:  boundedModel,
		scales: map[string][]float64{"X": {4}},
	},
	"disasters": {
		build: disastersModel,
		scales: map[string][]float64{
			"switchpoint": {16},
			"early_mean":  {0.1},
			"late_mean":   {0.1},
		},
	},
}

func modelNames() []string {
	names := make([]string, 0, len(demoModels))
	for k := range demoModels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func findModel(name string) (demoModel, error) {
	m, ok := demoModels[name]
	if !ok {
		return demoModel{}, model.ConfigErrorf("Unknown model %q (choose from %v)", name, modelNames())
	}
	return m, nil
}

// bivariateModel is A ~ N(0,1), B | A ~ N(A/2, 0.75): a joint normal with
// unit variances and correlation 0.5
func bivariateModel() (*model.Graph, error) {
	g := model.NewGraph("bivariate")

	a, err := g.AddStochastic(model.StochasticSpec{
		Name:       "A",
		Value:      []float64{0},
		LogDensity: dist.Normal(dist.Const(0), dist.Const(1)),
	})
	if err != nil {
		return nil, err
	}

	half, err := g.AddDeterministic(model.DeterministicSpec{
		Name:    "half_A",
		Parents: map[string]*model.Node{"a": a},
		Compute: func(p model.Parents) []float64 {
			return []float64{p.Scalar("a") / 2}
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = g.AddStochastic(model.StochasticSpec{
		Name:       "B",
		Value:      []float64{0},
		Parents:    map[string]*model.Node{"mu": half},
		LogDensity: dist.Normal(dist.Parent("mu"), dist.Const(math.Sqrt(0.75))),
	})
	if err != nil {
		return nil, err
	}

	return g, g.Check()
}

// boundedModel is an integer X, flat on [0, 10]
func boundedModel() (*model.Graph, error) {
	g := model.NewGraph("bounded")
	_, err := g.AddStochastic(model.StochasticSpec{
		Name:       "X",
		Kind:       model.Integer,
		Value:      []float64{5},
		LogDensity: dist.Indicator(0, 10),
	})
	if err != nil {
		return nil, err
	}
	return g, g.Check()
}

// Annual coal mining disasters in the UK, 1851-1961
var disastersData = []float64{
	4, 5, 4, 0, 1, 4, 3, 4, 0, 6, 3, 3, 4, 0, 2, 6,
	3, 3, 5, 4, 5, 3, 1, 4, 4, 1, 5, 5, 3, 4, 2, 5,
	2, 2, 3, 4, 2, 1, 3, 2, 2, 1, 1, 1, 1, 3, 0, 0,
	1, 0, 1, 1, 0, 0, 3, 1, 0, 3, 2, 2, 0, 1, 1, 1,
	0, 1, 0, 1, 0, 0, 0, 2, 1, 0, 0, 0, 1, 1, 0, 2,
	3, 3, 1, 1, 2, 1, 1, 1, 1, 2, 4, 2, 0, 0, 1, 4,
	0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1,
}

// disastersModel is the changepoint model: the disaster rate is early_mean
// before switchpoint and late_mean from then on. "predicted" is a replicate
// data set with nothing observed below it, so it is drawn from its prior.
func disastersModel() (*model.Graph, error) {
	g := model.NewGraph("disasters")
	n := len(disastersData)

	switchpoint, err := g.AddStochastic(model.StochasticSpec{
		Name:       "switchpoint",
		Kind:       model.Integer,
		Value:      []float64{50},
		LogDensity: dist.DiscreteUniform(dist.Const(0), dist.Const(float64(n-1))),
		Random:     dist.DiscreteUniformPrior(1, dist.Const(0), dist.Const(float64(n-1))),
	})
	if err != nil {
		return nil, err
	}

	means := map[string]*model.Node{}
	for _, name := range []string{"early_mean", "late_mean"} {
		means[name], err = g.AddStochastic(model.StochasticSpec{
			Name:       name,
			Value:      []float64{2},
			LogDensity: dist.Exponential(dist.Const(1)),
			Random:     dist.ExponentialPrior(1, dist.Const(1)),
		})
		if err != nil {
			return nil, err
		}
	}

	rate, err := g.AddDeterministic(model.DeterministicSpec{
		Name:  "rate",
		Shape: []int{n},
		Parents: map[string]*model.Node{
			"s":     switchpoint,
			"early": means["early_mean"],
			"late":  means["late_mean"],
		},
		Compute: func(p model.Parents) []float64 {
			s := int(p.Scalar("s"))
			r := make([]float64, n)
			for i := range r {
				if i < s {
					r[i] = p.Scalar("early")
				} else {
					r[i] = p.Scalar("late")
				}
			}
			return r
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = g.AddStochastic(model.StochasticSpec{
		Name:       "disasters",
		Kind:       model.Integer,
		Shape:      []int{n},
		Value:      disastersData,
		Observed:   true,
		Parents:    map[string]*model.Node{"rate": rate},
		LogDensity: dist.Poisson(dist.Parent("rate")),
	})
	if err != nil {
		return nil, err
	}

	_, err = g.AddStochastic(model.StochasticSpec{
		Name:       "predicted",
		Kind:       model.Integer,
		Shape:      []int{n},
		Value:      disastersData,
		Parents:    map[string]*model.Node{"rate": rate},
		LogDensity: dist.Poisson(dist.Parent("rate")),
		Random:     dist.PoissonPrior(n, dist.Parent("rate")),
	})
	if err != nil {
		return nil, err
	}

	if err := g.Check(); err != nil {
		return nil, errors.Wrap(err, "disasters model")
	}
	return g, nil
}
