package sampler

import (
	"github.com/CraigKelly/adaptmc/model"
)

// AssignStepMethods gives every unowned free stochastic of g a step method:
// the dataless submodel is drawn from its prior and each remaining node gets
// its own AdaptiveMetropolis built from cfg.
func AssignStepMethods(src Source, g *model.Graph, cfg AdaptiveConfig, opts ...Option) ([]StepMethod, error) {
	var methods []StepMethod

	dataless, gens, err := model.DatalessSubmodel(g)
	if err != nil {
		return nil, err
	}
	if dataless.Cardinality() > 0 {
		prior, err := NewDrawFromPrior(src, g, dataless, gens, opts...)
		if err != nil {
			return nil, err
		}
		methods = append(methods, prior)
	}

	for _, id := range model.Sorted(g.Stochastics()) {
		n := g.Node(id)
		if n.Owner() != "" {
			continue
		}
		if n.Kind == model.Boolean {
			return nil, model.ConfigErrorf("No step method can update boolean stochastic %s", n.Name)
		}

		am, err := NewAdaptiveMetropolis(src, g, []int{id}, cfg, opts...)
		if err != nil {
			return nil, err
		}
		methods = append(methods, am)
	}

	return methods, nil
}
