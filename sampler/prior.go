package sampler

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CraigKelly/adaptmc/model"
)

// DrawFromPrior updates stochastics that have no data below them by drawing
// each one from its prior, ancestors first. Such nodes do not need
// Metropolis steps: their conditional distribution is the prior itself.
type DrawFromPrior struct {
	g     *model.Graph
	src   model.Rand
	log   *zap.Logger
	name  string
	order []int
}

// NewDrawFromPrior builds the step method over set, drawn in the order of
// gens (which must be ordered ancestors first and cover set exactly), and
// claims the nodes.
func NewDrawFromPrior(src model.Rand, g *model.Graph, set model.NodeSet, gens model.Generations, opts ...Option) (*DrawFromPrior, error) {
	if src == nil || g == nil {
		return nil, model.ConfigErrorf("DrawFromPrior requires a random source and a graph")
	}
	if set == nil || set.Cardinality() < 1 {
		return nil, model.ConfigErrorf("DrawFromPrior requires at least one stochastic")
	}

	order := make([]int, 0, set.Cardinality())
	seen := model.NewNodeSet()
	for _, gen := range gens {
		for _, id := range model.Sorted(gen) {
			if !set.Contains(id) || seen.Contains(id) {
				return nil, model.ConfigErrorf("Generation node %d is not in the prior set exactly once", id)
			}
			seen.Add(id)
			order = append(order, id)
		}
	}
	if !seen.Equal(set) {
		return nil, model.ConfigErrorf("Generations do not cover the prior set")
	}

	names := make([]string, 0, len(order))
	for _, id := range order {
		n := g.Node(id)
		if n == nil || !n.HasPrior() {
			return nil, model.ConfigErrorf("Node %d can not be drawn from its prior", id)
		}
		names = append(names, n.Name)
	}

	d := &DrawFromPrior{
		g:     g,
		src:   src,
		name:  "DrawFromPrior_" + strings.Join(names, "_"),
		order: order,
	}
	if err := g.Claim(d.name, order...); err != nil {
		return nil, err
	}

	d.log = buildOptions(opts).log.With(zap.String("step_method", d.name))
	d.log.Info("Created step method", zap.Int("nodes", len(order)), zap.Int("generations", len(gens)))
	return d, nil
}

// Name implements StepMethod
func (d *DrawFromPrior) Name() string {
	return d.name
}

// Stochastics returns the member IDs in draw order
func (d *DrawFromPrior) Stochastics() []int {
	return append([]int(nil), d.order...)
}

// Step draws every member from its prior
func (d *DrawFromPrior) Step() error {
	for _, id := range d.order {
		if err := d.g.DrawPrior(id, d.src); err != nil {
			return errors.Wrapf(err, "%s", d.name)
		}
	}
	return nil
}
