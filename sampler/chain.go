package sampler

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/trace"
)

// Chain drives the step methods of one graph and records free stochastics to
// a trace backend.
type Chain struct {
	Graph      *model.Graph
	Methods    []StepMethod
	Backend    trace.Backend
	Iterations int // Completed iterations
	Tallied    int // Iterations written to the backend

	log     *zap.Logger
	tallied []*model.Node
}

// NewChain orders methods by the earliest generation of their stochastics so
// that parents are updated before their children within an iteration.
func NewChain(g *model.Graph, methods []StepMethod, backend trace.Backend, log *zap.Logger) (*Chain, error) {
	if g == nil || backend == nil {
		return nil, model.ConfigErrorf("Chain requires a graph and a trace backend")
	}
	if len(methods) < 1 {
		return nil, model.ConfigErrorf("Chain requires at least one step method")
	}
	if log == nil {
		log = zap.NewNop()
	}

	free := g.Stochastics()
	gens, err := model.FindGenerations(g, free)
	if err != nil {
		return nil, err
	}
	idx := gens.Index()

	earliest := func(m StepMethod) int {
		first := len(gens)
		for _, id := range m.Stochastics() {
			if gi, ok := idx[id]; ok && gi < first {
				first = gi
			}
		}
		return first
	}

	ordered := append([]StepMethod(nil), methods...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return earliest(ordered[i]) < earliest(ordered[j])
	})

	ch := &Chain{
		Graph:   g,
		Methods: ordered,
		Backend: backend,
		log:     log.With(zap.String("model", g.Name)),
	}
	for _, id := range model.Sorted(free) {
		n := g.Node(id)
		if n.Owner() == "" {
			ch.log.Warn("Stochastic has no step method and will never change", zap.String("node", n.Name))
		}
		ch.tallied = append(ch.tallied, n)
	}

	return ch, nil
}

// Run performs iter iterations. Iteration i is written to the backend when
// i >= burn and i%thin == 0. Cancelling ctx stops the chain between
// iterations.
func (c *Chain) Run(ctx context.Context, iter, burn, thin int) error {
	if iter < 0 || burn < 0 || thin < 1 {
		return model.ConfigErrorf("Invalid run: iter=%d burn=%d thin=%d", iter, burn, thin)
	}

	c.log.Info("Starting chain", zap.Int("iter", iter), zap.Int("burn", burn), zap.Int("thin", thin), zap.Int("step_methods", len(c.Methods)))

	for i := 0; i < iter; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "Chain stopped after %d iterations", c.Iterations)
		}

		for _, m := range c.Methods {
			if err := m.Step(); err != nil {
				return errors.Wrapf(err, "Iteration %d", i)
			}
		}
		c.Iterations++

		if i >= burn && i%thin == 0 {
			if err := c.tally(); err != nil {
				return errors.Wrapf(err, "Iteration %d", i)
			}
		}
	}

	c.log.Info("Chain finished", zap.Int("iterations", c.Iterations), zap.Int("tallied", c.Tallied))
	return nil
}

func (c *Chain) tally() error {
	for _, n := range c.tallied {
		if err := c.Backend.Append(n.Name, c.Graph.Value(n.ID)); err != nil {
			return err
		}
	}
	c.Tallied++
	return nil
}

// MergeChains pools the retained draws of the named node across chains, in
// chain order
func MergeChains(chains []*Chain, name string) ([][]float64, error) {
	if len(chains) < 1 {
		return nil, errors.Errorf("Can not merge 0 chains")
	}

	var merged [][]float64
	for i, ch := range chains {
		if ch == nil {
			return nil, errors.Errorf("Chain %d was never built", i)
		}
		rows, err := ch.Backend.Slice(name, 0, trace.End)
		if err != nil {
			return nil, errors.Wrapf(err, "Chain %d", i)
		}
		merged = append(merged, rows...)
	}
	return merged, nil
}

// ChainBuilder creates chain number i. Every chain needs its own graph,
// random source and backend.
type ChainBuilder func(i int) (*Chain, error)

// RunChains builds and runs n independent chains concurrently. The first
// failure cancels the others.
func RunChains(ctx context.Context, n int, build ChainBuilder, iter, burn, thin int) ([]*Chain, error) {
	if n < 1 {
		return nil, model.ConfigErrorf("At least one chain is required, got %d", n)
	}

	chains := make([]*Chain, n)
	grp, grpCtx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		i := i
		grp.Go(func() error {
			ch, err := build(i)
			if err != nil {
				return errors.Wrapf(err, "Building chain %d", i)
			}
			chains[i] = ch
			return errors.Wrapf(ch.Run(grpCtx, iter, burn, thin), "Chain %d", i)
		})
	}

	if err := grp.Wait(); err != nil {
		return chains, err
	}
	return chains, nil
}
