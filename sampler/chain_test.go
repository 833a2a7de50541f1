package sampler

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/adaptmc/dist"
	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/trace"
)

// hierGraph is mu -> y (observed), mu -> c -> d with c and d free and
// drawable: {c, d} is the dataless submodel and mu needs Metropolis
func hierGraph(t *testing.T) (*model.Graph, map[string]*model.Node) {
	g := model.NewGraph("hier")
	nodes := map[string]*model.Node{}
	add := func(n *model.Node, err error) {
		require.NoError(t, err)
		nodes[n.Name] = n
	}

	add(g.AddStochastic(model.StochasticSpec{
		Name:       "mu",
		Value:      []float64{1},
		LogDensity: dist.Normal(dist.Const(0), dist.Const(10)),
		Random:     dist.NormalPrior(1, dist.Const(0), dist.Const(10)),
	}))
	add(g.AddStochastic(model.StochasticSpec{
		Name:       "y",
		Shape:      []int{3},
		Value:      []float64{4.8, 5.1, 5.3},
		Observed:   true,
		Parents:    map[string]*model.Node{"mu": nodes["mu"]},
		LogDensity: dist.Normal(dist.Parent("mu"), dist.Const(1)),
	}))
	add(g.AddStochastic(model.StochasticSpec{
		Name:       "c",
		Value:      []float64{0},
		Parents:    map[string]*model.Node{"mu": nodes["mu"]},
		LogDensity: dist.Normal(dist.Parent("mu"), dist.Const(1)),
		Random:     dist.NormalPrior(1, dist.Parent("mu"), dist.Const(1)),
	}))
	add(g.AddStochastic(model.StochasticSpec{
		Name:       "d",
		Value:      []float64{0},
		Parents:    map[string]*model.Node{"c": nodes["c"]},
		LogDensity: dist.Normal(dist.Parent("c"), dist.Const(0.001)),
		Random:     dist.NormalPrior(1, dist.Parent("c"), dist.Const(0.001)),
	}))

	return g, nodes
}

func hierConfig() AdaptiveConfig {
	cfg := testConfig(100, 50)
	cfg.Scales = map[string][]float64{"mu": {0.25}}
	return cfg
}

func TestDrawFromPrior(t *testing.T) {
	assert := assert.New(t)

	g, n := hierGraph(t)
	c, d := n["c"].ID, n["d"].ID

	set, gens, err := model.DatalessSubmodel(g)
	require.NoError(t, err)
	assert.Equal([]int{c, d}, model.Sorted(set))

	prior, err := NewDrawFromPrior(testGen(t, 1), g, set, gens)
	require.NoError(t, err)
	assert.Equal("DrawFromPrior_c_d", prior.Name())
	assert.Equal([]int{c, d}, prior.Stochastics())
	assert.Equal(prior.Name(), n["c"].Owner())

	for i := 0; i < 20; i++ {
		require.NoError(t, prior.Step())
		// d is drawn after c, right next to c's new value
		assert.InDelta(g.Value(c)[0], g.Value(d)[0], 0.01)
	}

	// Set errors
	g2, n2 := hierGraph(t)
	_, err = NewDrawFromPrior(testGen(t, 1), g2, model.NewNodeSet(), nil)
	assert.True(errors.Is(err, model.ErrConfiguration))

	only := model.NewNodeSet(n2["c"].ID, n2["d"].ID)
	_, err = NewDrawFromPrior(testGen(t, 1), g2, only, model.Generations{model.NewNodeSet(n2["c"].ID)})
	assert.True(errors.Is(err, model.ErrConfiguration), "generations must cover the set")

	noPrior := model.NewNodeSet(n2["y"].ID)
	_, err = NewDrawFromPrior(testGen(t, 1), g2, noPrior, model.Generations{noPrior})
	assert.True(errors.Is(err, model.ErrConfiguration))
}

func TestAssignStepMethods(t *testing.T) {
	assert := assert.New(t)

	g, _ := hierGraph(t)
	methods, err := AssignStepMethods(testGen(t, 1), g, hierConfig())
	require.NoError(t, err)
	require.Len(t, methods, 2)

	assert.Equal("DrawFromPrior_c_d", methods[0].Name())
	assert.Equal("AdaptiveMetropolis_mu", methods[1].Name())
	for _, node := range g.Nodes() {
		if node.Role == model.Stochastic && !node.Observed {
			assert.NotEqual("", node.Owner(), node.Name)
		}
	}

	// Assignment only touches what is still free
	g2, n2 := hierGraph(t)
	require.NoError(t, g2.Claim("custom", n2["c"].ID))
	methods, err = AssignStepMethods(testGen(t, 1), g2, hierConfig())
	require.NoError(t, err)
	names := []string{}
	for _, m := range methods {
		names = append(names, m.Name())
	}
	assert.Equal([]string{"DrawFromPrior_d", "AdaptiveMetropolis_mu"}, names)

	// A boolean with data below it has no competent step method
	g3 := model.NewGraph("bool")
	flag, err := g3.AddStochastic(model.StochasticSpec{
		Name:       "flag",
		Kind:       model.Boolean,
		Value:      []float64{0},
		LogDensity: func([]float64, model.Parents) model.LogP { return model.Ok(0) },
	})
	require.NoError(t, err)
	_, err = g3.AddStochastic(model.StochasticSpec{
		Name:       "obs",
		Value:      []float64{1},
		Observed:   true,
		Parents:    map[string]*model.Node{"flag": flag},
		LogDensity: dist.Normal(dist.Parent("flag"), dist.Const(1)),
	})
	require.NoError(t, err)
	_, err = AssignStepMethods(testGen(t, 1), g3, hierConfig())
	assert.True(errors.Is(err, model.ErrConfiguration))
}

func buildHierChain(t *testing.T, seed int64) *Chain {
	g, _ := hierGraph(t)
	backend, err := trace.NewRAM(10000)
	require.NoError(t, err)
	methods, err := AssignStepMethods(testGen(t, seed), g, hierConfig(), WithBackend(backend))
	require.NoError(t, err)
	ch, err := NewChain(g, methods, backend, zap.NewNop())
	require.NoError(t, err)
	return ch
}

func TestChainRun(t *testing.T) {
	assert := assert.New(t)

	ch := buildHierChain(t, 3)

	// mu is in generation 0 so its method runs first
	assert.Equal("AdaptiveMetropolis_mu", ch.Methods[0].Name())
	assert.Equal("DrawFromPrior_c_d", ch.Methods[1].Name())

	require.NoError(t, ch.Run(context.Background(), 2000, 500, 3))
	assert.Equal(2000, ch.Iterations)

	// i in [500, 2000) with i % 3 == 0
	expected := 0
	for i := 500; i < 2000; i++ {
		if i%3 == 0 {
			expected++
		}
	}
	assert.Equal(expected, ch.Tallied)
	for _, name := range []string{"mu", "c", "d"} {
		n, err := ch.Backend.Len(name)
		assert.NoError(err)
		assert.Equal(expected, n, name)
	}
	n, err := ch.Backend.Len("y")
	assert.NoError(err)
	assert.Equal(0, n, "observed nodes are not traced")

	// Posterior for mu: prior N(0, 100), three unit-variance observations
	rows, err := MergeChains([]*Chain{ch}, "mu")
	require.NoError(t, err)
	draws := make([]float64, len(rows))
	for i, r := range rows {
		draws[i] = r[0]
	}
	assert.InDelta(5.05, stat.Mean(draws, nil), 0.3)

	assert.Error(ch.Run(context.Background(), 10, 0, 0))
	assert.Error(ch.Run(context.Background(), -1, 0, 1))
}

func TestChainCancel(t *testing.T) {
	assert := assert.New(t)

	ch := buildHierChain(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ch.Run(ctx, 100, 0, 1)
	assert.True(errors.Is(err, context.Canceled))
	assert.Equal(0, ch.Iterations)
}

func TestChainErrors(t *testing.T) {
	assert := assert.New(t)

	g, n := hierGraph(t)
	backend, err := trace.NewRAM(10)
	require.NoError(t, err)

	_, err = NewChain(g, nil, backend, nil)
	assert.True(errors.Is(err, model.ErrConfiguration))
	_, err = NewChain(g, nil, nil, nil)
	assert.True(errors.Is(err, model.ErrConfiguration))

	// Unowned stochastics are reported
	core, logs := observer.New(zapcore.WarnLevel)
	am, err := NewAdaptiveMetropolis(testGen(t, 1), g, []int{n["mu"].ID}, hierConfig())
	require.NoError(t, err)
	_, err = NewChain(g, []StepMethod{am}, backend, zap.New(core))
	require.NoError(t, err)
	assert.Equal(2, logs.FilterMessage("Stochastic has no step method and will never change").Len())

	// Step errors stop the run
	require.NoError(t, g.SetValue(n["mu"].ID, []float64{1e308}))
	ch, err := NewChain(g, []StepMethod{am}, backend, nil)
	require.NoError(t, err)
	assert.Error(ch.Run(context.Background(), 5, 0, 1))
}

func TestRunChains(t *testing.T) {
	assert := assert.New(t)

	// Chains are built up front: require must stay on the test goroutine
	prebuilt := []*Chain{buildHierChain(t, 100), buildHierChain(t, 101), buildHierChain(t, 102)}
	build := func(i int) (*Chain, error) {
		return prebuilt[i], nil
	}
	chains, err := RunChains(context.Background(), 3, build, 500, 100, 1)
	require.NoError(t, err)
	assert.Len(chains, 3)
	for _, ch := range chains {
		assert.Equal(500, ch.Iterations)
		assert.Equal(400, ch.Tallied)
	}

	merged, err := MergeChains(chains, "mu")
	assert.NoError(err)
	assert.Len(merged, 1200)

	_, err = MergeChains(nil, "mu")
	assert.Error(err)

	// One failing builder fails the run
	spare := buildHierChain(t, 7)
	failing := func(i int) (*Chain, error) {
		if i == 1 {
			return nil, errors.New("no graph for you")
		}
		return spare, nil
	}
	_, err = RunChains(context.Background(), 2, failing, 10, 0, 1)
	assert.Error(err)

	_, err = RunChains(context.Background(), 0, build, 10, 0, 1)
	assert.True(errors.Is(err, model.ErrConfiguration))
}
