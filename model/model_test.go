package model

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatLogP(value []float64, p Parents) LogP {
	return Ok(0)
}

func zeroPrior(r Rand, p Parents) []float64 {
	return []float64{0}
}

// vanillaGraph is mu, tau -> prec(det) -> x -> y(observed)
func vanillaGraph(t *testing.T) (*Graph, map[string]*Node) {
	g := NewGraph("TestingModel")
	nodes := make(map[string]*Node)

	add := func(n *Node, err error) {
		require.NoError(t, err)
		nodes[n.Name] = n
	}

	add(g.AddStochastic(StochasticSpec{Name: "mu", Value: []float64{0}, LogDensity: flatLogP, Random: zeroPrior}))
	add(g.AddStochastic(StochasticSpec{Name: "tau", Value: []float64{1}, LogDensity: flatLogP, Random: zeroPrior}))
	add(g.AddDeterministic(DeterministicSpec{
		Name:    "prec",
		Parents: map[string]*Node{"tau": nodes["tau"]},
		Compute: func(p Parents) []float64 { return []float64{p.Scalar("tau") * 2} },
	}))
	add(g.AddStochastic(StochasticSpec{
		Name:       "x",
		Shape:      []int{2},
		Value:      []float64{1, 2},
		Parents:    map[string]*Node{"mu": nodes["mu"], "prec": nodes["prec"]},
		LogDensity: flatLogP,
		Random:     zeroPrior,
	}))
	add(g.AddStochastic(StochasticSpec{
		Name:       "y",
		Kind:       Integer,
		Value:      []float64{3},
		Observed:   true,
		Parents:    map[string]*Node{"x": nodes["x"]},
		LogDensity: flatLogP,
	}))

	return g, nodes
}

func TestGraphCreation(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)
	assert.NoError(g.Check())
	assert.Equal(5, g.Len())
	assert.Equal(2, n["x"].Size())
	assert.Equal(1, n["mu"].Size())

	found, ok := g.Lookup("prec")
	assert.True(ok)
	assert.Equal(Deterministic, found.Role)
	_, ok = g.Lookup("nope")
	assert.False(ok)

	assert.Equal([]int{n["mu"].ID, n["tau"].ID, n["x"].ID}, Sorted(g.Stochastics()))
	assert.Equal([]int{n["y"].ID}, Sorted(g.ObservedStochastics()))

	// Deterministic values track their parents
	assert.Equal([]float64{2}, g.Value(n["prec"].ID))
	assert.NoError(g.SetValue(n["tau"].ID, []float64{4}))
	assert.Equal([]float64{8}, g.Value(n["prec"].ID))

	assert.True(n["x"].HasPrior())
	assert.False(n["y"].HasPrior())
	assert.False(n["prec"].HasPrior())
}

func TestExtendedRelations(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)
	mu, tau, prec, x, y := n["mu"].ID, n["tau"].ID, n["prec"].ID, n["x"].ID, n["y"].ID

	// Direct edges
	assert.Equal([]int{prec}, Sorted(n["tau"].Children()))
	assert.Equal(map[string]int{"mu": mu, "prec": prec}, n["x"].ParentIDs())

	// Extended edges cross the deterministic
	assert.Equal([]int{mu, tau}, Sorted(n["x"].ExtendedParents()))
	assert.Equal([]int{x}, Sorted(n["tau"].ExtendedChildren()))
	assert.Equal([]int{x}, Sorted(n["mu"].ExtendedChildren()))
	assert.Equal([]int{y}, Sorted(g.ExtendedChildren(x)))
	assert.Equal([]int{tau}, Sorted(n["prec"].ExtendedParents()))
	assert.Equal(0, n["prec"].ExtendedChildren().Cardinality())

	// Accessors hand out copies
	n["x"].ExtendedParents().Add(99)
	assert.False(n["x"].ExtendedParents().Contains(99))
}

func TestGraphBadNodes(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)

	cases := []StochasticSpec{
		{Name: "", Value: []float64{0}, LogDensity: flatLogP},
		{Name: "mu", Value: []float64{0}, LogDensity: flatLogP},
		{Name: "nologp", Value: []float64{0}},
		{Name: "badshape", Shape: []int{3}, Value: []float64{0, 1}, LogDensity: flatLogP},
		{Name: "zeroshape", Shape: []int{0}, Value: []float64{}, LogDensity: flatLogP},
		{Name: "notint", Kind: Integer, Value: []float64{0.5}, LogDensity: flatLogP},
		{Name: "notbool", Kind: Boolean, Value: []float64{2}, LogDensity: flatLogP},
		{Name: "nan", Value: []float64{math.NaN()}, LogDensity: flatLogP},
		{Name: "foreign", Value: []float64{0}, LogDensity: flatLogP, Parents: map[string]*Node{"p": {ID: 0, Name: "mu"}}},
	}

	for _, c := range cases {
		node, err := g.AddStochastic(c)
		assert.Nil(node, c.Name)
		assert.Error(err, c.Name)
		assert.True(errors.Is(err, ErrConfiguration), c.Name)
	}

	_, err := g.AddDeterministic(DeterministicSpec{Name: "nocompute", Parents: map[string]*Node{"mu": n["mu"]}})
	assert.Error(err)

	// Nothing was linked in by the failures
	assert.Equal(5, g.Len())
	assert.Equal(1, n["mu"].ExtendedChildren().Cardinality())
}

func TestSetValueAndRevert(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)
	x := n["x"].ID

	assert.NoError(g.SetValue(x, []float64{5, 6}))
	assert.Equal([]float64{5, 6}, g.Value(x))
	assert.Equal([]float64{1, 2}, n["x"].LastValue())

	g.Revert(x)
	assert.Equal([]float64{1, 2}, g.Value(x))

	assert.Error(g.SetValue(x, []float64{1}))
	assert.Error(g.SetValue(n["y"].ID, []float64{1}))
	assert.Error(g.SetValue(n["prec"].ID, []float64{1}))
	assert.Error(g.SetValue(100, []float64{1}))

	// The value we hand out is a copy
	v := g.Value(x)
	v[0] = 100
	assert.Equal([]float64{1, 2}, g.Value(x))
}

func TestLogPEvaluation(t *testing.T) {
	assert := assert.New(t)

	g := NewGraph("logp")
	var result float64
	a, err := g.AddStochastic(StochasticSpec{
		Name:       "a",
		Value:      []float64{1},
		LogDensity: func(v []float64, p Parents) LogP { return Ok(result) },
	})
	assert.NoError(err)

	result = -1.5
	lp, err := g.LogP(a.ID)
	assert.NoError(err)
	assert.True(lp.Feasible)
	assert.Equal(-1.5, lp.Value)

	result = math.Inf(-1)
	lp, err = g.LogP(a.ID)
	assert.NoError(err)
	assert.False(lp.Feasible)

	result = math.NaN()
	_, err = g.LogP(a.ID)
	assert.True(errors.Is(err, ErrNumericFault))

	result = math.Inf(1)
	_, err = g.LogP(a.ID)
	assert.True(errors.Is(err, ErrNumericFault))

	_, err = g.LogP(42)
	assert.Error(err)
}

func TestClaimIsExclusive(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)
	mu, tau, x := n["mu"].ID, n["tau"].ID, n["x"].ID

	assert.NoError(g.Claim("first", mu, tau))
	assert.Equal("first", n["mu"].Owner())

	// Re-claim by the same owner is fine
	assert.NoError(g.Claim("first", mu))

	// Any overlap fails and claims nothing
	err := g.Claim("second", x, tau)
	assert.True(errors.Is(err, ErrConfiguration))
	assert.Equal("", n["x"].Owner())

	assert.Error(g.Claim("second", n["y"].ID))
	assert.Error(g.Claim("second", n["prec"].ID))
	assert.Error(g.Claim("", x))
	assert.NoError(g.Claim("second", x))
}

func TestDrawPrior(t *testing.T) {
	assert := assert.New(t)

	g, n := vanillaGraph(t)
	assert.NoError(g.DrawPrior(n["mu"].ID, nil))
	assert.Equal([]float64{0}, g.Value(n["mu"].ID))

	assert.Error(g.DrawPrior(n["y"].ID, nil))

	// x's prior returns the wrong length
	assert.Error(g.DrawPrior(n["x"].ID, nil))
}
