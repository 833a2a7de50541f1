package dist

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/rand"
)

var noParents model.Parents

func TestNormal(t *testing.T) {
	assert := assert.New(t)

	logp := Normal(Const(0), Const(1))
	lp := logp([]float64{0}, noParents)
	assert.True(lp.Feasible)
	assert.InDelta(-0.5*math.Log(2*math.Pi), lp.Value, 1e-12)

	// Two elements sum
	lp2 := logp([]float64{0, 0}, noParents)
	assert.InDelta(2*lp.Value, lp2.Value, 1e-12)

	// Bad scale is zero probability, not a fault
	lp = Normal(Const(0), Const(0))([]float64{1}, noParents)
	assert.False(lp.Feasible)
}

func TestNormalFromParent(t *testing.T) {
	assert := assert.New(t)

	g := model.NewGraph("parents")
	a, err := g.AddStochastic(model.StochasticSpec{
		Name:       "a",
		Value:      []float64{3},
		LogDensity: Normal(Const(0), Const(1)),
		Random:     NormalPrior(1, Const(0), Const(1)),
	})
	require.NoError(t, err)
	b, err := g.AddStochastic(model.StochasticSpec{
		Name:       "b",
		Value:      []float64{3},
		Parents:    map[string]*model.Node{"mu": a},
		LogDensity: Normal(Parent("mu"), Const(2)),
	})
	require.NoError(t, err)

	lp, err := g.LogP(b.ID)
	assert.NoError(err)
	assert.InDelta(-0.5*math.Log(2*math.Pi)-math.Log(2), lp.Value, 1e-12)
}

func TestBoundedDensities(t *testing.T) {
	assert := assert.New(t)

	ind := Indicator(0, 10)
	assert.Equal(model.Ok(0), ind([]float64{0}, noParents))
	assert.Equal(model.Ok(0), ind([]float64{10}, noParents))
	assert.False(ind([]float64{-1}, noParents).Feasible)
	assert.False(ind([]float64{3, 11}, noParents).Feasible)

	uni := Uniform(Const(0), Const(4))
	assert.InDelta(-math.Log(4), uni([]float64{1}, noParents).Value, 1e-12)
	assert.False(uni([]float64{5}, noParents).Feasible)

	du := DiscreteUniform(Const(0), Const(110))
	assert.InDelta(-math.Log(111), du([]float64{40}, noParents).Value, 1e-12)
	assert.False(du([]float64{40.5}, noParents).Feasible)
	assert.False(du([]float64{111}, noParents).Feasible)

	exp := Exponential(Const(2))
	assert.InDelta(math.Log(2)-2, exp([]float64{1}, noParents).Value, 1e-12)
	assert.False(exp([]float64{-0.1}, noParents).Feasible)

	pois := Poisson(Const(3))
	assert.InDelta(2*math.Log(3)-3-math.Log(2), pois([]float64{2}, noParents).Value, 1e-12)
	assert.False(Poisson(Const(-1))([]float64{2}, noParents).Feasible)
}

func TestMvNormal(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	logp, err := MvNormal(Const(0), cov)
	require.NoError(t, err)

	// At the mean: -log(2 pi) - 0.5 log det
	lp := logp([]float64{0, 0}, noParents)
	assert.InDelta(-math.Log(2*math.Pi)-0.5*math.Log(0.75), lp.Value, 1e-12)
	assert.False(logp([]float64{0}, noParents).Feasible)

	_, err = MvNormal(Const(0), mat.NewSymDense(2, []float64{1, 2, 2, 1}))
	assert.True(errors.Is(err, model.ErrConfiguration))
}

func TestPriorDraws(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(3)
	require.NoError(t, err)

	const n = 20000
	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	mvPrior, err := MvNormalPrior(Const(1, -1), cov)
	require.NoError(t, err)

	data := mat.NewDense(n, 2, nil)
	var expSum, poisSum, bigSum float64
	for i := 0; i < n; i++ {
		data.SetRow(i, mvPrior(gen, noParents))
		expSum += ExponentialPrior(1, Const(4))(gen, noParents)[0]
		poisSum += PoissonPrior(1, Const(3))(gen, noParents)[0]
		bigSum += PoissonPrior(1, Const(50))(gen, noParents)[0]

		u := UniformPrior(1, Const(2), Const(3))(gen, noParents)[0]
		assert.True(u >= 2 && u <= 3)

		d := DiscreteUniformPrior(1, Const(0), Const(2))(gen, noParents)[0]
		assert.Contains([]float64{0, 1, 2}, d)
	}

	assert.InDelta(0.25, expSum/n, 0.01)
	assert.InDelta(3.0, poisSum/n, 0.05)
	assert.InDelta(50.0, bigSum/n, 0.3)
	assert.InDelta(1.0, stat.Mean(mat.Col(nil, 0, data), nil), 0.05)

	var got mat.SymDense
	stat.CovarianceMatrix(&got, data, nil)
	assert.True(mat.EqualApprox(cov, &got, 0.05))

	norm := NormalPrior(3, Const(5), Const(0.001))(gen, noParents)
	assert.Len(norm, 3)
	for _, x := range norm {
		assert.InDelta(5, x, 0.01)
	}
}
