// Package dist builds log-densities and prior draws for model nodes. Every
// density is evaluated element-wise over the node's flattened value and
// summed; parameters broadcast when they hold a single element.
package dist

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/CraigKelly/adaptmc/model"
)

// Param supplies a distribution parameter from the node's parents
type Param func(p model.Parents) []float64

// Const is a fixed parameter value
func Const(v ...float64) Param {
	return func(model.Parents) []float64 { return v }
}

// Parent reads the parameter from the named parent
func Parent(name string) Param {
	return func(p model.Parents) []float64 { return p.Value(name) }
}

// at broadcasts single-element parameters
func at(v []float64, i int) float64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

// elementwise sums logp(x[i], i) and stops at the first infeasible element
func elementwise(x []float64, logp func(x float64, i int) float64) model.LogP {
	total := 0.0
	for i, xi := range x {
		lp := logp(xi, i)
		if math.IsInf(lp, -1) {
			return model.Infeasible
		}
		total += lp
	}
	return model.Ok(total)
}

// Normal is N(mu, sigma²) with sigma the standard deviation
func Normal(mu, sigma Param) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		m, s := mu(p), sigma(p)
		return elementwise(x, func(xi float64, i int) float64 {
			if at(s, i) <= 0 {
				return math.Inf(-1)
			}
			return distuv.Normal{Mu: at(m, i), Sigma: at(s, i)}.LogProb(xi)
		})
	}
}

// NormalPrior draws from Normal(mu, sigma)
func NormalPrior(size int, mu, sigma Param) model.RandomFunc {
	return func(r model.Rand, p model.Parents) []float64 {
		m, s := mu(p), sigma(p)
		out := make([]float64, size)
		for i := range out {
			out[i] = at(m, i) + at(s, i)*r.NormFloat64()
		}
		return out
	}
}

// MvNormal is a multivariate normal with a fixed covariance. The Cholesky
// factor is computed once; the mean may come from parents.
func MvNormal(mu Param, cov mat.Symmetric) (model.LogDensity, error) {
	dim := cov.SymmetricDim()
	centered, ok := distmv.NewNormal(make([]float64, dim), cov, nil)
	if !ok {
		return nil, errors.Wrap(model.ErrConfiguration, "MvNormal covariance is not positive definite")
	}

	return func(x []float64, p model.Parents) model.LogP {
		if len(x) != dim {
			return model.Infeasible
		}
		m := mu(p)
		d := make([]float64, dim)
		for i := range d {
			d[i] = x[i] - at(m, i)
		}
		return model.Ok(centered.LogProb(d))
	}, nil
}

// MvNormalPrior draws mu + L z where L L^T = cov
func MvNormalPrior(mu Param, cov mat.Symmetric) (model.RandomFunc, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, errors.Wrap(model.ErrConfiguration, "MvNormal covariance is not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)
	dim := cov.SymmetricDim()

	return func(r model.Rand, p model.Parents) []float64 {
		z := mat.NewVecDense(dim, nil)
		for i := 0; i < dim; i++ {
			z.SetVec(i, r.NormFloat64())
		}
		var out mat.VecDense
		out.MulVec(&l, z)
		m := mu(p)
		draw := make([]float64, dim)
		for i := range draw {
			draw[i] = out.AtVec(i) + at(m, i)
		}
		return draw
	}, nil
}

// Exponential has density rate * exp(-rate x) on x >= 0
func Exponential(rate Param) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		r := rate(p)
		return elementwise(x, func(xi float64, i int) float64 {
			if at(r, i) <= 0 || xi < 0 {
				return math.Inf(-1)
			}
			return distuv.Exponential{Rate: at(r, i)}.LogProb(xi)
		})
	}
}

// ExponentialPrior draws from Exponential(rate)
func ExponentialPrior(size int, rate Param) model.RandomFunc {
	return func(r model.Rand, p model.Parents) []float64 {
		rt := rate(p)
		out := make([]float64, size)
		for i := range out {
			out[i] = r.ExpFloat64() / at(rt, i)
		}
		return out
	}
}

// Poisson is the count distribution with mean lambda
func Poisson(lambda Param) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		l := lambda(p)
		return elementwise(x, func(xi float64, i int) float64 {
			if at(l, i) <= 0 {
				return math.Inf(-1)
			}
			return distuv.Poisson{Lambda: at(l, i)}.LogProb(xi)
		})
	}
}

// PoissonPrior draws from Poisson(lambda) by multiplying uniforms, which is
// exact and fast for the small means these models use. Past 30 it switches
// to the rounded normal approximation.
func PoissonPrior(size int, lambda Param) model.RandomFunc {
	return func(r model.Rand, p model.Parents) []float64 {
		l := lambda(p)
		out := make([]float64, size)
		for i := range out {
			li := at(l, i)
			if li > 30 {
				out[i] = math.Max(0, math.Round(li+math.Sqrt(li)*r.NormFloat64()))
				continue
			}
			limit, prod, k := math.Exp(-li), r.Float64(), 0.0
			for prod > limit {
				prod *= r.Float64()
				k++
			}
			out[i] = k
		}
		return out
	}
}

// Uniform is flat on [lower, upper]
func Uniform(lower, upper Param) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		lo, hi := lower(p), upper(p)
		return elementwise(x, func(xi float64, i int) float64 {
			a, b := at(lo, i), at(hi, i)
			if b <= a || xi < a || xi > b {
				return math.Inf(-1)
			}
			return distuv.Uniform{Min: a, Max: b}.LogProb(xi)
		})
	}
}

// UniformPrior draws from Uniform(lower, upper)
func UniformPrior(size int, lower, upper Param) model.RandomFunc {
	return func(r model.Rand, p model.Parents) []float64 {
		lo, hi := lower(p), upper(p)
		out := make([]float64, size)
		for i := range out {
			a, b := at(lo, i), at(hi, i)
			out[i] = a + (b-a)*r.Float64()
		}
		return out
	}
}

// DiscreteUniform is flat over the integers in [lower, upper]
func DiscreteUniform(lower, upper Param) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		lo, hi := lower(p), upper(p)
		return elementwise(x, func(xi float64, i int) float64 {
			a, b := math.Ceil(at(lo, i)), math.Floor(at(hi, i))
			if b < a || xi < a || xi > b || xi != math.Trunc(xi) {
				return math.Inf(-1)
			}
			return -math.Log(b - a + 1)
		})
	}
}

// DiscreteUniformPrior draws from DiscreteUniform(lower, upper)
func DiscreteUniformPrior(size int, lower, upper Param) model.RandomFunc {
	return func(r model.Rand, p model.Parents) []float64 {
		lo, hi := lower(p), upper(p)
		out := make([]float64, size)
		for i := range out {
			a, b := math.Ceil(at(lo, i)), math.Floor(at(hi, i))
			out[i] = a + float64(r.Intn(int(b-a)+1))
		}
		return out
	}
}

// Indicator has log-density 0 inside [lower, upper] and is infeasible outside
func Indicator(lower, upper float64) model.LogDensity {
	return func(x []float64, p model.Parents) model.LogP {
		return elementwise(x, func(xi float64, i int) float64 {
			if xi < lower || xi > upper {
				return math.Inf(-1)
			}
			return 0
		})
	}
}
