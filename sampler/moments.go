package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OptimalScaling is the Gelman, Roberts and Gilks scaling for a Gaussian
// target of dimension dim
func OptimalScaling(dim int) float64 {
	return 2.4 * 2.4 / float64(dim)
}

// RecursiveMean folds chain into a mean computed from k earlier samples
func RecursiveMean(mean []float64, k int, chain [][]float64) ([]float64, error) {
	n := k + len(chain)
	if n < 1 {
		return nil, errors.New("Mean of zero samples")
	}
	if k < 0 {
		return nil, errors.Errorf("Invalid sample count %d", k)
	}

	out := make([]float64, len(mean))
	for i, m := range mean {
		out[i] = float64(k) * m
	}
	for r, row := range chain {
		if len(row) != len(mean) {
			return nil, errors.Errorf("Row %d has len %d, expected %d", r, len(row), len(mean))
		}
		for i, x := range row {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float64(n)
	}

	return out, nil
}

// RecursiveCov folds chain into cov (computed from k samples with the given
// mean) and returns the new covariance and mean:
//
//	C_n = (k-1)/(n-1) C_k + scaling/(n-1) (k m_k m_k' + sum(x x') - n m_n m_n' + epsilon I)
//
// With k == 0 there is no previous estimate and the first term is dropped.
// n <= 1 is an error.
func RecursiveCov(cov mat.Symmetric, k int, mean []float64, chain [][]float64, scaling, epsilon float64) (*mat.SymDense, []float64, error) {
	dim := len(mean)
	if cov.SymmetricDim() != dim {
		return nil, nil, errors.Errorf("Covariance dim %d != mean len %d", cov.SymmetricDim(), dim)
	}

	n := k + len(chain)
	if n <= 1 {
		return nil, nil, errors.Errorf("Covariance update needs more than one sample, got %d", n)
	}

	newMean, err := RecursiveMean(mean, k, chain)
	if err != nil {
		return nil, nil, err
	}

	sums := mat.NewSymDense(dim, nil)
	if k > 0 {
		sums.SymRankOne(sums, float64(k), mat.NewVecDense(dim, mean))
	}
	for _, row := range chain {
		sums.SymRankOne(sums, 1, mat.NewVecDense(dim, row))
	}
	sums.SymRankOne(sums, -float64(n), mat.NewVecDense(dim, newMean))
	for i := 0; i < dim; i++ {
		sums.SetSym(i, i, sums.At(i, i)+epsilon)
	}

	out := mat.NewSymDense(dim, nil)
	out.ScaleSym(scaling/float64(n-1), sums)
	if k > 1 {
		prev := mat.NewSymDense(dim, nil)
		prev.ScaleSym(float64(k-1)/float64(n-1), cov)
		out.AddSym(out, prev)
	}

	return out, newMean, nil
}

// Moments is the running covariance estimate of a sampler: Cov and Mean
// summarize Count samples.
type Moments struct {
	Cov     *mat.SymDense
	Mean    []float64
	Count   int
	Scaling float64
	Epsilon float64
}

// NewMoments starts from the initial covariance c0 with no samples seen
func NewMoments(c0 mat.Symmetric, scaling, epsilon float64) *Moments {
	dim := c0.SymmetricDim()
	cov := mat.NewSymDense(dim, nil)
	cov.CopySym(c0)
	return &Moments{
		Cov:     cov,
		Mean:    make([]float64, dim),
		Count:   0,
		Scaling: scaling,
		Epsilon: epsilon,
	}
}

// Fold adds chain to the estimate. On error nothing changes.
func (m *Moments) Fold(chain [][]float64) error {
	cov, mean, err := RecursiveCov(m.Cov, m.Count, m.Mean, chain, m.Scaling, m.Epsilon)
	if err != nil {
		return err
	}

	m.Cov = cov
	m.Mean = mean
	m.Count += len(chain)
	return nil
}
