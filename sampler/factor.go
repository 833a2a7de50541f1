package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateCovariance means a covariance could not be factorized
var ErrDegenerateCovariance = errors.New("covariance is not positive definite")

// Factorize returns the lower Cholesky factor L of cov (cov = L L')
func Factorize(cov mat.Symmetric) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, ErrDegenerateCovariance
	}

	l := mat.NewTriDense(cov.SymmetricDim(), mat.Lower, nil)
	chol.LTo(l)
	return l, nil
}

// ProposalFactor holds the factor used to correlate proposal jumps
type ProposalFactor struct {
	l    *mat.TriDense
	jump *mat.VecDense
}

// NewProposalFactor factorizes the initial covariance. There is nothing to
// fall back to, so failure is returned as is.
func NewProposalFactor(cov mat.Symmetric) (*ProposalFactor, error) {
	l, err := Factorize(cov)
	if err != nil {
		return nil, err
	}
	return &ProposalFactor{
		l:    l,
		jump: mat.NewVecDense(cov.SymmetricDim(), nil),
	}, nil
}

// Retune installs the factor of cov. When cov can not be factorized the
// current factor is kept and ErrDegenerateCovariance is returned.
func (f *ProposalFactor) Retune(cov mat.Symmetric) error {
	if cov.SymmetricDim() != f.Dim() {
		return errors.Errorf("Retune with dim %d, factor has dim %d", cov.SymmetricDim(), f.Dim())
	}

	l, err := Factorize(cov)
	if err != nil {
		return err
	}
	f.l = l
	return nil
}

// Dim is the proposal dimension
func (f *ProposalFactor) Dim() int {
	n, _ := f.l.Triangle()
	return n
}

// Jump returns L z. The returned slice is reused by the next call.
func (f *ProposalFactor) Jump(z []float64) []float64 {
	f.jump.MulVec(f.l, mat.NewVecDense(len(z), z))
	return f.jump.RawVector().Data
}

// L returns a copy of the current factor
func (f *ProposalFactor) L() *mat.TriDense {
	dim := f.Dim()
	cp := mat.NewTriDense(dim, mat.Lower, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j <= i; j++ {
			cp.SetTri(i, j, f.l.At(i, j))
		}
	}
	return cp
}
