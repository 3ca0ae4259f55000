package kalman

import (
	"fmt"
	"math"

	"github.com/skelterjohn/go.matrix"
)

// Linear is an n-state linear Kalman filter:
//
//	predict: x <- A*x + B*u,  P <- A*P*A' + Q
//	update:  K = P*H'*(H*P*H' + R)^-1,  x <- x + K*(z - H*x),  P <- (I - K*H)*P
//
// The model matrices A, B and H are passed per call since they usually depend
// on the sample interval. A Linear is not safe for concurrent use.
type Linear struct {
	n     int
	x, x0 *matrix.DenseMatrix // State, n x 1
	p, p0 *matrix.DenseMatrix // Covariance of state uncertainty, n x n
	q     *matrix.DenseMatrix // Process noise per prediction, n x n
	r     *matrix.DenseMatrix // Measurement noise covariance, m x m
	eye   *matrix.DenseMatrix
}

// NewLinear returns a Linear filter with initial state x0, initial
// covariance p0, process noise q and measurement noise r.
func NewLinear(x0 []float64, p0, q, r *matrix.DenseMatrix) (*Linear, error) {
	n := len(x0)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty state", ErrDimension)
	}
	if p0.Rows() != n || p0.Cols() != n || q.Rows() != n || q.Cols() != n {
		return nil, fmt.Errorf("%w: state has %d entries, P0 is %dx%d, Q is %dx%d",
			ErrDimension, n, p0.Rows(), p0.Cols(), q.Rows(), q.Cols())
	}
	if r.Rows() != r.Cols() {
		return nil, fmt.Errorf("%w: R is %dx%d", ErrDimension, r.Rows(), r.Cols())
	}
	for _, m := range []*matrix.DenseMatrix{p0, q, r} {
		for i := 0; i < m.Rows(); i++ {
			if d := m.Get(i, i); !(d >= 0) || math.IsInf(d, 0) {
				return nil, fmt.Errorf("%w: negative or non-finite diagonal %g", ErrInvalidConfig, d)
			}
		}
	}

	f := &Linear{
		n:   n,
		x0:  matrix.MakeDenseMatrix(append([]float64(nil), x0...), n, 1),
		p0:  p0.Copy(),
		q:   q.Copy(),
		r:   r.Copy(),
		eye: matrix.Eye(n),
	}
	f.Reset()
	return f, nil
}

// Reset restores the initial state and covariance.
func (f *Linear) Reset() {
	f.x = f.x0.Copy()
	f.p = f.p0.Copy()
}

// Predict propagates the state with transition a and control matrix b
// applied to the control vector u. b may be nil when there is no control.
func (f *Linear) Predict(a, b *matrix.DenseMatrix, u []float64) error {
	if a.Rows() != f.n || a.Cols() != f.n {
		return fmt.Errorf("%w: A is %dx%d for %d states", ErrDimension, a.Rows(), a.Cols(), f.n)
	}
	x := matrix.Product(a, f.x)
	if b != nil {
		if b.Rows() != f.n || b.Cols() != len(u) {
			return fmt.Errorf("%w: B is %dx%d for %d states and %d controls",
				ErrDimension, b.Rows(), b.Cols(), f.n, len(u))
		}
		x = matrix.Sum(x, matrix.Product(b, matrix.MakeDenseMatrix(append([]float64(nil), u...), len(u), 1)))
	}
	f.x = x
	f.p = matrix.Sum(matrix.Product(a, matrix.Product(f.p, a.Transpose())), f.q)
	return nil
}

// Update corrects the state with the measurement vector z observed through
// h. If the innovation covariance cannot be inverted the state is left
// unchanged and ErrSingular is returned.
func (f *Linear) Update(h *matrix.DenseMatrix, z []float64) error {
	m := len(z)
	if h.Rows() != m || h.Cols() != f.n || f.r.Rows() != m {
		return fmt.Errorf("%w: H is %dx%d, R is %dx%d, %d measurements",
			ErrDimension, h.Rows(), h.Cols(), f.r.Rows(), f.r.Cols(), m)
	}

	y := matrix.Difference(matrix.MakeDenseMatrix(append([]float64(nil), z...), m, 1), matrix.Product(h, f.x))
	ss := matrix.Sum(matrix.Product(h, matrix.Product(f.p, h.Transpose())), f.r)
	si, err := ss.Inverse()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	for i := 0; i < si.Rows(); i++ {
		for j := 0; j < si.Cols(); j++ {
			if v := si.Get(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrSingular
			}
		}
	}

	kk := matrix.Product(f.p, matrix.Product(h.Transpose(), si))
	f.x = matrix.Sum(f.x, matrix.Product(kk, y))
	f.p = matrix.Product(matrix.Difference(f.eye, matrix.Product(kk, h)), f.p)
	return nil
}

// State returns a copy of the state vector.
func (f *Linear) State() []float64 {
	x := make([]float64, f.n)
	for i := range x {
		x[i] = f.x.Get(i, 0)
	}
	return x
}

// Covariance returns a copy of the state covariance.
func (f *Linear) Covariance() *matrix.DenseMatrix {
	return f.p.Copy()
}

// Variance returns the i-th diagonal entry of the state covariance.
func (f *Linear) Variance(i int) float64 {
	return f.p.Get(i, i)
}
