package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// machineEpsilon is the relative precision used when deciding whether a
// singular value is numerically zero.
const machineEpsilon = 2e-16

// SVD holds a thin singular value decomposition M = U * diag(Values) * V^T.
// Values are sorted in descending order.
type SVD struct {
	U      *Matrix
	V      *Matrix
	Values []float64
}

// Decompose computes the thin singular value decomposition of m.
func (m *Matrix) Decompose() (*SVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(m.rows, m.cols, m.data), mat.SVDThin); !ok {
		return nil, errors.New("linalg: SVD did not converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	return &SVD{
		U:      fromDense(&u),
		V:      fromDense(&v),
		Values: svd.Values(nil),
	}, nil
}

// Tolerance returns the threshold below which a singular value is treated
// as zero: max(rows, cols) * sigmaMax * 2e-16.
func (s *SVD) Tolerance() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	rows, _ := s.U.Dims()
	cols, _ := s.V.Dims()
	return float64(max(rows, cols)) * s.Values[0] * machineEpsilon
}

// Rank returns the number of singular values above Tolerance.
func (s *SVD) Rank() int {
	tol := s.Tolerance()
	rank := 0
	for _, v := range s.Values {
		if math.Abs(v) > tol {
			rank++
		}
	}
	return rank
}

// Rank returns the numerical rank of m.
func (m *Matrix) Rank() (int, error) {
	svd, err := m.Decompose()
	if err != nil {
		return 0, err
	}
	return svd.Rank(), nil
}

// PseudoInverse returns the Moore-Penrose pseudoinverse of m, a
// Cols() x Rows() matrix P with m*P*m == m.
//
// Singular values below the tolerance contribute a zero reciprocal.
// Wide matrices are decomposed through their transpose. A rank 0 matrix
// yields ErrSingularMatrix.
func (m *Matrix) PseudoInverse() (*Matrix, error) {
	if m.cols > m.rows {
		p, err := m.T().PseudoInverse()
		if err != nil {
			return nil, err
		}
		return p.T(), nil
	}

	svd, err := m.Decompose()
	if err != nil {
		return nil, err
	}
	if svd.Rank() < 1 {
		return nil, fmt.Errorf("%w: %dx%d matrix has rank 0", ErrSingularMatrix, m.rows, m.cols)
	}

	tol := svd.Tolerance()
	recip := make([]float64, len(svd.Values))
	for i, v := range svd.Values {
		if math.Abs(v) < tol {
			continue
		}
		recip[i] = 1 / v
	}

	// P = V * diag(recip) * U^T
	u, v := svd.U, svd.V
	k := len(recip)
	inv := New(m.cols, m.rows)
	for i := 0; i < m.cols; i++ {
		for j := 0; j < m.rows; j++ {
			var sum float64
			for s := 0; s < k; s++ {
				if recip[s] == 0 {
					continue
				}
				sum += v.At(i, s) * recip[s] * u.At(j, s)
			}
			inv.Set(i, j, sum)
		}
	}
	return inv, nil
}

func fromDense(d *mat.Dense) *Matrix {
	r, c := d.Dims()
	m := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, d.At(i, j))
		}
	}
	return m
}
