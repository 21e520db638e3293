// Package linalg provides a small dense matrix type with the decompositions
// needed by photometric reconstruction.
package linalg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSingularMatrix is returned when a matrix has rank 0 and cannot be inverted.
	ErrSingularMatrix = errors.New("singular matrix")
)

// Matrix is a dense row-major matrix of float64 values.
// A Matrix always has at least one row and one column.
type Matrix struct {
	rows, cols int
	data       []float64
}

// New returns a zero-filled rows x cols matrix.
// It panics if either dimension is less than 1.
func New(rows, cols int) *Matrix {
	if rows < 1 || cols < 1 {
		panic(fmt.Sprintf("linalg: invalid matrix dimensions %dx%d", rows, cols))
	}
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

// FromRows builds a matrix from a slice of equally sized rows.
// The values are copied.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrDimensionMismatch)
	}
	m := New(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), m.cols)
		}
		copy(m.data[i*m.cols:], row)
	}
	return m, nil
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// Rows returns the row count.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the column count.
func (m *Matrix) Cols() int { return m.cols }

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Set sets the element at row i, column j.
func (m *Matrix) Set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, m.cols)
	copy(out, m.data[i*m.cols:(i+1)*m.cols])
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(c.data, m.data)
	return c
}

// T returns the transpose as a new matrix.
func (m *Matrix) T() *Matrix {
	t := New(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.data[j*t.cols+i] = m.data[i*m.cols+j]
		}
	}
	return t
}

// Mul returns the product m * other.
func (m *Matrix) Mul(other *Matrix) (*Matrix, error) {
	if m.cols != other.rows {
		return nil, fmt.Errorf("%w: cannot multiply %dx%d by %dx%d", ErrDimensionMismatch, m.rows, m.cols, other.rows, other.cols)
	}
	out := New(m.rows, other.cols)
	for i := 0; i < m.rows; i++ {
		for k := 0; k < m.cols; k++ {
			a := m.data[i*m.cols+k]
			if a == 0 {
				continue
			}
			for j := 0; j < other.cols; j++ {
				out.data[i*out.cols+j] += a * other.data[k*other.cols+j]
			}
		}
	}
	return out, nil
}

// MulVec returns the matrix-vector product m * v.
func (m *Matrix) MulVec(v []float64) ([]float64, error) {
	dst := make([]float64, m.rows)
	if err := m.MulVecTo(dst, v); err != nil {
		return nil, err
	}
	return dst, nil
}

// MulVecTo writes m * v into dst without allocating.
// dst must have length Rows() and v length Cols().
func (m *Matrix) MulVecTo(dst, v []float64) error {
	if len(v) != m.cols {
		return fmt.Errorf("%w: vector length %d, matrix has %d columns", ErrDimensionMismatch, len(v), m.cols)
	}
	if len(dst) != m.rows {
		return fmt.Errorf("%w: destination length %d, matrix has %d rows", ErrDimensionMismatch, len(dst), m.rows)
	}
	for i := 0; i < m.rows; i++ {
		row := m.data[i*m.cols : (i+1)*m.cols]
		var sum float64
		for j, a := range row {
			sum += a * v[j]
		}
		dst[i] = sum
	}
	return nil
}

// SetIdentity sets the diagonal to 1 and every other element to 0.
// Non-square matrices get ones on the leading diagonal.
func (m *Matrix) SetIdentity() {
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if i == j {
				m.data[i*m.cols+j] = 1
			} else {
				m.data[i*m.cols+j] = 0
			}
		}
	}
}

// SetRotation overwrites the upper-left 4x4 block with the homogeneous
// rotation described by q. The quaternion is normalized first; a zero
// quaternion yields the identity. The matrix must be at least 4x4.
func (m *Matrix) SetRotation(q mgl64.Quat) error {
	if m.rows < 4 || m.cols < 4 {
		return fmt.Errorf("%w: rotation needs at least 4x4, have %dx%d", ErrDimensionMismatch, m.rows, m.cols)
	}
	rot := q.Normalize().Mat4()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, rot.At(i, j))
		}
	}
	return nil
}

// EqualApprox reports whether m and other have the same shape and every
// element differs by at most tol, relative to the larger magnitude when
// that magnitude exceeds 1.
func (m *Matrix) EqualApprox(other *Matrix, tol float64) bool {
	if m.rows != other.rows || m.cols != other.cols {
		return false
	}
	for i, a := range m.data {
		b := other.data[i]
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		scale := 1.0
		if abs(a) > scale {
			scale = abs(a)
		}
		if abs(b) > scale {
			scale = abs(b)
		}
		if diff > tol*scale {
			return false
		}
	}
	return true
}

// String formats the matrix one row per line.
func (m *Matrix) String() string {
	var sb strings.Builder
	for i := 0; i < m.rows; i++ {
		sb.WriteString("[")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%g", m.At(i, j))
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
