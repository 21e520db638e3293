// Package lighting holds the calibrated light geometry of a capture rig and
// the cached least-squares operator used to recover surface normals.
package lighting

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/Faultbox/objectify/pkg/linalg"
)

// MinLights is the smallest number of independent directions that pins
// down a normal and an albedo.
const MinLights = 3

// ErrUnderdetermined is returned when the rig has fewer than MinLights
// independent light directions.
var ErrUnderdetermined = errors.New("underdetermined lighting")

// Model is an immutable set of N unit light directions together with the
// pseudoinverse of the N x 3 direction matrix. It is safe for concurrent use.
type Model struct {
	dirs []r3.Vector
	l    *linalg.Matrix // N x 3
	pinv *linalg.Matrix // 3 x N
}

// NewModel normalizes dirs, builds the direction matrix and computes its
// pseudoinverse once.
func NewModel(dirs []r3.Vector) (*Model, error) {
	if len(dirs) < MinLights {
		return nil, fmt.Errorf("%w: %d light directions, need at least %d", ErrUnderdetermined, len(dirs), MinLights)
	}

	unit := make([]r3.Vector, len(dirs))
	l := linalg.New(len(dirs), 3)
	for i, d := range dirs {
		u := d.Normalize()
		unit[i] = u
		l.Set(i, 0, u.X)
		l.Set(i, 1, u.Y)
		l.Set(i, 2, u.Z)
	}

	rank, err := l.Rank()
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	if rank == 0 {
		return nil, fmt.Errorf("lighting: %w: all light directions are zero", linalg.ErrSingularMatrix)
	}
	if rank < MinLights {
		return nil, fmt.Errorf("%w: light directions span only %d dimensions", ErrUnderdetermined, rank)
	}

	pinv, err := l.PseudoInverse()
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}

	return &Model{dirs: unit, l: l, pinv: pinv}, nil
}

// Len returns the number of light directions.
func (m *Model) Len() int {
	return len(m.dirs)
}

// Directions returns a copy of the unit light directions.
func (m *Model) Directions() []r3.Vector {
	out := make([]r3.Vector, len(m.dirs))
	copy(out, m.dirs)
	return out
}

// Matrix returns a copy of the N x 3 direction matrix.
func (m *Model) Matrix() *linalg.Matrix {
	return m.l.Clone()
}

// Pinv returns a copy of the cached 3 x N pseudoinverse.
func (m *Model) Pinv() *linalg.Matrix {
	return m.pinv.Clone()
}

// Solve returns pinv(L) * intensities. The direction of the result is the
// surface normal and its length the Lambertian albedo.
func (m *Model) Solve(intensities []float64) (r3.Vector, error) {
	var g [3]float64
	if err := m.pinv.MulVecTo(g[:], intensities); err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: g[0], Y: g[1], Z: g[2]}, nil
}

// Shade returns the Lambertian intensities albedo * max(0, n . l) that
// surface normal n would produce under each light.
func (m *Model) Shade(n r3.Vector, albedo float64) []float64 {
	out := make([]float64, len(m.dirs))
	for i, d := range m.dirs {
		if dot := n.Dot(d); dot > 0 {
			out[i] = albedo * dot
		}
	}
	return out
}
