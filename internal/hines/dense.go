package hines

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense expands the tree system into a full matrix and solves it with an
// LU factorization. It is O(n³) and exists to cross-check Hines.
type Dense struct {
	a *mat.Dense
	b *mat.VecDense
}

func NewDense() *Dense { return &Dense{} }

func (s *Dense) Name() string { return "dense" }

// Expand writes the full matrix of m into a gonum Dense.
func Expand(m *Matrix) *mat.Dense {
	n := m.Len()
	a := mat.NewDense(n, n, nil)
	fill(a, m)
	return a
}

func fill(a *mat.Dense, m *Matrix) {
	a.Zero()
	for i, d := range m.D {
		a.Set(i, i, d)
	}
	for i, p := range m.Parent {
		if p < 0 {
			continue
		}
		a.Set(i, p, m.A[i])
		a.Set(p, i, m.B[i])
	}
}

func (s *Dense) Solve(m *Matrix, x []float64) error {
	n := m.Len()
	if len(x) != n {
		return fmt.Errorf("hines: solution has %d rows, matrix %d", len(x), n)
	}
	if n == 0 {
		return nil
	}
	if s.a == nil || s.b.Len() != n {
		s.a = mat.NewDense(n, n, nil)
		s.b = mat.NewVecDense(n, nil)
	}
	fill(s.a, m)
	for i, v := range m.RHS {
		s.b.SetVec(i, v)
	}

	var lu mat.LU
	lu.Factorize(s.a)
	out := mat.NewVecDense(n, x)
	if err := lu.SolveVecTo(out, false, s.b); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return nil
}
