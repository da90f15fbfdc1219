// Package hines solves the cable equation's per-step linear system.
//
// The matrix of a tree-shaped cable has a diagonal entry per segment and
// one pair of off-diagonal entries per parent link. With segments numbered
// so that parent < child, Gaussian elimination from the leaves towards the
// root introduces no fill-in, and a solve costs O(n) (Hines, 1984).
//
// [Dense] solves the same system with a full LU factorization from gonum
// and is kept as an independent reference for the tree solver.
package hines

import (
	"errors"
	"fmt"
)

// ErrSingular reports a zero pivot during elimination.
var ErrSingular = errors.New("hines: singular matrix")

// Matrix is a tree-structured linear system. Row i reads
//
//	D[i]*x[i] + A[i]*x[Parent[i]] + sum over children c of B[c]*x[c] = RHS[i]
//
// Parent[i] < i for every non-root row; the root has Parent -1.
type Matrix struct {
	D, A, B, RHS []float64
	Parent       []int
}

// NewMatrix allocates a system for the given parent structure.
func NewMatrix(parent []int) (*Matrix, error) {
	for i, p := range parent {
		if p >= i {
			return nil, fmt.Errorf("hines: parent %d of row %d is not an earlier row", p, i)
		}
		if p < 0 && p != -1 {
			return nil, fmt.Errorf("hines: invalid parent %d of row %d", p, i)
		}
	}
	n := len(parent)
	return &Matrix{
		D:      make([]float64, n),
		A:      make([]float64, n),
		B:      make([]float64, n),
		RHS:    make([]float64, n),
		Parent: append([]int(nil), parent...),
	}, nil
}

func (m *Matrix) Len() int { return len(m.D) }

// MulVec computes y = M·x; used to check residuals.
func (m *Matrix) MulVec(x, y []float64) {
	for i := range m.D {
		y[i] = m.D[i] * x[i]
	}
	for i, p := range m.Parent {
		if p < 0 {
			continue
		}
		y[i] += m.A[i] * x[p]
		y[p] += m.B[i] * x[i]
	}
}

// Solver solves m·x = m.RHS into x. Implementations may overwrite D and RHS.
type Solver interface {
	Name() string
	Solve(m *Matrix, x []float64) error
}

// Hines is the O(n) tree elimination.
type Hines struct{}

func NewHines() *Hines { return &Hines{} }

func (h *Hines) Name() string { return "hines" }

func (h *Hines) Solve(m *Matrix, x []float64) error {
	n := m.Len()
	if len(x) != n {
		return fmt.Errorf("hines: solution has %d rows, matrix %d", len(x), n)
	}
	d, rhs := m.D, m.RHS

	// leaves to root
	for i := n - 1; i >= 0; i-- {
		p := m.Parent[i]
		if p < 0 {
			continue
		}
		if d[i] == 0 {
			return fmt.Errorf("%w: zero pivot at row %d", ErrSingular, i)
		}
		f := m.B[i] / d[i]
		d[p] -= f * m.A[i]
		rhs[p] -= f * rhs[i]
	}

	// root to leaves
	for i := 0; i < n; i++ {
		if d[i] == 0 {
			return fmt.Errorf("%w: zero pivot at row %d", ErrSingular, i)
		}
		p := m.Parent[i]
		if p < 0 {
			x[i] = rhs[i] / d[i]
			continue
		}
		x[i] = (rhs[i] - m.A[i]*x[p]) / d[i]
	}
	return nil
}

// New returns a solver by name: "hines" (default when empty) or "dense".
func New(name string) (Solver, error) {
	switch name {
	case "", "hines":
		return NewHines(), nil
	case "dense":
		return NewDense(), nil
	}
	return nil, fmt.Errorf("unknown solver: %s", name)
}

// Names lists the registered solvers.
func Names() []string { return []string{"hines", "dense"} }
