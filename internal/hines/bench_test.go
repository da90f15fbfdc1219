package hines

import (
	"fmt"
	"math/rand"
	"testing"
)

func BenchmarkSolve(b *testing.B) {
	for _, n := range []int{100, 1000} {
		for _, s := range []Solver{NewHines(), NewDense()} {
			if s.Name() == "dense" && n > 100 {
				continue
			}
			b.Run(fmt.Sprintf("%s/%d", s.Name(), n), func(b *testing.B) {
				m := randomTree(rand.New(rand.NewSource(1)), n)
				work := clone(m)
				x := make([]float64, n)
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					copy(work.D, m.D)
					copy(work.RHS, m.RHS)
					s.Solve(work, x)
				}
			})
		}
	}
}
