package lcp

import (
	"fmt"
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const DefaultRegularization = 1e-8

// Stepper solves the LCP w = A lambda + b, w >= 0, lambda >= 0, w^T lambda = 0
// through its QP form
//
//	minimize 1/2 lambda^T A lambda + b^T lambda  subject to  lambda >= 0
//
// with a primal active-set method. A is symmetrized and shifted by reg*I
// before solving.
type Stepper struct {
	MaxIter   int
	Tolerance float64
}

func NewStepper() *Stepper {
	return &Stepper{
		MaxIter:   50,
		Tolerance: 1e-12,
	}
}

// Solve returns lambda >= 0. An empty problem returns an empty vector.
func (s *Stepper) Solve(a mat.Matrix, b *mat.VecDense, reg float64) (*mat.VecDense, error) {
	n := b.Len()
	if n == 0 {
		return &mat.VecDense{}, nil
	}
	r, c := a.Dims()
	if r != n || c != n {
		return nil, fmt.Errorf("%w: delassus operator is %dx%d, rhs has %d rows", dynamo.ErrDimensionMismatch, r, c, n)
	}

	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (a.At(i, j) + a.At(j, i))
			if i == j {
				v += reg
			}
			p.SetSym(i, j, v)
		}
	}
	if !finite(b) || !finiteSym(p) {
		return nil, fmt.Errorf("%w: non-finite problem data", dynamo.ErrContactSolve)
	}

	lam, err := s.activeSet(p, b)
	if err != nil {
		return nil, err
	}

	// clamp residual negative noise
	for i := 0; i < n; i++ {
		if lam.AtVec(i) < 0 {
			lam.SetVec(i, 0)
		}
	}
	return lam, nil
}

func (s *Stepper) activeSet(p *mat.SymDense, q *mat.VecDense) (*mat.VecDense, error) {
	n := q.Len()
	lam := mat.NewVecDense(n, nil)
	free := make([]bool, n)

	scale := 1.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(q.AtVec(i)))
	}
	tol := s.Tolerance * scale

	maxIter := s.MaxIter
	if maxIter < 10*n {
		maxIter = 10 * n
	}

	for iter := 0; iter < maxIter; iter++ {
		target, err := solveFree(p, q, free)
		if err != nil {
			return nil, err
		}

		// Largest feasible step from lam toward target.
		alpha := 1.0
		blocking := -1
		for i := 0; i < n; i++ {
			if !free[i] || target.AtVec(i) >= 0 {
				continue
			}
			d := lam.AtVec(i) - target.AtVec(i)
			if d <= 0 {
				continue
			}
			if step := lam.AtVec(i) / d; step < alpha {
				alpha = step
				blocking = i
			}
		}

		for i := 0; i < n; i++ {
			lam.SetVec(i, lam.AtVec(i)+alpha*(target.AtVec(i)-lam.AtVec(i)))
		}

		if blocking >= 0 {
			free[blocking] = false
			lam.SetVec(blocking, 0)
			for i := 0; i < n; i++ {
				if free[i] && lam.AtVec(i) <= 0 {
					free[i] = false
					lam.SetVec(i, 0)
				}
			}
			continue
		}

		// Optimal on the current face; check the multipliers of bound variables.
		var w mat.VecDense
		w.MulVec(p, lam)
		w.AddVec(&w, q)

		worst := -1
		worstVal := -tol
		for i := 0; i < n; i++ {
			if free[i] {
				continue
			}
			if w.AtVec(i) < worstVal {
				worstVal = w.AtVec(i)
				worst = i
			}
		}
		if worst < 0 {
			if !finite(lam) {
				return nil, fmt.Errorf("%w: non-finite impulse", dynamo.ErrContactSolve)
			}
			return lam, nil
		}
		free[worst] = true
	}

	return nil, fmt.Errorf("%w: active set did not converge in %d iterations", dynamo.ErrContactSolve, maxIter)
}

// solveFree minimizes over the free variables with the bound ones held at zero.
func solveFree(p *mat.SymDense, q *mat.VecDense, free []bool) (*mat.VecDense, error) {
	n := q.Len()
	idx := make([]int, 0, n)
	for i, f := range free {
		if f {
			idx = append(idx, i)
		}
	}
	out := mat.NewVecDense(n, nil)
	if len(idx) == 0 {
		return out, nil
	}

	k := len(idx)
	pf := mat.NewSymDense(k, nil)
	rhs := mat.NewVecDense(k, nil)
	for a, i := range idx {
		rhs.SetVec(a, -q.AtVec(i))
		for b := a; b < k; b++ {
			pf.SetSym(a, b, p.At(i, idx[b]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(pf); !ok {
		return nil, fmt.Errorf("%w: reduced operator not positive definite", dynamo.ErrContactSolve)
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrContactSolve, err)
	}
	for a, i := range idx {
		out.SetVec(i, sol.AtVec(a))
	}
	return out, nil
}

func finite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) || math.IsInf(v.AtVec(i), 0) {
			return false
		}
	}
	return true
}

func finiteSym(p *mat.SymDense) bool {
	n := p.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := p.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
