package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const DefaultMassRegularization = 1e-9

// maxMassCond bounds the condition number accepted for M(q).
const maxMassCond = 1e14

// factorMass factorizes M(q). On failure it retries once with eps*I added,
// scaled by the largest diagonal entry, and reports whether it had to.
func factorMass(m *mat.SymDense, eps float64) (*mat.Cholesky, bool, error) {
	var chol mat.Cholesky
	if chol.Factorize(m) && chol.Cond() < maxMassCond {
		return &chol, false, nil
	}

	n := m.SymmetricDim()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(m.At(i, i)))
	}
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}

	reg := mat.NewSymDense(n, nil)
	reg.CopySym(m)
	for i := 0; i < n; i++ {
		reg.SetSym(i, i, reg.At(i, i)+eps*scale)
	}
	if chol.Factorize(reg) && chol.Cond() < maxMassCond {
		return &chol, true, nil
	}
	return nil, false, fmt.Errorf("%w: factorization failed after regularization %g", dynamo.ErrSingularMassMatrix, eps*scale)
}

// freeAcceleration solves M(q) a = -H(q, v, u).
func freeAcceleration(model dynamo.Model, t float64, x dynamo.State, u dynamo.Control, eps float64) (*mat.VecDense, error) {
	m, h, err := model.Evaluate(t, x, u)
	if err != nil {
		return nil, err
	}
	chol, _, err := factorMass(m, eps)
	if err != nil {
		return nil, err
	}
	var negH, a mat.VecDense
	negH.ScaleVec(-1, h)
	if err := chol.SolveVecTo(&a, &negH); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrSingularMassMatrix, err)
	}
	return &a, nil
}
