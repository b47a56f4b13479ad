package integrators

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// residualFunc evaluates r(t, y, y') into res.
type residualFunc func(t float64, y, yd, res []float64) error

// Residual integrates the implicit form r = [q' - v; M(q) v' + H] = 0 without
// inverting the mass matrix. Steps are backward Euler with Richardson
// extrapolation over two half steps.
type Residual struct {
	Tol        Tolerances
	NewtonIter int
	NewtonTol  float64
}

func NewResidual() *Residual {
	return &Residual{
		Tol: Tolerances{
			ATol:      1e-8,
			RTol:      1e-6,
			FirstStep: 1e-4,
			MaxStep:   1e-2,
			MaxSteps:  500000,
		},
		NewtonIter: 8,
		NewtonTol:  1e-3,
	}
}

func (r *Residual) Name() string { return "residual" }

func (r *Residual) Integrate(model dynamo.Model, span dynamo.Span, x0 dynamo.State, u dynamo.Control) (*dynamo.Trajectory, error) {
	return r.integrate(modelResidual(model, u), span, x0)
}

func modelResidual(model dynamo.Model, u dynamo.Control) residualFunc {
	n := model.DOF()
	return func(t float64, y, yd, res []float64) error {
		m, h, err := model.Evaluate(t, dynamo.State(y), u)
		if err != nil {
			return err
		}
		acc := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			acc.SetVec(i, yd[2*i+1])
		}
		var mv mat.VecDense
		mv.MulVec(m, acc)
		for i := 0; i < n; i++ {
			res[2*i] = yd[2*i] - y[2*i+1]
			res[2*i+1] = mv.AtVec(i) + h.AtVec(i)
		}
		return nil
	}
}

func (r *Residual) integrate(res residualFunc, span dynamo.Span, y0 []float64) (*dynamo.Trajectory, error) {
	return adaptive(r.Name(), span, y0, r.Tol, 1, func(t float64, y []float64, h float64) ([]float64, float64, error) {
		full, err := r.euler(res, t, y, h)
		if err != nil {
			return nil, 0, err
		}
		half, err := r.euler(res, t, y, h/2)
		if err != nil {
			return nil, 0, err
		}
		two, err := r.euler(res, t+h/2, half, h/2)
		if err != nil {
			return nil, 0, err
		}

		out := make([]float64, len(y))
		e := make([]float64, len(y))
		for i := range y {
			e[i] = two[i] - full[i]
			out[i] = two[i] + e[i]
		}
		return out, errNorm(e, y, out, r.Tol), nil
	})
}

// euler solves r(t+h, y + h yd, yd) = 0 for yd by simplified Newton.
func (r *Residual) euler(res residualFunc, t float64, y []float64, h float64) ([]float64, error) {
	n := len(y)
	tn := t + h

	yd := make([]float64, n)
	for i := 0; i+1 < n; i += 2 {
		yd[i] = y[i+1]
	}

	yn := make([]float64, n)
	g := make([]float64, n)
	eval := func(yd, out []float64) error {
		for i := range yn {
			yn[i] = y[i] + h*yd[i]
		}
		return res(tn, yn, yd, out)
	}

	if err := eval(yd, g); err != nil {
		return nil, err
	}

	jac := mat.NewDense(n, n, nil)
	probe := append([]float64(nil), yd...)
	gp := make([]float64, n)
	for j := 0; j < n; j++ {
		d := 1.4901161193847656e-08 * math.Max(1, math.Abs(yd[j]))
		probe[j] = yd[j] + d
		if err := eval(probe, gp); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			jac.Set(i, j, (gp[i]-g[i])/d)
		}
		probe[j] = yd[j]
	}

	var lu mat.LU
	lu.Factorize(jac)
	if c := lu.Cond(); math.IsInf(c, 1) || c > 1e14 {
		return nil, errNewton
	}

	rhs := mat.NewVecDense(n, nil)
	var d mat.VecDense
	prev := math.Inf(1)
	for it := 0; it < r.NewtonIter; it++ {
		for i := range g {
			rhs.SetVec(i, -g[i])
		}
		if err := lu.SolveVecTo(&d, false, rhs); err != nil {
			return nil, errNewton
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			yd[i] += d.AtVec(i)
			sc := r.Tol.ATol + r.Tol.RTol*math.Abs(y[i])
			s := h * d.AtVec(i) / sc
			sum += s * s
		}
		nrm := math.Sqrt(sum / float64(n))
		if math.IsNaN(nrm) || math.IsInf(nrm, 0) {
			return nil, errNewton
		}
		if nrm < r.NewtonTol {
			out := make([]float64, n)
			for i := range out {
				out[i] = y[i] + h*yd[i]
			}
			return out, nil
		}
		if it > 0 && nrm > 2*prev {
			return nil, errNewton
		}
		prev = nrm

		if err := eval(yd, g); err != nil {
			return nil, err
		}
	}
	return nil, errNewton
}
