package integrators

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Radau IIA, three stages, order 5.
var (
	sqrt6  = math.Sqrt(6)
	radauC = [3]float64{(4 - sqrt6) / 10, (4 + sqrt6) / 10, 1}
	radauA = [3][3]float64{
		{(88 - 7*sqrt6) / 360, (296 - 169*sqrt6) / 1800, (-2 + 3*sqrt6) / 225},
		{(296 + 169*sqrt6) / 1800, (88 + 7*sqrt6) / 360, (-2 - 3*sqrt6) / 225},
		{(16 - sqrt6) / 36, (16 + sqrt6) / 36, 1.0 / 9},
	}
)

// Radau is an implicit stiff strategy. Each step solves the full collocation
// system by simplified Newton and the error is estimated by step doubling.
type Radau struct {
	Tol                Tolerances
	MassRegularization float64
	NewtonIter         int
	NewtonTol          float64
}

func NewRadau() *Radau {
	return &Radau{
		Tol:                DefaultTolerances(),
		MassRegularization: DefaultMassRegularization,
		NewtonIter:         10,
		NewtonTol:          1e-2,
	}
}

func (r *Radau) Name() string { return "radau" }

func (r *Radau) Integrate(model dynamo.Model, span dynamo.Span, x0 dynamo.State, u dynamo.Control) (*dynamo.Trajectory, error) {
	return r.integrate(modelRHS(model, u, r.MassRegularization), span, x0)
}

func (r *Radau) integrate(f rhsFunc, span dynamo.Span, y0 []float64) (*dynamo.Trajectory, error) {
	return adaptive(r.Name(), span, y0, r.Tol, 5, func(t float64, y []float64, h float64) ([]float64, float64, error) {
		full, err := r.step(f, t, y, h)
		if err != nil {
			return nil, 0, err
		}
		half, err := r.step(f, t, y, h/2)
		if err != nil {
			return nil, 0, err
		}
		two, err := r.step(f, t+h/2, half, h/2)
		if err != nil {
			return nil, 0, err
		}

		// Richardson: the two half steps are 2^5 more accurate per unit error.
		e := make([]float64, len(y))
		for i := range e {
			e[i] = (two[i] - full[i]) / 31
		}
		return two, errNorm(e, y, two, r.Tol), nil
	})
}

func (r *Radau) step(f rhsFunc, t float64, y []float64, h float64) ([]float64, error) {
	n := len(y)
	f0 := make([]float64, n)
	if err := f(t, y, f0); err != nil {
		return nil, err
	}
	jac, err := jacobian(f, t, y, f0)
	if err != nil {
		return nil, err
	}

	// I - h (A kron J)
	g := mat.NewDense(3*n, 3*n, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for p := 0; p < n; p++ {
				for q := 0; q < n; q++ {
					v := -h * radauA[i][j] * jac.At(p, q)
					if i == j && p == q {
						v++
					}
					g.Set(i*n+p, j*n+q, v)
				}
			}
		}
	}
	var lu mat.LU
	lu.Factorize(g)
	if c := lu.Cond(); math.IsInf(c, 1) || c > 1e14 {
		return nil, errNewton
	}

	z := mat.NewVecDense(3*n, nil)
	for i := 0; i < 3; i++ {
		for p := 0; p < n; p++ {
			z.SetVec(i*n+p, radauC[i]*h*f0[p])
		}
	}

	sc := make([]float64, n)
	for p := range sc {
		sc[p] = r.Tol.ATol + r.Tol.RTol*math.Abs(y[p])
	}

	stage := make([]float64, n)
	fs := [3][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	res := mat.NewVecDense(3*n, nil)
	var dz mat.VecDense
	prev := math.Inf(1)

	for it := 0; it < r.NewtonIter; it++ {
		for i := 0; i < 3; i++ {
			for p := 0; p < n; p++ {
				stage[p] = y[p] + z.AtVec(i*n+p)
			}
			if err := f(t+radauC[i]*h, stage, fs[i]); err != nil {
				return nil, err
			}
		}
		for i := 0; i < 3; i++ {
			for p := 0; p < n; p++ {
				v := -z.AtVec(i*n + p)
				for j := 0; j < 3; j++ {
					v += h * radauA[i][j] * fs[j][p]
				}
				res.SetVec(i*n+p, v)
			}
		}
		if err := lu.SolveVecTo(&dz, false, res); err != nil {
			return nil, errNewton
		}
		z.AddVec(z, &dz)

		sum := 0.0
		for i := 0; i < 3*n; i++ {
			d := dz.AtVec(i) / sc[i%n]
			sum += d * d
		}
		nrm := math.Sqrt(sum / float64(3*n))
		if math.IsNaN(nrm) || math.IsInf(nrm, 0) {
			return nil, errNewton
		}
		if nrm < r.NewtonTol {
			out := make([]float64, n)
			for p := 0; p < n; p++ {
				out[p] = y[p] + z.AtVec(2*n+p)
			}
			return out, nil
		}
		if it > 0 && nrm > 2*prev {
			return nil, errNewton
		}
		prev = nrm
	}
	return nil, errNewton
}
