package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// rhsFunc evaluates y' = f(t, y) into dy.
type rhsFunc func(t float64, y, dy []float64) error

// trialStep attempts one step of size h from (t, y) and returns the proposed
// state with the scaled norm of its local error estimate.
type trialStep func(t float64, y []float64, h float64) ([]float64, float64, error)

// errNewton marks an implicit solve that failed to converge; the driver
// retries with a smaller step.
var errNewton = errors.New("newton iteration did not converge")

// Strategy integrates a model over a span with its own step control.
type Strategy interface {
	Name() string
	Integrate(model dynamo.Model, span dynamo.Span, x0 dynamo.State, u dynamo.Control) (*dynamo.Trajectory, error)
}

// Tolerances configure the adaptive strategies.
type Tolerances struct {
	ATol      float64 `yaml:"atol"`
	RTol      float64 `yaml:"rtol"`
	FirstStep float64 `yaml:"first_step"`
	MaxStep   float64 `yaml:"max_step"`
	MaxSteps  int     `yaml:"max_steps"`
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		ATol:      1e-9,
		RTol:      1e-8,
		FirstStep: 1e-4,
		MaxStep:   1e-2,
		MaxSteps:  200000,
	}
}

const (
	safety   = 0.9
	minScale = 0.2
	maxScale = 5.0
)

// ODE integrates a Model as a smooth system, ignoring its constraints.
type ODE struct {
	model    dynamo.Model
	strategy Strategy
}

func NewODE(model dynamo.Model, strategy Strategy) *ODE {
	if strategy == nil {
		strategy = NewRadau()
	}
	return &ODE{model: model, strategy: strategy}
}

func (o *ODE) DOF() int { return o.model.DOF() }

func (o *ODE) Strategy() Strategy { return o.strategy }

// Step integrates from 0 to t and returns the final time and state.
func (o *ODE) Step(t float64, x dynamo.State, u dynamo.Control) (float64, dynamo.State, error) {
	traj, err := o.Solve(dynamo.Span{Start: 0, End: t}, x, u, 0)
	if err != nil {
		return 0, nil, err
	}
	tEnd, xEnd := traj.Last()
	return tEnd, xEnd, nil
}

// Solve integrates over span. dt is ignored; samples are the accepted steps.
func (o *ODE) Solve(span dynamo.Span, x0 dynamo.State, u dynamo.Control, dt float64) (*dynamo.Trajectory, error) {
	if !(span.Length() > 0) {
		return nil, fmt.Errorf("%w: span [%g, %g]", dynamo.ErrInvalidStep, span.Start, span.End)
	}
	if err := dynamo.CheckDims(o.model, x0, u); err != nil {
		return nil, err
	}
	return o.strategy.Integrate(o.model, span, x0, u)
}

// modelRHS turns M(q) qdd + H = 0 into an explicit first-order system on the
// interleaved state.
func modelRHS(model dynamo.Model, u dynamo.Control, massReg float64) rhsFunc {
	n := model.DOF()
	return func(t float64, y, dy []float64) error {
		a, err := freeAcceleration(model, t, dynamo.State(y), u, massReg)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			dy[2*i] = y[2*i+1]
			dy[2*i+1] = a.AtVec(i)
		}
		return nil
	}
}

// adaptive runs the accept/reject loop shared by the strategies. order is the
// order of the local error estimate used for step size selection.
func adaptive(name string, span dynamo.Span, y0 []float64, tol Tolerances, order int, step trialStep) (*dynamo.Trajectory, error) {
	traj := &dynamo.Trajectory{
		Times:  []float64{span.Start},
		States: []dynamo.State{dynamo.State(y0).Clone()},
	}

	t := span.Start
	y := append([]float64(nil), y0...)
	h := math.Min(tol.FirstStep, tol.MaxStep)
	exp := -1.0 / float64(order+1)

	for attempt := 0; t < span.End; attempt++ {
		if attempt >= tol.MaxSteps {
			return traj, fmt.Errorf("%w: %s exhausted %d attempts at t=%g", dynamo.ErrIntegrationFailure, name, tol.MaxSteps, t)
		}

		last := false
		if rem := span.End - t; rem <= math.Min(1.01*h, tol.MaxStep) {
			h = rem
			last = true
		}

		yNew, errN, err := step(t, y, h)
		switch {
		case errors.Is(err, errNewton):
			h *= 0.25
		case err != nil:
			return traj, err
		case errN <= 1 && finiteSlice(yNew):
			if last {
				t = span.End
			} else {
				t += h
			}
			y = yNew
			traj.Times = append(traj.Times, t)
			traj.States = append(traj.States, dynamo.State(yNew).Clone())
			h *= stepScale(errN, exp)
		default:
			h *= stepScale(errN, exp)
		}

		h = math.Min(h, tol.MaxStep)
		if t < span.End && h < minStep(t) {
			return traj, fmt.Errorf("%w: %s step size underflow at t=%g", dynamo.ErrIntegrationFailure, name, t)
		}
	}
	return traj, nil
}

func stepScale(errN, exp float64) float64 {
	if math.IsNaN(errN) || math.IsInf(errN, 0) {
		return minScale
	}
	if errN == 0 {
		return maxScale
	}
	return math.Max(minScale, math.Min(maxScale, safety*math.Pow(errN, exp)))
}

func minStep(t float64) float64 {
	return 1e-14 * math.Max(1, math.Abs(t))
}

// errNorm is the RMS of e scaled by atol + rtol*max(|y0|, |y1|).
func errNorm(e, y0, y1 []float64, tol Tolerances) float64 {
	if len(e) == 0 {
		return 0
	}
	sum := 0.0
	for i := range e {
		sc := tol.ATol + tol.RTol*math.Max(math.Abs(y0[i]), math.Abs(y1[i]))
		r := e[i] / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(e)))
}

// jacobian approximates df/dy by forward differences.
func jacobian(f rhsFunc, t float64, y, f0 []float64) (*mat.Dense, error) {
	n := len(y)
	jac := mat.NewDense(n, n, nil)
	yp := append([]float64(nil), y...)
	fp := make([]float64, n)
	for j := 0; j < n; j++ {
		d := 1.4901161193847656e-08 * math.Max(1, math.Abs(y[j]))
		yp[j] = y[j] + d
		if err := f(t, yp, fp); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			jac.Set(i, j, (fp[i]-f0[i])/d)
		}
		yp[j] = y[j]
	}
	return jac, nil
}

func finiteSlice(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
