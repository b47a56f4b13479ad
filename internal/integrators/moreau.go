package integrators

import (
	"fmt"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/lcp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// PositionUpdate selects how q_{n+1} is built from the step velocities.
type PositionUpdate int

const (
	// Extrapolated is q + dt/2 (3 v+ - v_n).
	Extrapolated PositionUpdate = iota
	// SemiImplicit is q + dt v+.
	SemiImplicit
	// Trapezoidal is q + dt/2 (v+ + v-).
	Trapezoidal
)

func (p PositionUpdate) String() string {
	switch p {
	case Extrapolated:
		return "extrapolated"
	case SemiImplicit:
		return "semi-implicit"
	case Trapezoidal:
		return "trapezoidal"
	default:
		return fmt.Sprintf("PositionUpdate(%d)", int(p))
	}
}

func ParsePositionUpdate(s string) (PositionUpdate, error) {
	switch s {
	case "", "extrapolated":
		return Extrapolated, nil
	case "semi-implicit", "semi_implicit":
		return SemiImplicit, nil
	case "trapezoidal":
		return Trapezoidal, nil
	}
	return 0, fmt.Errorf("unknown position update: %s", s)
}

// ContactSolver computes non-negative impulses for the reduced LCP.
type ContactSolver interface {
	Solve(a mat.Matrix, b *mat.VecDense, reg float64) (*mat.VecDense, error)
}

// MoreauJean is the fixed-step, event-free integrator for a Model with
// unilateral constraints. It holds configuration only.
type MoreauJean struct {
	model       dynamo.Model
	contact     ContactSolver
	reg         float64
	retryFactor float64
	massReg     float64
	update      PositionUpdate
	log         *zap.Logger
}

type Option func(*MoreauJean)

func WithRegularization(reg float64) Option {
	return func(m *MoreauJean) { m.reg = reg }
}

// WithRetryFactor sets the multiplier applied to the regularization when a
// contact solve is retried.
func WithRetryFactor(k float64) Option {
	return func(m *MoreauJean) { m.retryFactor = k }
}

func WithMassRegularization(eps float64) Option {
	return func(m *MoreauJean) { m.massReg = eps }
}

func WithPositionUpdate(p PositionUpdate) Option {
	return func(m *MoreauJean) { m.update = p }
}

func WithContactSolver(cs ContactSolver) Option {
	return func(m *MoreauJean) { m.contact = cs }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *MoreauJean) { m.log = log }
}

func NewMoreauJean(model dynamo.Model, opts ...Option) *MoreauJean {
	m := &MoreauJean{
		model:       model,
		contact:     lcp.NewStepper(),
		reg:         lcp.DefaultRegularization,
		retryFactor: 1e4,
		massReg:     DefaultMassRegularization,
		update:      Extrapolated,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MoreauJean) DOF() int { return m.model.DOF() }

func (m *MoreauJean) Step(dt float64, x dynamo.State, u dynamo.Control) (float64, dynamo.State, error) {
	next, _, err := m.StepReport(dt, x, u)
	if err != nil {
		return 0, nil, err
	}
	return dt, next, nil
}

// StepReport advances x by one step of size dt and returns the contact diagnostics.
func (m *MoreauJean) StepReport(dt float64, x dynamo.State, u dynamo.Control) (dynamo.State, dynamo.StepReport, error) {
	var rep dynamo.StepReport
	if !(dt > 0) {
		return nil, rep, fmt.Errorf("%w: dt=%g", dynamo.ErrInvalidStep, dt)
	}
	if err := dynamo.CheckDims(m.model, x, u); err != nil {
		return nil, rep, err
	}

	n := m.model.DOF()
	q := x.Positions()
	vn := mat.NewVecDense(n, x.Velocities())

	// The scheme treats the model as autonomous.
	M, H, err := m.model.Evaluate(0, x, u)
	if err != nil {
		return nil, rep, err
	}
	chol, regularized, err := factorMass(M, m.massReg)
	if err != nil {
		return nil, rep, err
	}
	if regularized {
		rep.MassRegularized = true
		m.log.Warn("mass matrix regularized", zap.Float64("eps", m.massReg))
	}

	// free flight
	var negH, aMinus, vMinus mat.VecDense
	negH.ScaleVec(-1, H)
	if err := chol.SolveVecTo(&aMinus, &negH); err != nil {
		return nil, rep, fmt.Errorf("%w: %v", dynamo.ErrSingularMassMatrix, err)
	}
	vMinus.AddScaledVec(vn, dt, &aMinus)

	C, J, err := m.model.Constraints(0, x, u)
	if err != nil {
		return nil, rep, err
	}
	nc := C.Len()

	var jv mat.VecDense
	jv.MulVec(J, &vMinus)

	active := make([]int, 0, nc)
	for i := 0; i < nc; i++ {
		if C.AtVec(i)+dt*jv.AtVec(i) < 0 {
			active = append(active, i)
		}
	}

	lam := make([]float64, nc)
	vPlus := mat.VecDenseCopyOf(&vMinus)

	if len(active) > 0 {
		var minvJt mat.Dense
		if err := chol.SolveTo(&minvJt, J.T()); err != nil {
			return nil, rep, fmt.Errorf("%w: %v", dynamo.ErrSingularMassMatrix, err)
		}

		k := len(active)
		jAct := mat.NewDense(k, n, nil)
		minvJtAct := mat.NewDense(n, k, nil)
		bAct := mat.NewVecDense(k, nil)
		for a, i := range active {
			jAct.SetRow(a, mat.Row(nil, i, J))
			minvJtAct.SetCol(a, mat.Col(nil, i, &minvJt))
			bAct.SetVec(a, jv.AtVec(i))
		}
		var aAct mat.Dense
		aAct.Mul(jAct, minvJtAct)

		lamAct, err := m.solveContact(&aAct, bAct, &rep)
		if err == nil {
			for a, i := range active {
				lam[i] = lamAct.AtVec(a)
			}
			var corr mat.VecDense
			corr.MulVec(&minvJt, mat.NewVecDense(nc, lam))
			vPlus.AddVec(vPlus, &corr)
		}
	}

	qNext := make([]float64, n)
	for i := 0; i < n; i++ {
		vp := vPlus.AtVec(i)
		switch m.update {
		case SemiImplicit:
			qNext[i] = q[i] + dt*vp
		case Trapezoidal:
			qNext[i] = q[i] + 0.5*dt*(vp+vMinus.AtVec(i))
		default:
			qNext[i] = q[i] + 0.5*dt*(vp+vp+vp-vn.AtVec(i))
		}
	}

	var gapVel mat.VecDense
	gapVel.MulVec(J, vPlus)

	rep.Active = active
	rep.Impulse = lam
	rep.Gap = vecData(C)
	rep.GapVelocity = vecData(&gapVel)

	return dynamo.Interleave(qNext, vecData(vPlus)), rep, nil
}

// solveContact applies the retry-then-fallback policy. A nil error means the
// returned impulses should be applied.
func (m *MoreauJean) solveContact(a *mat.Dense, b *mat.VecDense, rep *dynamo.StepReport) (*mat.VecDense, error) {
	lam, err := m.contact.Solve(a, b, m.reg)
	if err == nil {
		return lam, nil
	}

	rep.Retried = true
	retryReg := m.reg * m.retryFactor
	m.log.Debug("contact solve failed, retrying",
		zap.Error(err),
		zap.Float64("regularization", retryReg),
	)

	lam, err = m.contact.Solve(a, b, retryReg)
	if err == nil {
		return lam, nil
	}

	rep.Fallback = true
	m.log.Warn("contact solve failed twice, stepping without impulses",
		zap.Error(err),
		zap.Int("active", b.Len()),
	)
	return nil, err
}

// Solve repeats Step on a uniform grid t0 + k*dt, k = 0..ceil(span/dt).
func (m *MoreauJean) Solve(span dynamo.Span, x0 dynamo.State, u dynamo.Control, dt float64) (*dynamo.Trajectory, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: dt=%g", dynamo.ErrInvalidStep, dt)
	}
	if span.Length() < 0 {
		return nil, fmt.Errorf("%w: span [%g, %g]", dynamo.ErrInvalidStep, span.Start, span.End)
	}
	if err := dynamo.CheckDims(m.model, x0, u); err != nil {
		return nil, err
	}

	steps := dynamo.StepCount(span, dt)
	traj := &dynamo.Trajectory{
		Times:   make([]float64, 1, steps+1),
		States:  make([]dynamo.State, 1, steps+1),
		Reports: make([]dynamo.StepReport, 0, steps),
	}
	traj.Times[0] = span.Start
	traj.States[0] = x0.Clone()

	x := traj.States[0]
	for k := 1; k <= steps; k++ {
		next, rep, err := m.StepReport(dt, x, u)
		if err != nil {
			return traj, &dynamo.SimulationError{
				Step:    k,
				Time:    span.Start + float64(k-1)*dt,
				State:   x.Clone(),
				Wrapped: err,
			}
		}
		x = next
		traj.Times = append(traj.Times, span.Start+float64(k)*dt)
		traj.States = append(traj.States, x)
		traj.Reports = append(traj.Reports, rep)
	}
	return traj, nil
}

func vecData(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
