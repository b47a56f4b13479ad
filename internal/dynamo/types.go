package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State is a generalized state with positions and velocities interleaved:
// [q0, v0, q1, v1, ...].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Positions returns the position half of the interleaved state.
func (s State) Positions() []float64 {
	q := make([]float64, len(s)/2)
	for i := range q {
		q[i] = s[2*i]
	}
	return q
}

// Velocities returns the velocity half of the interleaved state.
func (s State) Velocities() []float64 {
	v := make([]float64, len(s)/2)
	for i := range v {
		v[i] = s[2*i+1]
	}
	return v
}

// Interleave builds a State from separate position and velocity vectors.
func Interleave(q, v []float64) State {
	s := make(State, 2*len(q))
	for i := range q {
		s[2*i] = q[i]
		s[2*i+1] = v[i]
	}
	return s
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// Span is a closed time interval [Start, End].
type Span struct {
	Start float64
	End   float64
}

func (s Span) Length() float64 { return s.End - s.Start }

// StepCount is ceil(span/dt), tolerant to round-off in the ratio.
func StepCount(span Span, dt float64) int {
	ratio := span.Length() / dt
	n := int(math.Ceil(ratio - 1e-9*math.Max(1, ratio)))
	if n < 0 {
		return 0
	}
	return n
}

// Model evaluates the equations of motion M(q) qdd + H(q, qd, u) = J^T lambda
// together with the unilateral constraints C(q) >= 0.
type Model interface {
	DOF() int
	ControlDim() int
	ConstraintDim() int
	Evaluate(t float64, x State, u Control) (*mat.SymDense, *mat.VecDense, error)
	Constraints(t float64, x State, u Control) (*mat.VecDense, *mat.Dense, error)
}

// Kinematics reports the position and velocity of named reference points.
type Kinematics interface {
	Origin(t float64, x State, u Control) ([3]float64, error)
	OriginRate(t float64, x State, u Control) ([3]float64, error)
	Center(t float64, x State, u Control) ([3]float64, error)
	CenterRate(t float64, x State, u Control) ([3]float64, error)
}

// Hamiltonian is implemented by models that can report their mechanical energy.
type Hamiltonian interface {
	Energy(x State) (float64, error)
}

// Solver advances a Model. Implementations keep no state between calls.
type Solver interface {
	DOF() int
	Step(dt float64, x State, u Control) (float64, State, error)
	Solve(span Span, x0 State, u Control, dt float64) (*Trajectory, error)
}

// Reporter is implemented by solvers that expose contact diagnostics per step.
type Reporter interface {
	StepReport(dt float64, x State, u Control) (State, StepReport, error)
}

// StepReport carries contact diagnostics for a single fixed step.
type StepReport struct {
	Active          []int
	Impulse         []float64
	Gap             []float64
	GapVelocity     []float64
	Fallback        bool
	Retried         bool
	MassRegularized bool
}

// Trajectory is a sequence of samples; the first row is the initial state.
type Trajectory struct {
	Times   []float64
	States  []State
	Reports []StepReport
}

func (tr *Trajectory) Len() int { return len(tr.Times) }

func (tr *Trajectory) Last() (float64, State) {
	n := len(tr.Times)
	if n == 0 {
		return 0, nil
	}
	return tr.Times[n-1], tr.States[n-1]
}

// Column extracts one state component over the whole trajectory.
func (tr *Trajectory) Column(idx int) []float64 {
	out := make([]float64, len(tr.States))
	for i, s := range tr.States {
		if idx < len(s) {
			out[i] = s[idx]
		}
	}
	return out
}

// CheckDims validates state and control lengths against a model.
func CheckDims(m Model, x State, u Control) error {
	if len(x) != 2*m.DOF() {
		return fmt.Errorf("%w: state has %d entries, want %d", ErrDimensionMismatch, len(x), 2*m.DOF())
	}
	if len(u) != m.ControlDim() {
		return fmt.Errorf("%w: control has %d entries, want %d", ErrDimensionMismatch, len(u), m.ControlDim())
	}
	return nil
}

type Controller interface {
	Compute(x State, t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

// ContactMetric is a Metric that also consumes per-step contact reports.
type ContactMetric interface {
	Metric
	ObserveContact(rep StepReport, t float64)
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Config struct {
	Dt            float64
	Duration      float64
	Seed          int64
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            1e-3,
		Duration:      10.0,
		ValidateState: true,
	}
}

type Result struct {
	States     []State
	Controls   []Control
	Times      []float64
	Reports    []StepReport
	Metrics    map[string]float64
	StepsTaken int
	Fallbacks  int
	Errors     []error
}
