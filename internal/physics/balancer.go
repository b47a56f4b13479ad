package physics

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const (
	DOF      = 5
	Controls = 2
	Contacts = 2
)

// Generalized coordinate indices.
const (
	X = iota
	Y
	Z
	Theta
	Phi
)

// Interleaved state indices.
const (
	IdxX        = 2 * X
	IdxXDot     = 2*X + 1
	IdxY        = 2 * Y
	IdxYDot     = 2*Y + 1
	IdxZ        = 2 * Z
	IdxZDot     = 2*Z + 1
	IdxTheta    = 2 * Theta
	IdxThetaDot = 2*Theta + 1
	IdxPhi      = 2 * Phi
	IdxPhiDot   = 2*Phi + 1
)

var ContactNames = [Contacts]string{"wheel-ground", "body-ground"}

// StateNames labels the interleaved state entries, in order.
var StateNames = [2 * DOF]string{
	"x", "x_dot", "y", "y_dot", "z", "z_dot",
	"theta", "theta_dot", "phi", "phi_dot",
}

// Balancer is the two-wheeled self-balancing body: lateral position x, y,
// height z, pitch theta and yaw phi, driven by left/right wheel rates.
type Balancer struct {
	p PhysicalParameters
}

func NewBalancer(p PhysicalParameters) *Balancer {
	return &Balancer{p: p}
}

func (b *Balancer) Parameters() PhysicalParameters { return b.p }

func (b *Balancer) DOF() int           { return DOF }
func (b *Balancer) ControlDim() int    { return Controls }
func (b *Balancer) ConstraintDim() int { return Contacts }

func unpack(x dynamo.State) (q, v [DOF]float64) {
	for i := 0; i < DOF; i++ {
		q[i] = x[2*i]
		v[i] = x[2*i+1]
	}
	return q, v
}

func wheelSum(u dynamo.Control) float64 {
	return u[0] + u[1]
}

func (b *Balancer) massMatrix(q [DOF]float64) [DOF][DOF]float64 {
	p := b.p
	st, ct := math.Sincos(q[Theta])
	sp, cp := math.Sincos(q[Phi])
	ml := p.Mass * p.CoMOffset

	var m [DOF][DOF]float64
	m[X][X] = p.Mass
	m[Y][Y] = p.Mass
	m[Z][Z] = p.Mass
	m[X][Theta] = ml * cp * ct
	m[X][Phi] = -ml * sp * st
	m[Y][Theta] = ml * sp * ct
	m[Y][Phi] = ml * st * cp
	m[Z][Theta] = -ml * st
	m[Theta][Theta] = p.PitchInertia
	m[Phi][Phi] = p.YawTiltInertia*st*st + p.YawInertia

	for i := 0; i < DOF; i++ {
		for j := i + 1; j < DOF; j++ {
			m[j][i] = m[i][j]
		}
	}
	return m
}

func (b *Balancer) bias(q, v [DOF]float64, w float64) [DOF]float64 {
	p := b.p
	st, ct := math.Sincos(q[Theta])
	sp, cp := math.Sincos(q[Phi])
	s2t := math.Sin(2 * q[Theta])

	xd, yd, zd := v[X], v[Y], v[Z]
	td, pd := v[Theta], v[Phi]

	ml := p.Mass * p.CoMOffset
	hr := 0.5 * p.WheelRadius
	mhr := p.Mass * hr
	c := p.LinearDrag
	cl := c * p.CoMOffset
	cl2 := cl * p.CoMOffset

	// wheel coupling seen by the yaw-translation terms
	yawCoupling := mhr*w + cl*st

	var h [DOF]float64
	h[X] = -ml*pd*pd*st*cp -
		2*ml*pd*td*sp*ct -
		pd*yawCoupling*sp -
		ml*td*td*st*cp +
		cl*(st+ct)*td*cp +
		c*xd +
		c*hr*w*cp
	h[Y] = -ml*pd*pd*sp*st +
		2*ml*pd*td*cp*ct +
		pd*yawCoupling*cp -
		ml*td*td*sp*st +
		cl*(st+ct)*td*sp +
		c*yd +
		c*hr*w*sp
	h[Z] = -ml*td*td*ct +
		cl*(ct-st)*td +
		(p.VerticalDamping+c)*zd +
		p.Mass*p.Gravity
	h[Theta] = cl*hr*w*ct +
		0.5*p.MotorDamping*w -
		0.5*p.YawTiltInertia*pd*pd*s2t +
		(p.MotorDamping+cl2)*td +
		cl*ct*(xd*cp+yd*sp) -
		cl*zd*st -
		ml*p.Gravity*st
	h[Phi] = p.YawTiltInertia*pd*td*s2t +
		cl2*pd*st*st +
		(mhr*w-cl*st)*(xd*sp-yd*cp)
	return h
}

func (b *Balancer) gaps(q [DOF]float64) [Contacts]float64 {
	return [Contacts]float64{
		q[Z],
		q[Z] + b.p.BodyLength*math.Cos(q[Theta]) + b.p.WheelRadius,
	}
}

func (b *Balancer) gapJacobian(q [DOF]float64) [Contacts][DOF]float64 {
	var j [Contacts][DOF]float64
	j[0][Z] = 1
	j[1][Z] = 1
	j[1][Theta] = -b.p.BodyLength * math.Sin(q[Theta])
	return j
}

// Evaluate returns the mass matrix M(q) and the bias vector H(q, qd, u).
func (b *Balancer) Evaluate(t float64, x dynamo.State, u dynamo.Control) (*mat.SymDense, *mat.VecDense, error) {
	if err := dynamo.CheckDims(b, x, u); err != nil {
		return nil, nil, err
	}
	q, v := unpack(x)
	m := b.massMatrix(q)
	h := b.bias(q, v, wheelSum(u))

	mData := make([]float64, 0, DOF*DOF)
	for i := range m {
		mData = append(mData, m[i][:]...)
	}
	return mat.NewSymDense(DOF, mData), mat.NewVecDense(DOF, h[:]), nil
}

// Constraints returns the gap vector C(q) and its Jacobian dC/dq.
func (b *Balancer) Constraints(t float64, x dynamo.State, u dynamo.Control) (*mat.VecDense, *mat.Dense, error) {
	if err := dynamo.CheckDims(b, x, u); err != nil {
		return nil, nil, err
	}
	q, _ := unpack(x)
	g := b.gaps(q)
	j := b.gapJacobian(q)

	jData := make([]float64, 0, Contacts*DOF)
	for i := range j {
		jData = append(jData, j[i][:]...)
	}
	return mat.NewVecDense(Contacts, g[:]), mat.NewDense(Contacts, DOF, jData), nil
}

func (b *Balancer) Origin(t float64, x dynamo.State, u dynamo.Control) ([3]float64, error) {
	if err := dynamo.CheckDims(b, x, u); err != nil {
		return [3]float64{}, err
	}
	return [3]float64{x[IdxX], x[IdxY], x[IdxZ]}, nil
}

func (b *Balancer) OriginRate(t float64, x dynamo.State, u dynamo.Control) ([3]float64, error) {
	if err := dynamo.CheckDims(b, x, u); err != nil {
		return [3]float64{}, err
	}
	sp, cp := math.Sincos(x[IdxPhi])
	drive := 0.5 * b.p.WheelRadius * wheelSum(u)
	return [3]float64{
		x[IdxXDot] + drive*cp,
		x[IdxYDot] + drive*sp,
		x[IdxZDot],
	}, nil
}

// Center is the position of the body's center of mass.
func (b *Balancer) Center(t float64, x dynamo.State, u dynamo.Control) ([3]float64, error) {
	o, err := b.Origin(t, x, u)
	if err != nil {
		return o, err
	}
	off := b.comOffset(x)
	return [3]float64{o[0] + off[0], o[1] + off[1], o[2] + off[2]}, nil
}

func (b *Balancer) CenterRate(t float64, x dynamo.State, u dynamo.Control) ([3]float64, error) {
	o, err := b.OriginRate(t, x, u)
	if err != nil {
		return o, err
	}
	l := b.p.CoMOffset
	st, ct := math.Sincos(x[IdxTheta])
	sp, cp := math.Sincos(x[IdxPhi])
	td, pd := x[IdxThetaDot], x[IdxPhiDot]
	return [3]float64{
		o[0] - l*pd*sp*st + l*td*cp*ct,
		o[1] + l*pd*st*cp + l*td*sp*ct,
		o[2] - l*td*st,
	}, nil
}

func (b *Balancer) comOffset(x dynamo.State) [3]float64 {
	l := b.p.CoMOffset
	st, ct := math.Sincos(x[IdxTheta])
	sp, cp := math.Sincos(x[IdxPhi])
	return [3]float64{l * st * cp, l * sp * st, l * ct}
}

// Energy is the mechanical energy 1/2 v^T M v + m g (z + l cos theta).
func (b *Balancer) Energy(x dynamo.State) (float64, error) {
	if len(x) != 2*DOF {
		return 0, dynamo.ErrDimensionMismatch
	}
	q, v := unpack(x)
	m := b.massMatrix(q)
	ke := 0.0
	for i := 0; i < DOF; i++ {
		for j := 0; j < DOF; j++ {
			ke += v[i] * m[i][j] * v[j]
		}
	}
	pe := b.p.Mass * b.p.Gravity * (q[Z] + b.p.CoMOffset*math.Cos(q[Theta]))
	return 0.5*ke + pe, nil
}
