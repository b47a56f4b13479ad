package control

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
)

// PitchPID holds the pitch angle at Target by driving both wheels with the
// same rate. The derivative term uses the measured pitch rate.
type PitchPID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   float64
	Limit    float64
	integral float64
	prevT    float64
	first    bool
}

func NewPitchPID(kp, ki, kd, target float64) *PitchPID {
	return &PitchPID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		first:  true,
	}
}

func (p *PitchPID) Compute(x dynamo.State, t float64) dynamo.Control {
	if len(x) <= physics.IdxThetaDot {
		return dynamo.Control{0, 0}
	}

	err := p.Target - x[physics.IdxTheta]
	rate := -x[physics.IdxThetaDot]

	if p.first {
		p.prevT = t
		p.first = false
	} else if dt := t - p.prevT; dt > 0 {
		p.integral += err * dt
		p.prevT = t
	}

	u := p.Kp*err + p.Ki*p.integral + p.Kd*rate
	if p.Limit > 0 {
		u = math.Max(-p.Limit, math.Min(p.Limit, u))
	}
	return dynamo.Control{u, u}
}

func (p *PitchPID) Reset() {
	p.integral = 0
	p.prevT = 0
	p.first = true
}
