package physics

import (
	"fmt"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// PhysicalParameters is the parameter set the closed-form equations of the
// balancer were derived for. Changing the geometry means regenerating the
// formulas in balancer.go, not only editing these values.
type PhysicalParameters struct {
	Mass            float64 `yaml:"mass"`
	CoMOffset       float64 `yaml:"com_offset"`
	Gravity         float64 `yaml:"gravity"`
	PitchInertia    float64 `yaml:"pitch_inertia"`
	YawInertia      float64 `yaml:"yaw_inertia"`
	YawTiltInertia  float64 `yaml:"yaw_tilt_inertia"`
	WheelRadius     float64 `yaml:"wheel_radius"`
	BodyLength      float64 `yaml:"body_length"`
	LinearDrag      float64 `yaml:"linear_drag"`
	VerticalDamping float64 `yaml:"vertical_damping"`
	MotorDamping    float64 `yaml:"motor_damping"`
}

func DefaultParameters() PhysicalParameters {
	return PhysicalParameters{
		Mass:            0.7,
		CoMOffset:       0.08,
		Gravity:         9.81,
		PitchInertia:    0.01148,
		YawInertia:      0.002,
		YawTiltInertia:  0.00896,
		WheelRadius:     0.0725,
		BodyLength:      0.25,
		LinearDrag:      1.225e-5,
		VerticalDamping: 20.0,
		MotorDamping:    0.105125,
	}
}

// Validate rejects parameter sets for which M(q) is not positive definite.
func (p PhysicalParameters) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"mass", p.Mass},
		{"pitch_inertia", p.PitchInertia},
		{"yaw_inertia", p.YawInertia},
		{"wheel_radius", p.WheelRadius},
		{"body_length", p.BodyLength},
	}
	for _, f := range positive {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", dynamo.ErrParameterBounds, f.name, f.v)
		}
	}
	ml := p.Mass * p.CoMOffset
	if p.PitchInertia <= ml*ml/p.Mass {
		return fmt.Errorf("%w: pitch_inertia %g must exceed m*l^2 = %g", dynamo.ErrParameterBounds, p.PitchInertia, ml*ml/p.Mass)
	}
	if p.YawTiltInertia+p.YawInertia <= ml*ml/p.Mass {
		return fmt.Errorf("%w: yaw inertia too small for com offset", dynamo.ErrParameterBounds)
	}
	return nil
}
