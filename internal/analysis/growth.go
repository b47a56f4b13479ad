package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// GrowthRate estimates the largest exponential rate at which a perturbation of
// component idx separates from the nominal trajectory. The perturbed state is
// renormalized to the initial separation after every step.
//
// A positive value around an equilibrium means the equilibrium is unstable;
// for the upright balancer it is the rate at which it tips over.
func GrowthRate(
	solver dynamo.Solver,
	x0 dynamo.State,
	u dynamo.Control,
	idx int,
	perturbation float64,
	dt, duration float64,
) (float64, error) {
	if idx < 0 || idx >= len(x0) {
		return 0, fmt.Errorf("%w: component %d of %d", dynamo.ErrDimensionMismatch, idx, len(x0))
	}
	if perturbation <= 0 || dt <= 0 {
		return 0, fmt.Errorf("%w: perturbation and dt must be positive", dynamo.ErrInvalidStep)
	}

	d0 := perturbation
	x := x0.Clone()
	xp := x0.Clone()
	xp[idx] += d0

	steps := dynamo.StepCount(dynamo.Span{Start: 0, End: duration}, dt)
	sumLog := 0.0
	count := 0

	for i := 0; i < steps; i++ {
		var err error
		if _, x, err = solver.Step(dt, x, u); err != nil {
			return 0, err
		}
		if _, xp, err = solver.Step(dt, xp, u); err != nil {
			return 0, err
		}

		sep := 0.0
		for k := range x {
			diff := xp[k] - x[k]
			sep += diff * diff
		}
		sep = math.Sqrt(sep)
		if sep == 0 {
			continue
		}

		sumLog += math.Log(sep / d0)
		count++

		scale := d0 / sep
		for k := range xp {
			xp[k] = x[k] + (xp[k]-x[k])*scale
		}
	}

	if count == 0 {
		return 0, nil
	}
	return sumLog / (float64(count) * dt), nil
}
