package metrics

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Contact metrics read the per-step reports of the contact integrator. Their
// Observe is a no-op; the runner feeds them through ObserveContact.

// Penetration is the deepest negative constraint gap seen at the start of a step.
type Penetration struct {
	depth float64
}

func NewPenetration() *Penetration { return &Penetration{} }

func (p *Penetration) Name() string                                        { return "max_penetration" }
func (p *Penetration) Observe(x dynamo.State, u dynamo.Control, t float64) {}
func (p *Penetration) Value() float64                                      { return p.depth }
func (p *Penetration) Reset()                                              { p.depth = 0 }

func (p *Penetration) ObserveContact(rep dynamo.StepReport, t float64) {
	for _, g := range rep.Gap {
		p.depth = math.Max(p.depth, -g)
	}
}

// Complementarity is the largest |lambda_i * (J v+)_i| over active contacts.
type Complementarity struct {
	worst float64
}

func NewComplementarity() *Complementarity { return &Complementarity{} }

func (c *Complementarity) Name() string                                        { return "complementarity_residual" }
func (c *Complementarity) Observe(x dynamo.State, u dynamo.Control, t float64) {}
func (c *Complementarity) Value() float64                                      { return c.worst }
func (c *Complementarity) Reset()                                              { c.worst = 0 }

func (c *Complementarity) ObserveContact(rep dynamo.StepReport, t float64) {
	for _, i := range rep.Active {
		if i < len(rep.Impulse) && i < len(rep.GapVelocity) {
			c.worst = math.Max(c.worst, math.Abs(rep.Impulse[i]*rep.GapVelocity[i]))
		}
	}
}

// ContactFraction is the share of steps with at least one active contact.
type ContactFraction struct {
	active int
	steps  int
}

func NewContactFraction() *ContactFraction { return &ContactFraction{} }

func (c *ContactFraction) Name() string                                        { return "contact_fraction" }
func (c *ContactFraction) Observe(x dynamo.State, u dynamo.Control, t float64) {}

func (c *ContactFraction) ObserveContact(rep dynamo.StepReport, t float64) {
	c.steps++
	if len(rep.Active) > 0 {
		c.active++
	}
}

func (c *ContactFraction) Value() float64 {
	if c.steps == 0 {
		return 0
	}
	return float64(c.active) / float64(c.steps)
}

func (c *ContactFraction) Reset() {
	c.active = 0
	c.steps = 0
}

// Fallbacks counts steps that fell back to zero impulses.
type Fallbacks struct {
	count int
}

func NewFallbacks() *Fallbacks { return &Fallbacks{} }

func (f *Fallbacks) Name() string                                        { return "contact_fallbacks" }
func (f *Fallbacks) Observe(x dynamo.State, u dynamo.Control, t float64) {}
func (f *Fallbacks) Value() float64                                      { return float64(f.count) }
func (f *Fallbacks) Reset()                                              { f.count = 0 }

func (f *Fallbacks) ObserveContact(rep dynamo.StepReport, t float64) {
	if rep.Fallback {
		f.count++
	}
}

// Defaults is the metric set attached to every contact run.
func Defaults(model dynamo.Hamiltonian) []dynamo.Metric {
	ms := []dynamo.Metric{
		NewControlEffort(),
		NewPeakRate(),
		NewUpright(0.5),
		NewPenetration(),
		NewComplementarity(),
		NewContactFraction(),
		NewFallbacks(),
	}
	if model != nil {
		ms = append(ms, NewEnergy(model), NewEnergyDrift(model))
	}
	return ms
}
