package metrics

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Energy is the mean mechanical energy over the observed samples. Samples the
// model cannot evaluate are skipped.
type Energy struct {
	model dynamo.Hamiltonian
	sum   float64
	n     int
}

func NewEnergy(model dynamo.Hamiltonian) *Energy { return &Energy{model: model} }

func (e *Energy) Name() string { return "energy" }

func (e *Energy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if v, err := e.model.Energy(x); err == nil {
		e.sum += v
		e.n++
	}
}

func (e *Energy) Value() float64 {
	if e.n == 0 {
		return 0
	}
	return e.sum / float64(e.n)
}

func (e *Energy) Reset() { e.sum, e.n = 0, 0 }

// EnergyDrift is the largest change of mechanical energy relative to the first
// sample, or the absolute change when the first sample is zero. The balancer
// dissipates through drag and motor damping, so this bounds loss.
type EnergyDrift struct {
	model dynamo.Hamiltonian
	ref   float64
	seen  bool
	worst float64
}

func NewEnergyDrift(model dynamo.Hamiltonian) *EnergyDrift {
	return &EnergyDrift{model: model}
}

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	v, err := e.model.Energy(x)
	if err != nil {
		return
	}
	if !e.seen {
		e.ref, e.seen = v, true
	}

	d := math.Abs(v - e.ref)
	if e.ref != 0 {
		d /= math.Abs(e.ref)
	}
	e.worst = math.Max(e.worst, d)
}

func (e *EnergyDrift) Value() float64 { return e.worst }

func (e *EnergyDrift) Reset() {
	e.ref, e.seen, e.worst = 0, false, 0
}
