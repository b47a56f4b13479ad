package metrics

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// ControlEffort is the RMS wheel-rate command, taken over every entry of every
// observed command.
type ControlEffort struct {
	sumSq float64
	n     int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, w := range u {
		c.sumSq += w * w
	}
	c.n += len(u)
}

func (c *ControlEffort) Value() float64 {
	if c.n == 0 {
		return 0
	}
	return math.Sqrt(c.sumSq / float64(c.n))
}

func (c *ControlEffort) Reset() { *c = ControlEffort{} }

// PeakRate is the largest commanded wheel rate magnitude.
type PeakRate struct {
	peak float64
}

func NewPeakRate() *PeakRate { return &PeakRate{} }

func (p *PeakRate) Name() string { return "peak_wheel_rate" }

func (p *PeakRate) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, w := range u {
		p.peak = math.Max(p.peak, math.Abs(w))
	}
}

func (p *PeakRate) Value() float64 { return p.peak }
func (p *PeakRate) Reset()         { p.peak = 0 }
