package metrics

import (
	"math"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
)

// Upright is the fraction of samples with |pitch| below the threshold.
type Upright struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewUpright(threshold float64) *Upright {
	return &Upright{
		name:      "upright_fraction",
		threshold: threshold,
	}
}

func (s *Upright) Name() string {
	return s.name
}

func (s *Upright) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) <= physics.IdxTheta {
		return
	}
	s.samples++
	if math.Abs(x[physics.IdxTheta]) > s.threshold {
		s.violations++
	}
}

func (s *Upright) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Upright) Reset() {
	s.violations = 0
	s.samples = 0
}
