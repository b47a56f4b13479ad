package control

import (
	"fmt"
	"sort"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Segment switches the command to Control at time Start.
type Segment struct {
	Start   float64   `yaml:"start"`
	Control []float64 `yaml:"control"`
}

// Schedule is a piecewise-constant command. Before the first segment it
// returns zeros.
type Schedule struct {
	dim  int
	segs []Segment
}

func NewSchedule(dim int, segs []Segment) (*Schedule, error) {
	sorted := make([]Segment, len(segs))
	for i, s := range segs {
		if len(s.Control) != dim {
			return nil, fmt.Errorf("%w: segment %d has %d entries, want %d", dynamo.ErrDimensionMismatch, i, len(s.Control), dim)
		}
		sorted[i] = Segment{Start: s.Start, Control: append([]float64(nil), s.Control...)}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &Schedule{dim: dim, segs: sorted}, nil
}

func (s *Schedule) Compute(x dynamo.State, t float64) dynamo.Control {
	// first segment starting after t
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].Start > t })
	if i == 0 {
		return make(dynamo.Control, s.dim)
	}
	return dynamo.Control(s.segs[i-1].Control).Clone()
}
