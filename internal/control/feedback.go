package control

import (
	"fmt"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Feedback is linear state feedback u = -K (x - Target). Rows of K map to
// control entries; missing columns count as zero gain.
type Feedback struct {
	K      [][]float64
	Target dynamo.State
}

func NewFeedback(k [][]float64, target dynamo.State) (*Feedback, error) {
	for i, row := range k {
		if len(row) > len(target) && len(target) > 0 {
			return nil, fmt.Errorf("%w: gain row %d has %d columns, target has %d", dynamo.ErrDimensionMismatch, i, len(row), len(target))
		}
	}
	return &Feedback{K: k, Target: target.Clone()}, nil
}

func (f *Feedback) Compute(x dynamo.State, t float64) dynamo.Control {
	u := make(dynamo.Control, len(f.K))
	for i := range u {
		for j := range x {
			target := 0.0
			if j < len(f.Target) {
				target = f.Target[j]
			}
			if j < len(f.K[i]) {
				u[i] -= f.K[i][j] * (x[j] - target)
			}
		}
	}
	return u
}
