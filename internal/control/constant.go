package control

import "github.com/san-kum/wheelsim/internal/dynamo"

type Constant struct {
	u dynamo.Control
}

func NewConstant(u dynamo.Control) *Constant {
	return &Constant{
		u: u.Clone(),
	}
}

// NewNone is a zero command of the given width.
func NewNone(dim int) *Constant {
	return NewConstant(make(dynamo.Control, dim))
}

func (c *Constant) Compute(x dynamo.State, t float64) dynamo.Control {
	return c.u.Clone()
}
