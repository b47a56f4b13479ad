package control

import (
	"fmt"
	"sync"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Latest holds the most recent control sample published by an asynchronous
// producer such as a sensor poller. Reads never block on the producer for
// longer than a copy and stale samples are served as-is.
type Latest struct {
	mu    sync.RWMutex
	u     dynamo.Control
	stamp float64
	ok    bool
}

// NewLatest starts with a zero command until the first Publish.
func NewLatest(dim int) *Latest {
	return &Latest{
		u: make(dynamo.Control, dim),
	}
}

// Publish replaces the current sample.
func (l *Latest) Publish(u []float64, stamp float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(u) != len(l.u) {
		return fmt.Errorf("%w: sample has %d entries, want %d", dynamo.ErrDimensionMismatch, len(u), len(l.u))
	}
	copy(l.u, u)
	l.stamp = stamp
	l.ok = true
	return nil
}

// Snapshot returns a copy of the current sample, its stamp and whether any
// sample was published yet.
func (l *Latest) Snapshot() (dynamo.Control, float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.u.Clone(), l.stamp, l.ok
}

func (l *Latest) Compute(x dynamo.State, t float64) dynamo.Control {
	u, _, _ := l.Snapshot()
	return u
}
