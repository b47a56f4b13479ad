package sim

import (
	"context"
	"runtime"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// RunnerFactory builds a fresh runner for one ensemble member. Metrics and
// controllers carry state, so members never share a runner.
type RunnerFactory func(member int) (*Runner, error)

// Ensemble runs independent simulations concurrently over a set of initial
// states.
type Ensemble struct {
	factory RunnerFactory
	workers int
}

func NewEnsemble(factory RunnerFactory, workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{factory: factory, workers: workers}
}

// Run returns one result per initial state, in input order. The first error
// cancels the remaining members.
func (e *Ensemble) Run(ctx context.Context, inits []dynamo.State, cfg dynamo.Config) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, len(inits))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range inits {
		idx := i
		g.Go(func() error {
			r, err := e.factory(idx)
			if err != nil {
				return err
			}
			memberCfg := cfg
			memberCfg.Seed = cfg.Seed + int64(idx)

			res, err := r.Run(ctx, inits[idx], memberCfg)
			results[idx] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Perturb returns n copies of x0 with component idx offset by
// (k - (n-1)/2) * spread, centered on x0.
func Perturb(x0 dynamo.State, idx, n int, spread float64) []dynamo.State {
	out := make([]dynamo.State, n)
	mid := float64(n-1) / 2
	for k := range out {
		x := x0.Clone()
		if idx >= 0 && idx < len(x) {
			x[idx] += (float64(k) - mid) * spread
		}
		out[k] = x
	}
	return out
}
