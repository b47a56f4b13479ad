package optim

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/experiment"
)

// Objective scores one parameter set; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// GridSearch evaluates every combination of the candidate values.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%d parameter names for %d ranges", len(params), len(ranges))
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Search returns the best parameters and their score. Candidates whose
// objective fails are skipped; it is an error only if every one fails.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64

	if err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, &best, &bestParams); err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("no candidate could be evaluated")
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		val, err := objective(ctx, current)
		if err != nil || math.IsNaN(val) {
			return nil
		}
		if val < *best {
			*best = val
			*bestParams = maps.Clone(current)
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := maps.Clone(current)
		next[paramName] = val
		if err := g.searchRecursive(ctx, depth+1, next, objective, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

// GainObjective runs base with the candidate values written into the control
// gains and scores the named metric. With maximize set the metric is negated.
func GainObjective(base *config.Config, registry *experiment.Registry, metric string, maximize bool) Objective {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := *base
		cfg.Control.Gains = maps.Clone(base.Control.Gains)
		if cfg.Control.Gains == nil {
			cfg.Control.Gains = make(map[string]float64)
		}
		maps.Copy(cfg.Control.Gains, params)

		exp, err := experiment.New(&cfg, registry, nil)
		if err != nil {
			return 0, err
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return 0, err
		}
		val, ok := result.Metrics[metric]
		if !ok {
			return 0, fmt.Errorf("unknown metric: %s", metric)
		}
		if maximize {
			val = -val
		}
		return val, nil
	}
}
