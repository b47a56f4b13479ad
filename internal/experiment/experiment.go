package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/control"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/metrics"
	"github.com/san-kum/wheelsim/internal/physics"
	"github.com/san-kum/wheelsim/internal/sim"
	"go.uber.org/zap"
)

// Experiment is one configured balancer run: model, solver, command source
// and the default metric set wired into a runner.
type Experiment struct {
	cfg    *config.Config
	model  *physics.Balancer
	solver dynamo.Solver
	runner *sim.Runner
}

func New(cfg *config.Config, reg *Registry, log *zap.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	model := physics.NewBalancer(cfg.Params)
	solver, err := reg.GetSolver(cfg, model, log)
	if err != nil {
		return nil, err
	}
	ctrl, err := reg.GetController(cfg.Control, model.ControlDim())
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}

	runner := sim.NewRunner(solver, ctrl, log.Named("runner"))
	for _, m := range metrics.Defaults(model) {
		runner.AddMetric(m)
	}

	return &Experiment{
		cfg:    cfg,
		model:  model,
		solver: solver,
		runner: runner,
	}, nil
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	return e.runner.Run(ctx, e.cfg.GetInitState(), e.SimConfig())
}

func (e *Experiment) SimConfig() dynamo.Config {
	return dynamo.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		Seed:          e.cfg.Seed,
		ValidateState: true,
	}
}

// Runner returns the underlying runner for adding observers.
func (e *Experiment) Runner() *sim.Runner      { return e.runner }
func (e *Experiment) Model() *physics.Balancer { return e.model }
func (e *Experiment) Solver() dynamo.Solver    { return e.solver }

// Latest returns the command source an asynchronous producer publishes into,
// if the experiment was configured with the latest control kind.
func (e *Experiment) Latest() (*control.Latest, bool) {
	l, ok := e.runner.Controller().(*control.Latest)
	return l, ok
}

// Factory builds a fresh experiment runner per ensemble member, so stateful
// controllers and metrics are never shared.
func Factory(cfg *config.Config, reg *Registry, log *zap.Logger) sim.RunnerFactory {
	return func(member int) (*sim.Runner, error) {
		var l *zap.Logger
		if log != nil {
			l = log.With(zap.Int("member", member))
		}
		e, err := New(cfg, reg, l)
		if err != nil {
			return nil, err
		}
		return e.runner, nil
	}
}
