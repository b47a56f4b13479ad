package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"go.uber.org/zap"
)

// Runner is the host loop around a solver. It queries the controller once per
// step, so the command may change between steps, and checks for cancellation
// between steps only.
type Runner struct {
	solver     dynamo.Solver
	controller dynamo.Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	log        *zap.Logger
}

func NewRunner(solver dynamo.Solver, controller dynamo.Controller, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		solver:     solver,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		log:        log,
	}
}

func (r *Runner) AddMetric(m dynamo.Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o dynamo.Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Solver() dynamo.Solver         { return r.solver }
func (r *Runner) Controller() dynamo.Controller { return r.controller }

func (r *Runner) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := dynamo.StepCount(dynamo.Span{Start: 0, End: cfg.Duration}, cfg.Dt)
	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range r.metrics {
		m.Reset()
	}

	reporter, hasReports := r.solver.(dynamo.Reporter)
	if hasReports {
		result.Reports = make([]dynamo.StepReport, 0, steps)
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	r.log.Debug("run started",
		zap.Int("steps", steps),
		zap.Float64("dt", dt),
		zap.Bool("contact_reports", hasReports),
	)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			r.finish(result)
			return result, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		u := r.controller.Compute(x, t)

		for _, m := range r.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range r.observers {
			obs.OnStep(x, u, t)
		}

		var next dynamo.State
		var err error
		if hasReports {
			var rep dynamo.StepReport
			next, rep, err = reporter.StepReport(dt, x, u)
			if err == nil {
				r.observeContact(rep, t, result)
			}
		} else {
			_, next, err = r.solver.Step(dt, x, u)
		}
		if err != nil {
			r.finish(result)
			return result, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}

		if cfg.ValidateState && !next.IsValid() {
			err := &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: dynamo.ErrInvalidState}
			result.Errors = append(result.Errors, err)
			r.log.Warn("state became invalid", zap.Int("step", i), zap.Float64("t", t))
			break
		}

		x = next
		t = float64(i+1) * dt
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	r.finish(result)
	r.log.Debug("run finished",
		zap.Int("steps_taken", result.StepsTaken),
		zap.Int("fallbacks", result.Fallbacks),
	)
	return result, nil
}

func (r *Runner) observeContact(rep dynamo.StepReport, t float64, result *dynamo.Result) {
	result.Reports = append(result.Reports, rep)
	if rep.Fallback {
		result.Fallbacks++
	}
	for _, m := range r.metrics {
		if cm, ok := m.(dynamo.ContactMetric); ok {
			cm.ObserveContact(rep, t)
		}
	}
}

func (r *Runner) finish(result *dynamo.Result) {
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

// RunWithCallback steps until the duration elapses or fn returns false.
func (r *Runner) RunWithCallback(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, fn func(dynamo.State, dynamo.Control, float64) bool) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	steps := dynamo.StepCount(dynamo.Span{Start: 0, End: cfg.Duration}, cfg.Dt)
	x := x0.Clone()
	t := 0.0

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		u := r.controller.Compute(x, t)
		if !fn(x, u, t) {
			return nil
		}

		_, next, err := r.solver.Step(cfg.Dt, x, u)
		if err != nil {
			return &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}
		x = next
		t = float64(i+1) * cfg.Dt

		if cfg.ValidateState && !x.IsValid() {
			return &dynamo.SimulationError{Step: i, Time: t, State: x, Wrapped: dynamo.ErrInvalidState}
		}
	}

	fn(x, r.controller.Compute(x, t), t)
	return nil
}

func validateConfig(cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrInvalidStep, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrInvalidStep, cfg.Duration)
	}
	return nil
}
