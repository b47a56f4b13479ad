package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/control"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/integrators"
	"go.uber.org/zap"
)

type SolverFactory func(cfg *config.Config, model dynamo.Model, log *zap.Logger) (dynamo.Solver, error)

type ControlFactory func(cc config.ControlConfig, dim int) (dynamo.Controller, error)

type Registry struct {
	solvers  map[string]SolverFactory
	controls map[string]ControlFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		solvers:  make(map[string]SolverFactory),
		controls: make(map[string]ControlFactory),
	}

	r.solvers["moreau"] = func(cfg *config.Config, model dynamo.Model, log *zap.Logger) (dynamo.Solver, error) {
		rule, err := integrators.ParsePositionUpdate(cfg.Contact.PositionUpdate)
		if err != nil {
			return nil, err
		}
		return integrators.NewMoreauJean(model,
			integrators.WithRegularization(cfg.Contact.Regularization),
			integrators.WithRetryFactor(cfg.Contact.RetryFactor),
			integrators.WithMassRegularization(cfg.Contact.MassRegularization),
			integrators.WithPositionUpdate(rule),
			integrators.WithLogger(log.Named("moreau")),
		), nil
	}
	r.solvers["radau"] = func(cfg *config.Config, model dynamo.Model, _ *zap.Logger) (dynamo.Solver, error) {
		s := integrators.NewRadau()
		s.Tol = cfg.ODE
		s.MassRegularization = cfg.Contact.MassRegularization
		return integrators.NewODE(model, s), nil
	}
	r.solvers["dopri"] = func(cfg *config.Config, model dynamo.Model, _ *zap.Logger) (dynamo.Solver, error) {
		s := integrators.NewDopri()
		s.Tol = cfg.ODE
		s.MassRegularization = cfg.Contact.MassRegularization
		return integrators.NewODE(model, s), nil
	}
	// residual keeps its own looser atol/rtol; only the step limits carry over
	r.solvers["residual"] = func(cfg *config.Config, model dynamo.Model, _ *zap.Logger) (dynamo.Solver, error) {
		s := integrators.NewResidual()
		s.Tol.FirstStep = cfg.ODE.FirstStep
		s.Tol.MaxStep = cfg.ODE.MaxStep
		s.Tol.MaxSteps = cfg.ODE.MaxSteps
		return integrators.NewODE(model, s), nil
	}

	r.controls["none"] = func(_ config.ControlConfig, dim int) (dynamo.Controller, error) {
		return control.NewNone(dim), nil
	}
	r.controls["constant"] = func(cc config.ControlConfig, dim int) (dynamo.Controller, error) {
		if len(cc.Values) != dim {
			return nil, fmt.Errorf("%w: constant control has %d values, want %d", dynamo.ErrDimensionMismatch, len(cc.Values), dim)
		}
		return control.NewConstant(cc.Values), nil
	}
	r.controls["schedule"] = func(cc config.ControlConfig, dim int) (dynamo.Controller, error) {
		return control.NewSchedule(dim, cc.Segments)
	}
	r.controls["pid"] = func(cc config.ControlConfig, _ int) (dynamo.Controller, error) {
		p := control.NewPitchPID(cc.Gains["kp"], cc.Gains["ki"], cc.Gains["kd"], cc.Gains["target"])
		p.Limit = cc.Gains["limit"]
		return p, nil
	}
	// latest starts from Values (zero when empty) until a producer publishes.
	r.controls["latest"] = func(cc config.ControlConfig, dim int) (dynamo.Controller, error) {
		l := control.NewLatest(dim)
		if len(cc.Values) > 0 {
			if err := l.Publish(cc.Values, 0); err != nil {
				return nil, err
			}
		}
		return l, nil
	}
	r.controls["feedback"] = func(cc config.ControlConfig, dim int) (dynamo.Controller, error) {
		if len(cc.K) != dim {
			return nil, fmt.Errorf("%w: feedback gain has %d rows, want %d", dynamo.ErrDimensionMismatch, len(cc.K), dim)
		}
		return control.NewFeedback(cc.K, nil)
	}

	return r
}

func (r *Registry) GetSolver(cfg *config.Config, model dynamo.Model, log *zap.Logger) (dynamo.Solver, error) {
	fn, ok := r.solvers[cfg.Solver]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", cfg.Solver)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return fn(cfg, model, log)
}

func (r *Registry) GetController(cc config.ControlConfig, dim int) (dynamo.Controller, error) {
	kind := cc.Kind
	if kind == "" {
		kind = "none"
	}
	fn, ok := r.controls[kind]
	if !ok {
		return nil, fmt.Errorf("unknown control: %s", kind)
	}
	return fn(cc, dim)
}

func (r *Registry) ListSolvers() []string {
	return sortedKeys(r.solvers)
}

func (r *Registry) ListControls() []string {
	return sortedKeys(r.controls)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
