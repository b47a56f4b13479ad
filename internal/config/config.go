package config

import (
	"fmt"
	"os"

	"github.com/san-kum/wheelsim/internal/control"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/integrators"
	"github.com/san-kum/wheelsim/internal/physics"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Solver    string                     `yaml:"solver"`
	Dt        float64                    `yaml:"dt"`
	Duration  float64                    `yaml:"duration"`
	Seed      int64                      `yaml:"seed"`
	InitState InitState                  `yaml:"init_state"`
	Control   ControlConfig              `yaml:"control"`
	Params    physics.PhysicalParameters `yaml:"params"`
	Contact   ContactConfig              `yaml:"contact"`
	ODE       integrators.Tolerances     `yaml:"ode"`
	Log       LogConfig                  `yaml:"log"`
}

// InitState names the balancer coordinates so config files stay readable.
type InitState struct {
	X        float64 `yaml:"x"`
	XDot     float64 `yaml:"x_dot"`
	Y        float64 `yaml:"y"`
	YDot     float64 `yaml:"y_dot"`
	Z        float64 `yaml:"z"`
	ZDot     float64 `yaml:"z_dot"`
	Theta    float64 `yaml:"theta"`
	ThetaDot float64 `yaml:"theta_dot"`
	Phi      float64 `yaml:"phi"`
	PhiDot   float64 `yaml:"phi_dot"`
}

// ControlConfig selects the wheel-rate provider.
//
//	kind: none | constant | schedule | pid | feedback
type ControlConfig struct {
	Kind     string             `yaml:"kind"`
	Values   []float64          `yaml:"values,omitempty"`
	Segments []control.Segment  `yaml:"segments,omitempty"`
	Gains    map[string]float64 `yaml:"gains,omitempty"`
	K        [][]float64        `yaml:"k,omitempty"`
}

type ContactConfig struct {
	Regularization     float64 `yaml:"regularization"`
	RetryFactor        float64 `yaml:"retry_factor"`
	MassRegularization float64 `yaml:"mass_regularization"`
	PositionUpdate     string  `yaml:"position_update"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

func DefaultConfig() *Config {
	return &Config{
		Solver:   "moreau",
		Dt:       0.001,
		Duration: 10.0,
		Seed:     42,
		Control:  ControlConfig{Kind: "none"},
		Params:   physics.DefaultParameters(),
		Contact: ContactConfig{
			Regularization:     1e-8,
			RetryFactor:        1e4,
			MassRegularization: integrators.DefaultMassRegularization,
			PositionUpdate:     integrators.Extrapolated.String(),
		},
		ODE: integrators.DefaultTolerances(),
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file on top of the defaults, so a file only needs the
// fields it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything that can be checked without building a solver.
func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidStep, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrInvalidStep, c.Duration)
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if _, err := integrators.ParsePositionUpdate(c.Contact.PositionUpdate); err != nil {
		return err
	}
	if c.Contact.Regularization < 0 || c.Contact.RetryFactor < 1 {
		return fmt.Errorf("%w: regularization must be >= 0 and retry_factor >= 1", dynamo.ErrParameterBounds)
	}
	if c.ODE.ATol <= 0 || c.ODE.RTol <= 0 {
		return fmt.Errorf("%w: ode tolerances must be positive", dynamo.ErrParameterBounds)
	}
	if c.ODE.FirstStep <= 0 || c.ODE.MaxStep <= 0 || c.ODE.MaxSteps <= 0 {
		return fmt.Errorf("%w: ode first_step, max_step and max_steps must be positive", dynamo.ErrParameterBounds)
	}
	return nil
}

func (c *Config) GetInitState() dynamo.State {
	return c.InitState.State()
}

func (s InitState) State() dynamo.State {
	x := make(dynamo.State, 2*physics.DOF)
	x[physics.IdxX] = s.X
	x[physics.IdxXDot] = s.XDot
	x[physics.IdxY] = s.Y
	x[physics.IdxYDot] = s.YDot
	x[physics.IdxZ] = s.Z
	x[physics.IdxZDot] = s.ZDot
	x[physics.IdxTheta] = s.Theta
	x[physics.IdxThetaDot] = s.ThetaDot
	x[physics.IdxPhi] = s.Phi
	x[physics.IdxPhiDot] = s.PhiDot
	return x
}

// Set assigns a coordinate by its yaml name, for CLI overrides like
// --init theta=0.1.
func (s *InitState) Set(name string, v float64) error {
	fields := map[string]*float64{
		"x": &s.X, "x_dot": &s.XDot,
		"y": &s.Y, "y_dot": &s.YDot,
		"z": &s.Z, "z_dot": &s.ZDot,
		"theta": &s.Theta, "theta_dot": &s.ThetaDot,
		"phi": &s.Phi, "phi_dot": &s.PhiDot,
	}
	p, ok := fields[name]
	if !ok {
		return fmt.Errorf("unknown state coordinate: %s", name)
	}
	*p = v
	return nil
}
