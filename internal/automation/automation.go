package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/experiment"
	"github.com/san-kum/wheelsim/internal/physics"
	"github.com/san-kum/wheelsim/internal/sim"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset (or the defaults) and applies the config
// block on top, so a step only lists what it changes:
//
//	steps:
//	  - name: stiff
//	    preset: fall
//	    config:
//	      solver: radau
//	      duration: 2
type ScenarioStep struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
}

type StepResult struct {
	Name   string
	Config *config.Config
	Result *dynamo.Result
	Model  *physics.Balancer
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Resolve builds the step's validated config.
func (s *ScenarioStep) Resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		if cfg = config.GetPreset(s.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	}
	if s.Config.Kind != 0 {
		if err := s.Config.Decode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// RunScenario executes the steps in order and stops at the first failure,
// returning the results gathered so far.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, log *zap.Logger) ([]StepResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}

		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}

		log.Info("scenario step",
			zap.String("scenario", scenario.Name),
			zap.String("step", name),
			zap.Int("index", i+1),
			zap.Int("of", len(scenario.Steps)),
		)

		exp, err := experiment.New(cfg, registry, log.Named(name))
		if err != nil {
			return results, fmt.Errorf("step %d (%s) setup: %w", i+1, name, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d (%s) run: %w", i+1, name, err)
		}

		results = append(results, StepResult{Name: name, Config: cfg, Result: result, Model: exp.Model()})
	}

	return results, nil
}

// MonteCarloConfig perturbs the listed state components of Base's initial
// state uniformly in [-Perturbation, Perturbation]. Base.Seed fixes the draws.
type MonteCarloConfig struct {
	Base         *config.Config
	Components   []int
	Perturbation float64
	NumTrials    int
	Workers      int
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
	Upright    bool
	Fallbacks  int
}

// UprightLimit is the pitch beyond which a trial counts as fallen.
const UprightLimit = 0.5

func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry, log *zap.Logger) ([]MonteCarloResult, error) {
	if cfg.NumTrials <= 0 {
		return nil, fmt.Errorf("need at least one trial, got %d", cfg.NumTrials)
	}
	base := cfg.Base.GetInitState()
	for _, idx := range cfg.Components {
		if idx < 0 || idx >= len(base) {
			return nil, fmt.Errorf("%w: component %d of %d", dynamo.ErrDimensionMismatch, idx, len(base))
		}
	}

	rng := rand.New(rand.NewSource(cfg.Base.Seed))
	inits := make([]dynamo.State, cfg.NumTrials)
	for trial := range inits {
		x := base.Clone()
		for _, idx := range cfg.Components {
			x[idx] += (rng.Float64() - 0.5) * 2 * cfg.Perturbation
		}
		inits[trial] = x
	}

	ens := sim.NewEnsemble(experiment.Factory(cfg.Base, registry, log), cfg.Workers)
	simCfg := dynamo.Config{Dt: cfg.Base.Dt, Duration: cfg.Base.Duration, Seed: cfg.Base.Seed, ValidateState: true}
	runs, err := ens.Run(ctx, inits, simCfg)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(runs))
	for trial, res := range runs {
		final := res.States[len(res.States)-1]
		results[trial] = MonteCarloResult{
			TrialID:    trial,
			InitState:  inits[trial],
			FinalState: final,
			Upright:    len(res.Errors) == 0 && math.Abs(final[physics.IdxTheta]) < UprightLimit,
			Fallbacks:  res.Fallbacks,
		}
	}
	return results, nil
}

func MonteCarloStats(results []MonteCarloResult) (upright int, fallen int) {
	for _, r := range results {
		if r.Upright {
			upright++
		} else {
			fallen++
		}
	}
	return
}

// FinalPitch returns the mean and sample standard deviation of the final pitch
// over all trials.
func FinalPitch(results []MonteCarloResult) (mean, std float64) {
	if len(results) == 0 {
		return 0, 0
	}
	pitch := make([]float64, len(results))
	for i, r := range results {
		pitch[i] = r.FinalState[physics.IdxTheta]
	}
	if len(pitch) == 1 {
		return pitch[0], 0
	}
	return stat.MeanStdDev(pitch, nil)
}
