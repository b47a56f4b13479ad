package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/experiment"
	"github.com/san-kum/wheelsim/internal/storage"
	"github.com/san-kum/wheelsim/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runFlags are shared by every command that builds a simulation.
type runFlags struct {
	configFile     string
	preset         string
	solver         string
	dt             float64
	duration       float64
	seed           int64
	init           []string
	control        string
	values         []float64
	kp, ki, kd     float64
	target         float64
	limit          float64
	positionUpdate string
	regularization float64
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "config file path (yaml)")
	fs.StringVar(&f.preset, "preset", "", "start from a named preset")
	fs.StringVar(&f.solver, "solver", "moreau", "solver (moreau, radau, residual, dopri)")
	fs.Float64Var(&f.dt, "dt", 0.001, "timestep")
	fs.Float64Var(&f.duration, "time", 10.0, "duration")
	fs.Int64Var(&f.seed, "seed", 42, "random seed")
	fs.StringSliceVar(&f.init, "init", nil, "initial coordinates, e.g. theta=0.3,phi_dot=1")
	fs.StringVar(&f.control, "control", "none", "control (none, constant, schedule, pid, feedback, latest)")
	fs.Float64SliceVar(&f.values, "u", nil, "constant wheel rates left,right")
	fs.Float64Var(&f.kp, "kp", 40, "pid kp")
	fs.Float64Var(&f.ki, "ki", 0, "pid ki")
	fs.Float64Var(&f.kd, "kd", 2, "pid kd")
	fs.Float64Var(&f.target, "target", 0, "pid pitch target")
	fs.Float64Var(&f.limit, "limit", 30, "pid wheel rate limit (0 = none)")
	fs.StringVar(&f.positionUpdate, "position-update", "extrapolated", "contact position update (extrapolated, semi-implicit, trapezoidal)")
	fs.Float64Var(&f.regularization, "reg", 1e-8, "contact regularization")
}

// resolve layers defaults, preset, config file and explicitly set flags, in
// that order.
func (f *runFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if f.preset != "" {
		cfg = config.GetPreset(f.preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", f.preset, config.ListPresets())
		}
	}

	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("solver") {
		cfg.Solver = f.solver
	}
	if changed("dt") {
		cfg.Dt = f.dt
	}
	if changed("time") {
		cfg.Duration = f.duration
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("position-update") {
		cfg.Contact.PositionUpdate = f.positionUpdate
	}
	if changed("reg") {
		cfg.Contact.Regularization = f.regularization
	}
	for _, kv := range f.init {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("bad --init entry %q, want name=value", kv)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("bad --init entry %q: %w", kv, err)
		}
		if err := cfg.InitState.Set(name, v); err != nil {
			return nil, err
		}
	}

	if changed("control") || changed("u") {
		cfg.Control = config.ControlConfig{Kind: f.control, Values: f.values}
		if !changed("control") {
			cfg.Control.Kind = "constant"
		}
	}
	if cfg.Control.Kind == "pid" {
		if cfg.Control.Gains == nil || changed("control") {
			cfg.Control.Gains = map[string]float64{}
		}
		gains := map[string]float64{"kp": f.kp, "ki": f.ki, "kd": f.kd, "target": f.target, "limit": f.limit}
		for name, v := range gains {
			if _, set := cfg.Control.Gains[name]; !set || changed(name) {
				cfg.Control.Gains[name] = v
			}
		}
	}

	return cfg, cfg.Validate()
}

func newRunCmd() *cobra.Command {
	var (
		flags      runFlags
		kinematics bool
		saveConfig string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if saveConfig != "" {
				if err := cfg.Save(saveConfig); err != nil {
					return err
				}
			}
			return runSimulation(cmd.Context(), cfg, flags.preset, kinematics)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&kinematics, "kinematics", false, "store origin and center columns")
	cmd.Flags().StringVar(&saveConfig, "save-config", "", "write the resolved config to this file")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, preset string, kinematics bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := experiment.New(cfg, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	logger.Info("run started",
		zap.String("solver", cfg.Solver),
		zap.String("control", cfg.Control.Kind),
		zap.Float64("dt", cfg.Dt),
		zap.Float64("duration", cfg.Duration),
	)
	start := time.Now()

	result, runErr := exp.Run(ctx)
	elapsed := time.Since(start)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("run stopped", zap.Error(runErr), zap.Int("steps_taken", result.StepsTaken))
		result.Errors = append(result.Errors, runErr)
	}

	var kin dynamo.Kinematics
	if kinematics {
		kin = exp.Model()
	}
	info := storage.RunInfo{
		Preset:   preset,
		Solver:   cfg.Solver,
		Control:  cfg.Control.Kind,
		Dt:       cfg.Dt,
		Duration: cfg.Duration,
		Seed:     cfg.Seed,
	}
	runID, err := st.Save(info, result, kin)
	if err != nil {
		return err
	}
	logger.Info("run stored", zap.String("run_id", runID), zap.Duration("elapsed", elapsed))

	facts := []viz.Fact{
		{Label: "run id", Value: runID},
		{Label: "solver", Value: cfg.Solver},
		{Label: "control", Value: cfg.Control.Kind},
		{Label: "steps", Value: strconv.Itoa(result.StepsTaken)},
		{Label: "elapsed", Value: elapsed.Round(time.Millisecond).String()},
	}
	fmt.Println(viz.Summary("wheelsim run", facts, result))
	return runErr
}
