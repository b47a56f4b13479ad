package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/san-kum/wheelsim/internal/analysis"
	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/experiment"
	"github.com/san-kum/wheelsim/internal/physics"
	"github.com/san-kum/wheelsim/internal/sim"
	"github.com/san-kum/wheelsim/internal/storage"
	"github.com/san-kum/wheelsim/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list named presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range config.ListPresets() {
				fmt.Fprintf(w, "%s\t%s\n", name, config.Describe(name))
			}
			return w.Flush()
		},
	}
}

func newBenchCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "time every solver on a preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := experiment.NewRegistry()
			durations := []float64{0.1, 1.0}

			fmt.Printf("benchmarking preset %s\n\n", preset)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOLVER\tDURATION\tSTEPS\tTIME\tSTEPS/SEC\tFINAL Z")

			for _, solver := range reg.ListSolvers() {
				for _, dur := range durations {
					cfg := config.GetPreset(preset)
					if cfg == nil {
						return fmt.Errorf("unknown preset: %s", preset)
					}
					cfg.Solver = solver
					cfg.Duration = dur

					exp, err := experiment.New(cfg, reg, logger)
					if err != nil {
						return err
					}
					start := time.Now()
					res, err := exp.Run(context.Background())
					elapsed := time.Since(start)
					if res == nil {
						return err
					}
					if err != nil {
						logger.Warn("bench run failed", zap.String("solver", solver), zap.Error(err))
						fmt.Fprintf(w, "%s\t%.1fs\t%d\t%v\t-\tfailed\n", solver, dur, res.StepsTaken, elapsed)
						continue
					}

					last := res.States[len(res.States)-1]
					fmt.Fprintf(w, "%s\t%.1fs\t%d\t%v\t%.0f\t%.3g\n",
						solver, dur, res.StepsTaken, elapsed.Round(time.Microsecond),
						float64(res.StepsTaken)/elapsed.Seconds(), last[physics.IdxZ])
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "idle", "preset to benchmark")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var (
		flags     runFlags
		component string
		members   int
		spread    float64
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "run an ensemble over perturbations of one initial coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			idx := stateIndex(component)
			if idx < 0 {
				return fmt.Errorf("unknown state coordinate: %s", component)
			}

			inits := sim.Perturb(cfg.GetInitState(), idx, members, spread)
			ens := sim.NewEnsemble(experiment.Factory(cfg, experiment.NewRegistry(), logger), workers)
			simCfg := dynamo.Config{Dt: cfg.Dt, Duration: cfg.Duration, Seed: cfg.Seed, ValidateState: true}

			start := time.Now()
			results, err := ens.Run(cmd.Context(), inits, simCfg)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", zap.Int("members", members), zap.Duration("elapsed", time.Since(start)))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s(0)\tFINAL THETA\tFINAL X\tUPRIGHT\tFALLBACKS\tTHETA\n", component)
			for k, res := range results {
				theta := make([]float64, len(res.States))
				for i, x := range res.States {
					theta[i] = x[physics.IdxTheta]
				}
				last := res.States[len(res.States)-1]
				fmt.Fprintf(w, "%.4g\t%.4f\t%.4f\t%.2f\t%d\t%s\n",
					inits[k][idx], last[physics.IdxTheta], last[physics.IdxX],
					res.Metrics["upright_fraction"], res.Fallbacks, viz.Sparkline(theta, 24))
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&component, "component", "theta", "initial coordinate to perturb")
	cmd.Flags().IntVar(&members, "n", 8, "ensemble size")
	cmd.Flags().Float64Var(&spread, "spread", 0.01, "offset between neighbouring members")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}

func newGrowthCmd() *cobra.Command {
	var (
		flags        runFlags
		component    string
		perturbation float64
	)

	cmd := &cobra.Command{
		Use:   "growth",
		Short: "estimate how fast a perturbation grows from the initial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			idx := stateIndex(component)
			if idx < 0 {
				return fmt.Errorf("unknown state coordinate: %s", component)
			}

			exp, err := experiment.New(cfg, experiment.NewRegistry(), logger)
			if err != nil {
				return err
			}
			u := exp.Runner().Controller().Compute(cfg.GetInitState(), 0)
			rate, err := analysis.GrowthRate(exp.Solver(), cfg.GetInitState(), u, idx, perturbation, cfg.Dt, cfg.Duration)
			if err != nil {
				return err
			}

			fmt.Printf("growth rate of %s: %.4f /s\n", component, rate)
			if rate > 0 {
				fmt.Printf("e-folding time: %.4f s\n", 1/rate)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&component, "component", "theta", "coordinate to perturb")
	cmd.Flags().Float64Var(&perturbation, "eps", 1e-7, "perturbation size")
	return cmd
}

func stateIndex(name string) int {
	for i, n := range physics.StateNames {
		if n == name {
			return i
		}
	}
	return -1
}

// loadResult rebuilds samples and commands from a stored run.
func loadResult(st *storage.Store, runID string) (*dynamo.Result, error) {
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return nil, err
	}
	tbl, err := st.LoadTable(runID)
	if err != nil {
		return nil, err
	}

	res := &dynamo.Result{States: states, Times: times, StepsTaken: max(len(states)-1, 0)}
	u0, u1 := tbl.Column("u0"), tbl.Column("u1")
	if u0 != nil && u1 != nil {
		for i := 0; i < res.StepsTaken; i++ {
			res.Controls = append(res.Controls, dynamo.Control{u0[i], u1[i]})
		}
	}
	return res, nil
}
