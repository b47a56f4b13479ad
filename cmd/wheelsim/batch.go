package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/wheelsim/internal/automation"
	"github.com/san-kum/wheelsim/internal/experiment"
	"github.com/san-kum/wheelsim/internal/optim"
	"github.com/san-kum/wheelsim/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScenarioCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := automation.LoadScenario(args[0])
			if err != nil {
				return err
			}

			results, err := automation.RunScenario(cmd.Context(), sc, experiment.NewRegistry(), logger)
			if err != nil && len(results) == 0 {
				return err
			}

			st := storage.New(dataDir)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tSOLVER\tSTEPS\tFALLBACKS\tPENETRATION\tRUN ID")
			for _, r := range results {
				runID := "-"
				if save {
					info := storage.RunInfo{Preset: r.Name, Solver: r.Config.Solver, Control: r.Config.Control.Kind, Dt: r.Config.Dt, Duration: r.Config.Duration, Seed: r.Config.Seed}
					if runID, err = st.Save(info, r.Result, nil); err != nil {
						return err
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.3g\t%s\n",
					r.Name, r.Config.Solver, r.Result.StepsTaken, r.Result.Fallbacks,
					r.Result.Metrics["max_penetration"], runID)
			}
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store every step as a run")
	return cmd
}

func newMonteCarloCmd() *cobra.Command {
	var (
		flags        runFlags
		components   []string
		perturbation float64
		trials       int
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "seeded random perturbations of the initial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			idx := make([]int, 0, len(components))
			for _, name := range components {
				i := stateIndex(name)
				if i < 0 {
					return fmt.Errorf("unknown state coordinate: %s", name)
				}
				idx = append(idx, i)
			}

			results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
				Base:         cfg,
				Components:   idx,
				Perturbation: perturbation,
				NumTrials:    trials,
				Workers:      workers,
			}, experiment.NewRegistry(), logger)
			if err != nil {
				return err
			}

			upright, fallen := automation.MonteCarloStats(results)
			logger.Info("monte carlo finished", zap.Int("upright", upright), zap.Int("fallen", fallen))
			fmt.Printf("trials: %d  upright: %d  fallen: %d (|theta| >= %.2f)\n", len(results), upright, fallen, automation.UprightLimit)
			mean, std := automation.FinalPitch(results)
			fmt.Printf("final theta: mean %.4g  std %.4g\n", mean, std)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&components, "components", []string{"theta", "theta_dot"}, "coordinates to perturb")
	cmd.Flags().Float64Var(&perturbation, "eps", 0.01, "half-width of the uniform perturbation")
	cmd.Flags().IntVar(&trials, "trials", 32, "number of trials")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}

func newTuneCmd() *cobra.Command {
	var (
		flags    runFlags
		grid     []string
		metric   string
		maximize bool
	)

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over pid gains",
		Long:  "Grid search over pid gains, e.g. --grid kp=10:20:40 --grid kd=0:1:2",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if cfg.Control.Kind != "pid" {
				return fmt.Errorf("tune needs --control pid or a pid preset, got %s", cfg.Control.Kind)
			}

			names, ranges, err := parseGrid(grid)
			if err != nil {
				return err
			}
			gs, err := optim.NewGridSearch(names, ranges)
			if err != nil {
				return err
			}

			best, score, err := gs.Search(cmd.Context(), optim.GainObjective(cfg, experiment.NewRegistry(), metric, maximize))
			if err != nil {
				return err
			}
			if maximize {
				score = -score
			}

			keys := make([]string, 0, len(best))
			for k := range best {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s = %g\n", k, best[k])
			}
			fmt.Printf("%s = %.6g\n", metric, score)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&grid, "grid", nil, "gain candidates name=v1:v2:...")
	cmd.Flags().StringVar(&metric, "metric", "upright_fraction", "metric to optimize")
	cmd.Flags().BoolVar(&maximize, "maximize", true, "maximize instead of minimize")
	return cmd
}

func parseGrid(args []string) ([]string, [][]float64, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("at least one --grid is required")
	}
	names := make([]string, 0, len(args))
	ranges := make([][]float64, 0, len(args))
	for _, arg := range args {
		name, list, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("bad --grid %q, want name=v1:v2", arg)
		}
		var vals []float64
		for _, raw := range strings.Split(list, ":") {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad --grid %q: %w", arg, err)
			}
			vals = append(vals, v)
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	return names, ranges, nil
}
