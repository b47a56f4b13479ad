package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/san-kum/wheelsim/internal/analysis"
	"github.com/san-kum/wheelsim/internal/export"
	"github.com/san-kum/wheelsim/internal/physics"
	"github.com/san-kum/wheelsim/internal/storage"
	"github.com/san-kum/wheelsim/internal/viz"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := storage.New(dataDir).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tSOLVER\tCONTROL\tDURATION\tDT\tSTEPS\tFALLBACKS")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%gs\t%d\t%d\n",
					run.ID,
					run.Timestamp.Local().Format("2006-01-02 15:04:05"),
					run.Solver,
					run.Control,
					run.Duration,
					run.Dt,
					run.Steps,
					run.Fallbacks,
				)
			}
			return w.Flush()
		},
	}
}

func newPlotCmd() *cobra.Command {
	var cols []string

	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored columns in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := storage.New(dataDir).LoadTable(args[0])
			if err != nil {
				return err
			}
			if len(tbl.Rows) == 0 {
				return fmt.Errorf("no data to plot")
			}

			fmt.Printf("run: %s\nsamples: %d\n\n", args[0], len(tbl.Rows))
			for _, name := range cols {
				data := tbl.Column(name)
				if data == nil {
					return fmt.Errorf("unknown column: %s", name)
				}
				fmt.Println(viz.Graph(data, name, 80, 10))
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&cols, "cols", []string{"theta", "z", "x"}, "columns to plot")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		col  string
		band float64
	)

	cmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "spectrum and settling analysis of one column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			tbl, err := st.LoadTable(args[0])
			if err != nil {
				return err
			}
			data := tbl.Column(col)
			if data == nil {
				return fmt.Errorf("unknown column: %s", col)
			}
			times := tbl.Column("time")

			sp, err := analysis.PowerSpectrum(data, meta.Dt)
			if err != nil {
				return err
			}

			fmt.Printf("analysis: %s (%s)\n\n", meta.ID, col)
			quarter := max(len(sp.Amplitude)/4, 2)
			fmt.Println(viz.Graph(sp.Amplitude[:quarter], "amplitude spectrum ("+col+")", 80, 12))
			fmt.Println()

			freq, amp := sp.Dominant()
			fmt.Printf("dominant frequency: %.3f hz (amplitude %.4g)\n", freq, amp)
			if freq > 0 {
				fmt.Printf("period: %.3f s\n", 1.0/freq)
			}

			lo, hi := analysis.Range(data, len(data)*9/10)
			fmt.Printf("final value: %.6g (last 10%% spans %.3g)\n", data[len(data)-1], hi-lo)
			if ts, ok := analysis.SettlingTime(times, data, band); ok {
				fmt.Printf("settled within %g after %.3f s\n", band, ts)
			} else {
				fmt.Printf("not settled within %g\n", band)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&col, "col", "theta", "column to analyze")
	cmd.Flags().Float64Var(&band, "band", 1e-3, "settling band around the final value")
	return cmd
}

func newExportCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata (or the full run) as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			if !full {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(meta)
			}

			res, err := loadResult(st, args[0])
			if err != nil {
				return err
			}
			res.Metrics = meta.Metrics
			res.Fallbacks = meta.Fallbacks
			info := storage.RunInfo{Solver: meta.Solver, Control: meta.Control, Dt: meta.Dt, Duration: meta.Duration, Seed: meta.Seed}
			return storage.EncodeJSON(os.Stdout, info, res)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include samples")
	return cmd
}

func newExportCSVCmd() *cobra.Command {
	var (
		cols []string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export stored samples to CSV",
		Long:  "Export stored samples to CSV. Runs recorded with --kinematics also carry origin_* and center_* columns.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := storage.New(dataDir).LoadTable(args[0])
			if err != nil {
				return err
			}
			if len(tbl.Rows) == 0 {
				return fmt.Errorf("no data to export")
			}
			if tbl, err = tbl.Select(cols...); err != nil {
				return err
			}

			if out == "" {
				return storage.WriteTable(os.Stdout, tbl)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := storage.WriteTable(f, tbl); err != nil {
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringSliceVar(&cols, "cols", nil, "columns to keep (default all)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newExportPNGCmd() *cobra.Command {
	var (
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export-png [run_id]",
		Short: "render pitch, height and ground track plots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			states, times, err := st.LoadStates(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(dataDir, args[0], "plots")
			}

			files := map[string]func(string) error{
				"pitch": func(p string) error {
					return export.States(p, "pitch", times, states, physics.IdxTheta, physics.IdxThetaDot)
				},
				"height": func(p string) error {
					return export.States(p, "height", times, states, physics.IdxZ, physics.IdxZDot)
				},
				"yaw": func(p string) error {
					return export.States(p, "yaw", times, states, physics.IdxPhi, physics.IdxPhiDot)
				},
				"track": func(p string) error {
					return export.Track(p, states)
				},
			}
			for name, render := range files {
				path := filepath.Join(out, name+"."+format)
				if err := render(path); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Println(path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output directory (default <data>/<run_id>/plots)")
	cmd.Flags().StringVar(&format, "format", "png", "image format (png, svg, pdf)")
	return cmd
}
