package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/wheelsim/internal/analysis"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	width  = 8 * vg.Inch
	height = 5 * vg.Inch
)

// Series is one named curve.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// LinePlot draws every series on shared axes with a legend.
func LinePlot(title, xlabel, ylabel string, series ...Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for i, s := range series {
		if len(s.X) != len(s.Y) || len(s.X) == 0 {
			return nil, fmt.Errorf("series %q: %d x values, %d y values", s.Name, len(s.X), len(s.Y))
		}
		pts := make(plotter.XYs, len(s.X))
		for k := range s.X {
			pts[k].X = s.X[k]
			pts[k].Y = s.Y[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
	}
	return p, nil
}

// Save writes the plot; the format follows the file extension (.png, .svg, .pdf).
func Save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return p.Save(width, height, path)
}

// States plots the selected state components against time.
func States(path, title string, times []float64, states []dynamo.State, idx ...int) error {
	if len(states) == 0 {
		return fmt.Errorf("no samples to plot")
	}
	series := make([]Series, 0, len(idx))
	for _, j := range idx {
		if j < 0 || j >= len(states[0]) {
			return fmt.Errorf("%w: component %d of %d", dynamo.ErrDimensionMismatch, j, len(states[0]))
		}
		ys := make([]float64, len(states))
		for i, x := range states {
			ys[i] = x[j]
		}
		series = append(series, Series{Name: componentName(j, len(states[0])), X: times, Y: ys})
	}

	p, err := LinePlot(title, "time (s)", "value", series...)
	if err != nil {
		return err
	}
	return Save(p, path)
}

// Track plots the ground path of the wheel axle, y against x.
func Track(path string, states []dynamo.State) error {
	xs := make([]float64, len(states))
	ys := make([]float64, len(states))
	for i, x := range states {
		if len(x) <= physics.IdxY {
			return fmt.Errorf("%w: state has %d entries", dynamo.ErrDimensionMismatch, len(x))
		}
		xs[i] = x[physics.IdxX]
		ys[i] = x[physics.IdxY]
	}

	p, err := LinePlot("ground track", "x (m)", "y (m)", Series{Name: "axle", X: xs, Y: ys})
	if err != nil {
		return err
	}
	return Save(p, path)
}

func Spectrum(path, title string, s *analysis.Spectrum) error {
	p, err := LinePlot(title, "frequency (Hz)", "amplitude", Series{X: s.Freqs, Y: s.Amplitude})
	if err != nil {
		return err
	}
	return Save(p, path)
}

func componentName(j, dim int) string {
	if dim == len(physics.StateNames) {
		return physics.StateNames[j]
	}
	return fmt.Sprintf("x%d", j)
}
