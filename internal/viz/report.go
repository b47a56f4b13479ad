package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Fact is one labelled line in a summary panel.
type Fact struct {
	Label string
	Value string
}

// Summary renders a titled panel: the facts in order, then the metrics sorted
// by name, then a status line.
func Summary(title string, facts []Fact, result *dynamo.Result) string {
	var b strings.Builder
	b.WriteString(Title.Render(title))
	b.WriteString("\n\n")

	width := 0
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
		width = max(width, len(name))
	}
	for _, f := range facts {
		width = max(width, len(f.Label))
	}
	sort.Strings(names)

	for _, f := range facts {
		b.WriteString(line(f.Label, f.Value, width))
	}
	if len(names) > 0 {
		b.WriteString("\n")
	}
	for _, name := range names {
		b.WriteString(line(name, fmt.Sprintf("%.6g", result.Metrics[name]), width))
	}

	b.WriteString("\n")
	b.WriteString(statusLine(result))
	return Panel.Render(b.String())
}

func line(label, value string, width int) string {
	return MetricLabel.Render(fmt.Sprintf("%-*s", width, label)) + "  " + MetricValue.Render(value) + "\n"
}

func statusLine(result *dynamo.Result) string {
	switch {
	case len(result.Errors) > 0:
		return StatusFail.Render(fmt.Sprintf("stopped early: %v", result.Errors[0]))
	case result.Fallbacks > 0:
		return StatusWarn.Render(fmt.Sprintf("%d contact fallbacks", result.Fallbacks))
	default:
		return StatusOK.Render("ok")
	}
}

// Graph plots data as a terminal line chart. Long signals are decimated to
// the chart width.
func Graph(data []float64, caption string, width, height int) string {
	if len(data) == 0 {
		return Subtle.Render("(no data)")
	}
	return asciigraph.Plot(Decimate(data, width),
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// Decimate keeps at most n evenly spaced samples, always including the last.
func Decimate(data []float64, n int) []float64 {
	if n <= 1 || len(data) <= n {
		return data
	}
	out := make([]float64, n)
	stride := float64(len(data)-1) / float64(n-1)
	for i := range out {
		out[i] = data[int(math.Round(float64(i)*stride))]
	}
	return out
}

// Sparkline renders values as a one-line trend of block characters.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	values = Decimate(values, width)

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(len(chars)-1)))
		}
		b.WriteRune(chars[idx])
	}
	return b.String()
}
