package viz

import (
	"strings"
	"testing"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

func TestDecimate(t *testing.T) {
	data := make([]float64, 101)
	for i := range data {
		data[i] = float64(i)
	}

	out := Decimate(data, 11)
	if len(out) != 11 {
		t.Fatalf("expected 11 samples, got %d", len(out))
	}
	if out[0] != 0 || out[5] != 50 || out[10] != 100 {
		t.Errorf("unexpected samples: %v", out)
	}

	short := []float64{1, 2}
	if got := Decimate(short, 10); len(got) != 2 {
		t.Errorf("short input should pass through, got %v", got)
	}
}

func TestSparkline(t *testing.T) {
	got := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	if got != "▁▂▃▄▅▆▇█" {
		t.Errorf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{3, 3, 3}, 3); got != "▁▁▁" {
		t.Errorf("flat signal should render lowest bar, got %q", got)
	}
	if got := Sparkline(nil, 4); got != "────" {
		t.Errorf("empty signal should render a rule, got %q", got)
	}
}

func TestSummary(t *testing.T) {
	res := &dynamo.Result{
		Metrics:   map[string]float64{"max_penetration": 1e-9, "contact_fraction": 1},
		Fallbacks: 2,
	}
	out := Summary("wheelsim", []Fact{{Label: "solver", Value: "moreau"}}, res)

	for _, want := range []string{"wheelsim", "solver", "moreau", "contact_fraction", "max_penetration", "2 contact fallbacks"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "contact_fraction") > strings.Index(out, "max_penetration") {
		t.Error("metrics should be sorted by name")
	}
}

func TestSummaryReportsError(t *testing.T) {
	res := &dynamo.Result{
		Metrics: map[string]float64{},
		Errors:  []error{&dynamo.SimulationError{Step: 4, Time: 0.004, Wrapped: dynamo.ErrInvalidState}},
	}
	out := Summary("run", nil, res)
	if !strings.Contains(out, "stopped early") {
		t.Errorf("expected error status:\n%s", out)
	}
}

func TestSummaryStatusLine(t *testing.T) {
	res := &dynamo.Result{Metrics: map[string]float64{}, Fallbacks: 3}
	if out := Summary("run", nil, res); !strings.Contains(out, "3 contact fallbacks") {
		t.Errorf("expected fallback status:\n%s", out)
	}
	res.Fallbacks = 0
	if out := Summary("run", nil, res); !strings.Contains(out, "ok") {
		t.Errorf("expected ok status:\n%s", out)
	}
}

func TestGraph(t *testing.T) {
	data := make([]float64, 500)
	for i := range data {
		data[i] = float64(i % 50)
	}
	out := Graph(data, "theta", 60, 5)
	if !strings.Contains(out, "theta") {
		t.Errorf("expected caption in graph:\n%s", out)
	}
	if Graph(nil, "x", 10, 3) == "" {
		t.Error("empty data should still render a placeholder")
	}
}
