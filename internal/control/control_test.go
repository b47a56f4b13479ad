package control

import (
	"errors"
	"sync"
	"testing"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
)

func TestNone(t *testing.T) {
	ctrl := NewNone(2)
	u := ctrl.Compute(make(dynamo.State, 10), 0.0)

	if len(u) != 2 {
		t.Errorf("expected 2 controls, got %d", len(u))
	}
	for i, v := range u {
		if v != 0 {
			t.Errorf("control[%d] should be 0, got %f", i, v)
		}
	}
}

func TestConstantReturnsCopies(t *testing.T) {
	src := dynamo.Control{1, 2}
	ctrl := NewConstant(src)
	src[0] = 99

	u := ctrl.Compute(nil, 0)
	if u[0] != 1 || u[1] != 2 {
		t.Fatalf("unexpected control %v", u)
	}
	u[1] = 42
	if again := ctrl.Compute(nil, 1); again[1] != 2 {
		t.Error("caller mutation leaked into the provider")
	}
}

func TestSchedule(t *testing.T) {
	s, err := NewSchedule(2, []Segment{
		{Start: 2, Control: []float64{-1, 1}},
		{Start: 0.5, Control: []float64{1, 1}},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	tests := []struct {
		t    float64
		want dynamo.Control
	}{
		{0, dynamo.Control{0, 0}},
		{0.5, dynamo.Control{1, 1}},
		{1.9, dynamo.Control{1, 1}},
		{2, dynamo.Control{-1, 1}},
		{100, dynamo.Control{-1, 1}},
	}
	for _, tt := range tests {
		got := s.Compute(nil, tt.t)
		if got[0] != tt.want[0] || got[1] != tt.want[1] {
			t.Errorf("t=%g: got %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestScheduleRejectsWrongWidth(t *testing.T) {
	_, err := NewSchedule(2, []Segment{{Start: 0, Control: []float64{1}}})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestLatest(t *testing.T) {
	l := NewLatest(2)

	if _, _, ok := l.Snapshot(); ok {
		t.Error("fresh provider should report no sample")
	}
	if u := l.Compute(nil, 0); u[0] != 0 || u[1] != 0 {
		t.Errorf("absent sample should read as zero, got %v", u)
	}

	if err := l.Publish([]float64{0.3, -0.3}, 1.5); err != nil {
		t.Fatalf("publish: %v", err)
	}
	u, stamp, ok := l.Snapshot()
	if !ok || stamp != 1.5 || u[0] != 0.3 || u[1] != -0.3 {
		t.Errorf("snapshot = %v %g %v", u, stamp, ok)
	}

	if err := l.Publish([]float64{1}, 2); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestLatestConcurrentPublish(t *testing.T) {
	l := NewLatest(2)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := float64(w*1000 + i)
				_ = l.Publish([]float64{v, v}, v)
			}
		}(w)
	}
	for i := 0; i < 1000; i++ {
		u := l.Compute(nil, 0)
		if u[0] != u[1] {
			t.Fatalf("torn read: %v", u)
		}
	}
	wg.Wait()
}

func TestPitchPID(t *testing.T) {
	ctrl := NewPitchPID(10.0, 0.1, 5.0, 0.0)
	x := make(dynamo.State, 10)
	x[physics.IdxTheta] = 0.2

	u := ctrl.Compute(x, 0.0)
	if len(u) != 2 {
		t.Fatalf("expected 2 controls, got %d", len(u))
	}
	if u[0] != u[1] {
		t.Errorf("wheels should receive the same rate, got %v", u)
	}
	if u[0] >= 0 {
		t.Error("PID should output negative control for positive pitch")
	}

	ctrl.Limit = 0.5
	if u := ctrl.Compute(x, 0.1); u[0] < -0.5 {
		t.Errorf("output not limited: %v", u)
	}

	ctrl.Reset()
	if ctrl.integral != 0 || !ctrl.first {
		t.Error("reset should clear the integrator")
	}
}

func TestFeedback(t *testing.T) {
	k := [][]float64{{1.0, 2.0}, {0, 0, 3}}
	target := dynamo.State{0.0, 0.0, 1.0}
	ctrl, err := NewFeedback(k, target)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}

	u := ctrl.Compute(dynamo.State{0.0, 0.0, 1.0}, 0.0)
	if u[0] != 0 || u[1] != 0 {
		t.Errorf("expected zero control at target, got %v", u)
	}

	u = ctrl.Compute(dynamo.State{1.0, 0.5, 2.0}, 0.0)
	if u[0] != -2 || u[1] != -3 {
		t.Errorf("unexpected control %v", u)
	}

	if _, err := NewFeedback([][]float64{{1, 2, 3}}, dynamo.State{0}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
