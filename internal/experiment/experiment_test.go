package experiment

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/wheelsim/internal/config"
	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/integrators"
	"github.com/san-kum/wheelsim/internal/physics"
	"github.com/san-kum/wheelsim/internal/sim"
)

func TestRegistryLists(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	g.Expect(r.ListSolvers()).To(Equal([]string{"dopri", "moreau", "radau", "residual"}))
	g.Expect(r.ListControls()).To(Equal([]string{"constant", "feedback", "latest", "none", "pid", "schedule"}))
}

func TestRegistryBuildsEverySolver(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	model := physics.NewBalancer(physics.DefaultParameters())

	for _, name := range r.ListSolvers() {
		cfg := config.DefaultConfig()
		cfg.Solver = name
		s, err := r.GetSolver(cfg, model, nil)
		g.Expect(err).NotTo(HaveOccurred(), name)
		g.Expect(s.DOF()).To(Equal(physics.DOF))

		if name == "moreau" {
			g.Expect(s).To(BeAssignableToTypeOf(&integrators.MoreauJean{}))
		} else {
			ode, ok := s.(*integrators.ODE)
			g.Expect(ok).To(BeTrue(), name)
			g.Expect(ode.Strategy().Name()).To(Equal(name))
		}
	}
}

func TestRegistryUnknownNames(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	cfg := config.DefaultConfig()
	cfg.Solver = "euler"
	_, err := r.GetSolver(cfg, physics.NewBalancer(physics.DefaultParameters()), nil)
	g.Expect(err).To(MatchError(ContainSubstring("unknown solver")))

	_, err = r.GetController(config.ControlConfig{Kind: "lqr"}, 2)
	g.Expect(err).To(MatchError(ContainSubstring("unknown control")))
}

func TestRegistryControls(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	x := make(dynamo.State, 10)

	c, err := r.GetController(config.ControlConfig{}, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Compute(x, 0)).To(Equal(dynamo.Control{0, 0}))

	c, err = r.GetController(config.ControlConfig{Kind: "constant", Values: []float64{1, -1}}, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Compute(x, 3)).To(Equal(dynamo.Control{1, -1}))

	_, err = r.GetController(config.ControlConfig{Kind: "constant", Values: []float64{1}}, 2)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())

	x[physics.IdxTheta] = 0.1
	c, err = r.GetController(config.ControlConfig{Kind: "pid", Gains: map[string]float64{"kp": 10, "limit": 0.5}}, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Compute(x, 0)).To(Equal(dynamo.Control{-0.5, -0.5}))

	c, err = r.GetController(config.ControlConfig{Kind: "feedback", K: [][]float64{{0, 0, 0, 0, 0, 0, 2}, {0, 0, 0, 0, 0, 0, 2}}}, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Compute(x, 0)).To(Equal(dynamo.Control{-0.2, -0.2}))

	_, err = r.GetController(config.ControlConfig{Kind: "feedback", K: [][]float64{{1}}}, 2)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestRegistryLatestControl(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()

	c, err := r.GetController(config.ControlConfig{Kind: "latest", Values: []float64{0.5, 0.5}}, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Compute(nil, 0)).To(Equal(dynamo.Control{0.5, 0.5}))

	_, err = r.GetController(config.ControlConfig{Kind: "latest", Values: []float64{1}}, 2)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestExperimentLatestReceivesPublishedCommands(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("idle")
	cfg.Duration = 0.01
	cfg.Control = config.ControlConfig{Kind: "latest"}

	e, err := New(cfg, nil, nil)
	g.Expect(err).NotTo(HaveOccurred())
	src, ok := e.Latest()
	g.Expect(ok).To(BeTrue())
	g.Expect(src.Publish([]float64{2, 2}, 0)).To(Succeed())

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Controls).NotTo(BeEmpty())
	for _, u := range res.Controls {
		g.Expect(u).To(Equal(dynamo.Control{2, 2}))
	}

	other, err := New(config.GetPreset("idle"), nil, nil)
	g.Expect(err).NotTo(HaveOccurred())
	_, ok = other.Latest()
	g.Expect(ok).To(BeFalse())
}

func TestExperimentRunsIdle(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("idle")
	cfg.Duration = 0.2

	e, err := New(cfg, nil, nil)
	g.Expect(err).NotTo(HaveOccurred())

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.StepsTaken).To(Equal(200))
	g.Expect(res.Reports).To(HaveLen(200))
	g.Expect(res.Fallbacks).To(BeZero())
	g.Expect(res.Metrics).To(HaveKey("max_penetration"))
	g.Expect(res.Metrics).To(HaveKey("complementarity_residual"))
	g.Expect(res.Metrics["contact_fraction"]).To(BeNumerically(">", 0))
	g.Expect(res.States[len(res.States)-1].Norm()).To(BeNumerically("<", 1e-9))
}

func TestExperimentRejectsBadConfig(t *testing.T) {
	g := NewWithT(t)

	cfg := config.DefaultConfig()
	cfg.Dt = 0
	_, err := New(cfg, nil, nil)
	g.Expect(errors.Is(err, dynamo.ErrInvalidStep)).To(BeTrue())

	cfg = config.DefaultConfig()
	cfg.Control = config.ControlConfig{Kind: "constant"}
	_, err = New(cfg, nil, nil)
	g.Expect(err).To(MatchError(ContainSubstring("control")))
}

func TestExperimentWithODESolver(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Solver = "radau"
	cfg.Duration = 0.01

	e, err := New(cfg, nil, nil)
	g.Expect(err).NotTo(HaveOccurred())
	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.StepsTaken).To(Equal(10))
	g.Expect(res.Reports).To(BeEmpty())
	// no ground without contact handling
	g.Expect(res.States[10][physics.IdxZ]).To(BeNumerically("<", 0))
}

func TestFactoryEnsembleMatchesSingleRun(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("tilted")
	cfg.Duration = 0.1

	single, err := New(cfg, nil, nil)
	g.Expect(err).NotTo(HaveOccurred())
	want, err := single.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	ens := sim.NewEnsemble(Factory(cfg, NewRegistry(), nil), 2)
	inits := sim.Perturb(cfg.GetInitState(), physics.IdxTheta, 3, 0.01)
	results, err := ens.Run(context.Background(), inits, single.SimConfig())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))

	g.Expect(results[1].States).To(Equal(want.States))
	g.Expect(results[0].States[100][physics.IdxTheta]).NotTo(Equal(results[2].States[100][physics.IdxTheta]))
}
