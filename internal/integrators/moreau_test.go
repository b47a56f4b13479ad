package integrators_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/integrators"
	"github.com/san-kum/wheelsim/internal/physics"
)

// dropModel is a set of decoupled masses under gravity; only the first
// coordinate touches a floor at q0 = 0.
type dropModel struct {
	mass    []float64
	gravity float64
}

func (d *dropModel) DOF() int           { return len(d.mass) }
func (d *dropModel) ControlDim() int    { return 0 }
func (d *dropModel) ConstraintDim() int { return 1 }

func (d *dropModel) Evaluate(t float64, x dynamo.State, u dynamo.Control) (*mat.SymDense, *mat.VecDense, error) {
	n := len(d.mass)
	m := mat.NewSymDense(n, nil)
	for i, v := range d.mass {
		m.SetSym(i, i, v)
	}
	h := mat.NewVecDense(n, nil)
	h.SetVec(0, d.mass[0]*d.gravity)
	return m, h, nil
}

func (d *dropModel) Constraints(t float64, x dynamo.State, u dynamo.Control) (*mat.VecDense, *mat.Dense, error) {
	j := mat.NewDense(1, len(d.mass), nil)
	j.Set(0, 0, 1)
	return mat.NewVecDense(1, []float64{x[0]}), j, nil
}

type failingSolver struct {
	regs []float64
}

func (f *failingSolver) Solve(a mat.Matrix, b *mat.VecDense, reg float64) (*mat.VecDense, error) {
	f.regs = append(f.regs, reg)
	return nil, dynamo.ErrContactSolve
}

func maxAbsDiff(a, b dynamo.State) float64 {
	worst := 0.0
	for i := range a {
		worst = math.Max(worst, math.Abs(a[i]-b[i]))
	}
	return worst
}

var _ = Describe("MoreauJean", func() {
	var (
		balancer *physics.Balancer
		idle     dynamo.Control
	)

	BeforeEach(func() {
		balancer = physics.NewBalancer(physics.DefaultParameters())
		idle = dynamo.Control{0, 0}
	})

	Describe("stepping the balancer", func() {
		It("is deterministic", func() {
			mj := integrators.NewMoreauJean(balancer)
			x := dynamo.State{0, 0.1, 0, 0, 0, -0.2, 0.3, 0.5, 0, 0.1}
			u := dynamo.Control{0.5, -0.2}

			_, a, err := mj.Step(1e-3, x, u)
			Expect(err).NotTo(HaveOccurred())
			_, b, err := mj.Step(1e-3, x, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
		})

		It("does not modify its input", func() {
			mj := integrators.NewMoreauJean(balancer)
			x := dynamo.State{0, 0.1, 0, 0, 0, -0.2, 0.3, 0.5, 0, 0.1}
			before := x.Clone()

			_, _, err := mj.Step(1e-3, x, idle)
			Expect(err).NotTo(HaveOccurred())
			Expect(x).To(Equal(before))
		})

		It("keeps the resting upright state in place", func() {
			mj := integrators.NewMoreauJean(balancer)
			x0 := make(dynamo.State, 10)

			_, x1, err := mj.Step(1e-3, x0, idle)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(x1, x0)).To(BeNumerically("<", 1e-9))
		})

		It("reports the wheel contact as active at rest", func() {
			mj := integrators.NewMoreauJean(balancer)

			_, rep, err := mj.StepReport(1e-3, make(dynamo.State, 10), idle)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Active).To(ContainElement(0))
			Expect(rep.Impulse[0]).To(BeNumerically(">", 0))
			Expect(rep.Fallback).To(BeFalse())
		})

		It("matches repeated steps when solving over a span", func() {
			mj := integrators.NewMoreauJean(balancer)
			x0 := dynamo.State{0, 0.2, 0, 0, 0.01, 0, 0.2, 0.4, 0, 0.3}
			u := dynamo.Control{1, 0.5}
			dt := 1e-3

			traj, err := mj.Solve(dynamo.Span{Start: 0, End: 0.05}, x0, u, dt)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Len()).To(Equal(51))
			Expect(traj.Reports).To(HaveLen(50))

			x := x0.Clone()
			for k := 1; k < traj.Len(); k++ {
				_, next, err := mj.Step(dt, x, u)
				Expect(err).NotTo(HaveOccurred())
				Expect(traj.States[k]).To(Equal(next))
				Expect(traj.Times[k]).To(Equal(float64(k) * dt))
				x = next
			}
		})

		It("returns only the initial state for an empty span", func() {
			mj := integrators.NewMoreauJean(balancer)
			traj, err := mj.Solve(dynamo.Span{Start: 1, End: 1}, make(dynamo.State, 10), idle, 1e-3)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Len()).To(Equal(1))
			Expect(traj.Times[0]).To(Equal(1.0))
		})

		It("keeps impulses non-negative and complementary", func() {
			mj := integrators.NewMoreauJean(balancer)
			x0 := make(dynamo.State, 10)
			x0[physics.IdxTheta] = 0.6

			traj, err := mj.Solve(dynamo.Span{Start: 0, End: 1.5}, x0, idle, 1e-3)
			Expect(err).NotTo(HaveOccurred())

			for _, rep := range traj.Reports {
				Expect(rep.Fallback).To(BeFalse())
				for _, i := range rep.Active {
					lam := rep.Impulse[i]
					w := rep.GapVelocity[i]
					scale := math.Max(1, lam)
					Expect(lam).To(BeNumerically(">=", 0))
					Expect(w).To(BeNumerically(">=", -1e-6*scale))
					Expect(math.Abs(lam * w)).To(BeNumerically("<", 1e-6*scale*scale))
				}
				for i, lam := range rep.Impulse {
					if !containsInt(rep.Active, i) {
						Expect(lam).To(BeZero())
					}
				}
			}
		})

		It("keeps penetration bounded", func() {
			mj := integrators.NewMoreauJean(balancer)
			x0 := make(dynamo.State, 10)
			x0[physics.IdxZ] = 0.05
			x0[physics.IdxTheta] = 1.0

			traj, err := mj.Solve(dynamo.Span{Start: 0, End: 2}, x0, dynamo.Control{0.3, 0.3}, 1e-3)
			Expect(err).NotTo(HaveOccurred())

			for _, x := range traj.States {
				c, _, err := balancer.Constraints(0, x, idle)
				Expect(err).NotTo(HaveOccurred())
				for i := 0; i < c.Len(); i++ {
					Expect(c.AtVec(i)).To(BeNumerically(">", -1e-3))
				}
			}
		})
	})

	Describe("the fall scenario", func() {
		It("tips over from a tiny pitch rate and comes to rest on the body", func() {
			mj := integrators.NewMoreauJean(balancer)
			x0 := make(dynamo.State, 10)
			x0[physics.IdxThetaDot] = 1e-8

			traj, err := mj.Solve(dynamo.Span{Start: 0, End: 10}, x0, idle, 1e-3)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Len()).To(Equal(10001))

			_, xf := traj.Last()
			c, _, err := balancer.Constraints(0, xf, idle)
			Expect(err).NotTo(HaveOccurred())

			p := physics.DefaultParameters()
			rest := math.Acos(-p.WheelRadius / p.BodyLength)

			Expect(math.Abs(xf[physics.IdxZ])).To(BeNumerically("<", 1e-3))
			Expect(math.Abs(c.AtVec(1))).To(BeNumerically("<", 1e-3))
			Expect(xf[physics.IdxTheta]).To(BeNumerically("~", rest, 0.05))
			Expect(math.Abs(xf[physics.IdxY])).To(BeNumerically("<", 1e-12))
			Expect(math.Abs(xf[physics.IdxPhi])).To(BeNumerically("<", 1e-12))

			// settled over the last second
			theta := traj.Column(physics.IdxTheta)
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, th := range theta[len(theta)-1000:] {
				lo = math.Min(lo, th)
				hi = math.Max(hi, th)
			}
			Expect(hi - lo).To(BeNumerically("<", 1e-4))
		})
	})

	Describe("position updates", func() {
		DescribeTable("free flight from rest",
			func(update integrators.PositionUpdate, want float64) {
				model := &dropModel{mass: []float64{2}, gravity: 10}
				mj := integrators.NewMoreauJean(model, integrators.WithPositionUpdate(update))

				_, x1, err := mj.Step(0.1, dynamo.State{1, 0}, dynamo.Control{})
				Expect(err).NotTo(HaveOccurred())
				Expect(x1[0]).To(BeNumerically("~", want, 1e-12))
				Expect(x1[1]).To(BeNumerically("~", -1.0, 1e-12))
			},
			Entry("extrapolated", integrators.Extrapolated, 1-0.15),
			Entry("semi-implicit", integrators.SemiImplicit, 1-0.1),
			Entry("trapezoidal", integrators.Trapezoidal, 1-0.1),
		)

		It("parses names", func() {
			p, err := integrators.ParsePositionUpdate("trapezoidal")
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(integrators.Trapezoidal))
			Expect(p.String()).To(Equal("trapezoidal"))

			p, err = integrators.ParsePositionUpdate("")
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(integrators.Extrapolated))

			_, err = integrators.ParsePositionUpdate("leapfrog")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("contact on a point mass", func() {
		It("stops a falling mass at the floor", func() {
			model := &dropModel{mass: []float64{2}, gravity: 10}
			mj := integrators.NewMoreauJean(model)

			_, rep, err := mj.StepReport(0.01, dynamo.State{0, -1}, dynamo.Control{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Active).To(Equal([]int{0}))
			// lambda = m * |v-| up to regularization
			Expect(rep.Impulse[0]).To(BeNumerically("~", 2*1.1, 1e-6))
			Expect(rep.GapVelocity[0]).To(BeNumerically("~", 0, 1e-6))
		})

		It("leaves a separating mass alone", func() {
			model := &dropModel{mass: []float64{2}, gravity: 10}
			mj := integrators.NewMoreauJean(model)

			_, rep, err := mj.StepReport(0.01, dynamo.State{0, 5}, dynamo.Control{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Active).To(BeEmpty())
			Expect(rep.Impulse).To(Equal([]float64{0}))
		})
	})

	Describe("when the contact solver fails", func() {
		It("retries with more regularization then steps without impulses", func() {
			core, logs := observer.New(zap.WarnLevel)
			stub := &failingSolver{}
			model := &dropModel{mass: []float64{2}, gravity: 10}
			mj := integrators.NewMoreauJean(model,
				integrators.WithContactSolver(stub),
				integrators.WithRegularization(1e-8),
				integrators.WithRetryFactor(1e4),
				integrators.WithLogger(zap.New(core)),
			)

			x1, rep, err := mj.StepReport(0.01, dynamo.State{0, -1}, dynamo.Control{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Retried).To(BeTrue())
			Expect(rep.Fallback).To(BeTrue())
			Expect(rep.Impulse).To(Equal([]float64{0}))
			Expect(x1[1]).To(BeNumerically("~", -1.1, 1e-12))

			Expect(stub.regs).To(HaveLen(2))
			Expect(stub.regs[0]).To(Equal(1e-8))
			Expect(stub.regs[1]).To(BeNumerically("~", 1e-4, 1e-18))
			Expect(logs.FilterMessage("contact solve failed twice, stepping without impulses").Len()).To(Equal(1))
		})
	})

	Describe("errors", func() {
		It("rejects a non-positive step", func() {
			mj := integrators.NewMoreauJean(balancer)
			_, _, err := mj.Step(0, make(dynamo.State, 10), idle)
			Expect(err).To(MatchError(dynamo.ErrInvalidStep))

			_, err = mj.Solve(dynamo.Span{Start: 0, End: 1}, make(dynamo.State, 10), idle, -1)
			Expect(err).To(MatchError(dynamo.ErrInvalidStep))
		})

		It("rejects mismatched dimensions", func() {
			mj := integrators.NewMoreauJean(balancer)
			_, _, err := mj.Step(1e-3, make(dynamo.State, 8), idle)
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))

			_, _, err = mj.Step(1e-3, make(dynamo.State, 10), dynamo.Control{1})
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("regularizes a nearly singular mass matrix", func() {
			model := &dropModel{mass: []float64{1, 0}, gravity: 10}
			mj := integrators.NewMoreauJean(model)

			_, rep, err := mj.StepReport(1e-3, dynamo.State{1, 0, 0, 0}, dynamo.Control{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.MassRegularized).To(BeTrue())
		})

		It("fails on an indefinite mass matrix", func() {
			model := &dropModel{mass: []float64{-1}, gravity: 10}
			mj := integrators.NewMoreauJean(model)

			_, _, err := mj.Step(1e-3, dynamo.State{1, 0}, dynamo.Control{})
			Expect(err).To(MatchError(dynamo.ErrSingularMassMatrix))

			_, err = mj.Solve(dynamo.Span{Start: 0, End: 0.01}, dynamo.State{1, 0}, dynamo.Control{}, 1e-3)
			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Step).To(Equal(1))
		})
	})
})

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
