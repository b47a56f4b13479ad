package integrators

import (
	"github.com/san-kum/wheelsim/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// Dopri is the explicit embedded 5(4) strategy for non-stiff runs.
type Dopri struct {
	Tol                Tolerances
	MassRegularization float64
}

func NewDopri() *Dopri {
	return &Dopri{
		Tol:                DefaultTolerances(),
		MassRegularization: DefaultMassRegularization,
	}
}

func (d *Dopri) Name() string { return "dopri" }

func (d *Dopri) Integrate(model dynamo.Model, span dynamo.Span, x0 dynamo.State, u dynamo.Control) (*dynamo.Trajectory, error) {
	return d.integrate(modelRHS(model, u, d.MassRegularization), span, x0)
}

func (d *Dopri) integrate(f rhsFunc, span dynamo.Span, y0 []float64) (*dynamo.Trajectory, error) {
	return adaptive(d.Name(), span, y0, d.Tol, 4, func(t float64, y []float64, h float64) ([]float64, float64, error) {
		yNew, e, err := d.step(f, t, y, h)
		if err != nil {
			return nil, 0, err
		}
		return yNew, errNorm(e, y, yNew, d.Tol), nil
	})
}

// step returns the fifth-order solution and the embedded error estimate.
func (d *Dopri) step(f rhsFunc, t float64, x []float64, dt float64) ([]float64, []float64, error) {
	n := len(x)
	k := make([][]float64, 7)
	for i := range k {
		k[i] = make([]float64, n)
	}
	k1, k2, k3, k4, k5, k6, k7 := k[0], k[1], k[2], k[3], k[4], k[5], k[6]

	if err := f(t, x, k1); err != nil {
		return nil, nil, err
	}

	xs := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*b21*k1[i]
	}
	if err := f(t+a2*dt, xs, k2); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	if err := f(t+a3*dt, xs, k3); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	if err := f(t+a4*dt, xs, k4); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	if err := f(t+a5*dt, xs, k5); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	if err := f(t+dt, xs, k6); err != nil {
		return nil, nil, err
	}

	xNew := make([]float64, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	if err := f(t+dt, xNew, k7); err != nil {
		return nil, nil, err
	}

	errEst := make([]float64, n)
	for i := 0; i < n; i++ {
		errEst[i] = dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
	}
	return xNew, errEst, nil
}
