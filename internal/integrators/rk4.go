package integrators

import (
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// RK4 is the classical fourth-order Runge-Kutta scheme. It holds no state,
// so one value can serve the predictor and the plant at the same time.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	k1 := dyn.Derive(x, u, t)
	k2 := dyn.Derive(x.AddScaled(k1, dt*0.5), u, t+dt*0.5)
	k3 := dyn.Derive(x.AddScaled(k2, dt*0.5), u, t+dt*0.5)
	k4 := dyn.Derive(x.AddScaled(k3, dt), u, t+dt)

	n := len(x)
	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return result
}

// StepJacobian advances like Step and chains the model Jacobian through the
// four stages to obtain fx = d(next)/dx and fu = d(next)/du.
func (r *RK4) StepJacobian(dyn dynamo.Linearizable, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, *mat.Dense, *mat.Dense) {
	n, m := len(x), len(u)

	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	zero := mat.NewDense(n, m, nil)

	k1 := dyn.Derive(x, u, t)
	k1x, k1u := stage(dyn, x, u, t, eye, zero)

	x2 := x.AddScaled(k1, dt*0.5)
	k2 := dyn.Derive(x2, u, t+dt*0.5)
	s2x, s2u := shift(eye, k1x, k1u, dt*0.5)
	k2x, k2u := stage(dyn, x2, u, t+dt*0.5, s2x, s2u)

	x3 := x.AddScaled(k2, dt*0.5)
	k3 := dyn.Derive(x3, u, t+dt*0.5)
	s3x, s3u := shift(eye, k2x, k2u, dt*0.5)
	k3x, k3u := stage(dyn, x3, u, t+dt*0.5, s3x, s3u)

	x4 := x.AddScaled(k3, dt)
	k4 := dyn.Derive(x4, u, t+dt)
	s4x, s4u := shift(eye, k3x, k3u, dt)
	k4x, k4u := stage(dyn, x4, u, t+dt, s4x, s4u)

	next := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	fx := combine(k1x, k2x, k3x, k4x, dt6)
	fx.Add(fx, eye)
	fu := combine(k1u, k2u, k3u, k4u, dt6)

	return next, fx, fu
}

// stage returns the sensitivities of k = f(xs, u) given dxs/dx and dxs/du.
func stage(dyn dynamo.Linearizable, xs dynamo.State, u dynamo.Control, t float64, sx, su *mat.Dense) (*mat.Dense, *mat.Dense) {
	a, b := dyn.Jacobian(xs, u, t)

	kx := new(mat.Dense)
	kx.Mul(a, sx)

	ku := new(mat.Dense)
	ku.Mul(a, su)
	ku.Add(ku, b)

	return kx, ku
}

// shift returns the sensitivities of x + c*k.
func shift(eye, kx, ku *mat.Dense, c float64) (*mat.Dense, *mat.Dense) {
	sx := new(mat.Dense)
	sx.Scale(c, kx)
	sx.Add(sx, eye)

	su := new(mat.Dense)
	su.Scale(c, ku)

	return sx, su
}

func combine(k1, k2, k3, k4 *mat.Dense, dt6 float64) *mat.Dense {
	out := mat.DenseCopyOf(k1)
	out.Add(out, k4)

	mid := new(mat.Dense)
	mid.Add(k2, k3)
	mid.Scale(2, mid)

	out.Add(out, mid)
	out.Scale(dt6, out)
	return out
}
