package integrators

import "github.com/san-kum/rocketmpc/internal/dynamo"

// Euler is a first-order plant integrator, useful to fly a coarser "truth"
// than the controller predicts with.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	return x.AddScaled(dyn.Derive(x, u, t), dt)
}
