package physics

import (
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// PointMass is a planar body with directly commanded accelerations under
// uniform gravity: thrust drives x, gimbal drives y and aux drives the
// attitude. It shares the rocket's state and control layout so it can stand
// in as a plant or as the controller's internal model.
type PointMass struct {
	Mass    float64
	Inertia float64
	Gravity float64
}

func NewPointMass() *PointMass {
	return &PointMass{
		Mass:    1.0,
		Inertia: 1.0,
		Gravity: StandardGravity,
	}
}

func (p *PointMass) StateDim() int   { return dynamo.StateDim }
func (p *PointMass) ControlDim() int { return dynamo.ControlDim }

func (p *PointMass) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{
		x[dynamo.IdxVX],
		x[dynamo.IdxVY],
		x[dynamo.IdxOmega],
		u[dynamo.IdxThrust] / p.Mass,
		u[dynamo.IdxGimbal]/p.Mass - p.Gravity,
		u[dynamo.IdxAux] / p.Inertia,
	}
}

func (p *PointMass) Jacobian(x dynamo.State, u dynamo.Control, t float64) (*mat.Dense, *mat.Dense) {
	a := mat.NewDense(dynamo.StateDim, dynamo.StateDim, nil)
	a.Set(dynamo.IdxX, dynamo.IdxVX, 1)
	a.Set(dynamo.IdxY, dynamo.IdxVY, 1)
	a.Set(dynamo.IdxTheta, dynamo.IdxOmega, 1)

	b := mat.NewDense(dynamo.StateDim, dynamo.ControlDim, nil)
	b.Set(dynamo.IdxVX, dynamo.IdxThrust, 1/p.Mass)
	b.Set(dynamo.IdxVY, dynamo.IdxGimbal, 1/p.Mass)
	b.Set(dynamo.IdxOmega, dynamo.IdxAux, 1/p.Inertia)

	return a, b
}

func (p *PointMass) Energy(x dynamo.State) float64 {
	vx, vy := x[dynamo.IdxVX], x[dynamo.IdxVY]
	return 0.5*(vx*vx+vy*vy) + p.Gravity*x[dynamo.IdxY]
}

func (p *PointMass) HoverForce() float64 {
	return p.Mass * p.Gravity
}
