package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Rocket is a planar thrust-vectoring vehicle in an inverse-square gravity
// field. Thrust acts along theta+gimbal, the auxiliary actuator acts
// perpendicular to the body axis and also produces torque.
type Rocket struct {
	Mass    float64
	Length  float64
	Inertia float64

	// Mu is the gravitational parameter G*M of the central body.
	Mu float64
	// BodyRadius is the distance from the body's center to altitude zero.
	BodyRadius float64
	// AltitudeScale converts the altitude state into the radial unit.
	AltitudeScale float64
}

func NewRocket() *Rocket {
	return &Rocket{
		Mass:          DefaultMass,
		Length:        DefaultLength,
		Inertia:       CylinderInertia(DefaultMass, DefaultRadius, DefaultLength),
		Mu:            EarthMu,
		BodyRadius:    EarthRadius,
		AltitudeScale: 1,
	}
}

// CylinderInertia is the pitch moment of inertia of a solid cylinder.
func CylinderInertia(mass, radius, length float64) float64 {
	return 0.25*mass*radius*radius + mass*length*length/12
}

func (r *Rocket) StateDim() int   { return dynamo.StateDim }
func (r *Rocket) ControlDim() int { return dynamo.ControlDim }

func (r *Rocket) distance(y float64) float64 {
	return r.BodyRadius + r.AltitudeScale*y
}

// Gravity is the gravitational acceleration magnitude at altitude y.
func (r *Rocket) Gravity(y float64) float64 {
	d := r.distance(y)
	return r.Mu / (d * d)
}

func (r *Rocket) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, vx, vy, omega := x[dynamo.IdxTheta], x[dynamo.IdxVX], x[dynamo.IdxVY], x[dynamo.IdxOmega]
	thrust, gimbal, aux := u[dynamo.IdxThrust], u[dynamo.IdxGimbal], u[dynamo.IdxAux]

	dist := r.distance(x[dynamo.IdxY])
	sinTD, cosTD := math.Sincos(theta + gimbal)
	sin, cos := math.Sincos(theta)

	ax := (thrust*cosTD - aux*sin) / r.Mass
	ay := (thrust*sinTD+aux*cos)/r.Mass - r.Mu/(dist*dist) + vx*vx/dist
	alpha := 0.5 * r.Length * (thrust*math.Sin(gimbal) + aux) / r.Inertia

	return dynamo.State{vx, vy, omega, ax, ay, alpha}
}

func (r *Rocket) Jacobian(x dynamo.State, u dynamo.Control, t float64) (*mat.Dense, *mat.Dense) {
	theta, vx := x[dynamo.IdxTheta], x[dynamo.IdxVX]
	thrust, gimbal, aux := u[dynamo.IdxThrust], u[dynamo.IdxGimbal], u[dynamo.IdxAux]

	dist := r.distance(x[dynamo.IdxY])
	sinTD, cosTD := math.Sincos(theta + gimbal)
	sin, cos := math.Sincos(theta)
	sinG, cosG := math.Sincos(gimbal)
	m := r.Mass
	arm := 0.5 * r.Length / r.Inertia

	a := mat.NewDense(dynamo.StateDim, dynamo.StateDim, nil)
	a.Set(dynamo.IdxX, dynamo.IdxVX, 1)
	a.Set(dynamo.IdxY, dynamo.IdxVY, 1)
	a.Set(dynamo.IdxTheta, dynamo.IdxOmega, 1)

	a.Set(dynamo.IdxVX, dynamo.IdxTheta, (-thrust*sinTD-aux*cos)/m)

	dist2 := dist * dist
	a.Set(dynamo.IdxVY, dynamo.IdxY, r.AltitudeScale*(2*r.Mu/(dist2*dist)-vx*vx/dist2))
	a.Set(dynamo.IdxVY, dynamo.IdxTheta, (thrust*cosTD-aux*sin)/m)
	a.Set(dynamo.IdxVY, dynamo.IdxVX, 2*vx/dist)

	b := mat.NewDense(dynamo.StateDim, dynamo.ControlDim, nil)
	b.Set(dynamo.IdxVX, dynamo.IdxThrust, cosTD/m)
	b.Set(dynamo.IdxVX, dynamo.IdxGimbal, -thrust*sinTD/m)
	b.Set(dynamo.IdxVX, dynamo.IdxAux, -sin/m)

	b.Set(dynamo.IdxVY, dynamo.IdxThrust, sinTD/m)
	b.Set(dynamo.IdxVY, dynamo.IdxGimbal, thrust*cosTD/m)
	b.Set(dynamo.IdxVY, dynamo.IdxAux, cos/m)

	b.Set(dynamo.IdxOmega, dynamo.IdxThrust, arm*sinG)
	b.Set(dynamo.IdxOmega, dynamo.IdxGimbal, arm*thrust*cosG)
	b.Set(dynamo.IdxOmega, dynamo.IdxAux, arm)

	return a, b
}

// Energy is the specific mechanical energy relative to altitude zero.
func (r *Rocket) Energy(x dynamo.State) float64 {
	vx, vy := x[dynamo.IdxVX], x[dynamo.IdxVY]
	ke := 0.5 * (vx*vx + vy*vy)
	pe := r.Mu/r.BodyRadius - r.Mu/r.distance(x[dynamo.IdxY])
	return ke + pe
}

func (r *Rocket) Validate() error {
	switch {
	case r.Mass <= 0:
		return fmt.Errorf("%w: rocket mass must be positive, got %g", dynamo.ErrInvalidConfig, r.Mass)
	case r.Inertia <= 0:
		return fmt.Errorf("%w: rocket inertia must be positive, got %g", dynamo.ErrInvalidConfig, r.Inertia)
	case r.Length <= 0:
		return fmt.Errorf("%w: rocket length must be positive, got %g", dynamo.ErrInvalidConfig, r.Length)
	case r.BodyRadius <= 0:
		return fmt.Errorf("%w: body radius must be positive, got %g", dynamo.ErrInvalidConfig, r.BodyRadius)
	case r.Mu < 0:
		return fmt.Errorf("%w: gravitational parameter must be non-negative, got %g", dynamo.ErrInvalidConfig, r.Mu)
	}
	return nil
}

func (r *Rocket) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":           r.Mass,
		"length":         r.Length,
		"inertia":        r.Inertia,
		"mu":             r.Mu,
		"body_radius":    r.BodyRadius,
		"altitude_scale": r.AltitudeScale,
	}
}
