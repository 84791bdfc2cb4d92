package dynamo

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State vector layout for the planar rocket.
const (
	IdxX = iota
	IdxY
	IdxTheta
	IdxVX
	IdxVY
	IdxOmega

	StateDim = 6
)

// Control vector layout.
const (
	IdxThrust = iota
	IdxGimbal
	IdxAux

	ControlDim = 3
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) AddScaled(other State, factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] + factor*other[i]
	}
	return result
}

// PlanarDistance is the Euclidean distance between the position components
// of two states.
func (s State) PlanarDistance(other State) float64 {
	return math.Hypot(s[IdxX]-other[IdxX], s[IdxY]-other[IdxY])
}

type Control []float64

func (c Control) Clone() Control {
	out := make(Control, len(c))
	copy(out, c)
	return out
}

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Linearizable systems expose the partial derivatives of Derive with respect
// to the state (a, StateDim x StateDim) and the control (b, StateDim x ControlDim).
type Linearizable interface {
	System
	Jacobian(x State, u Control, t float64) (a, b *mat.Dense)
}

type Hamiltonian interface {
	Energy(x State) float64
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// SensitivityIntegrator also returns the step sensitivities
// fx = d(next)/dx and fu = d(next)/du.
type SensitivityIntegrator interface {
	Integrator
	StepJacobian(dyn Linearizable, x State, u Control, t, dt float64) (next State, fx, fu *mat.Dense)
}

// Controller maps the measured state and the active reference to the
// control applied for the next step.
type Controller interface {
	Compute(ctx context.Context, x State, ref State) (Control, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, ref State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64, waypoint int)
}
