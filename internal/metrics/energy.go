package metrics

import (
	"math"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// MaxEnergy is the peak specific mechanical energy seen during a mission.
// It reads zero for models without an energy function.
type MaxEnergy struct {
	name    string
	dyn     dynamo.System
	peak    float64
	samples int
}

func NewMaxEnergy(dyn dynamo.System) *MaxEnergy {
	return &MaxEnergy{
		name: "max_energy",
		dyn:  dyn,
	}
}

func (e *MaxEnergy) Name() string { return e.name }

func (e *MaxEnergy) Observe(x dynamo.State, u dynamo.Control, ref dynamo.State, t float64) {
	ec, ok := e.dyn.(dynamo.Hamiltonian)
	if !ok {
		return
	}

	energy := ec.Energy(x)
	if e.samples == 0 {
		e.peak = energy
	}
	e.peak = math.Max(e.peak, energy)
	e.samples++
}

func (e *MaxEnergy) Value() float64 {
	return e.peak
}

func (e *MaxEnergy) Reset() {
	e.peak = 0
	e.samples = 0
}
