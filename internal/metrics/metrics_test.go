package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/physics"
)

var origin = dynamo.State{0, 0, 0, 0, 0, 0}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort(dynamo.Control{0, -2, -10}, dynamo.Control{4, 2, 10})

	m.Observe(origin, dynamo.Control{4, -2, 0}, origin, 0)
	m.Observe(origin, dynamo.Control{2, 0, 10}, origin, 0.1)

	for j, want := range []float64{0.75, 0.5, 0.5} {
		if got := m.Actuator(j); math.Abs(got-want) > 1e-12 {
			t.Errorf("actuator %d: expected %f, got %f", j, want, got)
		}
	}
	if got := m.Value(); math.Abs(got-1.75/3) > 1e-12 {
		t.Errorf("expected mean effort %f, got %f", 1.75/3, got)
	}

	m.Reset()
	if m.Value() != 0 || m.Actuator(0) != 0 {
		t.Error("expected zero effort after reset")
	}
}

func TestTrackingError(t *testing.T) {
	m := NewTrackingError()
	ref := dynamo.State{3, 4, 1, 1, 1, 1}

	m.Observe(origin, dynamo.Control{0, 0, 0}, ref, 0)
	m.Observe(ref, dynamo.Control{0, 0, 0}, ref, 0.1)

	if got := m.Value(); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("expected mean distance 2.5, got %f", got)
	}
}

func TestMaxEnergy(t *testing.T) {
	pm := physics.NewPointMass()
	m := NewMaxEnergy(pm)

	low := dynamo.State{0, 1, 0, 0, 0, 0}
	high := dynamo.State{0, 10, 0, 3, 4, 0}

	m.Observe(low, nil, origin, 0)
	m.Observe(high, nil, origin, 0.1)
	m.Observe(low, nil, origin, 0.2)

	expected := 0.5*25 + pm.Gravity*10
	if got := m.Value(); math.Abs(got-expected) > 1e-9 {
		t.Errorf("expected peak energy %f, got %f", expected, got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

type noEnergy struct{}

func (n *noEnergy) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State { return x }
func (n *noEnergy) StateDim() int                                                   { return 6 }
func (n *noEnergy) ControlDim() int                                                 { return 3 }

func TestMaxEnergyWithoutHamiltonian(t *testing.T) {
	m := NewMaxEnergy(&noEnergy{})
	m.Observe(dynamo.State{0, 10, 0, 3, 4, 0}, nil, origin, 0)

	if m.Value() != 0 {
		t.Errorf("expected 0 for a model without energy, got %f", m.Value())
	}
}

func TestMinAltitude(t *testing.T) {
	m := NewMinAltitude()
	if m.Value() != 0 {
		t.Errorf("expected 0 before any sample, got %f", m.Value())
	}

	for _, y := range []float64{50, 12, 30} {
		m.Observe(dynamo.State{0, y, 0, 0, 0, 0}, nil, origin, 0)
	}
	if m.Value() != 12 {
		t.Errorf("expected 12, got %f", m.Value())
	}
}

func TestStandardNames(t *testing.T) {
	want := map[string]bool{"control_effort": true, "tracking_error": true, "max_energy": true, "min_altitude": true}

	for _, m := range Standard(physics.NewRocket(), dynamo.Control{0, -1, -1}, dynamo.Control{1, 1, 1}) {
		if !want[m.Name()] {
			t.Errorf("unexpected metric %s", m.Name())
		}
		delete(want, m.Name())
	}
	if len(want) != 0 {
		t.Errorf("missing metrics: %v", want)
	}
}
