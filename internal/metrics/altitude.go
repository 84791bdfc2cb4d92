package metrics

import (
	"math"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// MinAltitude is the lowest altitude the vehicle started a cycle from.
type MinAltitude struct {
	name string
	min  float64
}

func NewMinAltitude() *MinAltitude {
	return &MinAltitude{name: "min_altitude", min: math.Inf(1)}
}

func (m *MinAltitude) Name() string { return m.name }

func (m *MinAltitude) Observe(x dynamo.State, u dynamo.Control, ref dynamo.State, t float64) {
	m.min = math.Min(m.min, x[dynamo.IdxY])
}

func (m *MinAltitude) Value() float64 {
	if math.IsInf(m.min, 1) {
		return 0
	}
	return m.min
}

func (m *MinAltitude) Reset() { m.min = math.Inf(1) }

// Standard returns the metrics recorded for every mission.
func Standard(dyn dynamo.System, lower, upper dynamo.Control) []dynamo.Metric {
	return []dynamo.Metric{
		NewControlEffort(lower, upper),
		NewTrackingError(),
		NewMaxEnergy(dyn),
		NewMinAltitude(),
	}
}
