package metrics

import (
	"math"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// ControlEffort is the share of actuator authority used, averaged over the
// mission and over actuators. Each actuator is scaled by the larger magnitude
// of its bounds, so the value lies in [0, 1] for admissible controls.
type ControlEffort struct {
	scale   []float64
	sums    []float64
	samples int
}

func NewControlEffort(lower, upper dynamo.Control) *ControlEffort {
	scale := make([]float64, min(len(lower), len(upper)))
	for j := range scale {
		scale[j] = math.Max(math.Abs(lower[j]), math.Abs(upper[j]))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return &ControlEffort{
		scale: scale,
		sums:  make([]float64, len(scale)),
	}
}

func (c *ControlEffort) Name() string {
	return "control_effort"
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, ref dynamo.State, t float64) {
	for j := range c.sums {
		if j < len(u) {
			c.sums[j] += math.Abs(u[j]) / c.scale[j]
		}
	}
	c.samples++
}

// Actuator is the mean scaled effort of actuator j.
func (c *ControlEffort) Actuator(j int) float64 {
	if c.samples == 0 || j < 0 || j >= len(c.sums) {
		return 0
	}
	return c.sums[j] / float64(c.samples)
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 || len(c.sums) == 0 {
		return 0
	}
	total := 0.0
	for j := range c.sums {
		total += c.Actuator(j)
	}
	return total / float64(len(c.sums))
}

func (c *ControlEffort) Reset() {
	clear(c.sums)
	c.samples = 0
}
