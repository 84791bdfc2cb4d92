package sim

import (
	"math"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

type Config struct {
	Dt       float64
	Duration float64

	// ValidateState halts the mission when the plant produces NaN or Inf.
	ValidateState bool
}

// Steps is the number of control cycles covering the duration.
func (c Config) Steps() int {
	return int(math.Round(c.Duration / c.Dt))
}

// History is the record of one mission. Times, States and Waypoints have one
// entry per realized state, entry 0 being the initial condition. Controls[i]
// is the control applied from States[i] to States[i+1], and Waypoints[i] is
// the index of the reference it was computed against.
type History struct {
	Times     []float64
	States    []dynamo.State
	Controls  []dynamo.Control
	Waypoints []int
}

func newHistory(x0 dynamo.State, index, steps int) History {
	h := History{
		Times:     make([]float64, 0, steps+1),
		States:    make([]dynamo.State, 0, steps+1),
		Controls:  make([]dynamo.Control, 0, steps),
		Waypoints: make([]int, 0, steps+1),
	}
	h.Times = append(h.Times, 0)
	h.States = append(h.States, x0.Clone())
	h.Waypoints = append(h.Waypoints, index)
	return h
}

func (h *History) append(t float64, x dynamo.State, u dynamo.Control, index int) {
	h.Times = append(h.Times, t)
	h.States = append(h.States, x.Clone())
	h.Controls = append(h.Controls, u.Clone())
	h.Waypoints = append(h.Waypoints, index)
}

// Len is the number of recorded states.
func (h *History) Len() int { return len(h.States) }

// Final returns the last realized state.
func (h *History) Final() dynamo.State {
	return h.States[len(h.States)-1]
}

// Column extracts one state component over time.
func (h *History) Column(idx int) []float64 {
	out := make([]float64, len(h.States))
	for i, x := range h.States {
		out[i] = x[idx]
	}
	return out
}

// Transitions lists the entries at which the waypoint index changed.
func (h *History) Transitions() []int {
	var out []int
	for i := 1; i < len(h.Waypoints); i++ {
		if h.Waypoints[i] != h.Waypoints[i-1] {
			out = append(out, i)
		}
	}
	return out
}

type Result struct {
	History

	Metrics    map[string]float64
	StepsTaken int
	// Completed is false when the mission halted before its last step.
	Completed bool
}
