// Package mission sequences the waypoints a vehicle flies through.
package mission

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// Sequencer tracks the active waypoint. The index only moves forward, by at
// most one per Update, and stays on the last waypoint once it gets there.
type Sequencer struct {
	waypoints []dynamo.State
	threshold float64
	index     int
}

func New(waypoints []dynamo.State, threshold float64) (*Sequencer, error) {
	if len(waypoints) == 0 {
		return nil, fmt.Errorf("%w: waypoint list is empty", dynamo.ErrInvalidConfig)
	}
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: proximity threshold must be positive, got %g", dynamo.ErrInvalidConfig, threshold)
	}

	dim := len(waypoints[0])
	for i, wp := range waypoints {
		if len(wp) < 2 || len(wp) != dim {
			return nil, fmt.Errorf("%w: waypoint %d has %d components, expected %d (at least 2)", dynamo.ErrInvalidConfig, i, len(wp), dim)
		}
		if !wp.IsValid() {
			return nil, fmt.Errorf("%w: waypoint %d is not finite", dynamo.ErrInvalidConfig, i)
		}
	}

	return &Sequencer{
		waypoints: lo.Map(waypoints, func(wp dynamo.State, _ int) dynamo.State { return wp.Clone() }),
		threshold: threshold,
	}, nil
}

// Active returns a copy of the current reference.
func (s *Sequencer) Active() dynamo.State {
	return s.waypoints[s.index].Clone()
}

func (s *Sequencer) Index() int { return s.index }

func (s *Sequencer) Len() int { return len(s.waypoints) }

func (s *Sequencer) Threshold() float64 { return s.threshold }

// Done reports whether the last waypoint is active.
func (s *Sequencer) Done() bool { return s.index == len(s.waypoints)-1 }

// Distance is the planar distance from x to the active waypoint.
func (s *Sequencer) Distance(x dynamo.State) float64 {
	return x.PlanarDistance(s.waypoints[s.index])
}

// Update advances to the next waypoint when x is strictly closer than the
// threshold to the active one. It reports whether the index changed.
func (s *Sequencer) Update(x dynamo.State) bool {
	if s.Done() || !(s.Distance(x) < s.threshold) {
		return false
	}
	s.index++
	return true
}

func (s *Sequencer) Reset() { s.index = 0 }

// Waypoints returns a copy of the full list.
func (s *Sequencer) Waypoints() []dynamo.State {
	return lo.Map(s.waypoints, func(wp dynamo.State, _ int) dynamo.State { return wp.Clone() })
}
