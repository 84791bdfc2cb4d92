package metrics

import (
	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// TrackingError is the mean planar distance to the active waypoint.
type TrackingError struct {
	name    string
	sum     float64
	samples int
}

func NewTrackingError() *TrackingError {
	return &TrackingError{
		name: "tracking_error",
	}
}

func (s *TrackingError) Name() string {
	return s.name
}

func (s *TrackingError) Observe(x dynamo.State, u dynamo.Control, ref dynamo.State, t float64) {
	s.sum += x.PlanarDistance(ref)
	s.samples++
}

func (s *TrackingError) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *TrackingError) Reset() {
	s.sum = 0
	s.samples = 0
}
