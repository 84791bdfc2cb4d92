package dynamo

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, 4}, 5.0},
		{State{0, 0}, 0.0},
		{State{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.state.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	diff := b.Sub(a)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}

	scaled := a.AddScaled(b, 0.5)
	if scaled[0] != 3 || scaled[1] != 4.5 || scaled[2] != 6 {
		t.Errorf("AddScaled failed: got %v", scaled)
	}
}

func TestState_PlanarDistanceIgnoresAttitudeAndRates(t *testing.T) {
	a := State{0, 50, 1, 2, 3, 4}
	b := State{3, 54, -1, 0, 0, 0}

	if got := a.PlanarDistance(b); math.Abs(got-5) > 1e-12 {
		t.Errorf("expected distance 5, got %f", got)
	}
}

func TestState_CloneIsIndependent(t *testing.T) {
	a := State{1, 2}
	c := a.Clone()
	c[0] = 9

	if a[0] != 1 {
		t.Errorf("clone aliased original: %v", a)
	}
}

func TestSimulationError_Unwrap(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.15, Wrapped: ErrInfeasible}

	if !errors.Is(err, ErrInfeasible) {
		t.Error("expected SimulationError to unwrap to ErrInfeasible")
	}
	if err.Error() == "" {
		t.Error("expected non-empty message")
	}
}

func TestParallelFor_CoversRange(t *testing.T) {
	var visited [37]int32
	ParallelFor(len(visited), 4, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&visited[i], 1)
		}
	})

	for i, v := range visited {
		if v != 1 {
			t.Errorf("index %d visited %d times", i, v)
		}
	}
}
