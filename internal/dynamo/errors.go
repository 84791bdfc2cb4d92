package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for mission setup and control.
var (
	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrInvalidConfig indicates a configuration rejected before any step runs.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrInfeasible indicates no bounded control sequence keeps the horizon
	// above the altitude floor.
	ErrInfeasible = errors.New("dynamo: infeasible horizon")

	// ErrNonConvergence indicates the solver budget ran out without a
	// feasible optimum.
	ErrNonConvergence = errors.New("dynamo: solver did not converge")
)

// SimulationError wraps an error with the cycle at which the mission halted.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("mission halted at step %d (t=%.3fs): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
