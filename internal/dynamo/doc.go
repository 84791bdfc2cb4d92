// Package dynamo provides the core primitives shared by the rocket
// trajectory controller.
//
// The package defines the fundamental interfaces and types:
//
//   - [State]: vector [x, y, theta, vx, vy, omega]
//   - [Control]: vector [thrust, gimbal, aux]
//   - [System]: continuous-time model (dX/dt = f(X, u, t))
//   - [Linearizable]: a [System] with analytic Jacobians
//   - [Integrator]: fixed-step numerical integrator
//   - [Controller]: feedback law driven by an active reference
//
// # Errors
//
// Setup problems wrap [ErrInvalidConfig] or [ErrDimensionMismatch] and are
// reported before a mission starts. Solve failures wrap [ErrInfeasible] or
// [ErrNonConvergence]; the simulator halts on them and returns a
// [SimulationError] carrying the failing step.
package dynamo
