// Package ocp builds and solves the finite-horizon optimal control problem
// behind the receding-horizon controller.
//
// The N controls are the decision variables. Predicted states are obtained by
// rolling the model forward with a fixed-step integrator from the measured
// state (single shooting), so the dynamics equalities and the initial
// condition hold by construction. Each control component is mapped through
//
//	u = mid + half*tanh(z)
//
// which keeps every control inside its bounds for any z. The altitude floor on
// the predicted states is handled by an augmented Lagrangian outer loop around
// an L-BFGS inner minimization from gonum/optimize. Gradients come from a
// backward adjoint pass over the integrator's step sensitivities.
//
// A warm start is solved alongside the neutral guess and wins only when it
// ends cheaper, so a stale guess cannot pull the plan off the optimum.
//
// A Problem is immutable after construction and safe for concurrent use.
package ocp
