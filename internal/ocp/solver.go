package ocp

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// SolveError reports a failed solve. Cause is dynamo.ErrInfeasible,
// dynamo.ErrNonConvergence or the context error that interrupted the solve.
type SolveError struct {
	Cause      error
	Reason     string
	Violation  float64
	Iterations int
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("ocp: %s (floor violation %.3g after %d iterations): %v",
		e.Reason, e.Violation, e.Iterations, e.Cause)
}

func (e *SolveError) Unwrap() error {
	return e.Cause
}

// warmMargin is the relative cost improvement a warm-started plan needs
// before it replaces the plan solved from the neutral guess.
const warmMargin = 1e-6

// Solve computes the optimal control sequence from x0 towards xref. warm is
// an optional initial guess. The solve always runs from the neutral guess as
// well, and the warm result is kept only when it is strictly cheaper.
func (p *Problem) Solve(ctx context.Context, x0, xref dynamo.State, warm []dynamo.Control) (*Plan, error) {
	if err := p.checkInputs(x0, xref); err != nil {
		return nil, err
	}

	if gap := p.cfg.AltitudeFloor - x0[dynamo.IdxY]; gap > 0 {
		return nil, &SolveError{
			Cause:     dynamo.ErrInfeasible,
			Reason:    "initial altitude below floor",
			Violation: gap,
		}
	}

	started := time.Now()
	plan, err := p.solveFrom(ctx, x0, xref, make([]float64, p.cfg.Horizon*len(p.mid)), started)
	guess, ok := p.encode(warm)
	if !ok || ctx.Err() != nil {
		return plan, err
	}

	warmPlan, warmErr := p.solveFrom(ctx, x0, xref, guess, started)
	switch {
	case warmErr != nil:
		if plan != nil {
			plan.Runtime = time.Since(started)
		}
		return plan, err
	case err != nil:
		return warmPlan, nil
	case warmPlan.Cost < plan.Cost*(1-warmMargin):
		warmPlan.Iterations += plan.Iterations
		warmPlan.Evaluations += plan.Evaluations
		return warmPlan, nil
	}
	plan.Iterations += warmPlan.Iterations
	plan.Evaluations += warmPlan.Evaluations
	plan.Runtime = time.Since(started)
	return plan, nil
}

// solveFrom runs the augmented Lagrangian loop from the unconstrained point
// z. The constraint is tightened by the tolerance so accepted plans never
// dip below the floor itself.
func (p *Problem) solveFrom(ctx context.Context, x0, xref dynamo.State, z []float64, started time.Time) (*Plan, error) {
	s := p.cfg.Settings
	obj := &objective{
		p:      p,
		x0:     x0.Clone(),
		xref:   xref.Clone(),
		floor:  p.cfg.AltitudeFloor + s.Tolerance,
		lambda: make([]float64, p.cfg.Horizon),
		rho:    s.Penalty,
	}

	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	iterations, evaluations := 0, 0
	violation := math.Inf(1)
	prevViolation := math.Inf(1)

	for outer := 1; outer <= s.OuterIterations; outer++ {
		settings := &optimize.Settings{
			MajorIterations:   s.MaxIterations,
			GradientThreshold: 1e-8,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-9,
				Relative:   1e-10,
				Iterations: 20,
			},
		}
		if s.Timeout > 0 {
			remaining := s.Timeout - time.Since(started)
			if remaining <= 0 {
				return nil, &SolveError{
					Cause:      dynamo.ErrNonConvergence,
					Reason:     "time budget exhausted",
					Violation:  violation,
					Iterations: iterations,
				}
			}
			settings.Runtime = remaining
		}

		// A linesearch failure still leaves the best point found; it is
		// treated as the end of this inner solve.
		res, err := optimize.Minimize(problem, z, settings, &optimize.LBFGS{})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &SolveError{Cause: ctxErr, Reason: "solve interrupted", Violation: violation, Iterations: iterations}
		}
		if res == nil {
			return nil, &SolveError{Cause: dynamo.ErrNonConvergence, Reason: fmt.Sprintf("inner solve failed: %v", err), Iterations: iterations}
		}

		iterations += res.Stats.MajorIterations
		evaluations += res.Stats.FuncEvaluations
		z = append(z[:0], res.X...)

		controls := p.controls(z)
		states := p.Rollout(x0, controls)
		cost := p.Cost(states, controls, xref)
		violation = p.Violation(states)

		if math.IsNaN(cost) || math.IsInf(cost, 0) {
			return nil, &SolveError{Cause: dynamo.ErrNonConvergence, Reason: "objective is not finite", Violation: violation, Iterations: iterations}
		}

		if violation <= 0 {
			return &Plan{
				States:          states,
				Controls:        controls,
				Dt:              p.cfg.Dt,
				Cost:            cost,
				Violation:       violation,
				Iterations:      iterations,
				Evaluations:     evaluations,
				OuterIterations: outer,
				Runtime:         time.Since(started),
			}, nil
		}

		if budgetExhausted(res.Status) {
			return nil, &SolveError{
				Cause:      dynamo.ErrNonConvergence,
				Reason:     fmt.Sprintf("inner solve stopped: %v", res.Status),
				Violation:  violation,
				Iterations: iterations,
			}
		}

		obj.updateMultipliers(states)
		if violation > 0.25*prevViolation {
			obj.rho = math.Min(obj.rho*10, 1e12)
		}
		prevViolation = violation
	}

	return nil, &SolveError{
		Cause:      dynamo.ErrInfeasible,
		Reason:     "altitude floor still violated",
		Violation:  violation,
		Iterations: iterations,
	}
}

func (p *Problem) checkInputs(x0, xref dynamo.State) error {
	n := p.cfg.Model.StateDim()
	if len(x0) != n {
		return fmt.Errorf("%w: initial state has %d components, model needs %d", dynamo.ErrDimensionMismatch, len(x0), n)
	}
	if len(xref) != n {
		return fmt.Errorf("%w: reference has %d components, model needs %d", dynamo.ErrDimensionMismatch, len(xref), n)
	}
	if !x0.IsValid() {
		return fmt.Errorf("%w: initial state %v", dynamo.ErrInvalidState, x0)
	}
	if !xref.IsValid() {
		return fmt.Errorf("%w: reference %v", dynamo.ErrInvalidState, xref)
	}
	return nil
}

func budgetExhausted(status optimize.Status) bool {
	switch status {
	case optimize.IterationLimit, optimize.RuntimeLimit,
		optimize.FunctionEvaluationLimit, optimize.GradientEvaluationLimit:
		return true
	}
	return false
}

// objective is the augmented Lagrangian of one solve against floor. lambda[k]
// is the multiplier of the floor constraint on state k+1.
type objective struct {
	p      *Problem
	x0     dynamo.State
	xref   dynamo.State
	floor  float64
	lambda []float64
	rho    float64
}

func (o *objective) value(z []float64) float64 {
	p := o.p
	controls := p.controls(z)
	states := p.Rollout(o.x0, controls)

	f := p.Cost(states, controls, o.xref)
	for k, x := range states[1:] {
		a := math.Max(0, o.lambda[k]+o.rho*(o.floor-x[dynamo.IdxY]))
		f += (a*a - o.lambda[k]*o.lambda[k]) / (2 * o.rho)
	}
	return f
}

// floorSlope is the derivative of the penalty term of state k (k >= 1) with
// respect to its altitude.
func (o *objective) floorSlope(k int, y float64) float64 {
	return -math.Max(0, o.lambda[k-1]+o.rho*(o.floor-y))
}

func (o *objective) gradient(grad, z []float64) {
	p := o.p
	horizon, dt := p.cfg.Horizon, p.cfg.Dt
	n, m := len(o.x0), len(p.mid)
	controls := p.controls(z)

	states := make([]dynamo.State, horizon+1)
	fx := make([]*mat.Dense, horizon)
	fu := make([]*mat.Dense, horizon)
	states[0] = o.x0
	for k := 0; k < horizon; k++ {
		states[k+1], fx[k], fu[k] = p.cfg.Integrator.StepJacobian(p.cfg.Model, states[k], controls[k], float64(k)*dt, dt)
	}

	adj := mat.NewVecDense(n, nil)
	adj.MulVec(p.qf, mat.NewVecDense(n, states[horizon].Sub(o.xref)))
	adj.ScaleVec(2, adj)
	adj.SetVec(dynamo.IdxY, adj.AtVec(dynamo.IdxY)+o.floorSlope(horizon, states[horizon][dynamo.IdxY]))

	gu := mat.NewVecDense(m, nil)
	qe := mat.NewVecDense(n, nil)
	for k := horizon - 1; k >= 0; k-- {
		gu.MulVec(fu[k].T(), adj)
		for j := 0; j < m; j++ {
			th := math.Tanh(z[k*m+j])
			g := gu.AtVec(j) + 2*p.r.At(j, j)*controls[k][j]
			grad[k*m+j] = g * p.half[j] * (1 - th*th)
		}
		if k == 0 {
			break
		}

		next := mat.NewVecDense(n, nil)
		next.MulVec(fx[k].T(), adj)
		qe.MulVec(p.q, mat.NewVecDense(n, states[k].Sub(o.xref)))
		next.AddScaledVec(next, 2, qe)
		next.SetVec(dynamo.IdxY, next.AtVec(dynamo.IdxY)+o.floorSlope(k, states[k][dynamo.IdxY]))
		adj = next
	}
}

func (o *objective) updateMultipliers(states []dynamo.State) {
	for k, x := range states[1:] {
		o.lambda[k] = math.Max(0, o.lambda[k]+o.rho*(o.floor-x[dynamo.IdxY]))
	}
}
