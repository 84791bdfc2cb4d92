package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/logging"
	"github.com/san-kum/rocketmpc/internal/ocp"
)

// Solver computes a plan from x0 towards xref. *ocp.Problem implements it.
type Solver interface {
	Solve(ctx context.Context, x0, xref dynamo.State, warm []dynamo.Control) (*ocp.Plan, error)
}

type FallbackPolicy string

const (
	// FallbackHalt propagates every solve failure.
	FallbackHalt FallbackPolicy = "halt"
	// FallbackShift answers a non-converged solve with the next unused
	// control of the last successful plan, while one remains.
	FallbackShift FallbackPolicy = "shift"
)

func ParseFallback(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", FallbackHalt:
		return FallbackHalt, nil
	case FallbackShift:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown fallback policy %q", dynamo.ErrInvalidConfig, s)
	}
}

type Diagnostics struct {
	Solves         int
	Failures       int
	Fallbacks      int
	LastCost       float64
	LastIterations int
	LastRuntime    time.Duration
	TotalRuntime   time.Duration
}

type MPC struct {
	solver    Solver
	warmStart bool
	fallback  FallbackPolicy
	logger    *logging.Logger

	// pending holds the unused tail of the last successful plan.
	pending []dynamo.Control
	horizon int

	diag Diagnostics
}

type Option func(*MPC)

func WithWarmStart(enabled bool) Option {
	return func(c *MPC) { c.warmStart = enabled }
}

func WithFallback(policy FallbackPolicy) Option {
	return func(c *MPC) { c.fallback = policy }
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *MPC) { c.logger = logger }
}

func NewMPC(solver Solver, opts ...Option) *MPC {
	c := &MPC{
		solver:    solver,
		warmStart: true,
		fallback:  FallbackHalt,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute solves once from x towards ref and returns the plan's first control.
func (c *MPC) Compute(ctx context.Context, x dynamo.State, ref dynamo.State) (dynamo.Control, error) {
	var warm []dynamo.Control
	if c.warmStart {
		warm = c.warmGuess()
	}

	plan, err := c.solver.Solve(ctx, x, ref, warm)
	c.diag.Solves++
	if err != nil {
		c.diag.Failures++
		if c.fallback == FallbackShift && errors.Is(err, dynamo.ErrNonConvergence) && len(c.pending) > 0 {
			u := c.pending[0]
			c.pending = c.pending[1:]
			c.diag.Fallbacks++
			c.logger.Warn(ctx, "solve did not converge, reusing previous plan", "remaining", len(c.pending), "cause", err.Error())
			return u.Clone(), nil
		}
		c.pending = nil
		return nil, err
	}

	c.diag.LastCost = plan.Cost
	c.diag.LastIterations = plan.Iterations
	c.diag.LastRuntime = plan.Runtime
	c.diag.TotalRuntime += plan.Runtime

	c.horizon = len(plan.Controls)
	c.pending = c.pending[:0]
	for _, u := range plan.Controls[1:] {
		c.pending = append(c.pending, u.Clone())
	}

	c.logger.Debug(ctx, "solve", "cost", plan.Cost, "iterations", plan.Iterations, "outer", plan.OuterIterations, "runtime", plan.Runtime)
	return plan.First(), nil
}

// warmGuess pads the unused plan tail with its last control up to the horizon.
func (c *MPC) warmGuess() []dynamo.Control {
	if len(c.pending) == 0 {
		return nil
	}
	warm := make([]dynamo.Control, 0, c.horizon)
	for _, u := range c.pending {
		warm = append(warm, u.Clone())
	}
	last := c.pending[len(c.pending)-1]
	for len(warm) < c.horizon {
		warm = append(warm, last.Clone())
	}
	return warm
}

func (c *MPC) Diagnostics() Diagnostics {
	return c.diag
}

// Reset drops the cached plan and the counters.
func (c *MPC) Reset() {
	c.pending = nil
	c.horizon = 0
	c.diag = Diagnostics{}
}
