package ocp

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func TestSolveRespectsControlBounds(t *testing.T) {
	p, err := NewProblem(rocketConfig())
	require.NoError(t, err)

	x0 := dynamo.State{0, 100, 0, 10, 0, 0}
	ref := dynamo.State{150, 100, math.Pi / 4, 10, 0, 0}

	plan, err := p.Solve(context.Background(), x0, ref, nil)
	require.NoError(t, err)
	require.Len(t, plan.Controls, 10)
	require.Len(t, plan.States, 11)

	assert.Equal(t, x0, plan.States[0])
	for k, u := range plan.Controls {
		for j := range u {
			assert.GreaterOrEqual(t, u[j], p.Bounds().Min[j], "u[%d][%d]", k, j)
			assert.LessOrEqual(t, u[j], p.Bounds().Max[j], "u[%d][%d]", k, j)
		}
	}
	assert.True(t, plan.Cost > 0 && !math.IsInf(plan.Cost, 0))
}

func TestSolvePlanFollowsDynamics(t *testing.T) {
	p, err := NewProblem(pointMassConfig())
	require.NoError(t, err)

	x0 := dynamo.State{0, 50, 0, 0, 0, 0}
	ref := dynamo.State{100, 50, 0, 0, 0, 0}

	plan, err := p.Solve(context.Background(), x0, ref, nil)
	require.NoError(t, err)

	replay := p.Rollout(x0, plan.Controls)
	for k := range replay {
		assert.Equal(t, replay[k], plan.States[k])
	}
	assert.Greater(t, plan.States[len(plan.States)-1][dynamo.IdxX], 0.0)
}

func TestSolveKeepsAltitudeAboveFloor(t *testing.T) {
	cfg := pointMassConfig()
	cfg.Settings = Settings{Tolerance: 1e-3, OuterIterations: 15}
	p, err := NewProblem(cfg)
	require.NoError(t, err)

	// Descending towards a reference buried below the floor.
	x0 := dynamo.State{0, 5, 0, 0, -5, 0}
	ref := dynamo.State{0, -20, 0, 0, 0, 0}

	plan, err := p.Solve(context.Background(), x0, ref, nil)
	require.NoError(t, err)

	for k, x := range plan.States {
		assert.GreaterOrEqual(t, x[dynamo.IdxY], 0.0, "state %d", k)
	}
	assert.Zero(t, plan.Violation)

	free := pointMassConfig()
	free.AltitudeFloor = -100
	unconstrained, err := NewProblem(free)
	require.NoError(t, err)

	loose, err := unconstrained.Solve(context.Background(), x0, ref, nil)
	require.NoError(t, err)
	assert.Less(t, loose.States[len(loose.States)-1][dynamo.IdxY], -0.1)
}

func TestSolveRejectsStartJustBelowFloor(t *testing.T) {
	cfg := pointMassConfig()
	cfg.Settings.Tolerance = 1e-3
	p, err := NewProblem(cfg)
	require.NoError(t, err)
	ref := dynamo.State{100, 50, 0, 0, 0, 0}

	_, err = p.Solve(context.Background(), dynamo.State{0, -1e-6, 0, 0, 0, 0}, ref, nil)
	require.ErrorIs(t, err, dynamo.ErrInfeasible)

	plan, err := p.Solve(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, ref, nil)
	require.NoError(t, err)
	assert.Zero(t, plan.Violation)
}

func TestSolveInfeasibleStart(t *testing.T) {
	p, err := NewProblem(pointMassConfig())
	require.NoError(t, err)

	plan, err := p.Solve(context.Background(), dynamo.State{0, -5, 0, 0, 0, 0}, dynamo.State{100, 50, 0, 0, 0, 0}, nil)
	assert.Nil(t, plan)
	require.ErrorIs(t, err, dynamo.ErrInfeasible)

	var solveErr *SolveError
	require.True(t, errors.As(err, &solveErr))
	assert.InDelta(t, 5.0, solveErr.Violation, 1e-12)
}

func TestSolveRejectsBadInputs(t *testing.T) {
	p, err := NewProblem(pointMassConfig())
	require.NoError(t, err)
	ref := dynamo.State{0, 0, 0, 0, 0, 0}

	_, err = p.Solve(context.Background(), dynamo.State{0, 1, 0}, ref, nil)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = p.Solve(context.Background(), dynamo.State{0, 1, 0, 0, 0, 0}, dynamo.State{1, 2}, nil)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = p.Solve(context.Background(), dynamo.State{0, math.NaN(), 0, 0, 0, 0}, ref, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidState)
}

func TestSolveHonorsCancellation(t *testing.T) {
	p, err := NewProblem(pointMassConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Solve(ctx, dynamo.State{0, 50, 0, 0, 0, 0}, dynamo.State{100, 50, 0, 0, 0, 0}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveTimeBudget(t *testing.T) {
	cfg := pointMassConfig()
	cfg.Settings.Timeout = time.Nanosecond
	p, err := NewProblem(cfg)
	require.NoError(t, err)

	// Falls through the floor unless the solver gets to work.
	_, err = p.Solve(context.Background(), dynamo.State{0, 5, 0, 0, -5, 0}, dynamo.State{0, -20, 0, 0, 0, 0}, nil)
	assert.ErrorIs(t, err, dynamo.ErrNonConvergence)
}

func TestSolveWarmStartMatchesColdSolve(t *testing.T) {
	p, err := NewProblem(pointMassConfig())
	require.NoError(t, err)

	// Overshooting the reference at speed: the plan has to brake hard.
	x0 := dynamo.State{250, 50, 0, 40, 0, 0}
	ref := dynamo.State{200, 50, 0, 0, 0, 0}

	cold, err := p.Solve(context.Background(), x0, ref, nil)
	require.NoError(t, err)
	require.Less(t, cold.First()[0], 0.0)

	constant := func(u dynamo.Control) []dynamo.Control {
		out := make([]dynamo.Control, p.Horizon())
		for k := range out {
			out[k] = u.Clone()
		}
		return out
	}

	tests := []struct {
		name string
		warm []dynamo.Control
	}{
		{"saturated high", constant(dynamo.Control{20, 20, 20})},
		{"saturated low", constant(dynamo.Control{-20, -20, -20})},
		{"midpoints", constant(dynamo.Control{0, 0, 0})},
		{"mixed", constant(dynamo.Control{10, -10, 5})},
		{"cold optimum", cold.Controls},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warm, err := p.Solve(context.Background(), x0, ref, tt.warm)
			require.NoError(t, err)

			assert.LessOrEqual(t, warm.Cost, cold.Cost)
			assert.InDelta(t, cold.Cost, warm.Cost, 1e-3*cold.Cost)
			assert.Less(t, warm.First()[0], 0.0)
		})
	}
}

func TestObjectiveGradientMatchesFiniteDifference(t *testing.T) {
	tests := []struct {
		name   string
		floor  float64
		lambda float64
	}{
		{"floor inactive", -1000, 0},
		{"floor active", 500, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := rocketConfig()
			cfg.Horizon = 6
			cfg.AltitudeFloor = tt.floor
			p, err := NewProblem(cfg)
			require.NoError(t, err)

			obj := &objective{
				p:      p,
				x0:     dynamo.State{0, 100, 0.3, 10, 2, 0.1},
				xref:   dynamo.State{150, 100, math.Pi / 4, 10, 0, 0},
				floor:  tt.floor,
				lambda: make([]float64, cfg.Horizon),
				rho:    10,
			}
			for k := range obj.lambda {
				obj.lambda[k] = tt.lambda
			}

			rng := rand.New(rand.NewSource(1))
			z := make([]float64, cfg.Horizon*dynamo.ControlDim)
			for i := range z {
				z[i] = 2*rng.Float64() - 1
			}

			analytic := make([]float64, len(z))
			obj.gradient(analytic, z)
			numeric := fd.Gradient(nil, obj.value, z, &fd.Settings{Formula: fd.Central})

			scale := 1.0
			for _, v := range numeric {
				scale = math.Max(scale, math.Abs(v))
			}
			for i := range z {
				if math.Abs(analytic[i]-numeric[i]) > 1e-5*scale {
					t.Errorf("component %d: analytic %.6e, numeric %.6e", i, analytic[i], numeric[i])
				}
			}
		})
	}
}
