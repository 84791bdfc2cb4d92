package experiment

import (
	"context"
	"testing"

	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/physics"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortHop() *config.Config {
	cfg := config.GetPreset("hop")
	cfg.Duration = 2
	return cfg
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"pointmass", "rocket"}, r.ListModels())
	assert.Equal(t, []string{"euler", "rk4"}, r.ListIntegrators())

	_, err := r.Model("glider", config.DefaultConfig())
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	_, err = r.Integrator("leapfrog")
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestRocketFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	r := NewRegistry()

	model, err := r.Model("rocket", cfg)
	require.NoError(t, err)
	rocket := model.(*physics.Rocket)
	assert.InDelta(t, physics.CylinderInertia(30, 5, 13), rocket.Inertia, 1e-12)
	assert.Equal(t, cfg.Body.Radius, rocket.BodyRadius)
	assert.Equal(t, cfg.Body.AltitudeScale, rocket.AltitudeScale)

	cfg.Vehicle.Inertia = 42
	model, err = r.Model("rocket", cfg)
	require.NoError(t, err)
	assert.Equal(t, 42.0, model.(*physics.Rocket).Inertia)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cfg := shortHop()
	cfg.Threshold = 0
	_, err := Build(cfg, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	cfg = shortHop()
	cfg.Model = "glider"
	_, err = Build(cfg, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestBuildPlantModelOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PlantModel = "pointmass"
	cfg.PlantIntegrator = "euler"

	m, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &physics.Rocket{}, m.Model)
	assert.IsType(t, &physics.PointMass{}, m.Plant)
	assert.Equal(t, 20, m.Problem.Horizon())
	assert.Equal(t, 9, m.Sequencer.Len())
}

func TestMissionRun(t *testing.T) {
	m, err := Build(shortHop(), nil)
	require.NoError(t, err)

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 21, res.Len())
	assert.Len(t, res.Controls, 20)
	assert.Contains(t, res.Metrics, "min_altitude")
	assert.Greater(t, res.Final()[dynamo.IdxX], 0.0, "the vehicle heads for the first waypoint")

	meta := m.Metadata("hop")
	m.Record(&meta, res, nil)
	assert.Equal(t, storage.StatusCompleted, meta.Status)
	assert.Equal(t, 20, meta.Steps)
	assert.Equal(t, 20, meta.Solves)
	assert.Equal(t, "pointmass", meta.PlantModel)

	// a second run starts from scratch
	again, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.States, again.States)
	assert.Equal(t, 20, m.Controller.Diagnostics().Solves)
}

func TestHopPresetSettlesWithWarmStart(t *testing.T) {
	final := map[bool]dynamo.State{}
	for _, warm := range []bool{true, false} {
		cfg := config.GetPreset("hop")
		cfg.Solver.WarmStart = warm
		m, err := Build(cfg, nil)
		require.NoError(t, err)

		res, err := m.Run(context.Background())
		require.NoError(t, err)
		require.True(t, res.Completed)
		final[warm] = res.Final()

		assert.InDelta(t, 200, res.Final()[dynamo.IdxX], 5, "warm start %v", warm)
		assert.InDelta(t, 0, res.Final()[dynamo.IdxVX], 1, "warm start %v", warm)
	}
	assert.Less(t, final[true].PlanarDistance(final[false]), 1.0)
}

func TestMissionSession(t *testing.T) {
	m, err := Build(shortHop(), nil)
	require.NoError(t, err)

	ss, err := m.Start()
	require.NoError(t, err)
	for !ss.Done() {
		require.NoError(t, ss.Step(context.Background()))
	}
	assert.Equal(t, 20, ss.StepIndex())
	assert.True(t, ss.Result().Completed)
}

func TestSweep(t *testing.T) {
	cfg := shortHop()
	cfg.Duration = 1

	outcomes, err := Sweep(context.Background(), cfg, SweepOptions{Runs: 3, Workers: 2, Spread: 5, Seed: 7}, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Zero(t, sim.Failures(outcomes))

	for i, o := range outcomes {
		assert.Equal(t, i, o.Run)
		assert.InDelta(t, 0, o.X0[dynamo.IdxX], 5)
		assert.InDelta(t, 50, o.X0[dynamo.IdxY], 5)
		assert.Equal(t, 11, o.Result.Len())
	}
	assert.NotEqual(t, outcomes[0].X0, outcomes[1].X0)

	_, err = Sweep(context.Background(), cfg, SweepOptions{}, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}
