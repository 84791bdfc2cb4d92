package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/control"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/integrators"
	"github.com/san-kum/rocketmpc/internal/logging"
	"github.com/san-kum/rocketmpc/internal/metrics"
	"github.com/san-kum/rocketmpc/internal/mission"
	"github.com/san-kum/rocketmpc/internal/ocp"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/storage"
)

// Mission is a fully wired closed loop built from one configuration. The
// controller, sequencer and simulator are owned by the mission and must not
// be shared between goroutines.
type Mission struct {
	Config     *config.Config
	Plant      dynamo.System
	Model      dynamo.Linearizable
	Problem    *ocp.Problem
	Controller *control.MPC
	Sequencer  *mission.Sequencer
	Simulator  *sim.Simulator
	X0         dynamo.State
}

// Build validates cfg and assembles the plant, the controller's internal
// model and the receding-horizon loop around them.
func Build(cfg *config.Config, logger *logging.Logger) (*Mission, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := NewRegistry()
	model, err := reg.Model(cfg.Model, cfg)
	if err != nil {
		return nil, err
	}
	plant, err := reg.Model(cfg.PlantModelName(), cfg)
	if err != nil {
		return nil, err
	}
	stepper, err := reg.Integrator(cfg.PlantIntegrator)
	if err != nil {
		return nil, err
	}
	fallback, err := control.ParseFallback(cfg.Solver.Fallback)
	if err != nil {
		return nil, err
	}

	problem, err := ocp.NewProblem(ocp.Config{
		Model:      model,
		Integrator: integrators.NewRK4(),
		Horizon:    cfg.Horizon.Steps,
		Dt:         cfg.Horizon.Dt,
		Bounds: ocp.Bounds{
			Min: dynamo.Control(append([]float64(nil), cfg.Bounds.Min...)),
			Max: dynamo.Control(append([]float64(nil), cfg.Bounds.Max...)),
		},
		AltitudeFloor: cfg.AltitudeFloor,
		Weights: ocp.Weights{
			Q:  cfg.Weights.Q,
			R:  cfg.Weights.R,
			Qf: cfg.Weights.Qf,
		},
		Settings: ocp.Settings{
			MaxIterations:   cfg.Solver.MaxIterations,
			OuterIterations: cfg.Solver.OuterIterations,
			Tolerance:       cfg.Solver.Tolerance,
			Penalty:         cfg.Solver.Penalty,
			Timeout:         cfg.Solver.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}

	seq, err := mission.New(cfg.WaypointStates(), cfg.Threshold)
	if err != nil {
		return nil, err
	}

	mpc := control.NewMPC(problem,
		control.WithWarmStart(cfg.Solver.WarmStart),
		control.WithFallback(fallback),
		control.WithLogger(logger),
	)

	s := sim.New(plant, stepper, mpc, seq)
	s.SetLogger(logger)
	for _, m := range metrics.Standard(plant, problem.Bounds().Min, problem.Bounds().Max) {
		s.AddMetric(m)
	}

	return &Mission{
		Config:     cfg,
		Plant:      plant,
		Model:      model,
		Problem:    problem,
		Controller: mpc,
		Sequencer:  seq,
		Simulator:  s,
		X0:         cfg.InitialStateVector(),
	}, nil
}

func (m *Mission) SimConfig() sim.Config {
	return sim.Config{
		Dt:            m.Config.Horizon.Dt,
		Duration:      m.Config.Duration,
		ValidateState: true,
	}
}

// Start resets the controller and opens a session for stepping the mission
// one cycle at a time.
func (m *Mission) Start() (*sim.Session, error) {
	m.Controller.Reset()
	return m.Simulator.Start(m.X0, m.SimConfig())
}

// Run flies the whole mission. On failure the partial result is returned
// with the error.
func (m *Mission) Run(ctx context.Context) (*sim.Result, error) {
	m.Controller.Reset()
	return m.Simulator.Run(ctx, m.X0, m.SimConfig())
}

// Metadata describes the mission for the run store.
func (m *Mission) Metadata(name string) storage.RunMetadata {
	cfg := m.Config
	return storage.RunMetadata{
		Name:            name,
		Model:           cfg.Model,
		PlantModel:      cfg.PlantModelName(),
		PlantIntegrator: cfg.PlantIntegrator,
		Timestamp:       time.Now(),
		Dt:              cfg.Horizon.Dt,
		Horizon:         cfg.Horizon.Steps,
		Duration:        cfg.Duration,
		Threshold:       cfg.Threshold,
		Waypoints:       cfg.Clone().Waypoints,
		AltitudeFloor:   cfg.AltitudeFloor,
	}
}

// Record fills the outcome and the controller counters into meta.
func (m *Mission) Record(meta *storage.RunMetadata, result *sim.Result, runErr error) {
	meta.Finish(result, runErr)
	diag := m.Controller.Diagnostics()
	meta.Solves = diag.Solves
	meta.Fallbacks = diag.Fallbacks
}

// SweepOptions describes an ensemble of missions whose initial positions
// are scattered around the configured one.
type SweepOptions struct {
	Runs    int
	Workers int
	// Spread is the half-width of the uniform offset added to x and y.
	Spread float64
	Seed   int64
}

// Sweep flies opts.Runs independent missions built from cfg. Offsets that
// would start below the altitude floor are clamped onto it.
func Sweep(ctx context.Context, cfg *config.Config, opts SweepOptions, logger *logging.Logger) ([]sim.Outcome, error) {
	if opts.Runs <= 0 {
		return nil, fmt.Errorf("%w: sweep needs at least one run, got %d", dynamo.ErrInvalidConfig, opts.Runs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	factory := func(run int) (*sim.Simulator, dynamo.State, error) {
		m, err := Build(cfg.Clone(), logger.With("run", run))
		if err != nil {
			return nil, nil, err
		}
		rng := rand.New(rand.NewSource(opts.Seed + int64(run)))
		x0 := m.X0.Clone()
		x0[dynamo.IdxX] += opts.Spread * (2*rng.Float64() - 1)
		x0[dynamo.IdxY] = math.Max(cfg.AltitudeFloor, x0[dynamo.IdxY]+opts.Spread*(2*rng.Float64()-1))
		return m.Simulator, x0, nil
	}

	simCfg := sim.Config{Dt: cfg.Horizon.Dt, Duration: cfg.Duration, ValidateState: true}
	return sim.NewEnsemble(factory, opts.Runs, opts.Workers).Run(ctx, simCfg), nil
}
