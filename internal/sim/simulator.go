package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/logging"
	"github.com/san-kum/rocketmpc/internal/mission"
)

// Simulator closes the loop between a controller and a plant. The plant
// model and integrator are independent of whatever the controller predicts
// with.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	sequencer  *mission.Sequencer
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *logging.Logger
}

func New(plant dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller, sequencer *mission.Sequencer) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		sequencer:  sequencer,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		logger:     logging.Discard(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(l *logging.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Simulator) Sequencer() *mission.Sequencer { return s.sequencer }

// Run flies the whole mission. On a failed cycle it returns the history up
// to that cycle together with a *dynamo.SimulationError.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	session, err := s.Start(x0, cfg)
	if err != nil {
		return nil, err
	}

	for !session.Done() {
		if err := session.Step(ctx); err != nil {
			return session.Result(), err
		}
	}

	return session.Result(), nil
}

// Start validates the setup and returns a session positioned before the
// first cycle. The sequencer and metrics are reset.
func (s *Simulator) Start(x0 dynamo.State, cfg Config) (*Session, error) {
	if err := s.validate(x0, cfg); err != nil {
		return nil, err
	}

	s.sequencer.Reset()
	for _, m := range s.metrics {
		m.Reset()
	}

	steps := cfg.Steps()
	return &Session{
		sim:   s,
		cfg:   cfg,
		steps: steps,
		x:     x0.Clone(),
		result: &Result{
			History: newHistory(x0, s.sequencer.Index(), steps),
			Metrics: make(map[string]float64),
		},
	}, nil
}

func (s *Simulator) validate(x0 dynamo.State, cfg Config) error {
	switch {
	case s.plant == nil || s.integrator == nil || s.controller == nil || s.sequencer == nil:
		return fmt.Errorf("%w: simulator needs a plant, integrator, controller and sequencer", dynamo.ErrInvalidConfig)
	case !(cfg.Dt > 0):
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrInvalidConfig, cfg.Dt)
	case !(cfg.Duration > 0):
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrInvalidConfig, cfg.Duration)
	case cfg.Steps() < 1:
		return fmt.Errorf("%w: duration %f is shorter than one step of %f", dynamo.ErrInvalidConfig, cfg.Duration, cfg.Dt)
	case len(x0) != s.plant.StateDim():
		return fmt.Errorf("%w: initial state has %d components, plant needs %d", dynamo.ErrDimensionMismatch, len(x0), s.plant.StateDim())
	case !x0.IsValid():
		return fmt.Errorf("%w: initial state %v", dynamo.ErrInvalidState, x0)
	}
	return nil
}
