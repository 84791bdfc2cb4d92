package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// Session runs a mission one control cycle at a time.
type Session struct {
	sim   *Simulator
	cfg   Config
	steps int

	step int
	t    float64
	x    dynamo.State

	result *Result
	err    error
}

// Step runs one cycle: query the active reference, solve for a control,
// advance the plant and record the new state, then let the sequencer see it.
// After a failure or the last cycle Step does nothing.
func (ss *Session) Step(ctx context.Context) error {
	if ss.Done() {
		return ss.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := ss.sim
	i := ss.step
	ref := s.sequencer.Active()
	index := s.sequencer.Index()

	u, err := s.controller.Compute(ctx, ss.x, ref)
	if err != nil {
		return ss.halt(ctx, err)
	}
	if len(u) != s.plant.ControlDim() {
		return ss.halt(ctx, fmt.Errorf("%w: controller returned %d components, plant needs %d", dynamo.ErrDimensionMismatch, len(u), s.plant.ControlDim()))
	}

	for _, m := range s.metrics {
		m.Observe(ss.x, u, ref, ss.t)
	}
	for _, obs := range s.observers {
		obs.OnStep(ss.x, u, ss.t, index)
	}

	next := s.integrator.Step(s.plant, ss.x, u, ss.t, ss.cfg.Dt)
	if ss.cfg.ValidateState && !next.IsValid() {
		return ss.halt(ctx, fmt.Errorf("%w: plant produced %v", dynamo.ErrInvalidState, next))
	}

	ss.x = next
	ss.t = float64(i+1) * ss.cfg.Dt
	ss.step++

	if s.sequencer.Update(ss.x) {
		s.logger.Info(ctx, "waypoint reached",
			"step", i, "t", ss.t, "next", s.sequencer.Index(), "of", s.sequencer.Len())
	}
	ss.result.append(ss.t, ss.x, u, s.sequencer.Index())
	ss.result.StepsTaken = ss.step

	s.logger.Debug(ctx, "cycle", "step", i, "x", ss.x[dynamo.IdxX], "y", ss.x[dynamo.IdxY], "waypoint", index)
	return nil
}

func (ss *Session) halt(ctx context.Context, cause error) error {
	ss.err = &dynamo.SimulationError{
		Step:    ss.step,
		Time:    ss.t,
		State:   ss.x.Clone(),
		Wrapped: cause,
	}
	ss.sim.logger.Error(ctx, "mission halted", cause, "step", ss.step, "t", ss.t)
	return ss.err
}

// Done reports whether the mission finished or halted.
func (ss *Session) Done() bool {
	return ss.err != nil || ss.step >= ss.steps
}

// Err is the error that halted the mission, if any.
func (ss *Session) Err() error { return ss.err }

func (ss *Session) State() dynamo.State { return ss.x.Clone() }

func (ss *Session) Time() float64 { return ss.t }

func (ss *Session) StepIndex() int { return ss.step }

func (ss *Session) Steps() int { return ss.steps }

// Waypoint is the index of the reference the next cycle will use.
func (ss *Session) Waypoint() int { return ss.sim.sequencer.Index() }

// Result returns the mission record so far with current metric values.
func (ss *Session) Result() *Result {
	for _, m := range ss.sim.metrics {
		ss.result.Metrics[m.Name()] = m.Value()
	}
	ss.result.Completed = ss.err == nil && ss.step >= ss.steps
	return ss.result
}
