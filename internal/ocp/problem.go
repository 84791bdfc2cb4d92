package ocp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultMaxIterations   = 200
	DefaultOuterIterations = 10
	DefaultTolerance       = 1e-4
	DefaultPenalty         = 1e3
)

// saturation bounds |tanh(z)| when encoding a warm start. Past it the tanh
// slope is too flat for the gradient to move a control off its bound.
const saturation = 0.99

// Weights holds the diagonals of the stage, control and terminal weights.
type Weights struct {
	Q  []float64
	R  []float64
	Qf []float64
}

type Bounds struct {
	Min dynamo.Control
	Max dynamo.Control
}

// Settings caps the work done by one Solve. Zero values select the defaults.
type Settings struct {
	// MaxIterations caps L-BFGS iterations per outer iteration.
	MaxIterations int
	// OuterIterations caps augmented Lagrangian multiplier updates.
	OuterIterations int
	// Tolerance is the accepted altitude floor violation in state units.
	Tolerance float64
	// Penalty is the initial augmented Lagrangian penalty.
	Penalty float64
	// Timeout bounds the wall-clock time of one Solve. Zero means no limit.
	Timeout time.Duration
}

type Config struct {
	Model         dynamo.Linearizable
	Integrator    dynamo.SensitivityIntegrator
	Horizon       int
	Dt            float64
	Bounds        Bounds
	AltitudeFloor float64
	Weights       Weights
	Settings      Settings
}

type Problem struct {
	cfg Config

	q, r, qf *mat.DiagDense

	mid  []float64
	half []float64
}

func NewProblem(cfg Config) (*Problem, error) {
	cfg.Settings = withDefaults(cfg.Settings)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	m := len(cfg.Bounds.Min)
	p := &Problem{
		cfg:  cfg,
		q:    mat.NewDiagDense(len(cfg.Weights.Q), append([]float64(nil), cfg.Weights.Q...)),
		r:    mat.NewDiagDense(len(cfg.Weights.R), append([]float64(nil), cfg.Weights.R...)),
		qf:   mat.NewDiagDense(len(cfg.Weights.Qf), append([]float64(nil), cfg.Weights.Qf...)),
		mid:  make([]float64, m),
		half: make([]float64, m),
	}
	for j := 0; j < m; j++ {
		p.mid[j] = 0.5 * (cfg.Bounds.Max[j] + cfg.Bounds.Min[j])
		p.half[j] = 0.5 * (cfg.Bounds.Max[j] - cfg.Bounds.Min[j])
	}

	return p, nil
}

func withDefaults(s Settings) Settings {
	if s.MaxIterations == 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.OuterIterations == 0 {
		s.OuterIterations = DefaultOuterIterations
	}
	if s.Tolerance == 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.Penalty == 0 {
		s.Penalty = DefaultPenalty
	}
	return s
}

func validate(cfg Config) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{dynamo.ErrInvalidConfig}, args...)...))
	}

	if cfg.Model == nil {
		invalid("model is required")
	}
	if cfg.Integrator == nil {
		invalid("integrator is required")
	}
	if cfg.Horizon <= 0 {
		invalid("horizon must be positive, got %d", cfg.Horizon)
	}
	if cfg.Dt <= 0 || math.IsNaN(cfg.Dt) || math.IsInf(cfg.Dt, 0) {
		invalid("step size must be positive and finite, got %g", cfg.Dt)
	}
	if math.IsNaN(cfg.AltitudeFloor) || math.IsInf(cfg.AltitudeFloor, 0) {
		invalid("altitude floor must be finite, got %g", cfg.AltitudeFloor)
	}

	s := cfg.Settings
	if s.MaxIterations < 0 || s.OuterIterations < 0 {
		invalid("iteration caps must be non-negative")
	}
	if s.Tolerance < 0 || s.Penalty < 0 || s.Timeout < 0 {
		invalid("tolerance, penalty and timeout must be non-negative")
	}

	if cfg.Model == nil {
		return errors.Join(errs...)
	}

	n, m := cfg.Model.StateDim(), cfg.Model.ControlDim()
	if len(cfg.Bounds.Min) != m || len(cfg.Bounds.Max) != m {
		invalid("bounds need %d components, got min=%d max=%d", m, len(cfg.Bounds.Min), len(cfg.Bounds.Max))
	} else {
		for j := 0; j < m; j++ {
			lower, upper := cfg.Bounds.Min[j], cfg.Bounds.Max[j]
			if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
				invalid("bound %d must be finite", j)
			} else if lower > upper {
				invalid("bound %d has min %g > max %g", j, lower, upper)
			}
		}
	}

	checkDiag := func(name string, w []float64, size int) {
		if len(w) != size {
			invalid("%s needs %d diagonal entries, got %d", name, size, len(w))
			return
		}
		for i, v := range w {
			if !(v > 0) || math.IsInf(v, 0) {
				invalid("%s[%d] must be positive, got %g", name, i, v)
			}
		}
	}
	checkDiag("Q", cfg.Weights.Q, n)
	checkDiag("R", cfg.Weights.R, m)
	checkDiag("Qf", cfg.Weights.Qf, n)

	return errors.Join(errs...)
}

func (p *Problem) Horizon() int { return p.cfg.Horizon }

func (p *Problem) Dt() float64 { return p.cfg.Dt }

func (p *Problem) AltitudeFloor() float64 { return p.cfg.AltitudeFloor }

func (p *Problem) Settings() Settings { return p.cfg.Settings }

func (p *Problem) Bounds() Bounds { return p.cfg.Bounds }

// Plan is the outcome of one successful solve: N+1 predicted states and the
// N controls that produce them.
type Plan struct {
	States   []dynamo.State
	Controls []dynamo.Control
	Dt       float64

	Cost            float64
	Violation       float64
	Iterations      int
	Evaluations     int
	OuterIterations int
	Runtime         time.Duration
}

// First returns the control a receding-horizon loop applies.
func (p *Plan) First() dynamo.Control {
	return p.Controls[0].Clone()
}

// Shift drops the first control and repeats the last one, giving a warm start
// for the next cycle.
func (p *Plan) Shift() []dynamo.Control {
	if p == nil || len(p.Controls) == 0 {
		return nil
	}
	out := make([]dynamo.Control, 0, len(p.Controls))
	for _, u := range p.Controls[1:] {
		out = append(out, u.Clone())
	}
	return append(out, p.Controls[len(p.Controls)-1].Clone())
}

// Rollout predicts the states reached from x0 under controls.
func (p *Problem) Rollout(x0 dynamo.State, controls []dynamo.Control) []dynamo.State {
	states := make([]dynamo.State, len(controls)+1)
	states[0] = x0.Clone()
	for k, u := range controls {
		states[k+1] = p.cfg.Integrator.Step(p.cfg.Model, states[k], u, float64(k)*p.cfg.Dt, p.cfg.Dt)
	}
	return states
}

// Cost is the quadratic tracking objective: stage terms for k = 0..N-1 and
// one terminal term on the last state.
func (p *Problem) Cost(states []dynamo.State, controls []dynamo.Control, xref dynamo.State) float64 {
	total := 0.0
	for k, u := range controls {
		e := mat.NewVecDense(len(xref), states[k].Sub(xref))
		uv := mat.NewVecDense(len(u), u.Clone())
		total += mat.Inner(e, p.q, e) + mat.Inner(uv, p.r, uv)
	}
	last := len(states) - 1
	e := mat.NewVecDense(len(xref), states[last].Sub(xref))
	return total + mat.Inner(e, p.qf, e)
}

// Violation is the largest altitude deficit below the floor over the
// predicted states x_1..x_N.
func (p *Problem) Violation(states []dynamo.State) float64 {
	worst := 0.0
	for _, x := range states[1:] {
		worst = math.Max(worst, p.cfg.AltitudeFloor-x[dynamo.IdxY])
	}
	return worst
}

// controls decodes the unconstrained variables into bounded controls.
func (p *Problem) controls(z []float64) []dynamo.Control {
	m := len(p.mid)
	out := make([]dynamo.Control, p.cfg.Horizon)
	for k := range out {
		u := make(dynamo.Control, m)
		for j := 0; j < m; j++ {
			v := p.mid[j] + p.half[j]*math.Tanh(z[k*m+j])
			u[j] = lo.Clamp(v, p.cfg.Bounds.Min[j], p.cfg.Bounds.Max[j])
		}
		out[k] = u
	}
	return out
}

// encode maps a control sequence back to unconstrained variables. It reports
// false, with the bound midpoints, when the sequence does not fit the horizon.
func (p *Problem) encode(controls []dynamo.Control) ([]float64, bool) {
	m := len(p.mid)
	z := make([]float64, p.cfg.Horizon*m)
	if len(controls) != p.cfg.Horizon {
		return z, false
	}
	for _, u := range controls {
		if len(u) != m || !dynamo.State(u).IsValid() {
			return z, false
		}
	}

	for k, u := range controls {
		for j := 0; j < m; j++ {
			if p.half[j] == 0 {
				continue
			}
			s := lo.Clamp((u[j]-p.mid[j])/p.half[j], -saturation, saturation)
			z[k*m+j] = math.Atanh(s)
		}
	}
	return z, true
}
