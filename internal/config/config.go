package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/physics"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHorizon   = 20
	DefaultDt        = 0.05
	DefaultDuration  = 12.0
	DefaultThreshold = 20.0
	DefaultFloor     = 0.0

	// The reference mission flies with a body radius and altitude scale that
	// make gravity negligible over the flown altitudes.
	DefaultBodyRadius    = 8.371e9
	DefaultAltitudeScale = 1e6
)

type Config struct {
	Model           string `yaml:"model"`
	PlantModel      string `yaml:"plant_model,omitempty"`
	PlantIntegrator string `yaml:"plant_integrator"`

	Vehicle   VehicleConfig   `yaml:"vehicle"`
	Body      BodyConfig      `yaml:"body"`
	PointMass PointMassConfig `yaml:"point_mass"`

	Bounds        BoundsConfig  `yaml:"bounds"`
	Horizon       HorizonConfig `yaml:"horizon"`
	Weights       WeightsConfig `yaml:"weights"`
	AltitudeFloor float64       `yaml:"altitude_floor"`

	Threshold    float64     `yaml:"threshold"`
	Duration     float64     `yaml:"duration"`
	InitialState []float64   `yaml:"initial_state"`
	Waypoints    [][]float64 `yaml:"waypoints"`

	Solver SolverConfig `yaml:"solver"`
}

type VehicleConfig struct {
	Mass   float64 `yaml:"mass"`
	Length float64 `yaml:"length"`
	Radius float64 `yaml:"radius"`
	// Inertia overrides the solid-cylinder value when positive.
	Inertia float64 `yaml:"inertia,omitempty"`
}

type BodyConfig struct {
	Mu            float64 `yaml:"mu"`
	Radius        float64 `yaml:"radius"`
	AltitudeScale float64 `yaml:"altitude_scale"`
}

type PointMassConfig struct {
	Mass    float64 `yaml:"mass"`
	Inertia float64 `yaml:"inertia"`
	Gravity float64 `yaml:"gravity"`
}

type BoundsConfig struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

type HorizonConfig struct {
	Steps int     `yaml:"steps"`
	Dt    float64 `yaml:"dt"`
}

// WeightsConfig holds diagonals.
type WeightsConfig struct {
	Q  []float64 `yaml:"q"`
	R  []float64 `yaml:"r"`
	Qf []float64 `yaml:"qf"`
}

type SolverConfig struct {
	MaxIterations   int           `yaml:"max_iterations"`
	OuterIterations int           `yaml:"outer_iterations"`
	Tolerance       float64       `yaml:"tolerance"`
	Penalty         float64       `yaml:"penalty"`
	Timeout         time.Duration `yaml:"timeout"`
	Fallback        string        `yaml:"fallback"`
	WarmStart       bool          `yaml:"warm_start"`
}

// DefaultConfig is the nine-waypoint reference mission.
func DefaultConfig() *Config {
	return &Config{
		Model:           "rocket",
		PlantIntegrator: "rk4",
		Vehicle: VehicleConfig{
			Mass:   physics.DefaultMass,
			Length: physics.DefaultLength,
			Radius: physics.DefaultRadius,
		},
		Body: BodyConfig{
			Mu:            physics.EarthMu,
			Radius:        DefaultBodyRadius,
			AltitudeScale: DefaultAltitudeScale,
		},
		PointMass: PointMassConfig{
			Mass:    1,
			Inertia: 1,
			Gravity: physics.StandardGravity,
		},
		Bounds: BoundsConfig{
			Min: []float64{-900, -math.Pi / 4, -200},
			Max: []float64{900, math.Pi / 4, 200},
		},
		Horizon: HorizonConfig{Steps: DefaultHorizon, Dt: DefaultDt},
		Weights: WeightsConfig{
			Q:  []float64{1000, 1000, 3000, 10, 10, 1e5},
			R:  []float64{0.1, 1, 0.1},
			Qf: []float64{1000, 1000, 2000, 100, 100, 1e5},
		},
		AltitudeFloor: DefaultFloor,
		Threshold:     DefaultThreshold,
		Duration:      DefaultDuration,
		InitialState:  []float64{0, 0, 0, 10, 0, 0},
		Waypoints: [][]float64{
			{150, 100, math.Pi / 4, 10, 0, 0},
			{200, 130, math.Pi / 5, 10, 0, 0},
			{240, 145, math.Pi / 7, 10, 0, 0},
			{290, 160, 0, 200, 0, 0},
			{340, 160, 0, 200, 0, 0},
			{390, 160, 0, 200, 0, 0},
			{440, 160, 0, 200, 0, 0},
			{490, 160, 0, 200, 0, 0},
			{540, 160, 0, 200, 0, 0},
		},
		Solver: SolverConfig{
			MaxIterations:   200,
			OuterIterations: 10,
			Tolerance:       1e-4,
			Penalty:         1e3,
			Fallback:        "halt",
			WarmStart:       true,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem it finds; each one wraps
// dynamo.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{dynamo.ErrInvalidConfig}, args...)...))
	}

	if c.Horizon.Steps <= 0 {
		invalid("horizon.steps must be positive, got %d", c.Horizon.Steps)
	}
	if !(c.Horizon.Dt > 0) {
		invalid("horizon.dt must be positive, got %g", c.Horizon.Dt)
	}
	if !(c.Duration > 0) {
		invalid("duration must be positive, got %g", c.Duration)
	} else if c.Horizon.Dt > 0 && c.Steps() < 1 {
		invalid("duration %g is shorter than one step of %g", c.Duration, c.Horizon.Dt)
	}
	if !(c.Threshold > 0) {
		invalid("threshold must be positive, got %g", c.Threshold)
	}

	if len(c.InitialState) != dynamo.StateDim {
		invalid("initial_state needs %d components, got %d", dynamo.StateDim, len(c.InitialState))
	}
	if len(c.Waypoints) == 0 {
		invalid("waypoint list is empty")
	}
	for i, wp := range c.Waypoints {
		if len(wp) != dynamo.StateDim {
			invalid("waypoint %d needs %d components, got %d", i, dynamo.StateDim, len(wp))
		}
	}

	if len(c.Bounds.Min) != dynamo.ControlDim || len(c.Bounds.Max) != dynamo.ControlDim {
		invalid("bounds need %d components, got min=%d max=%d", dynamo.ControlDim, len(c.Bounds.Min), len(c.Bounds.Max))
	} else {
		for i := range c.Bounds.Min {
			if c.Bounds.Min[i] > c.Bounds.Max[i] {
				invalid("bound %d has min %g > max %g", i, c.Bounds.Min[i], c.Bounds.Max[i])
			}
		}
	}

	checkDiag := func(name string, w []float64, size int) {
		if len(w) != size {
			invalid("weights.%s needs %d entries, got %d", name, size, len(w))
			return
		}
		if bad := lo.Filter(w, func(v float64, _ int) bool { return !(v > 0) }); len(bad) > 0 {
			invalid("weights.%s must be positive, got %v", name, w)
		}
	}
	checkDiag("q", c.Weights.Q, dynamo.StateDim)
	checkDiag("r", c.Weights.R, dynamo.ControlDim)
	checkDiag("qf", c.Weights.Qf, dynamo.StateDim)

	if !(c.Vehicle.Mass > 0) || !(c.Vehicle.Length > 0) || c.Vehicle.Radius < 0 || c.Vehicle.Inertia < 0 {
		invalid("vehicle mass and length must be positive, radius and inertia non-negative")
	}
	if !(c.Body.Radius > 0) || c.Body.Mu < 0 || !(c.Body.AltitudeScale > 0) {
		invalid("body radius and altitude_scale must be positive, mu non-negative")
	}
	if !(c.PointMass.Mass > 0) || !(c.PointMass.Inertia > 0) {
		invalid("point_mass mass and inertia must be positive")
	}

	s := c.Solver
	if s.MaxIterations < 0 || s.OuterIterations < 0 || s.Tolerance < 0 || s.Penalty < 0 || s.Timeout < 0 {
		invalid("solver settings must be non-negative")
	}
	if !lo.Contains([]string{"", "halt", "shift"}, s.Fallback) {
		invalid("solver.fallback must be halt or shift, got %q", s.Fallback)
	}

	return errors.Join(errs...)
}

// PlantModelName is the model flown as truth; it defaults to the
// controller's model.
func (c *Config) PlantModelName() string {
	if c.PlantModel == "" {
		return c.Model
	}
	return c.PlantModel
}

func (c *Config) InitialStateVector() dynamo.State {
	return dynamo.State(append([]float64(nil), c.InitialState...))
}

func (c *Config) WaypointStates() []dynamo.State {
	return lo.Map(c.Waypoints, func(wp []float64, _ int) dynamo.State {
		return dynamo.State(append([]float64(nil), wp...))
	})
}

// Steps is the number of control cycles in the mission.
func (c *Config) Steps() int {
	return int(math.Round(c.Duration / c.Horizon.Dt))
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Bounds.Min = append([]float64(nil), c.Bounds.Min...)
	out.Bounds.Max = append([]float64(nil), c.Bounds.Max...)
	out.Weights.Q = append([]float64(nil), c.Weights.Q...)
	out.Weights.R = append([]float64(nil), c.Weights.R...)
	out.Weights.Qf = append([]float64(nil), c.Weights.Qf...)
	out.InitialState = append([]float64(nil), c.InitialState...)
	out.Waypoints = lo.Map(c.Waypoints, func(wp []float64, _ int) []float64 {
		return append([]float64(nil), wp...)
	})
	return &out
}
