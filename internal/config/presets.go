package config

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// Presets build a fresh configuration on every call.
var Presets = map[string]func() *Config{
	"original":  DefaultConfig,
	"hop":       hopPreset,
	"pointmass": pointMassPreset,
	"earth":     earthPreset,
}

// hopPreset flies the point mass between two waypoints at constant altitude.
func hopPreset() *Config {
	cfg := DefaultConfig()
	cfg.Model = "pointmass"
	cfg.Bounds = BoundsConfig{
		Min: []float64{-20, -20, -20},
		Max: []float64{20, 20, 20},
	}
	cfg.Horizon = HorizonConfig{Steps: 10, Dt: 0.1}
	cfg.Weights = WeightsConfig{
		Q:  []float64{10, 10, 1, 1, 1, 1},
		R:  []float64{0.01, 0.01, 0.01},
		Qf: []float64{100, 100, 10, 10, 10, 10},
	}
	cfg.Threshold = 5
	cfg.Duration = 20
	cfg.InitialState = []float64{0, 50, 0, 0, 0, 0}
	cfg.Waypoints = [][]float64{
		{100, 50, 0, 0, 0, 0},
		{200, 50, 0, 0, 0, 0},
	}
	cfg.Solver.Tolerance = 1e-3
	return cfg
}

// pointMassPreset flies a box pattern with a first-order plant integrator
// while the controller predicts with RK4.
func pointMassPreset() *Config {
	cfg := hopPreset()
	cfg.PlantIntegrator = "euler"
	cfg.Duration = 40
	cfg.InitialState = []float64{0, 10, 0, 0, 0, 0}
	cfg.Waypoints = [][]float64{
		{0, 60, 0, 0, 0, 0},
		{80, 60, 0, 0, 0, 0},
		{80, 20, 0, 0, 0, 0},
		{0, 20, 0, 0, 0, 0},
	}
	cfg.Solver.Fallback = "shift"
	return cfg
}

// earthPreset climbs the rocket in full Earth gravity.
func earthPreset() *Config {
	cfg := DefaultConfig()
	cfg.Body.Radius = 6.371e6
	cfg.Body.AltitudeScale = 1
	cfg.Bounds.Min = []float64{0, -math.Pi / 4, -200}
	cfg.Duration = 15
	cfg.InitialState = []float64{0, 10, math.Pi / 2, 0, 0, 0}
	cfg.Waypoints = [][]float64{
		{0, 80, math.Pi / 2, 0, 10, 0},
		{40, 150, math.Pi / 3, 10, 10, 0},
		{120, 200, math.Pi / 4, 20, 0, 0},
	}
	return cfg
}

func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := lo.Keys(Presets)
	sort.Strings(names)
	return names
}
