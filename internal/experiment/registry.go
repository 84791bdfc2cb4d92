package experiment

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/integrators"
	"github.com/san-kum/rocketmpc/internal/physics"
)

// Registry maps configuration names to models and integrators.
type Registry struct {
	models      map[string]func(*config.Config) dynamo.Linearizable
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func(*config.Config) dynamo.Linearizable),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.models["rocket"] = func(cfg *config.Config) dynamo.Linearizable { return newRocket(cfg) }
	r.models["pointmass"] = func(cfg *config.Config) dynamo.Linearizable { return newPointMass(cfg) }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	return r
}

func newRocket(cfg *config.Config) *physics.Rocket {
	v := cfg.Vehicle
	inertia := v.Inertia
	if inertia <= 0 {
		inertia = physics.CylinderInertia(v.Mass, v.Radius, v.Length)
	}
	return &physics.Rocket{
		Mass:          v.Mass,
		Length:        v.Length,
		Inertia:       inertia,
		Mu:            cfg.Body.Mu,
		BodyRadius:    cfg.Body.Radius,
		AltitudeScale: cfg.Body.AltitudeScale,
	}
}

func newPointMass(cfg *config.Config) *physics.PointMass {
	return &physics.PointMass{
		Mass:    cfg.PointMass.Mass,
		Inertia: cfg.PointMass.Inertia,
		Gravity: cfg.PointMass.Gravity,
	}
}

// Model builds a fresh instance of the named model from cfg.
func (r *Registry) Model(name string, cfg *config.Config) (dynamo.Linearizable, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model: %s", dynamo.ErrInvalidConfig, name)
	}
	return fn(cfg), nil
}

func (r *Registry) Integrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator: %s", dynamo.ErrInvalidConfig, name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
