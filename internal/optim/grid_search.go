package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/experiment"
	"github.com/san-kum/rocketmpc/internal/logging"
)

// ErrNoCandidate is returned when every grid point failed to fly.
var ErrNoCandidate = errors.New("no grid point completed its mission")

// Knobs are the configuration values a grid search can vary.
var Knobs = map[string]func(cfg *config.Config, v float64){
	"horizon":   func(cfg *config.Config, v float64) { cfg.Horizon.Steps = int(math.Round(v)) },
	"dt":        func(cfg *config.Config, v float64) { cfg.Horizon.Dt = v },
	"threshold": func(cfg *config.Config, v float64) { cfg.Threshold = v },
	"floor":     func(cfg *config.Config, v float64) { cfg.AltitudeFloor = v },
	"duration":  func(cfg *config.Config, v float64) { cfg.Duration = v },
	"q_scale":   func(cfg *config.Config, v float64) { scale(cfg.Weights.Q, v) },
	"r_scale":   func(cfg *config.Config, v float64) { scale(cfg.Weights.R, v) },
	"qf_scale":  func(cfg *config.Config, v float64) { scale(cfg.Weights.Qf, v) },
}

func scale(w []float64, k float64) {
	for i := range w {
		w[i] *= k
	}
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters but %d ranges", dynamo.ErrInvalidConfig, len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := Knobs[name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q (available: %v)", dynamo.ErrInvalidConfig, name, KnobNames())
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has no values", dynamo.ErrInvalidConfig, name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// ParseParam reads "name=v1,v2,...".
func ParseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: expected name=v1,v2,... got %q", dynamo.ErrInvalidConfig, s)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: parameter %s: %v", dynamo.ErrInvalidConfig, name, err)
		}
		values = append(values, v)
	}
	return strings.TrimSpace(name), values, nil
}

func KnobNames() []string {
	names := lo.Keys(Knobs)
	sort.Strings(names)
	return names
}

// Candidate is one evaluated grid point.
type Candidate struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search flies base with every combination of parameter values and returns
// the point with the lowest metric. Missions that fail are recorded in the
// returned list but never win.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string, logger *logging.Logger) (Candidate, []Candidate, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	var all []Candidate
	g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) {
		c := evaluate(ctx, base, params, metricName, logger)
		all = append(all, c)
	})
	if err := ctx.Err(); err != nil {
		return Candidate{}, all, err
	}

	ok := lo.Filter(all, func(c Candidate, _ int) bool { return c.Err == nil })
	if len(ok) == 0 {
		return Candidate{}, all, ErrNoCandidate
	}
	best := lo.MinBy(ok, func(a, b Candidate) bool { return a.Value < b.Value })
	return best, all, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64)) {
	if ctx.Err() != nil {
		return
	}
	if depth == len(g.paramNames) {
		visit(current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, visit)
	}
}

func evaluate(ctx context.Context, base *config.Config, params map[string]float64, metricName string, logger *logging.Logger) Candidate {
	c := Candidate{Params: params, Value: math.Inf(1)}

	cfg := base.Clone()
	for name, v := range params {
		Knobs[name](cfg, v)
	}

	m, err := experiment.Build(cfg, logger)
	if err != nil {
		c.Err = err
		return c
	}
	result, err := m.Run(ctx)
	if err != nil {
		c.Err = err
		logger.Debug(ctx, "grid point failed", "params", params, "error", err.Error())
		return c
	}

	v, ok := result.Metrics[metricName]
	if !ok {
		c.Err = fmt.Errorf("%w: unknown metric %q", dynamo.ErrInvalidConfig, metricName)
		return c
	}
	c.Value = v
	logger.Debug(ctx, "grid point", "params", params, metricName, v)
	return c
}
