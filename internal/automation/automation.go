package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/experiment"
	"github.com/san-kum/rocketmpc/internal/logging"
	"github.com/san-kum/rocketmpc/internal/optim"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/storage"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted list of missions flown one after another.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`

	dir string
}

// ScenarioStep picks a base configuration (a config file, else a preset,
// else the reference mission) and overrides individual knobs.
type ScenarioStep struct {
	Name      string             `yaml:"name"`
	Preset    string             `yaml:"preset"`
	Config    string             `yaml:"config"`
	Overrides map[string]float64 `yaml:"overrides"`
	Fallback  string             `yaml:"fallback"`
	SaveAs    string             `yaml:"save_as"`
}

// LoadScenario loads a scenario from a YAML file. Config paths inside it are
// resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%w: scenario %q has no steps", dynamo.ErrInvalidConfig, sc.Name)
	}
	return &sc, nil
}

// Resolve builds the configuration flown by step i.
func (sc *Scenario) Resolve(i int) (*config.Config, error) {
	step := sc.Steps[i]

	var cfg *config.Config
	switch {
	case step.Config != "":
		path := step.Config
		if !filepath.IsAbs(path) && sc.dir != "" {
			path = filepath.Join(sc.dir, path)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case step.Preset != "":
		cfg = config.GetPreset(step.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q", dynamo.ErrInvalidConfig, step.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	// apply in a fixed order so scale knobs compose predictably
	names := make([]string, 0, len(step.Overrides))
	for name := range step.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		apply, ok := optim.Knobs[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown override %q (available: %v)", dynamo.ErrInvalidConfig, name, optim.KnobNames())
		}
		apply(cfg, step.Overrides[name])
	}
	if step.Fallback != "" {
		cfg.Solver.Fallback = step.Fallback
	}

	return cfg, cfg.Validate()
}

// StepResult is the outcome of one scenario step. A halted mission is an
// outcome, not a scenario failure.
type StepResult struct {
	Name   string
	RunID  string
	Result *sim.Result
	Err    error
}

// RunScenario flies every step in order. When store is non-nil each mission
// is saved under its save_as name. A step that cannot be built stops the
// scenario.
func RunScenario(ctx context.Context, sc *Scenario, store *storage.Store, logger *logging.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	results := make([]StepResult, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("%s_%d", sc.Name, i+1)
		}
		logger.Info(ctx, "scenario step", "step", i+1, "of", len(sc.Steps), "name", name)

		cfg, err := sc.Resolve(i)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		m, err := experiment.Build(cfg, logger.With("step", name))
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, runErr := m.Run(logging.WithRunID(ctx, name))
		sr := StepResult{Name: name, Result: result, Err: runErr}

		if store != nil && result != nil {
			saveAs := step.SaveAs
			if saveAs == "" {
				saveAs = name
			}
			meta := m.Metadata(saveAs)
			m.Record(&meta, result, runErr)
			id, err := store.Save(meta, result)
			if err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
			sr.RunID = id
		}

		results = append(results, sr)
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}

	return results, nil
}
