package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/rocketmpc/internal/config"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hopScenario = `
name: hops
description: two short hops
steps:
  - name: short
    preset: hop
    overrides:
      duration: 1
  - preset: hop
    fallback: shift
    save_as: coarse
    overrides:
      duration: 1
      dt: 0.2
      horizon: 5
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(hopScenario))
	require.NoError(t, err)
	assert.Equal(t, "hops", sc.Name)
	require.Len(t, sc.Steps, 2)

	cfg, err := sc.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, "pointmass", cfg.Model)
	assert.Equal(t, 5, cfg.Horizon.Steps)
	assert.Equal(t, 0.2, cfg.Horizon.Dt)
	assert.Equal(t, "shift", cfg.Solver.Fallback)
	assert.Equal(t, 5, cfg.Steps())
}

func TestParseScenarioErrors(t *testing.T) {
	_, err := ParseScenario([]byte("name: empty\n"))
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	_, err = ParseScenario([]byte("steps: [oops"))
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	sc, err := ParseScenario([]byte("steps:\n  - preset: hop\n    overrides: {gain: 2}\n"))
	require.NoError(t, err)
	_, err = sc.Resolve(0)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	sc, err = ParseScenario([]byte("steps:\n  - preset: moon\n"))
	require.NoError(t, err)
	_, err = sc.Resolve(0)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestLoadScenarioResolvesConfigPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := config.GetPreset("hop")
	cfg.Threshold = 7
	require.NoError(t, config.Save(filepath.Join(dir, "hop.yaml"), cfg))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: files\nsteps:\n  - config: hop.yaml\n"), 0644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	loaded, err := sc.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, loaded.Threshold)
}

func TestRunScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(hopScenario))
	require.NoError(t, err)

	store := storage.New(t.TempDir())
	results, err := RunScenario(context.Background(), sc, store, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "short", results[0].Name)
	assert.Equal(t, "hops_2", results[1].Name)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.True(t, r.Result.Completed)
		assert.NotEmpty(t, r.RunID)
	}
	assert.Equal(t, 11, results[0].Result.Len())
	assert.Equal(t, 6, results[1].Result.Len())

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.ElementsMatch(t, []string{"short", "coarse"}, []string{runs[0].Name, runs[1].Name})
}

func TestRunScenarioStopsOnBadStep(t *testing.T) {
	sc, err := ParseScenario([]byte("name: bad\nsteps:\n  - preset: hop\n    overrides: {duration: 0.5}\n  - preset: hop\n    overrides: {threshold: -1}\n"))
	require.NoError(t, err)

	results, err := RunScenario(context.Background(), sc, nil, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	assert.Len(t, results, 1)
}
