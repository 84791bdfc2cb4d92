package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		History: sim.History{
			Times: []float64{0, 0.1, 0.2},
			States: []dynamo.State{
				{0, 50, 0, 0, 0, 0},
				{1, 50.5, 0.01, 10, 5, 0.1},
				{2, 51, 0.02, 10, 5, 0.1},
			},
			Controls: []dynamo.Control{
				{10, 19.81, 0},
				{-3.5, 9.81, 0.25},
			},
			Waypoints: []int{0, 0, 1},
		},
		Metrics:    map[string]float64{"control_effort": 21.5},
		StepsTaken: 2,
		Completed:  true,
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := New(t.TempDir())
	require.NoError(t, store.Init())

	result := sampleResult()
	meta := RunMetadata{Name: "hop", Model: "pointmass", Dt: 0.1, Horizon: 10}
	meta.Finish(result, nil)

	id, err := store.Save(meta, result)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "hop_"))

	loaded, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status)
	assert.Equal(t, 2, loaded.Steps)
	assert.Nil(t, loaded.FailStep)
	assert.Equal(t, 21.5, loaded.Metrics["control_effort"])

	h, err := store.LoadHistory(id)
	require.NoError(t, err)
	require.Len(t, h.States, 3)
	require.Len(t, h.Controls, 2)
	assert.Equal(t, []int{0, 0, 1}, h.Waypoints)
	for i := range result.States {
		assert.InDeltaSlice(t, result.States[i], h.States[i], 1e-6)
	}
	for i := range result.Controls {
		assert.InDeltaSlice(t, result.Controls[i], h.Controls[i], 1e-6)
	}
}

func TestFinishRecordsHalt(t *testing.T) {
	result := sampleResult()
	result.Completed = false
	runErr := fmt.Errorf("run: %w", &dynamo.SimulationError{Step: 2, Wrapped: dynamo.ErrInfeasible})

	var meta RunMetadata
	meta.Finish(result, runErr)

	assert.Equal(t, StatusHalted, meta.Status)
	require.NotNil(t, meta.FailStep)
	assert.Equal(t, 2, *meta.FailStep)
	assert.Contains(t, meta.Error, "infeasible")
}

func TestListSortedByTime(t *testing.T) {
	store := New(t.TempDir())
	require.NoError(t, store.Init())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"late", "early"} {
		meta := RunMetadata{Name: name, Timestamp: base.Add(time.Duration(1-i) * time.Hour)}
		_, err := store.Save(meta, sampleResult())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.baseDir, "stray.txt"), []byte("x"), 0644))

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "early", runs[0].Name)
	assert.Equal(t, "late", runs[1].Name)
}

func TestListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadHistoryRejectsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "bad")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "states.csv"), []byte("time,x\n0,1\n"), 0644))

	_, err := New(dir).LoadHistory("bad")
	assert.Error(t, err)
}

func TestWriteCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &sampleResult().History))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "time,x,y,theta,vx,vy,omega,thrust,gimbal,aux,waypoint", lines[0])
	assert.True(t, strings.HasSuffix(lines[3], ",,,1"), lines[3])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult()
	require.NoError(t, ExportJSON(&buf, RunMetadata{ID: "hop_1", Model: "pointmass"}, &result.History))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "hop_1", data.Run.ID)
	assert.Len(t, data.States, 3)
	assert.Len(t, data.Controls, 2)
	assert.Equal(t, []int{0, 0, 1}, data.Waypoints)
}
