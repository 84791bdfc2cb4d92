package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/sim"
)

const (
	StatusCompleted = "completed"
	StatusHalted    = "halted"
)

var stateColumns = []string{"x", "y", "theta", "vx", "vy", "omega"}
var controlColumns = []string{"thrust", "gimbal", "aux"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Model           string             `json:"model"`
	PlantModel      string             `json:"plant_model"`
	PlantIntegrator string             `json:"plant_integrator"`
	Timestamp       time.Time          `json:"timestamp"`
	Dt              float64            `json:"dt"`
	Horizon         int                `json:"horizon"`
	Duration        float64            `json:"duration"`
	Threshold       float64            `json:"threshold"`
	Waypoints       [][]float64        `json:"waypoints"`
	AltitudeFloor   float64            `json:"altitude_floor"`
	Steps           int                `json:"steps"`
	Status          string             `json:"status"`
	FailStep        *int               `json:"fail_step,omitempty"`
	Error           string             `json:"error,omitempty"`
	Metrics         map[string]float64 `json:"metrics"`
	Solves          int                `json:"solves"`
	Fallbacks       int                `json:"fallbacks"`
}

// Finish records the outcome of a mission in the metadata.
func (m *RunMetadata) Finish(result *sim.Result, runErr error) {
	m.Status = StatusCompleted
	if result != nil {
		m.Steps = result.StepsTaken
		m.Metrics = result.Metrics
	}
	if runErr != nil {
		m.Status = StatusHalted
		m.Error = runErr.Error()
		var simErr *dynamo.SimulationError
		if errors.As(runErr, &simErr) {
			step := simErr.Step
			m.FailStep = &step
		}
	}
}

// Save writes metadata.json and states.csv under a new run directory and
// returns the run ID.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		name := meta.Name
		if name == "" {
			name = meta.Model
		}
		meta.ID = fmt.Sprintf("%s_%d", name, meta.Timestamp.UnixNano())
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, &result.History); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// WriteCSV writes one row per recorded state: time, state, the control
// applied from that state (empty on the last row) and the waypoint index.
func WriteCSV(out io.Writer, h *sim.History) error {
	w := csv.NewWriter(out)

	header := append([]string{"time"}, stateColumns...)
	header = append(header, controlColumns...)
	header = append(header, "waypoint")
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range h.States {
		row := []string{strconv.FormatFloat(h.Times[i], 'f', 6, 64)}

		for _, val := range h.States[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}

		if i < len(h.Controls) {
			for _, val := range h.Controls[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for range controlColumns {
				row = append(row, "")
			}
		}

		row = append(row, strconv.Itoa(h.Waypoints[i]))

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadHistory reads a run's states.csv back into a History.
func (s *Store) LoadHistory(runID string) (*sim.History, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	h := &sim.History{}
	if len(records) < 2 {
		return h, nil
	}

	nx, nu := len(stateColumns), len(controlColumns)
	for line, record := range records[1:] {
		if len(record) != 1+nx+nu+1 {
			return nil, fmt.Errorf("states.csv line %d: expected %d fields, got %d", line+2, 2+nx+nu, len(record))
		}

		values, err := parseFloats(record[:1+nx])
		if err != nil {
			return nil, fmt.Errorf("states.csv line %d: %w", line+2, err)
		}
		h.Times = append(h.Times, values[0])
		h.States = append(h.States, dynamo.State(values[1:]))

		if record[1+nx] != "" {
			u, err := parseFloats(record[1+nx : 1+nx+nu])
			if err != nil {
				return nil, fmt.Errorf("states.csv line %d: %w", line+2, err)
			}
			h.Controls = append(h.Controls, dynamo.Control(u))
		}

		wp, err := strconv.Atoi(record[1+nx+nu])
		if err != nil {
			return nil, fmt.Errorf("states.csv line %d: %w", line+2, err)
		}
		h.Waypoints = append(h.Waypoints, wp)
	}

	return h, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
