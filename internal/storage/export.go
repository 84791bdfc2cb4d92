package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/rocketmpc/internal/sim"
)

type ExportData struct {
	Run       RunMetadata `json:"run"`
	Times     []float64   `json:"times"`
	States    [][]float64 `json:"states"`
	Controls  [][]float64 `json:"controls"`
	Waypoints []int       `json:"waypoints"`
}

// ExportJSON writes a run and its history as indented JSON.
func ExportJSON(w io.Writer, meta RunMetadata, h *sim.History) error {
	data := ExportData{
		Run:       meta,
		Times:     h.Times,
		States:    make([][]float64, len(h.States)),
		Controls:  make([][]float64, len(h.Controls)),
		Waypoints: h.Waypoints,
	}

	for i, s := range h.States {
		data.States[i] = s
	}
	for i, c := range h.Controls {
		data.Controls[i] = c
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
