package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/san-kum/wheelsim/internal/dynamo"
)

type ExportData struct {
	Solver    string             `json:"solver"`
	Control   string             `json:"control"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Steps     int                `json:"steps"`
	Fallbacks int                `json:"fallbacks"`
	Times     []float64          `json:"times"`
	States    [][]float64        `json:"states"`
	Controls  [][]float64        `json:"controls"`
	Contacts  []ContactSample    `json:"contacts,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// ContactSample is the per-step contact outcome in JSON form.
type ContactSample struct {
	Active   []int     `json:"active"`
	Impulse  []float64 `json:"impulse"`
	Gap      []float64 `json:"gap"`
	Fallback bool      `json:"fallback,omitempty"`
}

func newExportData(info RunInfo, result *dynamo.Result) ExportData {
	data := ExportData{
		Solver:    info.Solver,
		Control:   info.Control,
		Dt:        info.Dt,
		Duration:  info.Duration,
		Steps:     result.StepsTaken,
		Fallbacks: result.Fallbacks,
		Times:     result.Times,
		States:    make([][]float64, len(result.States)),
		Controls:  make([][]float64, len(result.Controls)),
		Metrics:   finiteMetrics(result.Metrics),
	}
	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}
	for _, rep := range result.Reports {
		data.Contacts = append(data.Contacts, ContactSample{
			Active:   rep.Active,
			Impulse:  rep.Impulse,
			Gap:      rep.Gap,
			Fallback: rep.Fallback,
		})
	}
	return data
}

func ExportJSON(path string, info RunInfo, result *dynamo.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := EncodeJSON(file, info, result); err != nil {
		return err
	}
	return file.Close()
}

// EncodeJSON writes the run as indented JSON, e.g. to stdout.
func EncodeJSON(w io.Writer, info RunInfo, result *dynamo.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newExportData(info, result))
}

// finiteMetrics drops values JSON cannot carry.
func finiteMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
