package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/wheelsim/internal/dynamo"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo is what the caller knows about a run before it is stored.
type RunInfo struct {
	Preset   string
	Solver   string
	Control  string
	Dt       float64
	Duration float64
	Seed     int64
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Preset    string             `json:"preset,omitempty"`
	Solver    string             `json:"solver"`
	Control   string             `json:"control"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Steps     int                `json:"steps"`
	StateDim  int                `json:"state_dim"`
	Fallbacks int                `json:"fallbacks"`
	Errors    []string           `json:"errors,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes metadata.json and states.csv under a new run directory and
// returns the run ID. kin may be nil; when set, the CSV carries the origin and
// center columns as well.
func (s *Store) Save(info RunInfo, result *dynamo.Result, kin dynamo.Kinematics) (string, error) {
	now := time.Now().UTC()
	runID := fmt.Sprintf("%s_%s", now.Format("20060102-150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Preset:    info.Preset,
		Solver:    info.Solver,
		Control:   info.Control,
		Timestamp: now,
		Seed:      info.Seed,
		Dt:        info.Dt,
		Duration:  info.Duration,
		Steps:     result.StepsTaken,
		Fallbacks: result.Fallbacks,
		Metrics:   finiteMetrics(result.Metrics),
	}
	if len(result.States) > 0 {
		meta.StateDim = len(result.States[0])
	}
	for _, err := range result.Errors {
		meta.Errors = append(meta.Errors, err.Error())
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, result, kin); err != nil {
		return "", err
	}
	return runID, csvFile.Close()
}

// List returns stored runs, newest first. Directories without readable
// metadata are skipped.
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTable reads every column of a run's states.csv.
func (s *Store) LoadTable(runID string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	tbl := &Table{}
	if len(records) == 0 {
		return tbl, nil
	}
	tbl.Header = records[0]
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s row %d column %s: %w", runID, i+1, tbl.Header[j], err)
			}
			row[j] = v
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// LoadStates returns the state columns and sample times of a run.
func (s *Store) LoadStates(runID string) ([]dynamo.State, []float64, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	tbl, err := s.LoadTable(runID)
	if err != nil {
		return nil, nil, err
	}

	times := make([]float64, 0, len(tbl.Rows))
	states := make([]dynamo.State, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		if len(row) < 1+meta.StateDim {
			return nil, nil, fmt.Errorf("%w: run %s has %d columns, want %d states", dynamo.ErrDimensionMismatch, runID, len(row)-1, meta.StateDim)
		}
		times = append(times, row[0])
		states = append(states, dynamo.State(row[1:1+meta.StateDim]).Clone())
	}
	return states, times, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}
