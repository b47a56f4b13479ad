package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
)

func sampleResult() *dynamo.Result {
	x0 := make(dynamo.State, 10)
	x1 := make(dynamo.State, 10)
	x0[physics.IdxTheta] = 0.5
	x1[physics.IdxTheta] = 0.49
	x1[physics.IdxThetaDot] = -1e-8
	return &dynamo.Result{
		States:     []dynamo.State{x0, x1},
		Controls:   []dynamo.Control{{1, 2}},
		Times:      []float64{0, 0.01},
		Reports:    []dynamo.StepReport{{Active: []int{0}, Impulse: []float64{0.1, 0}, Gap: []float64{0, 0.2}}},
		StepsTaken: 1,
		Metrics:    map[string]float64{"max_penetration": 1.5e-9},
	}
}

var sampleInfo = RunInfo{Preset: "tilted", Solver: "moreau", Control: "constant", Dt: 0.01, Duration: 0.01, Seed: 42}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(sampleInfo, sampleResult(), nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Solver != "moreau" || meta.Preset != "tilted" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.StateDim != 10 || meta.Steps != 1 {
		t.Errorf("expected state_dim 10 and 1 step, got %d and %d", meta.StateDim, meta.Steps)
	}
	if meta.Metrics["max_penetration"] != 1.5e-9 {
		t.Errorf("expected penetration 1.5e-9, got %g", meta.Metrics["max_penetration"])
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if len(states) != 2 || len(times) != 2 {
		t.Fatalf("expected 2 samples, got %d states and %d times", len(states), len(times))
	}
	// full precision survives the csv
	if states[1][physics.IdxThetaDot] != -1e-8 || states[1][physics.IdxTheta] != 0.49 {
		t.Errorf("state lost precision: %v", states[1])
	}
	if len(states[1]) != 10 {
		t.Errorf("control columns leaked into states: %v", states[1])
	}
}

func TestStoreTableColumns(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(sampleInfo, sampleResult(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := st.LoadTable(runID)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Header[0] != "time" || tbl.Header[7] != "theta" || tbl.Header[11] != "u0" {
		t.Errorf("unexpected header: %v", tbl.Header)
	}
	// last sample repeats the last command
	u1 := tbl.Column("u1")
	if len(u1) != 2 || u1[0] != 2 || u1[1] != 2 {
		t.Errorf("unexpected u1 column: %v", u1)
	}
	if tbl.Column("nope") != nil {
		t.Error("expected nil for missing column")
	}
}

func TestWriteCSVWithKinematics(t *testing.T) {
	p := physics.DefaultParameters()
	b := physics.NewBalancer(p)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult(), b); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	header := strings.Split(lines[0], ",")
	if len(header) != 1+10+2+12 {
		t.Fatalf("expected 25 columns, got %d: %v", len(header), header)
	}
	if header[len(header)-1] != "center_vz" {
		t.Errorf("unexpected last column %s", header[len(header)-1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(sampleInfo, sampleResult(), nil); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := st.Save(sampleInfo, sampleResult(), nil); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// stray directory without metadata is skipped
	if err := os.Mkdir(filepath.Join(st.baseDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if len(runs) == 2 && runs[0].ID == runs[1].ID {
		t.Error("run ids must be unique")
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	res := sampleResult()
	res.Errors = []error{&dynamo.SimulationError{Step: 3, Time: 0.03, Wrapped: dynamo.ErrInvalidState}}
	runID, err := st.Save(sampleInfo, res, nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(runDir, "states.csv")); os.IsNotExist(err) {
		t.Error("states.csv not created")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Errors) != 1 || !strings.Contains(meta.Errors[0], "invalid state") {
		t.Errorf("expected recorded error, got %v", meta.Errors)
	}
}

func TestLoadMissingRun(t *testing.T) {
	st := New(t.TempDir())
	if _, _, err := st.LoadStates("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEncodeJSON(t *testing.T) {
	res := sampleResult()
	res.Metrics["energy_drift"] = 0.25
	res.Metrics["upright_fraction"] = math.NaN()

	var buf bytes.Buffer
	if err := EncodeJSON(&buf, sampleInfo, res); err != nil {
		t.Fatal(err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Solver != "moreau" || data.Steps != 1 || len(data.States) != 2 {
		t.Errorf("unexpected export: %+v", data)
	}
	if len(data.Contacts) != 1 || data.Contacts[0].Impulse[0] != 0.1 {
		t.Errorf("contacts not exported: %+v", data.Contacts)
	}
	if _, ok := data.Metrics["upright_fraction"]; ok {
		t.Error("non-finite metric should be dropped")
	}
	if data.Metrics["energy_drift"] != 0.25 {
		t.Errorf("expected energy_drift 0.25, got %g", data.Metrics["energy_drift"])
	}
}

func TestExportJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := ExportJSON(path, sampleInfo, sampleResult()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("expected non-empty file, err=%v", err)
	}
}

func TestTableSelectAndWrite(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(sampleInfo, sampleResult(), nil)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := st.LoadTable(runID)
	if err != nil {
		t.Fatal(err)
	}

	sel, err := tbl.Select("theta", "u0")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(sel.Header, ",") != "time,theta,u0" {
		t.Errorf("unexpected header %v", sel.Header)
	}

	var buf bytes.Buffer
	if err := WriteTable(&buf, sel); err != nil {
		t.Fatal(err)
	}
	want := "time,theta,u0\n0,0.5,1\n0.01,0.49,1\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}

	if _, err := tbl.Select("psi"); err == nil {
		t.Error("expected error for unknown column")
	}
}
