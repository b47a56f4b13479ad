package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/wheelsim/internal/dynamo"
	"github.com/san-kum/wheelsim/internal/physics"
)

var kinematicColumns = []string{
	"origin_x", "origin_y", "origin_z",
	"origin_vx", "origin_vy", "origin_vz",
	"center_x", "center_y", "center_z",
	"center_vx", "center_vy", "center_vz",
}

// Table is a loaded states.csv: a header and one row of numbers per sample.
type Table struct {
	Header []string
	Rows   [][]float64
}

// Column returns the named column, or nil if the header lacks it.
func (t *Table) Column(name string) []float64 {
	for j, h := range t.Header {
		if h != name {
			continue
		}
		out := make([]float64, len(t.Rows))
		for i, row := range t.Rows {
			if j < len(row) {
				out[i] = row[j]
			}
		}
		return out
	}
	return nil
}

// Header builds the CSV column names for states of width dim and controls of
// width udim.
func Header(dim, udim int, withKinematics bool) []string {
	header := []string{"time"}
	for i := 0; i < dim; i++ {
		if dim == len(physics.StateNames) {
			header = append(header, physics.StateNames[i])
		} else {
			header = append(header, fmt.Sprintf("x%d", i))
		}
	}
	for i := 0; i < udim; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if withKinematics {
		header = append(header, kinematicColumns...)
	}
	return header
}

// WriteCSV writes one row per sample. The control column of a sample is the
// command applied over the following step; the final sample repeats the last
// command.
func WriteCSV(w io.Writer, result *dynamo.Result, kin dynamo.Kinematics) error {
	cw := csv.NewWriter(w)

	if len(result.States) == 0 {
		cw.Flush()
		return cw.Error()
	}

	dim := len(result.States[0])
	udim := 0
	if len(result.Controls) > 0 {
		udim = len(result.Controls[0])
	}

	if err := cw.Write(Header(dim, udim, kin != nil)); err != nil {
		return err
	}

	for i, x := range result.States {
		u := controlAt(result.Controls, i, udim)
		row := []string{formatFloat(result.Times[i])}
		for _, v := range x {
			row = append(row, formatFloat(v))
		}
		for _, v := range u {
			row = append(row, formatFloat(v))
		}

		if kin != nil {
			cols, err := kinematicRow(kin, result.Times[i], x, u)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			for _, v := range cols {
				row = append(row, formatFloat(v))
			}
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func controlAt(controls []dynamo.Control, i, udim int) dynamo.Control {
	switch {
	case i < len(controls):
		return controls[i]
	case len(controls) > 0:
		return controls[len(controls)-1]
	default:
		return make(dynamo.Control, udim)
	}
}

func kinematicRow(kin dynamo.Kinematics, t float64, x dynamo.State, u dynamo.Control) ([]float64, error) {
	maps := []func(float64, dynamo.State, dynamo.Control) ([3]float64, error){
		kin.Origin, kin.OriginRate, kin.Center, kin.CenterRate,
	}
	out := make([]float64, 0, 3*len(maps))
	for _, fn := range maps {
		p, err := fn(t, x, u)
		if err != nil {
			return nil, err
		}
		out = append(out, p[:]...)
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Select returns a table holding only the named columns, in the given order.
// The time column is always kept first.
func (t *Table) Select(names ...string) (*Table, error) {
	if len(names) == 0 {
		return t, nil
	}
	pos := make(map[string]int, len(t.Header))
	for j, h := range t.Header {
		pos[h] = j
	}

	cols := []int{0}
	for _, name := range names {
		j, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("unknown column: %s", name)
		}
		if j != 0 {
			cols = append(cols, j)
		}
	}

	out := &Table{Header: make([]string, len(cols)), Rows: make([][]float64, len(t.Rows))}
	for k, j := range cols {
		out.Header[k] = t.Header[j]
	}
	for i, row := range t.Rows {
		r := make([]float64, len(cols))
		for k, j := range cols {
			r[k] = row[j]
		}
		out.Rows[i] = r
	}
	return out, nil
}

func WriteTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = formatFloat(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
