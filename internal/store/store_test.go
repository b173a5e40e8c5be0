package store

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/storage"
)

func TestExportJSON(t *testing.T) {
	log := &master.RunLog{
		Columns: []string{"rover.x_meas", "ctrl.s"},
		Rows: []master.Row{
			{Step: 0, Time: 0.1, Values: []float64{0.5, 0}},
			{Step: 1, Time: 0.2, Values: []float64{1.0, 2}},
		},
	}
	meta := &storage.RunMetadata{
		ID:      "rover_nominal_20240101_000000_abcd1234",
		Name:    "rover_nominal",
		Seed:    7,
		Step:    0.1,
		Metrics: map[string]float64{"final:rover.x_meas": 1},
	}

	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, log); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.ID != meta.ID || data.Seed != 7 || data.Steps != 2 {
		t.Errorf("header = %+v", data)
	}
	if len(data.Times) != 2 || data.Times[1] != 0.2 {
		t.Errorf("times = %v", data.Times)
	}
	if s := data.Series["ctrl.s"]; len(s) != 2 || s[1] != 2 {
		t.Errorf("series = %v", data.Series)
	}
	if data.Metrics["final:rover.x_meas"] != 1 {
		t.Errorf("metrics = %v", data.Metrics)
	}
}

func TestExportWithoutMetadata(t *testing.T) {
	log := &master.RunLog{Columns: []string{"a"}}
	data := NewExportData(nil, log)
	if data.Steps != 0 || len(data.Series["a"]) != 0 {
		t.Errorf("got %+v", data)
	}
}
