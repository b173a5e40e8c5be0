// Package store renders persisted runs for other tools.
package store

import (
	"encoding/json"
	"io"

	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/storage"
)

type ExportData struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Seed    int64                `json:"seed"`
	Attack  string               `json:"attack"`
	Step    float64              `json:"step"`
	Steps   int                  `json:"steps"`
	Columns []string             `json:"columns"`
	Times   []float64            `json:"times"`
	Series  map[string][]float64 `json:"series"`
	Metrics map[string]float64   `json:"metrics"`
}

// NewExportData lays the log out column-major, one series per column.
func NewExportData(meta *storage.RunMetadata, log *master.RunLog) ExportData {
	data := ExportData{
		Steps:   log.Len(),
		Columns: log.Columns,
		Times:   log.Times(),
		Series:  make(map[string][]float64, len(log.Columns)),
	}
	if meta != nil {
		data.ID = meta.ID
		data.Name = meta.Name
		data.Seed = meta.Seed
		data.Attack = meta.Attack
		data.Step = meta.Step
		data.Metrics = meta.Metrics
	}
	for i, c := range log.Columns {
		col := make([]float64, len(log.Rows))
		for k, r := range log.Rows {
			col[k] = r.Values[i]
		}
		data.Series[c] = col
	}
	return data
}

func ExportJSON(w io.Writer, meta *storage.RunMetadata, log *master.RunLog) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, log))
}
