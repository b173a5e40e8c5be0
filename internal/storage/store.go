// Package storage persists finished runs. Each run is one directory:
//
//	{base}/{name}_{YYYYmmdd_HHMMSS}_{uuid8}/
//	  metadata.json
//	  scenario.yaml
//	  outputs.csv
//
// A run is written to a hidden staging directory and published with a
// single rename, so a run directory either holds all three files or does
// not exist.
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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/master"
)

const (
	metadataFile  = "metadata.json"
	scenarioFile  = "scenario.yaml"
	outputsFile   = "outputs.csv"
	stagingPrefix = ".tmp-"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Attack      string             `json:"attack"`
	Start       float64            `json:"start"`
	Stop        float64            `json:"stop"`
	Step        float64            `json:"step"`
	Steps       int                `json:"steps"`
	Components  []string           `json:"components"`
	Columns     []string           `json:"columns"`
	Draws       map[string]float64 `json:"attack_draws,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	DurationSec float64            `json:"duration_sec"`
}

// Save publishes a finished run. ID, Timestamp, Name, the time grid and the
// columns of meta are filled in here.
func (s *Store) Save(sc *config.Scenario, log *master.RunLog, meta RunMetadata) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	now := s.now()
	id := uuid.New()
	runID := fmt.Sprintf("%s_%s_%s", sc.Name, now.Format("20060102_150405"), id.String()[:8])

	meta.ID = runID
	meta.Name = sc.Name
	meta.Timestamp = now
	meta.Start, meta.Stop, meta.Step = sc.Sim.Start, sc.Sim.Stop, sc.Sim.Step
	meta.Steps = log.Len()
	meta.Columns = log.Columns
	if meta.Metrics == nil {
		meta.Metrics = map[string]float64{}
	}

	staging := filepath.Join(s.baseDir, stagingPrefix+id.String())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", err
	}
	if err := writeRun(staging, sc, log, &meta); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := os.Rename(staging, filepath.Join(s.baseDir, runID)); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	return runID, nil
}

func writeRun(dir string, sc *config.Scenario, log *master.RunLog, meta *RunMetadata) error {
	metaFile, err := os.Create(filepath.Join(dir, metadataFile))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		metaFile.Close()
		return err
	}
	if err := metaFile.Close(); err != nil {
		return err
	}

	if err := config.Save(filepath.Join(dir, scenarioFile), sc); err != nil {
		return err
	}

	csvFile, err := os.Create(filepath.Join(dir, outputsFile))
	if err != nil {
		return err
	}
	if err := WriteCSV(csvFile, log); err != nil {
		csvFile.Close()
		return err
	}
	return csvFile.Close()
}

// WriteCSV writes a time column followed by the log columns. Values are
// written with full precision so LoadLog reproduces them exactly.
func WriteCSV(out io.Writer, log *master.RunLog) error {
	w := csv.NewWriter(out)
	header := append([]string{"time"}, log.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, r := range log.Rows {
		record[0] = strconv.FormatFloat(r.Time, 'g', -1, 64)
		for i, v := range r.Values {
			record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the published runs, oldest first.
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
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) runDir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || strings.HasPrefix(runID, ".") {
		return "", fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return filepath.Join(s.baseDir, runID), nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadScenario(runID string) (*config.Scenario, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return config.Load(filepath.Join(dir, scenarioFile))
}

// LoadLog reads outputs.csv back into a run log.
func (s *Store) LoadLog(runID string) (*master.RunLog, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(dir, outputsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("storage: %s: empty outputs", runID)
	}

	log := &master.RunLog{Columns: records[0][1:], Rows: make([]master.Row, 0, len(records)-1)}
	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: row %d: %w", runID, i+1, err)
			}
			vals[j] = v
		}
		log.Rows = append(log.Rows, master.Row{Step: i, Time: vals[0], Values: vals[1:]})
	}
	return log, nil
}
