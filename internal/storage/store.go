package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/cablesim/internal/config"
	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/sim"
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

type TraceInfo struct {
	Label    string  `json:"label"`
	Section  string  `json:"section"`
	X        float64 `json:"x"`
	Variable string  `json:"variable"`
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	TStop      float64            `json:"tstop"`
	VInit      float64            `json:"v_init"`
	Celsius    float64            `json:"celsius"`
	Solver     string             `json:"solver"`
	Nseg       map[string]int     `json:"nseg"`
	StepsTaken int                `json:"steps_taken"`
	T          float64            `json:"t"`
	Error      string             `json:"error,omitempty"`
	Traces     []TraceInfo        `json:"traces"`
	Metrics    map[string]float64 `json:"metrics"`
}

// NewMetadata describes a finished run of cfg. runErr is the error the run
// ended with, if any.
func NewMetadata(cfg *config.Config, result *sim.Result, runErr error) RunMetadata {
	meta := RunMetadata{
		Model:      cfg.Model,
		Timestamp:  time.Now(),
		Dt:         cfg.Run.Dt,
		TStop:      cfg.Run.TStop,
		VInit:      cfg.Run.VInit,
		Celsius:    cfg.Run.Celsius,
		Solver:     cfg.Run.Solver,
		Nseg:       make(map[string]int, len(cfg.Sections)),
		StepsTaken: result.StepsTaken,
		T:          result.T,
		Metrics:    result.Metrics,
	}
	for _, sc := range cfg.Sections {
		meta.Nseg[sc.Name] = sc.Nseg
	}
	for _, tr := range result.Traces {
		meta.Traces = append(meta.Traces, TraceInfo{
			Label:    tr.Label,
			Section:  tr.Probe.Section,
			X:        tr.Probe.X,
			Variable: tr.Probe.Variable,
		})
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	return meta
}

// Save writes metadata.json and traces.csv into a new run directory and
// returns the run id.
func (s *Store) Save(cfg *config.Config, result *sim.Result, runErr error) (string, error) {
	meta := NewMetadata(cfg, result, runErr)
	runID := fmt.Sprintf("%s_%d", cfg.Model, meta.Timestamp.UnixNano())
	meta.ID = runID
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	err := writeFile(filepath.Join(runDir, "metadata.json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		return "", err
	}

	err = writeFile(filepath.Join(runDir, "traces.csv"), func(w io.Writer) error {
		return WriteCSV(w, result.Traces)
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// writeFile creates path and hands it to write. The close error is
// returned when write succeeded.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return write(file)
}

// WriteCSV writes traces as one time column followed by one column per
// trace. A trace without a sample at a row's time leaves its cell empty.
func WriteCSV(out io.Writer, traces []*record.Trace) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	var set record.Set
	for _, tr := range traces {
		set.Add(tr)
	}
	header, rows := set.Table()
	if header == nil {
		return nil
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		fields := make([]string, len(row))
		for i, v := range row {
			if math.IsNaN(v) {
				continue
			}
			fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(fields); err != nil {
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

// LoadTraces reads a run's traces back, labelled and probed as recorded.
func (s *Store) LoadTraces(runID string) ([]*record.Trace, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, "traces.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []*record.Trace{}, nil
	}

	probes := make(map[string]TraceInfo, len(meta.Traces))
	for _, ti := range meta.Traces {
		probes[ti.Label] = ti
	}
	header := records[0]
	traces := make([]*record.Trace, 0, len(header)-1)
	for _, label := range header[1:] {
		ti := probes[label]
		traces = append(traces, &record.Trace{
			Label: label,
			Probe: record.Probe{Section: ti.Section, X: ti.X, Variable: ti.Variable},
		})
	}

	for _, row := range records[1:] {
		if len(row) != len(header) {
			continue
		}
		t, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		for j, tr := range traces {
			if row[j+1] == "" {
				continue
			}
			y, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: column %q: %w", runID, tr.Label, err)
			}
			tr.Append(t, y)
		}
	}
	return traces, nil
}
