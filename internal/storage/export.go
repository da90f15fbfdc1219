package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/cablesim/internal/record"
)

type ExportTrace struct {
	Label    string    `json:"label"`
	Section  string    `json:"section"`
	X        float64   `json:"x"`
	Variable string    `json:"variable"`
	T        []float64 `json:"t"`
	Y        []float64 `json:"y"`
}

type ExportData struct {
	RunMetadata
	Traces []ExportTrace `json:"traces"`
}

func NewExport(meta RunMetadata, traces []*record.Trace) ExportData {
	data := ExportData{RunMetadata: meta, Traces: make([]ExportTrace, len(traces))}
	for i, tr := range traces {
		data.Traces[i] = ExportTrace{
			Label:    tr.Label,
			Section:  tr.Probe.Section,
			X:        tr.Probe.X,
			Variable: tr.Probe.Variable,
			T:        tr.T,
			Y:        tr.Y,
		}
	}
	return data
}

// EncodeJSON writes the run as indented JSON.
func EncodeJSON(w io.Writer, meta RunMetadata, traces []*record.Trace) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExport(meta, traces))
}

func ExportJSON(path string, meta RunMetadata, traces []*record.Trace) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeJSON(w, meta, traces)
	})
}

func ExportJSONStdout(meta RunMetadata, traces []*record.Trace) error {
	return EncodeJSON(os.Stdout, meta, traces)
}

// ExportCSV writes the traces to path in the same layout Save uses.
func ExportCSV(path string, traces []*record.Trace) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteCSV(w, traces)
	})
}
