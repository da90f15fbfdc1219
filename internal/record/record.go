// Package record keeps the sampled time series of a simulation run.
package record

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownVariable reports a variable a segment cannot provide.
var ErrUnknownVariable = errors.New("record: unknown variable")

// Recordable variable names.
const (
	Voltage = "v"
	GateM   = "m"
	GateH   = "h"
	GateN   = "n"
	Ionic   = "i_ion"
)

// Probe identifies what a trace samples: a position on a named section
// and a variable.
type Probe struct {
	Section  string
	X        float64
	Variable string
}

func (p Probe) String() string {
	return fmt.Sprintf("%s(%g).%s", p.Section, p.X, p.Variable)
}

// Trace is an append-only series of (t, value) samples.
type Trace struct {
	Label   string
	Probe   Probe
	Segment int
	T       []float64
	Y       []float64
}

func (tr *Trace) Len() int { return len(tr.T) }

func (tr *Trace) Append(t, y float64) {
	tr.T = append(tr.T, t)
	tr.Y = append(tr.Y, y)
}

// Reset drops all samples.
func (tr *Trace) Reset() {
	tr.T = tr.T[:0]
	tr.Y = tr.Y[:0]
}

// Last returns the most recent sample.
func (tr *Trace) Last() (t, y float64, ok bool) {
	n := len(tr.T)
	if n == 0 {
		return 0, 0, false
	}
	return tr.T[n-1], tr.Y[n-1], true
}

// Sampler reads the current value of a variable on a segment.
type Sampler func(segment int, variable string) float64

// Set is the group of active traces of one simulation.
type Set struct {
	traces []*Trace
}

func (s *Set) Add(tr *Trace) { s.traces = append(s.traces, tr) }

func (s *Set) Traces() []*Trace { return s.traces }

// Find returns the trace with the given label.
func (s *Set) Find(label string) (*Trace, bool) {
	for _, tr := range s.traces {
		if tr.Label == label {
			return tr, true
		}
	}
	return nil, false
}

// Sample appends one point at time t to every trace.
func (s *Set) Sample(t float64, read Sampler) {
	for _, tr := range s.traces {
		tr.Append(t, read(tr.Segment, tr.Probe.Variable))
	}
}

func (s *Set) Reset() {
	for _, tr := range s.traces {
		tr.Reset()
	}
}

// Table returns the traces as rows of a numeric table: the time column
// followed by one column per trace. Rows follow the samples of the longest
// trace; a trace with no sample at a row's time, such as one registered
// mid-run, holds NaN there.
func (s *Set) Table() ([]string, [][]float64) {
	if len(s.traces) == 0 {
		return nil, nil
	}
	header := []string{"t"}
	axis := s.traces[0]
	for _, tr := range s.traces {
		header = append(header, tr.Label)
		if tr.Len() > axis.Len() {
			axis = tr
		}
	}
	next := make([]int, len(s.traces))
	rows := make([][]float64, axis.Len())
	for i, t := range axis.T {
		row := make([]float64, 0, len(header))
		row = append(row, t)
		for k, tr := range s.traces {
			j := next[k]
			if j < tr.Len() && tr.T[j] == t {
				row = append(row, tr.Y[j])
				next[k]++
				continue
			}
			row = append(row, math.NaN())
		}
		rows[i] = row
	}
	return header, rows
}
