package sim

import (
	"github.com/san-kum/cablesim/internal/record"
)

// Phase is the lifecycle state of a Simulator.
type Phase int

const (
	Uninitialized Phase = iota
	Initialized
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Metric summarizes one recorded trace while the run progresses.
type Metric interface {
	Name() string
	Observe(t, y float64)
	Value() float64
	Reset()
}

// Options are fixed for the lifetime of a Simulator.
type Options struct {
	// Solver selects the linear solver by name, see hines.New.
	Solver string
	// Celsius scales HH kinetics; zero means 6.3 °C.
	Celsius float64
	// Band is the magnitude in mV past which a voltage counts as
	// diverged. Zero means DefaultBand.
	Band float64
}

const (
	DefaultBand    = 1000.0
	DefaultCelsius = 6.3
)

// Config describes one fixed-step run.
type Config struct {
	Dt    float64 // ms
	TStop float64 // ms
	VInit float64 // mV
}

func DefaultConfig() Config {
	return Config{
		Dt:    0.025,
		TStop: 25,
		VInit: -65,
	}
}

type Result struct {
	Traces     []*record.Trace
	Metrics    map[string]float64
	StepsTaken int
	T          float64
}

// Trace returns the trace with the given label, or nil.
func (r *Result) Trace(label string) *record.Trace {
	for _, tr := range r.Traces {
		if tr.Label == label {
			return tr
		}
	}
	return nil
}
