package metrics

import (
	"math"
	"testing"
)

func TestPeak(t *testing.T) {
	p := NewPeak()
	if !math.IsNaN(p.Value()) {
		t.Errorf("expected NaN before any sample, got %f", p.Value())
	}

	for i, y := range []float64{-65, -40, 30, 10, -70} {
		p.Observe(float64(i), y)
	}

	if p.Value() != 30 {
		t.Errorf("expected peak 30, got %f", p.Value())
	}
	if p.Time() != 2 {
		t.Errorf("expected peak at t=2, got %f", p.Time())
	}

	p.Reset()
	p.Observe(0, -80)
	if p.Value() != -80 {
		t.Errorf("expected peak -80 after reset, got %f", p.Value())
	}
}

func TestSpikeCount(t *testing.T) {
	tests := []struct {
		name     string
		trace    []float64
		expected float64
	}{
		{"flat", []float64{-65, -65, -65}, 0},
		{"one spike", []float64{-65, -20, 5, 30, -10, -70}, 1},
		{"two spikes", []float64{-65, 10, -60, 20, -65}, 2},
		{"starts above", []float64{10, 20, -65}, 0},
		{"touching threshold", []float64{-65, 0, -65}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSpikeCount(0)
			for i, y := range tt.trace {
				m.Observe(float64(i), y)
			}
			if got := m.Value(); got != tt.expected {
				t.Errorf("expected %v spikes, got %v", tt.expected, got)
			}
		})
	}
}

func TestDrift(t *testing.T) {
	d := NewDrift()
	for i, y := range []float64{-65, -64.5, -65.2, -65.1} {
		d.Observe(float64(i), y)
	}
	if math.Abs(d.Value()-0.5) > 1e-12 {
		t.Errorf("expected drift 0.5, got %f", d.Value())
	}

	d.Reset()
	if d.Value() != 0 {
		t.Error("expected zero drift after reset")
	}
}
