package metrics

import "math"

// Peak tracks the largest sample and when it occurred.
type Peak struct {
	name    string
	max     float64
	at      float64
	samples int
}

func NewPeak() *Peak {
	return &Peak{name: "peak"}
}

func (p *Peak) Name() string { return p.name }

func (p *Peak) Observe(t, y float64) {
	if p.samples == 0 || y > p.max {
		p.max = y
		p.at = t
	}
	p.samples++
}

func (p *Peak) Value() float64 {
	if p.samples == 0 {
		return math.NaN()
	}
	return p.max
}

// Time returns when the peak was reached.
func (p *Peak) Time() float64 { return p.at }

func (p *Peak) Reset() {
	p.max = 0
	p.at = 0
	p.samples = 0
}

// SpikeCount counts upward crossings of a voltage threshold.
type SpikeCount struct {
	name      string
	threshold float64
	above     bool
	count     int
	samples   int
}

func NewSpikeCount(threshold float64) *SpikeCount {
	return &SpikeCount{
		name:      "spikes",
		threshold: threshold,
	}
}

func (s *SpikeCount) Name() string { return s.name }

func (s *SpikeCount) Observe(t, y float64) {
	above := y > s.threshold
	// a trace that starts above threshold is not a spike
	if above && !s.above && s.samples > 0 {
		s.count++
	}
	s.above = above
	s.samples++
}

func (s *SpikeCount) Value() float64 { return float64(s.count) }

func (s *SpikeCount) Reset() {
	s.above = false
	s.count = 0
	s.samples = 0
}

// Drift is the largest distance from the first sample.
type Drift struct {
	name     string
	initial  float64
	maxDrift float64
	samples  int
}

func NewDrift() *Drift {
	return &Drift{name: "drift"}
}

func (d *Drift) Name() string { return d.name }

func (d *Drift) Observe(t, y float64) {
	if d.samples == 0 {
		d.initial = y
	}
	d.maxDrift = math.Max(d.maxDrift, math.Abs(y-d.initial))
	d.samples++
}

func (d *Drift) Value() float64 { return d.maxDrift }

func (d *Drift) Reset() {
	d.initial = 0
	d.maxDrift = 0
	d.samples = 0
}
