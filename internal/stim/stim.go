// Package stim provides point processes that inject current into a single
// segment.
package stim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidStimulus reports negative timing or non-finite parameters.
var ErrInvalidStimulus = errors.New("stim: invalid stimulus")

// PointProcess returns the current it injects at time t, in nA.
// Positive current depolarizes.
type PointProcess interface {
	Current(t float64) float64
}

// IClamp is a square current pulse.
type IClamp struct {
	Delay float64 // ms
	Dur   float64 // ms
	Amp   float64 // nA
}

func NewIClamp(delay, dur, amp float64) (*IClamp, error) {
	c := &IClamp{Delay: delay, Dur: dur, Amp: amp}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *IClamp) Validate() error {
	for _, v := range []float64{c.Delay, c.Dur, c.Amp} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite parameter", ErrInvalidStimulus)
		}
	}
	if c.Delay < 0 || c.Dur < 0 {
		return fmt.Errorf("%w: delay %g and dur %g must be >= 0", ErrInvalidStimulus, c.Delay, c.Dur)
	}
	return nil
}

// Current returns Amp while Delay <= t < Delay+Dur and zero otherwise.
func (c *IClamp) Current(t float64) float64 {
	if t >= c.Delay && t < c.Delay+c.Dur {
		return c.Amp
	}
	return 0
}

// Attached binds a point process to a segment of the cable arena.
type Attached struct {
	Segment int
	Source  PointProcess
}

// Density converts a point current in nA into a membrane current density
// in mA/cm² over a segment of the given area in µm².
func Density(nA, area float64) float64 {
	// nA·1e-6 mA / (µm²·1e-8 cm²)
	return 100 * nA / area
}

// Inject adds every process's current density at time t to dst. Several
// processes on the same segment sum.
func Inject(dst []float64, procs []Attached, area []float64, t float64) {
	for _, p := range procs {
		if i := p.Source.Current(t); i != 0 {
			dst[p.Segment] += Density(i, area[p.Segment])
		}
	}
}
