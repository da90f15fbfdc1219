package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/cablesim/internal/record"
)

// Crossings returns the times at which tr rises through level, linearly
// interpolated between samples. A trace that starts above level does not
// count as a crossing at t=0.
func Crossings(tr *record.Trace, level float64) []float64 {
	var out []float64
	for i := 1; i < tr.Len(); i++ {
		prev, curr := tr.Y[i-1], tr.Y[i]
		if prev <= level && curr > level {
			frac := (level - prev) / (curr - prev)
			if math.IsNaN(frac) || math.IsInf(frac, 0) {
				frac = 0.5
			}
			out = append(out, tr.T[i-1]+frac*(tr.T[i]-tr.T[i-1]))
		}
	}
	return out
}

// Spike is one action potential.
type Spike struct {
	Time      float64 // upward threshold crossing, ms
	PeakTime  float64 // ms
	Peak      float64 // mV
	HalfWidth float64 // width at half amplitude above the pre-spike base, ms; NaN if not closed
}

// DetectSpikes finds every excursion of tr above threshold.
func DetectSpikes(tr *record.Trace, threshold float64) []Spike {
	onsets := Crossings(tr, threshold)
	if len(onsets) == 0 {
		return nil
	}

	spikes := make([]Spike, 0, len(onsets))
	i := 0
	for _, onset := range onsets {
		for i < tr.Len() && tr.T[i] <= onset {
			i++
		}
		base := tr.Y[0]
		if i > 0 {
			base = floats.Min(tr.Y[:i])
		}
		end := i
		for end < tr.Len() && tr.Y[end] > threshold {
			end++
		}
		if end == i {
			continue
		}
		window := tr.Y[i:end]
		k := floats.MaxIdx(window)
		sp := Spike{
			Time:     onset,
			PeakTime: tr.T[i+k],
			Peak:     window[k],
		}
		sp.HalfWidth = halfWidth(tr, base, sp.Peak, i+k)
		spikes = append(spikes, sp)
		i = end
	}
	return spikes
}

func halfWidth(tr *record.Trace, base, peak float64, at int) float64 {
	half := base + (peak-base)/2
	left := at
	for left > 0 && tr.Y[left-1] > half {
		left--
	}
	right := at
	for right < tr.Len()-1 && tr.Y[right+1] > half {
		right++
	}
	if left == 0 || right == tr.Len()-1 {
		return math.NaN()
	}
	tl := interp(tr.T[left-1], tr.Y[left-1], tr.T[left], tr.Y[left], half)
	tRight := interp(tr.T[right], tr.Y[right], tr.T[right+1], tr.Y[right+1], half)
	return tRight - tl
}

func interp(t0, y0, t1, y1, y float64) float64 {
	if y1 == y0 {
		return t0
	}
	return t0 + (y-y0)/(y1-y0)*(t1-t0)
}

// Summary describes one trace.
type Summary struct {
	Label    string
	Samples  int
	Initial  float64
	Mean     float64
	Min      float64
	Peak     float64
	PeakTime float64
	Spikes   int
	Latency  float64 // time of the first spike, NaN without spikes
}

// Summarize computes a Summary, counting spikes above threshold.
func Summarize(tr *record.Trace, threshold float64) Summary {
	s := Summary{Label: tr.Label, Samples: tr.Len(), Latency: math.NaN()}
	if tr.Len() == 0 {
		s.Initial, s.Mean, s.Min, s.Peak, s.PeakTime = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Initial = tr.Y[0]
	s.Mean = stat.Mean(tr.Y, nil)
	s.Min = floats.Min(tr.Y)
	k := floats.MaxIdx(tr.Y)
	s.Peak, s.PeakTime = tr.Y[k], tr.T[k]

	spikes := DetectSpikes(tr, threshold)
	s.Spikes = len(spikes)
	if len(spikes) > 0 {
		s.Latency = spikes[0].Time
	}
	return s
}
