package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/cablesim/internal/record"
)

// Spectrum returns the one-sided power spectrum of a uniformly sampled
// trace with its mean removed. Frequencies are in Hz for times in ms.
func Spectrum(tr *record.Trace) (freq, power []float64, err error) {
	n := tr.Len()
	if n < 4 {
		return nil, nil, fmt.Errorf("analysis: trace %q has %d samples, too short for a spectrum", tr.Label, n)
	}
	dt := (tr.T[n-1] - tr.T[0]) / float64(n-1)
	if !(dt > 0) {
		return nil, nil, fmt.Errorf("analysis: trace %q has no time span", tr.Label)
	}

	mean := stat.Mean(tr.Y, nil)
	x := make([]float64, n)
	for i, y := range tr.Y {
		x[i] = y - mean
	}
	spec := fft.FFTReal(x)

	half := n/2 + 1
	freq = make([]float64, half)
	power = make([]float64, half)
	for k := range half {
		freq[k] = float64(k) * 1000 / (float64(n) * dt)
		a := cmplx.Abs(spec[k])
		power[k] = a * a / float64(n)
	}
	return freq, power, nil
}

// DominantFrequency returns the frequency of the strongest non-DC bin, or
// zero for a flat trace.
func DominantFrequency(tr *record.Trace) (float64, error) {
	freq, power, err := Spectrum(tr)
	if err != nil {
		return 0, err
	}
	k := floats.MaxIdx(power[1:]) + 1
	if power[k] < 1e-12 {
		return 0, nil
	}
	return freq[k], nil
}
