// Package analysis extracts electrophysiology features from recorded
// traces.
//
//   - [Crossings]: interpolated times a trace crosses a level upwards
//   - [DetectSpikes]: action potentials with peak, latency and half width
//   - [Summarize]: resting value, peak and spike count of one trace
//   - [NewPhasePlane]: two traces sampled on the same time axis, plotted
//     against each other
//   - [Spectrum], [DominantFrequency]: power spectrum of repetitive firing
//
// Spike detection works on the samples alone, so it applies equally to a
// trace that was just recorded and to one loaded back from storage:
//
//	spikes := analysis.DetectSpikes(res.Trace("soma_v"), 0)
//	if len(spikes) == 1 {
//	    fmt.Printf("latency %.2f ms\n", spikes[0].Time)
//	}
package analysis
