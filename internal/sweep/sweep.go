// Package sweep runs a cell over a grid of stimulus amplitudes and segment
// counts. Every grid point gets its own simulator built from a private copy
// of the configuration, so points share no mutable state and run in
// parallel.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cablesim/internal/config"
	"github.com/san-kum/cablesim/internal/logging"
	"github.com/san-kum/cablesim/internal/metrics"
	"github.com/san-kum/cablesim/internal/sim"
)

var ErrInvalidSweep = errors.New("sweep: invalid sweep")

// SpikeThreshold is the voltage a trace must cross upwards to count a
// spike.
const SpikeThreshold = 0.0

// Point is one grid cell.
type Point struct {
	Index int
	Amp   float64
	Nseg  int
}

// Outcome is the result of one point. A failed run keeps whatever was
// recorded before the failure alongside Err.
type Outcome struct {
	Point
	Result *sim.Result
	Peak   map[string]float64
	Spikes map[string]int
	Err    error
}

// Grid expands the sweep into points, amplitude-major.
func Grid(sc *config.SweepConfig) []Point {
	nsegs := sc.Nseg
	if len(nsegs) == 0 {
		nsegs = []int{0}
	}
	points := make([]Point, 0, len(sc.Amps)*len(nsegs))
	for _, amp := range sc.Amps {
		for _, n := range nsegs {
			points = append(points, Point{Index: len(points), Amp: amp, Nseg: n})
		}
	}
	return points
}

type Runner struct {
	base   *config.Config
	logger *slog.Logger
}

func New(base *config.Config, logger *slog.Logger) (*Runner, error) {
	sc := base.Sweep
	if sc == nil || len(sc.Amps) == 0 {
		return nil, fmt.Errorf("%w: no amplitudes", ErrInvalidSweep)
	}
	if sc.Stimulus < 0 || sc.Stimulus >= len(base.Stimuli) {
		return nil, fmt.Errorf("%w: stimulus index %d out of range", ErrInvalidSweep, sc.Stimulus)
	}
	if len(sc.Nseg) > 0 {
		if _, ok := base.Section(sc.Section); !ok {
			return nil, fmt.Errorf("%w: unknown section %q", ErrInvalidSweep, sc.Section)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{base: base, logger: logger}, nil
}

// Run executes every point and returns outcomes in grid order. Failures of
// individual points are recorded in their Outcome; Run itself only fails
// when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) ([]Outcome, error) {
	points := Grid(r.base.Sweep)
	out := make([]Outcome, len(points))

	workers := r.base.Sweep.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range points {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[p.Index] = r.runPoint(ctx, p)
			if errors.Is(out[p.Index].Err, context.Canceled) || errors.Is(out[p.Index].Err, context.DeadlineExceeded) {
				return out[p.Index].Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Runner) runPoint(ctx context.Context, p Point) Outcome {
	o := Outcome{Point: p, Peak: map[string]float64{}, Spikes: map[string]int{}}
	log := r.logger.With("index", p.Index, "amp", p.Amp, "nseg", p.Nseg)
	log.Log(ctx, logging.LevelTrace, "point started")

	cfg := r.base.Clone()
	cfg.Stimuli[cfg.Sweep.Stimulus].Amp = p.Amp
	if p.Nseg > 0 {
		sec, _ := cfg.Section(cfg.Sweep.Section)
		sec.Nseg = p.Nseg
	}

	s, err := cfg.Build()
	if err != nil {
		o.Err = err
		log.Warn("build failed", "error", err)
		return o
	}
	peaks := make(map[string]*metrics.Peak)
	counts := make(map[string]*metrics.SpikeCount)
	for _, tr := range s.Traces() {
		peaks[tr.Label] = metrics.NewPeak()
		counts[tr.Label] = metrics.NewSpikeCount(SpikeThreshold)
		s.AddMetric(tr.Label, peaks[tr.Label])
		s.AddMetric(tr.Label, counts[tr.Label])
	}

	res, err := s.Run(ctx, cfg.SimConfig())
	o.Result = res
	o.Err = err
	for label, pk := range peaks {
		o.Peak[label] = pk.Value()
		o.Spikes[label] = int(counts[label].Value())
	}
	if err != nil {
		log.Warn("run failed", "error", err)
		return o
	}
	log.Debug("run finished", "steps", res.StepsTaken)
	return o
}
