package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/cablesim/internal/config"
	"github.com/san-kum/cablesim/internal/sim"
)

func TestGrid(t *testing.T) {
	points := Grid(&config.SweepConfig{Amps: []float64{0.1, 0.2}, Nseg: []int{1, 5, 9}})
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[4].Amp != 0.2 || points[4].Nseg != 5 || points[4].Index != 4 {
		t.Errorf("unexpected point %+v", points[4])
	}

	points = Grid(&config.SweepConfig{Amps: []float64{0.1}})
	if len(points) != 1 || points[0].Nseg != 0 {
		t.Errorf("expected one point keeping the configured nseg, got %+v", points)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		edit func(*config.Config)
	}{
		{"no sweep", func(c *config.Config) { c.Sweep = nil }},
		{"no amps", func(c *config.Config) { c.Sweep.Amps = nil }},
		{"bad stimulus", func(c *config.Config) { c.Sweep.Stimulus = 3 }},
		{"bad section", func(c *config.Config) { c.Sweep.Section = "axon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetPreset("ball_and_stick", "sweep")
			tt.edit(cfg)
			if _, err := New(cfg, nil); !errors.Is(err, ErrInvalidSweep) {
				t.Errorf("expected ErrInvalidSweep, got %v", err)
			}
		})
	}
}

func TestRun_Ordered(t *testing.T) {
	cfg := config.GetPreset("ball_and_stick", "sweep")
	cfg.Run.TStop = 15
	cfg.Sweep.Workers = 3

	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(out))
	}
	for i, o := range out {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if o.Err != nil {
			t.Errorf("point %+v failed: %v", o.Point, o.Err)
		}
		if o.Result == nil || o.Result.Trace("soma_v").Len() != 601 {
			t.Errorf("point %d: expected 601 samples", i)
		}
	}
	// the strongest pulse fires at every resolution
	for _, o := range out[6:] {
		if o.Spikes["soma_v"] != 1 {
			t.Errorf("amp %g nseg %d: expected one spike, got %d", o.Amp, o.Nseg, o.Spikes["soma_v"])
		}
	}
	if cfg.Stimuli[0].Amp != 0.1 {
		t.Error("sweep must not modify the base configuration")
	}
}

func TestRun_RecordsFailures(t *testing.T) {
	cfg := config.BallAndStick()
	cfg.Stimuli[0].Section = "soma"
	cfg.Stimuli[0].X = 0.5
	cfg.Run.TStop = 8
	cfg.Sweep = &config.SweepConfig{Amps: []float64{0.1, 1e6, 0.01}}

	r, _ := New(cfg, nil)
	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !errors.Is(out[1].Err, sim.ErrNumericalDivergence) {
		t.Errorf("expected divergence for the huge pulse, got %v", out[1].Err)
	}
	if out[1].Result == nil || out[1].Result.Trace("soma_v").Len() == 0 {
		t.Error("a failed point should keep its partial recording")
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Errorf("neighbouring points must succeed, got %v and %v", out[0].Err, out[2].Err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	cfg := config.GetPreset("ball_and_stick", "sweep")
	r, _ := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
