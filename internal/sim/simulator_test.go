package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cablesim/internal/cable"
	"github.com/san-kum/cablesim/internal/channels"
	"github.com/san-kum/cablesim/internal/metrics"
	"github.com/san-kum/cablesim/internal/morph"
	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/stim"
)

const (
	somaSize = 12.6157
	dt       = 0.025
)

func somaHH() channels.Mechanism {
	p := channels.DefaultHH()
	p.EL = -54.3
	return channels.NewHH(p)
}

// newSoma builds a single compartment with the given mechanism.
func newSoma(t *testing.T, mech channels.Mechanism, opts Options) *Simulator {
	t.Helper()
	m := morph.New()
	id, err := m.AddSection(morph.Geometry{Name: "soma", L: somaSize, Diam: somaSize, Ra: 100, Cm: 1})
	if err != nil {
		t.Fatalf("add soma: %v", err)
	}
	if err := m.Insert(id, mech); err != nil {
		t.Fatalf("insert: %v", err)
	}
	c, err := cable.Discretize(m)
	if err != nil {
		t.Fatalf("discretize: %v", err)
	}
	s, err := New(c, opts)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if _, err := s.Record("v", record.Probe{Section: "soma", X: 0.5, Variable: record.Voltage}); err != nil {
		t.Fatalf("record: %v", err)
	}
	return s
}

// newBallAndStick builds the soma with a passive dendrite attached at its
// middle.
func newBallAndStick(t *testing.T, dendNseg int, opts Options) *Simulator {
	t.Helper()
	m := morph.New()
	soma, _ := m.AddSection(morph.Geometry{Name: "soma", L: somaSize, Diam: somaSize, Ra: 100, Cm: 1})
	dend, _ := m.AddSection(morph.Geometry{Name: "dend", L: 200, Diam: 1, Ra: 100, Cm: 1, Nseg: dendNseg})
	if err := m.Connect(dend, soma, 0.5); err != nil {
		t.Fatalf("connect: %v", err)
	}
	m.Insert(soma, somaHH())
	m.Insert(dend, channels.NewPassive(channels.PassiveParams{G: 0.001, E: -65}))
	c, err := cable.Discretize(m)
	if err != nil {
		t.Fatalf("discretize: %v", err)
	}
	s, err := New(c, opts)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	s.Record("soma_v", record.Probe{Section: "soma", X: 0.5, Variable: record.Voltage})
	s.Record("dend_v", record.Probe{Section: "dend", X: 0.5, Variable: record.Voltage})
	return s
}

func pulse(t *testing.T, delay, dur, amp float64) *stim.IClamp {
	t.Helper()
	c, err := stim.NewIClamp(delay, dur, amp)
	if err != nil {
		t.Fatalf("iclamp: %v", err)
	}
	return c
}

func maxOf(ys []float64) (float64, int) {
	best, at := math.Inf(-1), -1
	for i, y := range ys {
		if y > best {
			best, at = y, i
		}
	}
	return best, at
}

func TestStateMachine(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})

	if s.Phase() != Uninitialized {
		t.Fatalf("expected uninitialized, got %s", s.Phase())
	}
	if err := s.Step(dt); !errors.Is(err, ErrInvalidState) {
		t.Errorf("step before initialize: expected ErrInvalidState, got %v", err)
	}
	if err := s.RunUntil(context.Background(), 1, dt); !errors.Is(err, ErrInvalidState) {
		t.Errorf("run before initialize: expected ErrInvalidState, got %v", err)
	}

	if err := s.Initialize(-65); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if s.Phase() != Initialized {
		t.Errorf("expected initialized, got %s", s.Phase())
	}
	if err := s.Step(dt); err != nil {
		t.Fatalf("step: %v", err)
	}
	if s.Phase() != Running {
		t.Errorf("expected running, got %s", s.Phase())
	}
	if err := s.RunUntil(context.Background(), 1, dt); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Phase() != Finished {
		t.Errorf("expected finished, got %s", s.Phase())
	}
	if err := s.Step(dt); !errors.Is(err, ErrInvalidState) {
		t.Errorf("step after finish: expected ErrInvalidState, got %v", err)
	}

	if err := s.Initialize(-65); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if s.T() != 0 || s.Steps() != 0 {
		t.Errorf("expected t=0 steps=0, got t=%f steps=%d", s.T(), s.Steps())
	}
	if n := s.Traces()[0].Len(); n != 1 {
		t.Errorf("expected recorder reset to the initial sample, got %d", n)
	}
}

func TestInvalidInputs(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	if err := s.Initialize(math.NaN()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for NaN v0, got %v", err)
	}
	s.Initialize(-65)
	for _, bad := range []float64{0, -0.1, math.NaN(), math.Inf(1)} {
		if err := s.Step(bad); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("dt=%g: expected ErrInvalidConfig, got %v", bad, err)
		}
	}
	if _, err := s.Run(context.Background(), Config{Dt: dt, TStop: 0, VInit: -65}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero tstop, got %v", err)
	}
	if _, err := New(s.Cable(), Options{Solver: "cg"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown solver, got %v", err)
	}
	if _, err := New(s.Cable(), Options{Band: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for negative band, got %v", err)
	}
}

func TestPassiveEquilibriumIsExact(t *testing.T) {
	m := morph.New()
	a, _ := m.AddSection(morph.Geometry{Name: "a", L: 50, Diam: 4, Ra: 100, Cm: 1, Nseg: 3})
	b, _ := m.AddSection(morph.Geometry{Name: "b", L: 200, Diam: 1, Ra: 150, Cm: 1, Nseg: 7})
	m.Connect(b, a, 0.3)
	pas := channels.NewPassive(channels.PassiveParams{G: 0.001, E: -70})
	m.Insert(a, pas)
	m.Insert(b, pas)
	c, _ := cable.Discretize(m)

	s, err := New(c, Options{})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if err := s.Initialize(-70); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.RunUntil(context.Background(), 50, dt); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, v := range s.Voltages() {
		if v != -70 {
			t.Errorf("segment %d: expected exactly -70, got %.17g", i, v)
		}
	}
}

func TestHHRestIsStable(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	drift := metrics.NewDrift()
	if err := s.AddMetric("v", drift); err != nil {
		t.Fatalf("add metric: %v", err)
	}

	res, err := s.Run(context.Background(), Config{Dt: dt, TStop: 25, VInit: -65})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if d := res.Metrics["v.drift"]; d >= 1 {
		t.Errorf("expected drift below 1 mV, got %f", d)
	}
}

func TestSuprathresholdSpike(t *testing.T) {
	for _, amp := range []float64{0.05, 0.1} {
		s := newSoma(t, somaHH(), Options{})
		if err := s.AddStimulus("soma", 0.5, pulse(t, 5, 1, amp)); err != nil {
			t.Fatalf("add stimulus: %v", err)
		}
		spikes := metrics.NewSpikeCount(0)
		s.AddMetric("v", spikes)

		res, err := s.Run(context.Background(), Config{Dt: dt, TStop: 25, VInit: -65})
		if err != nil {
			t.Fatalf("amp %g: run: %v", amp, err)
		}
		if n := res.Metrics["v.spikes"]; n != 1 {
			t.Errorf("amp %g: expected exactly one spike, got %v", amp, n)
		}

		tr := res.Trace("v")
		peak, at := maxOf(tr.Y)
		if peak <= 20 {
			t.Errorf("amp %g: expected peak above 20 mV, got %f", amp, peak)
		}
		if tr.T[at] <= 5 || tr.T[at] > 10 {
			t.Errorf("amp %g: expected peak within 1-5 ms of onset, got t=%f", amp, tr.T[at])
		}
	}
}

// The conductance of a step comes from the gates committed before it, not
// from the gates advanced over it.
func TestConductanceFromStepStartGates(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	if err := s.AddStimulus("soma", 0.5, pulse(t, 0, 1, 1)); err != nil {
		t.Fatalf("add stimulus: %v", err)
	}
	if err := s.Initialize(-50); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	rates := channels.NewRates(DefaultCelsius)
	next := func(in channels.Instance, v, at float64) float64 {
		istim := []float64{0}
		stim.Inject(istim, s.attached, s.area, at)
		i, g := in.Current(v)
		return v + (istim[0]-i)/(1e-3*s.cm[0]/dt+g)
	}

	gates := somaHH().Instantiate()
	gates.Init(-50, rates)
	v1 := next(gates, -50, 0)
	if err := s.Step(dt); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if got := s.Voltage(0); math.Abs(got-v1) > 1e-9 {
		t.Fatalf("step 1: expected %.12f, got %.12f", v1, got)
	}
	gates.Advance(-50, dt, rates)

	v2 := next(gates, v1, dt)
	advanced := gates
	advanced.Advance(v1, dt, rates)
	if late := next(advanced, v1, dt); math.Abs(late-v2) < 1e-3 {
		t.Fatalf("orderings too close to tell apart: %f vs %f", late, v2)
	}
	if err := s.Step(dt); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if got := s.Voltage(0); math.Abs(got-v2) > 1e-9 {
		t.Errorf("step 2: expected %.12f, got %.12f", v2, got)
	}
	m := s.chans[0].M
	if math.Abs(m-advanced.M) > 1e-15 {
		t.Errorf("expected committed m %.15f, got %.15f", advanced.M, m)
	}
}

func TestSubthresholdResponse(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	s.AddStimulus("soma", 0.5, pulse(t, 5, 1, 0.01))

	res, err := s.Run(context.Background(), Config{Dt: dt, TStop: 25, VInit: -65})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	peak, _ := maxOf(res.Trace("v").Y)
	if peak >= -20 {
		t.Errorf("expected no excursion above -20 mV, got %f", peak)
	}
	if peak <= -65 {
		t.Errorf("expected some depolarization, got %f", peak)
	}
}

func TestSampleCount(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	res, err := s.Run(context.Background(), Config{Dt: dt, TStop: 25, VInit: -65})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StepsTaken != 1000 {
		t.Errorf("expected 1000 steps, got %d", res.StepsTaken)
	}
	tr := res.Trace("v")
	if tr.Len() != 1001 {
		t.Errorf("expected 1001 samples, got %d", tr.Len())
	}
	if tr.T[0] != 0 {
		t.Errorf("expected first sample at t=0, got %f", tr.T[0])
	}
	if math.Abs(tr.T[tr.Len()-1]-25) > 1e-9 {
		t.Errorf("expected last sample at t=25, got %f", tr.T[tr.Len()-1])
	}
}

func TestRunIsRepeatable(t *testing.T) {
	s := newBallAndStick(t, 5, Options{})
	s.AddStimulus("dend", 1, pulse(t, 5, 1, 0.3))
	cfg := Config{Dt: dt, TStop: 15, VInit: -65}

	first, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	want := append([]float64(nil), first.Trace("soma_v").Y...)

	second, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	got := second.Trace("soma_v").Y
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d differs: %g vs %g", i, want[i], got[i])
		}
	}
}

func TestDenseSolverAgrees(t *testing.T) {
	cfg := Config{Dt: dt, TStop: 15, VInit: -65}
	run := func(solver string) []float64 {
		s := newBallAndStick(t, 9, Options{Solver: solver})
		s.AddStimulus("dend", 1, pulse(t, 5, 1, 0.3))
		res, err := s.Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("%s: %v", solver, err)
		}
		if s.Solver() != solver {
			t.Errorf("expected solver %s, got %s", solver, s.Solver())
		}
		return res.Trace("soma_v").Y
	}

	h, d := run("hines"), run("dense")
	for i := range h {
		if math.Abs(h[i]-d[i]) > 1e-6 {
			t.Fatalf("sample %d: hines %g dense %g", i, h[i], d[i])
		}
	}
}

func TestDivergenceKeepsLastGoodState(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	s.AddStimulus("soma", 0.5, pulse(t, 1, 1, 1e6))

	res, err := s.Run(context.Background(), Config{Dt: dt, TStop: 5, VInit: -65})
	if !errors.Is(err, ErrNumericalDivergence) {
		t.Fatalf("expected ErrNumericalDivergence, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected *SimulationError, got %T", err)
	}
	if s.Phase() != Finished {
		t.Errorf("expected finished, got %s", s.Phase())
	}
	if s.T() > 1+2*dt || s.T() < 1-2*dt {
		t.Errorf("expected t to stop at the stimulus onset, got %f", s.T())
	}
	if simErr.Time != s.T() {
		t.Errorf("expected error time %f to match last good t %f", simErr.Time, s.T())
	}

	tr := res.Trace("v")
	if tr.Len() != s.Steps()+1 {
		t.Errorf("expected %d samples, got %d", s.Steps()+1, tr.Len())
	}
	for i, y := range tr.Y {
		if math.IsNaN(y) || math.Abs(y) > DefaultBand {
			t.Fatalf("sample %d is not a good state: %g", i, y)
		}
	}
	if v := s.Voltage(0); v != tr.Y[tr.Len()-1] {
		t.Errorf("state %g does not match last sample %g", v, tr.Y[tr.Len()-1])
	}

	if err := s.Step(dt); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState after divergence, got %v", err)
	}
}

func TestContextCancel(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	s.Initialize(-65)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.RunUntil(ctx, 25, dt); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Steps() != 0 {
		t.Errorf("expected no steps, got %d", s.Steps())
	}
}

func TestSetNsegInvalidates(t *testing.T) {
	s := newBallAndStick(t, 1, Options{})
	s.Initialize(-65)
	s.Step(dt)

	if err := s.SetNseg("dend", 0); err == nil {
		t.Error("expected error for nseg 0")
	}
	if s.Phase() != Running {
		t.Errorf("a rejected resize must not change phase, got %s", s.Phase())
	}

	if err := s.SetNseg("dend", 11); err != nil {
		t.Fatalf("set nseg: %v", err)
	}
	if s.Phase() != Uninitialized {
		t.Errorf("expected uninitialized, got %s", s.Phase())
	}
	if err := s.Step(dt); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	if err := s.Initialize(-65); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if n := len(s.Voltages()); n != 12 {
		t.Errorf("expected 12 segments, got %d", n)
	}
	dend := s.Traces()[1]
	seg, _ := s.Locate("dend", 0.5)
	if dend.Segment != seg {
		t.Errorf("expected dend trace relocated to segment %d, got %d", seg, dend.Segment)
	}
}

func TestRecordGates(t *testing.T) {
	s := newBallAndStick(t, 1, Options{})
	if _, err := s.Record("", record.Probe{Section: "soma", X: 0.5, Variable: record.GateM}); err != nil {
		t.Fatalf("record m: %v", err)
	}
	if _, err := s.Record("", record.Probe{Section: "dend", X: 0.5, Variable: record.GateH}); !errors.Is(err, record.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable for h on a passive segment, got %v", err)
	}
	if _, err := s.Record("soma_v", record.Probe{Section: "soma", X: 0.5, Variable: record.Voltage}); err == nil {
		t.Error("expected error for duplicate label")
	}
	if _, err := s.Record("", record.Probe{Section: "axon", X: 0.5, Variable: record.Voltage}); !errors.Is(err, morph.ErrInvalidMorphology) {
		t.Errorf("expected ErrInvalidMorphology, got %v", err)
	}

	s.Initialize(-65)
	tr := s.Traces()[2]
	if tr.Label != "soma(0.5).m" {
		t.Errorf("expected default label soma(0.5).m, got %s", tr.Label)
	}
	mInf, _, _ := channels.NewRates(DefaultCelsius).Steady(-65)
	if math.Abs(tr.Y[0]-mInf.Inf) > 1e-12 {
		t.Errorf("expected m=%f at rest, got %f", mInf.Inf, tr.Y[0])
	}
}

func TestRecordWhileRunning(t *testing.T) {
	s := newSoma(t, somaHH(), Options{})
	if err := s.Initialize(-65); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for range 4 {
		s.Step(dt)
	}
	m, err := s.Record("m", record.Probe{Section: "soma", X: 0.5, Variable: record.GateM})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("a late trace starts empty, got %d samples", m.Len())
	}
	s.Step(dt)

	v := s.Traces()[0]
	if m.Len() != 1 || m.T[0] != v.T[5] {
		t.Fatalf("expected one sample at t=%g, got %v", v.T[5], m.T)
	}
	_, rows := s.recs.Table()
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}
	if !math.IsNaN(rows[0][2]) || rows[5][2] != m.Y[0] {
		t.Errorf("m column misaligned: first %g last %g", rows[0][2], rows[5][2])
	}
}
