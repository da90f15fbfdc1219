package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cablesim/internal/cable"
	"github.com/san-kum/cablesim/internal/channels"
	"github.com/san-kum/cablesim/internal/hines"
	"github.com/san-kum/cablesim/internal/morph"
	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/stim"
)

type placed struct {
	section string
	x       float64
	src     stim.PointProcess
}

type boundMetric struct {
	trace  *record.Trace
	metric Metric
}

// Simulator advances one discretized cell with fixed time steps.
//
// Each step evaluates stimuli at the current t, solves the backward Euler
// cable system with the channel conductances frozen at the gate values
// from the start of the step, and advances every gate from the old
// voltages into a scratch copy. Gates and voltages are committed together,
// so a step that diverges leaves the previous state intact.
//
// A Simulator is not safe for concurrent use.
type Simulator struct {
	cable  *cable.Cable
	solver hines.Solver
	rates  channels.Rates
	band   float64

	phase Phase
	stale bool
	t     float64
	steps int

	v, dv     []float64
	area, cm  []float64
	istim     []float64
	chans     []channels.Instance
	scratch   []channels.Instance
	chanStart []int
	mat       *hines.Matrix

	stims    []placed
	attached []stim.Attached
	recs     record.Set
	metrics  []boundMetric
}

// New creates a simulator over c. The cable is owned by the simulator
// from here on; resize it through SetNseg.
func New(c *cable.Cable, opts Options) (*Simulator, error) {
	solver, err := hines.New(opts.Solver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	celsius := opts.Celsius
	if celsius == 0 {
		celsius = DefaultCelsius
	}
	band := opts.Band
	if band == 0 {
		band = DefaultBand
	}
	if !(band > 0) {
		return nil, fmt.Errorf("%w: band must be positive, got %g", ErrInvalidConfig, band)
	}
	return &Simulator{
		cable:  c,
		solver: solver,
		rates:  channels.NewRates(celsius),
		band:   band,
		stale:  true,
	}, nil
}

func (s *Simulator) Cable() *cable.Cable { return s.cable }
func (s *Simulator) Phase() Phase        { return s.phase }
func (s *Simulator) T() float64          { return s.t }
func (s *Simulator) Steps() int          { return s.steps }
func (s *Simulator) Solver() string      { return s.solver.Name() }

// Voltage returns the present voltage of an arena segment.
func (s *Simulator) Voltage(segment int) float64 { return s.v[segment] }

// Voltages returns a copy of all segment voltages.
func (s *Simulator) Voltages() []float64 { return append([]float64(nil), s.v...) }

// Traces returns every registered trace in registration order.
func (s *Simulator) Traces() []*record.Trace { return s.recs.Traces() }

func (s *Simulator) locate(section string, x float64) (int, error) {
	id, err := s.cable.Morphology().Lookup(section)
	if err != nil {
		return 0, err
	}
	return s.cable.Locate(id, x)
}

// AddStimulus attaches a point process at section(x).
func (s *Simulator) AddStimulus(section string, x float64, p stim.PointProcess) error {
	seg, err := s.locate(section, x)
	if err != nil {
		return err
	}
	s.stims = append(s.stims, placed{section: section, x: x, src: p})
	if !s.stale {
		s.attached = append(s.attached, stim.Attached{Segment: seg, Source: p})
	}
	return nil
}

// Record registers a trace of probe. Sampling starts at the next
// Initialize, or at the next step when the simulator is already running.
func (s *Simulator) Record(label string, p record.Probe) (*record.Trace, error) {
	if label == "" {
		label = p.String()
	}
	if _, dup := s.recs.Find(label); dup {
		return nil, fmt.Errorf("sim: duplicate trace label %q", label)
	}
	seg, err := s.locate(p.Section, p.X)
	if err != nil {
		return nil, err
	}
	if err := s.checkVariable(seg, p.Variable); err != nil {
		return nil, err
	}
	tr := &record.Trace{Label: label, Probe: p, Segment: seg}
	s.recs.Add(tr)
	return tr, nil
}

// AddMetric feeds every sample of the labelled trace into m.
func (s *Simulator) AddMetric(trace string, m Metric) error {
	tr, ok := s.recs.Find(trace)
	if !ok {
		return fmt.Errorf("sim: no trace %q", trace)
	}
	s.metrics = append(s.metrics, boundMetric{trace: tr, metric: m})
	return nil
}

func (s *Simulator) checkVariable(seg int, variable string) error {
	switch variable {
	case record.Voltage, record.Ionic:
		return nil
	case record.GateM, record.GateH, record.GateN:
		for _, m := range s.cable.Segments[seg].Mechs {
			if m.Kind == channels.HH {
				return nil
			}
		}
		return fmt.Errorf("%w: %q needs hh on segment %d", record.ErrUnknownVariable, variable, seg)
	}
	return fmt.Errorf("%w: %q", record.ErrUnknownVariable, variable)
}

// SetNseg re-discretizes one section. Voltage and gating state do not
// survive; the simulator must be initialized again.
func (s *Simulator) SetNseg(section string, nseg int) error {
	id, err := s.cable.Morphology().Lookup(section)
	if err != nil {
		return err
	}
	if err := s.cable.Resize(id, nseg); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Rediscretize rebuilds the whole cable after geometry or mechanism edits
// on the morphology.
func (s *Simulator) Rediscretize() error {
	if err := s.cable.Refresh(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Simulator) invalidate() {
	s.stale = true
	s.phase = Uninitialized
}

// layout sizes the per-segment buffers and re-resolves stimulus and trace
// locations against the current arena.
func (s *Simulator) layout() error {
	segs := s.cable.Segments
	n := len(segs)

	parents := make([]int, n)
	for i := range segs {
		parents[i] = segs[i].Parent
	}
	mat, err := hines.NewMatrix(parents)
	if err != nil {
		return err
	}
	for i := range segs {
		mat.A[i] = segs[i].A
		mat.B[i] = segs[i].B
	}

	s.v = make([]float64, n)
	s.dv = make([]float64, n)
	s.area = make([]float64, n)
	s.cm = make([]float64, n)
	s.istim = make([]float64, n)
	s.chanStart = make([]int, n+1)
	s.chans = s.chans[:0]
	for i := range segs {
		s.area[i] = segs[i].Area
		s.cm[i] = segs[i].Cm
		s.chanStart[i] = len(s.chans)
		for _, m := range segs[i].Mechs {
			s.chans = append(s.chans, m.Instantiate())
		}
	}
	s.chanStart[n] = len(s.chans)
	s.scratch = make([]channels.Instance, len(s.chans))
	s.mat = mat

	s.attached = s.attached[:0]
	for _, p := range s.stims {
		seg, err := s.locate(p.section, p.x)
		if err != nil {
			return err
		}
		s.attached = append(s.attached, stim.Attached{Segment: seg, Source: p.src})
	}
	for _, tr := range s.recs.Traces() {
		seg, err := s.locate(tr.Probe.Section, tr.Probe.X)
		if err != nil {
			return err
		}
		if err := s.checkVariable(seg, tr.Probe.Variable); err != nil {
			return err
		}
		tr.Segment = seg
	}
	s.stale = false
	return nil
}

// Initialize sets every voltage to v0, every gate to its steady state at
// v0 and t to zero, then takes the first sample. It is valid in any phase.
func (s *Simulator) Initialize(v0 float64) error {
	if math.IsNaN(v0) || math.IsInf(v0, 0) {
		return fmt.Errorf("%w: initial voltage %g", ErrInvalidConfig, v0)
	}
	if s.stale {
		if err := s.layout(); err != nil {
			return err
		}
	}
	for i := range s.v {
		s.v[i] = v0
	}
	for i := range s.chans {
		s.chans[i].Init(v0, s.rates)
	}
	s.t = 0
	s.steps = 0
	s.recs.Reset()
	for _, bm := range s.metrics {
		bm.metric.Reset()
	}
	s.sample()
	s.phase = Initialized
	return nil
}

// Step advances the state by dt. On divergence the state is left at the
// last good step and the simulator moves to Finished.
func (s *Simulator) Step(dt float64) error {
	if s.phase != Initialized && s.phase != Running {
		return fmt.Errorf("%w: step while %s", ErrInvalidState, s.phase)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidConfig, dt)
	}

	for i := range s.istim {
		s.istim[i] = 0
	}
	stim.Inject(s.istim, s.attached, s.area, s.t)

	copy(s.scratch, s.chans)
	for i, v := range s.v {
		for k := s.chanStart[i]; k < s.chanStart[i+1]; k++ {
			s.scratch[k].Advance(v, dt, s.rates)
		}
	}

	s.assemble(dt)
	if err := s.solver.Solve(s.mat, s.dv); err != nil {
		s.phase = Finished
		return &SimulationError{Step: s.steps + 1, Time: s.t, Segment: -1, Value: math.NaN(), Wrapped: fmt.Errorf("%w: %v", ErrNumericalDivergence, err)}
	}
	for i, d := range s.dv {
		nv := s.v[i] + d
		if math.IsNaN(nv) || math.IsInf(nv, 0) || math.Abs(nv) > s.band {
			s.phase = Finished
			return &SimulationError{Step: s.steps + 1, Time: s.t, Segment: i, Value: nv, Wrapped: ErrNumericalDivergence}
		}
	}

	for i, d := range s.dv {
		s.v[i] += d
	}
	s.chans, s.scratch = s.scratch, s.chans
	s.t += dt
	s.steps++
	s.sample()
	s.phase = Running
	return nil
}

// assemble fills the diagonal and right-hand side for the voltage change
// over one step from the committed gates. The off-diagonals are geometric
// and set in layout.
func (s *Simulator) assemble(dt float64) {
	m := s.mat
	for i, v := range s.v {
		iion, g := 0.0, 0.0
		for k := s.chanStart[i]; k < s.chanStart[i+1]; k++ {
			ci, cg := s.chans[k].Current(v)
			iion += ci
			g += cg
		}
		// µF/cm² · mV/ms = 1e-3 mA/cm²
		m.D[i] = 1e-3*s.cm[i]/dt + g
		m.RHS[i] = s.istim[i] - iion
	}
	for i, p := range m.Parent {
		if p < 0 {
			continue
		}
		a, b := m.A[i], m.B[i]
		m.D[i] -= a
		m.D[p] -= b
		m.RHS[i] -= a * (s.v[p] - s.v[i])
		m.RHS[p] -= b * (s.v[i] - s.v[p])
	}
}

func (s *Simulator) sample() {
	s.recs.Sample(s.t, s.read)
	for _, bm := range s.metrics {
		if t, y, ok := bm.trace.Last(); ok {
			bm.metric.Observe(t, y)
		}
	}
}

func (s *Simulator) read(seg int, variable string) float64 {
	switch variable {
	case record.Voltage:
		return s.v[seg]
	case record.Ionic:
		total := 0.0
		for k := s.chanStart[seg]; k < s.chanStart[seg+1]; k++ {
			i, _ := s.chans[k].Current(s.v[seg])
			total += i
		}
		return total
	}
	for k := s.chanStart[seg]; k < s.chanStart[seg+1]; k++ {
		in := &s.chans[k]
		if in.Kind != channels.HH {
			continue
		}
		switch variable {
		case record.GateM:
			return in.M
		case record.GateH:
			return in.H
		case record.GateN:
			return in.N
		}
	}
	return math.NaN()
}

// stepEpsilon absorbs floating point drift in t when comparing against a
// stop time.
const stepEpsilon = 1e-6

// RunUntil steps until t reaches tEnd and then moves to Finished. The
// context is checked between steps; a step itself is never interrupted.
func (s *Simulator) RunUntil(ctx context.Context, tEnd, dt float64) error {
	if s.phase != Initialized && s.phase != Running {
		return fmt.Errorf("%w: run while %s", ErrInvalidState, s.phase)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidConfig, dt)
	}
	for s.t+stepEpsilon*dt < tEnd {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.Step(dt); err != nil {
			return err
		}
	}
	s.phase = Finished
	return nil
}

// Run initializes at cfg.VInit and runs to cfg.TStop. The result holds
// whatever was recorded, including after a divergence.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.Initialize(cfg.VInit); err != nil {
		return nil, err
	}
	runErr := s.RunUntil(ctx, cfg.TStop, cfg.Dt)

	result := &Result{
		Traces:     s.recs.Traces(),
		Metrics:    make(map[string]float64, len(s.metrics)),
		StepsTaken: s.steps,
		T:          s.t,
	}
	for _, bm := range s.metrics {
		result.Metrics[bm.trace.Label+"."+bm.metric.Name()] = bm.metric.Value()
	}
	return result, runErr
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) || math.IsInf(cfg.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, cfg.Dt)
	}
	if !(cfg.TStop > 0) || math.IsInf(cfg.TStop, 0) {
		return fmt.Errorf("%w: tstop must be positive, got %f", ErrInvalidConfig, cfg.TStop)
	}
	return nil
}

// Locate resolves section(x) to an arena segment index.
func (s *Simulator) Locate(section string, x float64) (int, error) {
	return s.locate(section, x)
}

// Section returns the morphology section a segment belongs to.
func (s *Simulator) Section(segment int) (*morph.Section, error) {
	return s.cable.Morphology().Section(s.cable.Segments[segment].Section)
}
