package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cablesim/internal/cable"
	"github.com/san-kum/cablesim/internal/channels"
	"github.com/san-kum/cablesim/internal/morph"
	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/sim"
	"github.com/san-kum/cablesim/internal/stim"
)

const (
	DefaultDt      = 0.025
	DefaultTStop   = 25.0
	DefaultVInit   = -65.0
	DefaultCelsius = 6.3
	DefaultSolver  = "hines"
)

type Config struct {
	Model    string           `yaml:"model"`
	Sections []SectionConfig  `yaml:"sections"`
	Stimuli  []StimulusConfig `yaml:"stimuli"`
	Records  []RecordConfig   `yaml:"records"`
	Run      RunConfig        `yaml:"run"`
	Sweep    *SweepConfig     `yaml:"sweep,omitempty"`
}

type SectionConfig struct {
	Name     string          `yaml:"name"`
	Parent   string          `yaml:"parent,omitempty"`
	ParentX  float64         `yaml:"parent_x,omitempty"`
	L        float64         `yaml:"length"`
	Diam     float64         `yaml:"diam"`
	Ra       float64         `yaml:"ra"`
	Cm       float64         `yaml:"cm"`
	Nseg     int             `yaml:"nseg"`
	Channels []ChannelConfig `yaml:"channels,omitempty"`
}

// ChannelConfig names a mechanism; unset parameters keep the mechanism's
// defaults.
type ChannelConfig struct {
	Kind   string   `yaml:"kind"`
	GNaBar *float64 `yaml:"gnabar,omitempty"`
	GKBar  *float64 `yaml:"gkbar,omitempty"`
	GL     *float64 `yaml:"gl,omitempty"`
	ENa    *float64 `yaml:"ena,omitempty"`
	EK     *float64 `yaml:"ek,omitempty"`
	EL     *float64 `yaml:"el,omitempty"`
	G      *float64 `yaml:"g,omitempty"`
	E      *float64 `yaml:"e,omitempty"`
}

type StimulusConfig struct {
	Section string  `yaml:"section"`
	X       float64 `yaml:"x"`
	Delay   float64 `yaml:"delay"`
	Dur     float64 `yaml:"dur"`
	Amp     float64 `yaml:"amp"`
}

type RecordConfig struct {
	Label    string  `yaml:"label"`
	Section  string  `yaml:"section"`
	X        float64 `yaml:"x"`
	Variable string  `yaml:"variable"`
}

type RunConfig struct {
	Dt      float64 `yaml:"dt"`
	TStop   float64 `yaml:"tstop"`
	VInit   float64 `yaml:"v_init"`
	Celsius float64 `yaml:"celsius"`
	Solver  string  `yaml:"solver"`
}

// SweepConfig is a grid of stimulus amplitudes times segment counts of one
// section.
type SweepConfig struct {
	Stimulus int       `yaml:"stimulus"`
	Amps     []float64 `yaml:"amps"`
	Section  string    `yaml:"section"`
	Nseg     []int     `yaml:"nseg"`
	Workers  int       `yaml:"workers"`
}

func DefaultRun() RunConfig {
	return RunConfig{
		Dt:      DefaultDt,
		TStop:   DefaultTStop,
		VInit:   DefaultVInit,
		Celsius: DefaultCelsius,
		Solver:  DefaultSolver,
	}
}

func DefaultConfig() *Config {
	return BallAndStick()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SimConfig returns the run parameters in the form sim.Run takes.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{Dt: c.Run.Dt, TStop: c.Run.TStop, VInit: c.Run.VInit}
}

// Clone deep-copies the document so sweep workers can edit their own.
func (c *Config) Clone() *Config {
	out := *c
	out.Sections = make([]SectionConfig, len(c.Sections))
	for i, s := range c.Sections {
		s.Channels = append([]ChannelConfig(nil), s.Channels...)
		out.Sections[i] = s
	}
	out.Stimuli = append([]StimulusConfig(nil), c.Stimuli...)
	out.Records = append([]RecordConfig(nil), c.Records...)
	if c.Sweep != nil {
		sw := *c.Sweep
		sw.Amps = append([]float64(nil), c.Sweep.Amps...)
		sw.Nseg = append([]int(nil), c.Sweep.Nseg...)
		out.Sweep = &sw
	}
	return &out
}

// Section returns the named section config.
func (c *Config) Section(name string) (*SectionConfig, bool) {
	for i := range c.Sections {
		if c.Sections[i].Name == name {
			return &c.Sections[i], true
		}
	}
	return nil, false
}

func set(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// Mechanism converts a channel entry into a channels.Mechanism.
func (cc ChannelConfig) Mechanism() (channels.Mechanism, error) {
	kind, err := channels.ParseKind(cc.Kind)
	if err != nil {
		return channels.Mechanism{}, err
	}
	switch kind {
	case channels.HH:
		p := channels.DefaultHH()
		set(&p.GNaBar, cc.GNaBar)
		set(&p.GKBar, cc.GKBar)
		set(&p.GL, cc.GL)
		set(&p.ENa, cc.ENa)
		set(&p.EK, cc.EK)
		set(&p.EL, cc.EL)
		return channels.NewHH(p), nil
	default:
		p := channels.DefaultPassive()
		set(&p.G, cc.G)
		set(&p.E, cc.E)
		return channels.NewPassive(p), nil
	}
}

// Morphology builds the section tree with mechanisms inserted.
func (c *Config) Morphology() (*morph.Morphology, error) {
	m := morph.New()
	ids := make(map[string]morph.SectionID, len(c.Sections))
	for _, sc := range c.Sections {
		nseg := sc.Nseg
		if nseg == 0 {
			nseg = 1
		}
		id, err := m.AddSection(morph.Geometry{
			Name: sc.Name, L: sc.L, Diam: sc.Diam, Ra: sc.Ra, Cm: sc.Cm, Nseg: nseg,
		})
		if err != nil {
			return nil, err
		}
		ids[sc.Name] = id
		for _, cc := range sc.Channels {
			mech, err := cc.Mechanism()
			if err != nil {
				return nil, fmt.Errorf("section %q: %w", sc.Name, err)
			}
			if err := m.Insert(id, mech); err != nil {
				return nil, err
			}
		}
	}
	for _, sc := range c.Sections {
		if sc.Parent == "" {
			continue
		}
		parent, ok := ids[sc.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: section %q has unknown parent %q", morph.ErrInvalidMorphology, sc.Name, sc.Parent)
		}
		if err := m.Connect(ids[sc.Name], parent, sc.ParentX); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Build turns the document into a simulator with stimuli and recordings
// attached, ready for Initialize.
func (c *Config) Build() (*sim.Simulator, error) {
	s, _, err := c.BuildWithClamps()
	return s, err
}

// BuildWithClamps is Build that also hands back the attached clamps, in
// Stimuli order, so callers can retune them between steps.
func (c *Config) BuildWithClamps() (*sim.Simulator, []*stim.IClamp, error) {
	m, err := c.Morphology()
	if err != nil {
		return nil, nil, err
	}
	cab, err := cable.Discretize(m)
	if err != nil {
		return nil, nil, err
	}
	s, err := sim.New(cab, sim.Options{Solver: c.Run.Solver, Celsius: c.Run.Celsius})
	if err != nil {
		return nil, nil, err
	}
	clamps := make([]*stim.IClamp, 0, len(c.Stimuli))
	for i, sc := range c.Stimuli {
		clamp, err := stim.NewIClamp(sc.Delay, sc.Dur, sc.Amp)
		if err != nil {
			return nil, nil, fmt.Errorf("stimulus %d: %w", i, err)
		}
		if err := s.AddStimulus(sc.Section, sc.X, clamp); err != nil {
			return nil, nil, fmt.Errorf("stimulus %d: %w", i, err)
		}
		clamps = append(clamps, clamp)
	}
	for _, rc := range c.Records {
		variable := rc.Variable
		if variable == "" {
			variable = record.Voltage
		}
		probe := record.Probe{Section: rc.Section, X: rc.X, Variable: variable}
		if _, err := s.Record(rc.Label, probe); err != nil {
			return nil, nil, err
		}
	}
	return s, clamps, nil
}
