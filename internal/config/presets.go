package config

import "sort"

func f(v float64) *float64 { return &v }

// BallAndStick is the two-section tutorial cell: an HH soma with a passive
// dendrite attached at its middle, stimulated at the dendrite's far end.
func BallAndStick() *Config {
	return &Config{
		Model: "ball_and_stick",
		Sections: []SectionConfig{
			{
				Name: "soma", L: 12.6157, Diam: 12.6157, Ra: 100, Cm: 1, Nseg: 1,
				Channels: []ChannelConfig{
					{Kind: "hh", GNaBar: f(0.12), GKBar: f(0.036), GL: f(0.0003), EL: f(-54.3)},
				},
			},
			{
				Name: "dend", Parent: "soma", ParentX: 0.5, L: 200, Diam: 1, Ra: 100, Cm: 1, Nseg: 1,
				Channels: []ChannelConfig{
					{Kind: "pas", G: f(0.001), E: f(-65)},
				},
			},
		},
		Stimuli: []StimulusConfig{
			{Section: "dend", X: 1, Delay: 5, Dur: 1, Amp: 0.1},
		},
		Records: []RecordConfig{
			{Label: "soma_v", Section: "soma", X: 0.5, Variable: "v"},
			{Label: "dend_v", Section: "dend", X: 0.5, Variable: "v"},
		},
		Run: DefaultRun(),
	}
}

// Soma is a single HH compartment of the ball-and-stick soma's size.
func Soma() *Config {
	cfg := BallAndStick()
	cfg.Model = "soma"
	cfg.Sections = cfg.Sections[:1]
	cfg.Stimuli = nil
	cfg.Records = cfg.Records[:1]
	return cfg
}

var Presets = map[string]map[string]func() *Config{
	"ball_and_stick": {
		"default": BallAndStick,
		"sweep": func() *Config {
			cfg := BallAndStick()
			cfg.Sweep = &SweepConfig{
				Amps:    []float64{0.075, 0.15, 0.225, 0.3},
				Section: "dend",
				Nseg:    []int{1, 101},
			}
			return cfg
		},
		"fine": func() *Config {
			cfg := BallAndStick()
			cfg.Sections[1].Nseg = 101
			return cfg
		},
	},
	"soma": {
		"rest": Soma,
		"pulse": func() *Config {
			cfg := Soma()
			cfg.Stimuli = []StimulusConfig{{Section: "soma", X: 0.5, Delay: 5, Dur: 1, Amp: 0.1}}
			return cfg
		},
	},
}

// GetPreset returns a fresh copy of a preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	build, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListModels returns the models that have presets.
func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
