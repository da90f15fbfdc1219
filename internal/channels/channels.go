// Package channels implements the membrane mechanisms a segment can carry.
//
// The set of mechanisms is closed: Hodgkin-Huxley sodium/potassium/leak
// ([HH]) and a linear leak ([Passive]). Each [Kind] has an entry in a
// dispatch table providing steady-state initialization, the gate update
// and the linearized current, so the hot loop switches on a small integer
// instead of calling through interfaces.
//
// Units: conductances in S/cm², potentials in mV, time in ms, current
// densities in mA/cm².
package channels

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMechanism reports a mechanism with unusable parameters.
var ErrInvalidMechanism = errors.New("channels: invalid mechanism")

type Kind uint8

const (
	HH Kind = iota
	Passive
	numKinds
)

func (k Kind) String() string {
	switch k {
	case HH:
		return "hh"
	case Passive:
		return "pas"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the NEURON mechanism names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "hh":
		return HH, nil
	case "pas":
		return Passive, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidMechanism, s)
}

// HHParams are the squid axon parameters from hh.mod.
type HHParams struct {
	GNaBar float64
	GKBar  float64
	GL     float64
	ENa    float64
	EK     float64
	EL     float64
}

// DefaultHH returns the parameters NEURON's hh mechanism starts with.
func DefaultHH() HHParams {
	return HHParams{
		GNaBar: 0.12,
		GKBar:  0.036,
		GL:     0.0003,
		ENa:    50,
		EK:     -77,
		EL:     -54.3,
	}
}

type PassiveParams struct {
	G float64
	E float64
}

// DefaultPassive mirrors NEURON's pas defaults.
func DefaultPassive() PassiveParams {
	return PassiveParams{G: 0.001, E: -70}
}

// Mechanism is the uniform per-section definition of a channel. Segments
// copy it into an Instance when the section is discretized.
type Mechanism struct {
	Kind Kind
	HH   HHParams
	Pas  PassiveParams
}

func NewHH(p HHParams) Mechanism           { return Mechanism{Kind: HH, HH: p} }
func NewPassive(p PassiveParams) Mechanism { return Mechanism{Kind: Passive, Pas: p} }

func (m Mechanism) Validate() error {
	nonNeg := func(name string, v float64) error {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %s must be non-negative, got %g", ErrInvalidMechanism, m.Kind, name, v)
		}
		return nil
	}
	finite := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %s must be finite, got %g", ErrInvalidMechanism, m.Kind, name, v)
		}
		return nil
	}
	var errs []error
	switch m.Kind {
	case HH:
		errs = append(errs,
			nonNeg("gnabar", m.HH.GNaBar), nonNeg("gkbar", m.HH.GKBar), nonNeg("gl", m.HH.GL),
			finite("ena", m.HH.ENa), finite("ek", m.HH.EK), finite("el", m.HH.EL))
	case Passive:
		errs = append(errs, nonNeg("g", m.Pas.G), finite("e", m.Pas.E))
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidMechanism, m.Kind)
	}
	return errors.Join(errs...)
}

// Instance is a mechanism attached to one segment, with its gating state.
// Gates are unused for Passive.
type Instance struct {
	Mechanism
	M, H, N float64
}

func (m Mechanism) Instantiate() Instance { return Instance{Mechanism: m} }

type ops struct {
	init    func(in *Instance, v float64, r Rates)
	advance func(in *Instance, v, dt float64, r Rates)
	current func(in *Instance, v float64) (i, g float64)
}

var table = [numKinds]ops{
	HH: {
		init:    hhInit,
		advance: hhAdvance,
		current: hhCurrent,
	},
	Passive: {
		init:    func(*Instance, float64, Rates) {},
		advance: func(*Instance, float64, float64, Rates) {},
		current: pasCurrent,
	},
}

// Init sets the gates to their steady state at v.
func (in *Instance) Init(v float64, r Rates) { table[in.Kind].init(in, v, r) }

// Advance moves the gates forward by dt holding v fixed.
func (in *Instance) Advance(v, dt float64, r Rates) { table[in.Kind].advance(in, v, dt, r) }

// Current returns the ionic current density at v and its derivative with
// respect to v at the present gate values.
func (in *Instance) Current(v float64) (i, g float64) { return table[in.Kind].current(in, v) }

func pasCurrent(in *Instance, v float64) (float64, float64) {
	return in.Pas.G * (v - in.Pas.E), in.Pas.G
}
