package channels

import "math"

// BaseCelsius is the temperature the HH rate constants were fitted at.
const BaseCelsius = 6.3

// Rates carries the temperature scaling applied to every HH rate.
type Rates struct {
	Celsius float64
	q10     float64
}

func NewRates(celsius float64) Rates {
	return Rates{Celsius: celsius, q10: math.Pow(3, (celsius-BaseCelsius)/10)}
}

// Q10 returns the rate multiplier; the zero Rates behaves as 6.3 °C.
func (r Rates) Q10() float64 {
	if r.q10 == 0 {
		return 1
	}
	return r.q10
}

// vtrap computes x/(exp(x/y)-1), replacing the removable singularity at
// x=0 with its Taylor expansion.
func vtrap(x, y float64) float64 {
	if math.Abs(x/y) < 1e-6 {
		return y * (1 - x/y/2)
	}
	return x / (math.Exp(x/y) - 1)
}

func AlphaM(v float64) float64 { return 0.1 * vtrap(-(v + 40), 10) }
func BetaM(v float64) float64  { return 4 * math.Exp(-(v+65)/18) }
func AlphaH(v float64) float64 { return 0.07 * math.Exp(-(v+65)/20) }
func BetaH(v float64) float64  { return 1 / (math.Exp(-(v+35)/10) + 1) }
func AlphaN(v float64) float64 { return 0.01 * vtrap(-(v + 55), 10) }
func BetaN(v float64) float64  { return 0.125 * math.Exp(-(v+65)/80) }

// Gate is the steady state and time constant of one gating variable.
type Gate struct {
	Inf float64
	Tau float64 // ms
}

func gate(alpha, beta, q10 float64) Gate {
	sum := alpha + beta
	return Gate{Inf: alpha / sum, Tau: 1 / (q10 * sum)}
}

// Steady returns m, h and n at voltage v.
func (r Rates) Steady(v float64) (m, h, n Gate) {
	q := r.Q10()
	return gate(AlphaM(v), BetaM(v), q), gate(AlphaH(v), BetaH(v), q), gate(AlphaN(v), BetaN(v), q)
}

// step is the exponential Euler update, exact for a fixed v.
func (g Gate) step(x, dt float64) float64 {
	x = g.Inf + (x-g.Inf)*math.Exp(-dt/g.Tau)
	return clamp01(x)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func hhInit(in *Instance, v float64, r Rates) {
	m, h, n := r.Steady(v)
	in.M, in.H, in.N = m.Inf, h.Inf, n.Inf
}

func hhAdvance(in *Instance, v, dt float64, r Rates) {
	m, h, n := r.Steady(v)
	in.M = m.step(in.M, dt)
	in.H = h.step(in.H, dt)
	in.N = n.step(in.N, dt)
}

func hhCurrent(in *Instance, v float64) (float64, float64) {
	p := in.HH
	gna := p.GNaBar * in.M * in.M * in.M * in.H
	n2 := in.N * in.N
	gk := p.GKBar * n2 * n2
	i := gna*(v-p.ENa) + gk*(v-p.EK) + p.GL*(v-p.EL)
	return i, gna + gk + p.GL
}
