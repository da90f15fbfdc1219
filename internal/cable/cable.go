// Package cable discretizes a morphology into isopotential segments and
// computes the axial coupling between neighbouring segments.
//
// Segments live in one flat arena ordered like [morph.Morphology.Order]:
// each section owns a contiguous index range and every segment's parent
// index is smaller than its own, which is the ordering the tree solver in
// package hines relies on.
package cable

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/cablesim/internal/channels"
	"github.com/san-kum/cablesim/internal/morph"
)

// ErrInvalidDiscretization reports a segment count below one or a location
// that cannot be resolved to a segment.
var ErrInvalidDiscretization = errors.New("cable: invalid discretization")

// NoParent marks the root segment.
const NoParent = -1

type Segment struct {
	Section morph.SectionID
	Index   int     // position inside its section
	X       float64 // midpoint as a fraction of section length
	Length  float64 // µm
	Diam    float64 // µm
	Area    float64 // µm²
	Cm      float64 // µF/cm²
	Parent  int
	// G is the axial conductance to the parent segment in µS.
	G float64
	// A and B are the off-diagonal entries of the cable matrix in
	// mA/cm² per mV: A multiplies the parent's voltage in this row, B
	// multiplies this segment's voltage in the parent's row.
	A, B  float64
	Mechs []channels.Mechanism
}

type span struct{ start, n int }

// Cable is a discretized morphology.
type Cable struct {
	morph    *morph.Morphology
	order    []morph.SectionID
	spans    []span
	Segments []Segment
}

// Discretize splits every section into its configured number of segments.
func Discretize(m *morph.Morphology) (*Cable, error) {
	order, err := m.Order()
	if err != nil {
		return nil, err
	}
	c := &Cable{morph: m, order: order, spans: make([]span, m.Len())}
	if err := c.rebuild(nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Morphology returns the morphology the cable was built from.
func (c *Cable) Morphology() *morph.Morphology { return c.morph }

func (c *Cable) Len() int { return len(c.Segments) }

// Order returns the section traversal order used for indexing.
func (c *Cable) Order() []morph.SectionID { return c.order }

// Resize changes the segment count of one section. Segments of every other
// section, including their mechanisms, are carried over; only their arena
// indices and the attachment of the resized section's children move.
func (c *Cable) Resize(id morph.SectionID, nseg int) error {
	if nseg < 1 {
		return fmt.Errorf("%w: nseg must be >= 1, got %d", ErrInvalidDiscretization, nseg)
	}
	sec, err := c.morph.Section(id)
	if err != nil {
		return err
	}
	old := sec.Nseg
	sec.Nseg = nseg
	if c.morph.Len() != len(c.spans) {
		// sections were added since the last build
		if err := c.Refresh(); err != nil {
			sec.Nseg = old
			return err
		}
		return nil
	}
	if err := c.rebuild(map[morph.SectionID]bool{id: true}); err != nil {
		sec.Nseg = old
		return err
	}
	return nil
}

// Refresh rebuilds every section, picking up geometry or mechanism changes
// made on the morphology.
func (c *Cable) Refresh() error {
	order, err := c.morph.Order()
	if err != nil {
		return err
	}
	c.order = order
	c.spans = make([]span, c.morph.Len())
	c.Segments = nil
	return c.rebuild(nil)
}

// rebuild lays the arena out again. Sections in fresh (or all sections when
// fresh is nil) get new segments; the rest are copied from the old arena.
func (c *Cable) rebuild(fresh map[morph.SectionID]bool) error {
	total := 0
	for _, id := range c.order {
		sec, _ := c.morph.Section(id)
		if sec.Nseg < 1 {
			return fmt.Errorf("%w: section %q: nseg must be >= 1, got %d", ErrInvalidDiscretization, sec.Name, sec.Nseg)
		}
		total += sec.Nseg
	}

	oldSegs, oldSpans := c.Segments, c.spans
	segs := make([]Segment, 0, total)
	spans := make([]span, c.morph.Len())
	for _, id := range c.order {
		sec, _ := c.morph.Section(id)
		start := len(segs)
		spans[id] = span{start: start, n: sec.Nseg}
		if fresh == nil || fresh[id] || int(id) >= len(oldSpans) {
			segs = append(segs, split(sec)...)
			continue
		}
		o := oldSpans[id]
		segs = append(segs, oldSegs[o.start:o.start+o.n]...)
		// copied segments keep their mechanism slices; give them their own
		for i := start; i < len(segs); i++ {
			segs[i].Mechs = append([]channels.Mechanism(nil), segs[i].Mechs...)
		}
	}
	c.Segments, c.spans = segs, spans

	for _, id := range c.order {
		c.link(id)
	}
	return nil
}

// split creates the segments of one section with internal coupling set and
// the first segment left unattached.
func split(sec *morph.Section) []Segment {
	n := sec.Nseg
	dx := sec.L / float64(n)
	area := math.Pi * sec.Diam * dx
	segs := make([]Segment, n)
	for j := range segs {
		mechs := append([]channels.Mechanism(nil), sec.Mechs...)
		segs[j] = Segment{
			Section: sec.ID,
			Index:   j,
			X:       (float64(j) + 0.5) / float64(n),
			Length:  dx,
			Diam:    sec.Diam,
			Area:    area,
			Cm:      sec.Cm,
			Parent:  NoParent,
			Mechs:   mechs,
		}
	}
	return segs
}

// link sets parent indices and axial coefficients for one section.
func (c *Cable) link(id morph.SectionID) {
	sec, _ := c.morph.Section(id)
	sp := c.spans[id]
	for j := 0; j < sp.n; j++ {
		i := sp.start + j
		seg := &c.Segments[i]
		if j > 0 {
			prev := &c.Segments[i-1]
			seg.Parent = i - 1
			seg.G = Conductance(
				Half{Length: prev.Length / 2, Diam: prev.Diam, Ra: sec.Ra},
				Half{Length: seg.Length / 2, Diam: seg.Diam, Ra: sec.Ra},
			)
		} else if sec.Parent == morph.NoParent {
			seg.Parent = NoParent
			seg.G, seg.A, seg.B = 0, 0, 0
			continue
		} else {
			psec, _ := c.morph.Section(sec.Parent)
			p := c.nearest(sec.Parent, sec.ParentX)
			pseg := &c.Segments[p]
			dist := math.Abs(sec.ParentX-pseg.X) * psec.L
			seg.Parent = p
			seg.G = Conductance(
				Half{Length: dist, Diam: pseg.Diam, Ra: psec.Ra},
				Half{Length: seg.Length / 2, Diam: seg.Diam, Ra: sec.Ra},
			)
		}
		parent := &c.Segments[seg.Parent]
		seg.A = -100 * seg.G / seg.Area
		seg.B = -100 * seg.G / parent.Area
	}
}

// nearest returns the arena index of the segment of id whose midpoint is
// closest to x. Ties go to the segment containing x.
func (c *Cable) nearest(id morph.SectionID, x float64) int {
	sp := c.spans[id]
	j := int(x * float64(sp.n))
	if j >= sp.n {
		j = sp.n - 1
	}
	return sp.start + j
}

// Locate maps a position along a section to the segment containing it.
// x=1 resolves to the last segment.
func (c *Cable) Locate(id morph.SectionID, x float64) (int, error) {
	if !(x >= 0 && x <= 1) {
		return 0, fmt.Errorf("%w: position %g outside [0,1]", ErrInvalidDiscretization, x)
	}
	if int(id) < 0 || int(id) >= len(c.spans) {
		return 0, fmt.Errorf("%w: unknown section %d", morph.ErrInvalidMorphology, id)
	}
	return c.nearest(id, x), nil
}

// Range returns the arena index range [start, end) of a section.
func (c *Cable) Range(id morph.SectionID) (start, end int) {
	sp := c.spans[id]
	return sp.start, sp.start + sp.n
}

// Half is one side of an axial resistor: a cylinder of the given length.
type Half struct {
	Length float64 // µm
	Diam   float64 // µm
	Ra     float64 // Ω·cm
}

// Resistance returns the series resistance of the halves in MΩ.
func Resistance(halves ...Half) float64 {
	r := 0.0
	for _, h := range halves {
		radius := h.Diam / 2
		// Ω·cm · µm / µm² = 1e4 Ω = 1e-2 MΩ
		r += h.Ra * h.Length / (math.Pi * radius * radius) * 1e-2
	}
	return r
}

// Conductance returns the axial conductance of the halves in µS.
func Conductance(halves ...Half) float64 {
	r := Resistance(halves...)
	if r == 0 {
		return math.Inf(1)
	}
	return 1 / r
}
