// Package morph describes neuron morphology as a tree of cylindrical
// sections.
//
// Sections are stored in an arena and addressed by [SectionID]. Parent
// links are indices, never pointers, so the tree can be rebuilt or
// re-discretized without ownership cycles:
//
//	m := morph.New()
//	soma, _ := m.AddSection(morph.Geometry{Name: "soma", L: 12.6157, Diam: 12.6157, Ra: 100, Cm: 1})
//	dend, _ := m.AddSection(morph.Geometry{Name: "dend", L: 200, Diam: 1, Ra: 100, Cm: 1})
//	_ = m.Connect(dend, soma, 0.5)
//
// Every downstream component indexes sections in the order returned by
// [Morphology.Order]: depth-first, root first, children in the order they
// were connected.
package morph

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/cablesim/internal/channels"
)

// ErrInvalidMorphology reports bad connectivity or geometry at build time.
var ErrInvalidMorphology = errors.New("morph: invalid morphology")

// SectionID indexes a section inside its Morphology.
type SectionID int

// NoParent marks a root section.
const NoParent SectionID = -1

// Geometry is the build-time description of a section.
type Geometry struct {
	Name string
	L    float64 // µm
	Diam float64 // µm
	Ra   float64 // Ω·cm
	Cm   float64 // µF/cm²
	Nseg int
}

type Section struct {
	ID       SectionID
	Geometry
	Parent   SectionID
	ParentX  float64
	Children []SectionID
	Mechs    []channels.Mechanism
}

// Morphology is a forest of sections that must collapse to a single tree
// before it can be discretized.
type Morphology struct {
	sections []*Section
	byName   map[string]SectionID
}

func New() *Morphology {
	return &Morphology{byName: make(map[string]SectionID)}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMorphology, fmt.Sprintf(format, args...))
}

func checkGeometry(g Geometry) error {
	positive := func(name string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return invalid("section %q: %s must be positive and finite, got %g", g.Name, name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"L", g.L}, {"diam", g.Diam}, {"Ra", g.Ra}, {"cm", g.Cm}} {
		if err := positive(c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

// AddSection registers a new unconnected section. Nseg defaults to 1.
func (m *Morphology) AddSection(g Geometry) (SectionID, error) {
	if g.Name == "" {
		return NoParent, invalid("section name is required")
	}
	if _, dup := m.byName[g.Name]; dup {
		return NoParent, invalid("duplicate section %q", g.Name)
	}
	if err := checkGeometry(g); err != nil {
		return NoParent, err
	}
	if g.Nseg == 0 {
		g.Nseg = 1
	}
	id := SectionID(len(m.sections))
	m.sections = append(m.sections, &Section{ID: id, Geometry: g, Parent: NoParent})
	m.byName[g.Name] = id
	return id, nil
}

// Connect attaches child's 0 end to parent at parentX. A section can only
// have one parent.
func (m *Morphology) Connect(child, parent SectionID, parentX float64) error {
	if !m.valid(child) {
		return invalid("unknown child section %d", child)
	}
	if !m.valid(parent) {
		return invalid("unknown parent section %d", parent)
	}
	if !(parentX >= 0 && parentX <= 1) {
		return invalid("parent position %g outside [0,1]", parentX)
	}
	c := m.sections[child]
	if c.Parent != NoParent {
		return invalid("section %q already connected to %q", c.Name, m.sections[c.Parent].Name)
	}
	for a := parent; a != NoParent; a = m.sections[a].Parent {
		if a == child {
			return invalid("connecting %q to %q would create a cycle", c.Name, m.sections[parent].Name)
		}
	}
	c.Parent = parent
	c.ParentX = parentX
	p := m.sections[parent]
	p.Children = append(p.Children, child)
	return nil
}

func (m *Morphology) valid(id SectionID) bool {
	return id >= 0 && int(id) < len(m.sections)
}

// Section returns the section with the given id.
func (m *Morphology) Section(id SectionID) (*Section, error) {
	if !m.valid(id) {
		return nil, invalid("unknown section %d", id)
	}
	return m.sections[id], nil
}

// Lookup resolves a section by name.
func (m *Morphology) Lookup(name string) (SectionID, error) {
	id, ok := m.byName[name]
	if !ok {
		return NoParent, invalid("unknown section %q", name)
	}
	return id, nil
}

func (m *Morphology) Len() int { return len(m.sections) }

// SetGeometry changes L and diam of a section. Callers must re-discretize
// afterwards.
func (m *Morphology) SetGeometry(id SectionID, l, diam float64) error {
	s, err := m.Section(id)
	if err != nil {
		return err
	}
	g := s.Geometry
	g.L, g.Diam = l, diam
	if err := checkGeometry(g); err != nil {
		return err
	}
	s.Geometry = g
	return nil
}

// SetNseg records the requested segment count. Validation of the count
// belongs to the discretizer.
func (m *Morphology) SetNseg(id SectionID, nseg int) error {
	s, err := m.Section(id)
	if err != nil {
		return err
	}
	s.Nseg = nseg
	return nil
}

// Insert adds a membrane mechanism uniformly over the section. Inserting
// the same kind twice replaces the earlier parameters.
func (m *Morphology) Insert(id SectionID, mech channels.Mechanism) error {
	s, err := m.Section(id)
	if err != nil {
		return err
	}
	if err := mech.Validate(); err != nil {
		return invalid("section %q: %v", s.Name, err)
	}
	for i := range s.Mechs {
		if s.Mechs[i].Kind == mech.Kind {
			s.Mechs[i] = mech
			return nil
		}
	}
	s.Mechs = append(s.Mechs, mech)
	return nil
}

// Root returns the single root section. It fails for an empty morphology
// or a forest with more than one root.
func (m *Morphology) Root() (SectionID, error) {
	root := NoParent
	for _, s := range m.sections {
		if s.Parent != NoParent {
			continue
		}
		if root != NoParent {
			return NoParent, invalid("more than one root section (%q and %q)", m.sections[root].Name, s.Name)
		}
		root = s.ID
	}
	if root == NoParent {
		return NoParent, invalid("morphology has no sections")
	}
	return root, nil
}

// Order returns every section depth-first, root first.
func (m *Morphology) Order() ([]SectionID, error) {
	root, err := m.Root()
	if err != nil {
		return nil, err
	}
	order := make([]SectionID, 0, len(m.sections))
	stack := []SectionID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, id)
		kids := m.sections[id].Children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return order, nil
}
