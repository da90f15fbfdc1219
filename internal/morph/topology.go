package morph

import (
	"fmt"
	"strings"
)

// Topology renders the tree the way NEURON's topology() does: one line per
// section, indented under its parent, with one dash per segment.
func (m *Morphology) Topology() (string, error) {
	order, err := m.Order()
	if err != nil {
		return "", err
	}

	depth := make(map[SectionID]int, len(order))
	var sb strings.Builder
	sb.WriteString("\n")
	for _, id := range order {
		s := m.sections[id]
		nseg := s.Nseg
		if nseg < 1 {
			nseg = 1
		}
		dashes := strings.Repeat("-", nseg)
		if s.Parent == NoParent {
			fmt.Fprintf(&sb, "|%s|       %s(0-1)\n", dashes, s.Name)
			continue
		}
		depth[id] = depth[s.Parent] + 1
		pad := strings.Repeat(" ", 2*depth[id]-1)
		fmt.Fprintf(&sb, "%s`%s|       %s(0-1)\n", pad, dashes, s.Name)
	}
	sb.WriteString("\n")
	return sb.String(), nil
}
