package multicast

import (
	"github.com/creastat/multicast/core"
	"github.com/creastat/multicast/protocol"
)

// maxWalkDepth bounds Walk so that a processor tree containing itself
// cannot recurse forever
const maxWalkDepth = 64

// Next implements core.Navigator.
// It returns nil when no branches are configured, otherwise a snapshot copy
// of the branch processors in configuration order.
func (m *Multicast) Next() []core.Processor {
	if !m.HasNext() {
		return nil
	}
	return append([]core.Processor(nil), m.processors...)
}

// HasNext implements core.Navigator
func (m *Multicast) HasNext() bool {
	return len(m.processors) > 0
}

// Walk visits p and, depth-first, every processor reachable through
// core.Navigator. fn receives the nesting depth (0 for p) and the branch
// index within the parent (-1 for p). Returning false from fn skips the
// children of that processor.
func Walk(p core.Processor, fn func(depth, index int, p core.Processor) bool) {
	walk(p, 0, -1, fn)
}

func walk(p core.Processor, depth, index int, fn func(depth, index int, p core.Processor) bool) {
	if !fn(depth, index, p) || depth >= maxWalkDepth {
		return
	}

	nav, ok := p.(core.Navigator)
	if !ok || !nav.HasNext() {
		return
	}

	for i, child := range nav.Next() {
		walk(child, depth+1, i, fn)
	}
}

// Describe renders the processor tree below p for visualization
func Describe(p core.Processor) protocol.BranchDescriptor {
	return describe(p, -1, 0)
}

func describe(p core.Processor, index, depth int) protocol.BranchDescriptor {
	_, isService := p.(core.Service)
	desc := protocol.BranchDescriptor{
		Index:   index,
		Name:    core.ProcessorName(p),
		Service: isService,
	}
	if mc, ok := p.(*Multicast); ok {
		desc.Mode = string(mc.Mode())
	}

	if nav, ok := p.(core.Navigator); ok && nav.HasNext() && depth < maxWalkDepth {
		for i, child := range nav.Next() {
			desc.Branches = append(desc.Branches, describe(child, i, depth+1))
		}
	}

	return desc
}
