package framegraph

import (
	"fmt"
	"io"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/internal/lifetime"
)

// HeapInfo is one heap's layout as reported by HeapSnapshot.
type HeapInfo = lifetime.HeapInfo

// Allocation is the physical memory behind a realized resource.
type Allocation = lifetime.Physical

// Stats describes the current frame.
type Stats struct {
	Passes          int
	CulledPasses    int
	Resources       int
	CulledResources int

	// Barriers counts ordinary and queue-crossing transitions.
	Barriers         int
	CrossQueue       int
	AliasingBarriers int

	FenceWaits   int
	FenceSignals int

	// Submits counts command buffers the graph submitted during Execute.
	Submits int

	Allocator lifetime.Stats
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("Frame[%d/%d passes, %d/%d resources, %d barriers (%d cross-queue, %d aliasing), %d waits, %d signals] %s",
		s.Passes-s.CulledPasses, s.Passes,
		s.Resources-s.CulledResources, s.Resources,
		s.Barriers, s.CrossQueue, s.AliasingBarriers,
		s.FenceWaits, s.FenceSignals,
		s.Allocator)
}

// Stats reports counts for the current frame. Barrier and fence counts are
// meaningful after Compile.
func (g *Graph) Stats() Stats {
	s := Stats{
		Passes:    len(g.passes),
		Resources: len(g.resources),
		Submits:   g.submits,
		Allocator: g.alloc.Stats(),
	}
	for _, p := range g.passes {
		if p.Culled() {
			s.CulledPasses++
			continue
		}
		s.Barriers += len(p.barriers) + len(p.crossing)
		s.CrossQueue += len(p.crossing)
		s.AliasingBarriers += len(p.aliasing)
		if p.waitValue != 0 {
			s.FenceWaits++
		}
		if p.signalValue != 0 {
			s.FenceSignals++
		}
	}
	if g.frameEndWait != 0 {
		s.FenceWaits++
	}
	for _, r := range g.resources {
		if !r.Used() && !r.output {
			s.CulledResources++
		}
	}
	return s
}

// WriteDOT writes the frame's graph in Graphviz DOT form: passes as boxes,
// resource versions as ellipses, culled nodes grey and edges labelled with
// their access state.
func (g *Graph) WriteDOT(w io.Writer) error {
	return g.dag.WriteDOT(w, "framegraph", dag.Labeler[edge]{
		Node: func(n *dag.Node) dag.NodeStyle {
			info := g.nodes[n.ID]
			if info.pass != nil {
				return dag.NodeStyle{Label: fmt.Sprintf("%s\\n%s", info.pass.name, info.pass.kind), Shape: "box"}
			}
			r := g.resources[info.resource]
			return dag.NodeStyle{Label: fmt.Sprintf("%s v%d", r.name, info.version), Shape: "ellipse"}
		},
		Edge: func(e edge) string {
			if e.sub.IsAll() {
				return e.access.String()
			}
			return fmt.Sprintf("%s %s", e.access, e.sub)
		},
	})
}
