package framegraph

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/device"
)

// Compile culls the graph, resolves cross-queue synchronization, assigns
// physical memory and resolves every surviving pass's barriers. It must be
// called once per frame, after all declarations and before Execute.
//
// Device failures while allocating are returned; the frame must then be
// cleared.
func (g *Graph) Compile() error {
	if g.phase != phaseDeclare {
		fail(ErrWrongPhase, "Compile called twice in one frame")
	}
	g.alloc.Reset()

	g.dag.Cull()
	for _, p := range g.passes {
		p.reset()
	}

	g.collectUses()
	if err := g.resolveAsync(); err != nil {
		return err
	}
	g.resolveSpans()

	order := make([]*VirtualResource, 0, len(g.resources))
	for _, r := range g.resources {
		if r.Used() && !r.imported {
			order = append(order, r)
		}
	}
	// A reused physical resource inherits the end state of its previous
	// occupant, so occupants are realized in the order they start.
	slices.SortStableFunc(order, func(a, b *VirtualResource) int {
		return cmp.Compare(a.firstPass, b.firstPass)
	})
	for _, r := range order {
		if err := r.realize(g.alloc); err != nil {
			return err
		}
	}

	for _, p := range g.passes {
		if !p.Culled() {
			g.resolveBarriers(p)
		}
	}

	g.phase = phaseCompiled
	if g.logger.Enabled(context.Background(), slog.LevelDebug) {
		s := g.Stats()
		g.logger.Debug("framegraph: compiled",
			"frame", g.frame,
			"passes", s.Passes,
			"culled", s.CulledPasses,
			"barriers", s.Barriers,
			"fences", s.FenceSignals,
			"memory", s.Allocator.String())
	}
	return nil
}

// collectUses walks the surviving read and write edges in pass order and
// records lifetimes, usage flags and end states on the resources.
func (g *Graph) collectUses() {
	for _, r := range g.resources {
		r.firstPass, r.lastPass = unusedPass, unusedPass
		for q := range r.firstOn {
			r.firstOn[q], r.lastOn[q] = unusedPass, unusedPass
		}
		r.last = r.last[:0]
		r.aliasPrev = device.ResourceID{}
		if !r.imported {
			r.initial, r.state = device.AccessUndefined, device.AccessUndefined
		}
	}

	var uses []edge
	for _, e := range g.dag.Edges() {
		if e.kind != edgeProduce && g.dag.IsEdgeValid(e) {
			uses = append(uses, e)
		}
	}
	slices.SortStableFunc(uses, func(a, b edge) int {
		return cmp.Compare(g.passAt(a.to).index, g.passAt(b.to).index)
	})
	for _, e := range uses {
		r := g.resources[e.resource]
		r.use(g.passAt(e.to), e.access, e.sub)
		r.track(e.access, e.sub)
	}
}

func (g *Graph) passAt(id dag.NodeID) *Pass {
	return g.nodes[id].pass
}

// usesOf returns the surviving read and write edges leaving version v,
// ordered by the declaration index of the consuming pass. The order does
// not depend on the order edges were registered in.
func (g *Graph) usesOf(v dag.NodeID) []edge {
	var out []edge
	for _, e := range g.dag.OutgoingEdges(v) {
		if g.dag.IsEdgeValid(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b edge) int {
		return cmp.Compare(g.passAt(a.to).index, g.passAt(b.to).index)
	})
	return out
}

// producerOf returns the produce edge ending at version v. Version 0 has
// none.
func (g *Graph) producerOf(v dag.NodeID) (edge, bool) {
	for _, e := range g.dag.IncomingEdges(v) {
		if e.kind == edgeProduce {
			return e, true
		}
	}
	return edge{}, false
}

// priorState is the access one subresource is in before a use, and the
// pass that left it there.
type priorState struct {
	sub    device.Subresource
	access device.Access
	// pass is nil when nothing earlier in the frame touched sub.
	pass *Pass
	// from and before resume the walk behind pass's own use.
	from   dag.NodeID
	before int
}

// crosses reports whether the state was left by a pass on the other queue.
func (s priorState) crosses(p *Pass) bool {
	return s.pass != nil && s.pass.queue != p.queue
}

// priorStates finds the state every subresource in subs is in just before
// the pass at index before uses version from. It scans the uses of the
// version from the latest earlier pass backwards, then the write that
// produced it, then older versions, settling each subresource at the first
// overlapping access. Subresources nothing earlier touches get the
// resource's initial state with a nil pass.
func (g *Graph) priorStates(r *VirtualResource, from dag.NodeID, before int, subs []device.Subresource) []priorState {
	pending := slices.Clone(subs)
	out := make([]priorState, 0, len(pending))
	settle := func(sub device.Subresource, access device.Access, q *Pass, from dag.NodeID) {
		kept := pending[:0]
		for _, s := range pending {
			if !s.Overlaps(sub) {
				kept = append(kept, s)
				continue
			}
			out = append(out, priorState{sub: s, access: access, pass: q, from: from, before: q.index})
		}
		pending = kept
	}

	v := from
	for len(pending) > 0 {
		uses := g.usesOf(v)
		for i := len(uses) - 1; i >= 0 && len(pending) > 0; i-- {
			if q := g.passAt(uses[i].to); q.index < before {
				settle(uses[i].sub, uses[i].access, q, uses[i].from)
			}
		}
		if len(pending) == 0 {
			break
		}
		prod, ok := g.producerOf(v)
		if !ok {
			for _, s := range pending {
				out = append(out, priorState{sub: s, access: r.initial})
			}
			break
		}
		w := g.passAt(prod.from)
		settle(prod.sub, prod.access, w, prod.prev)
		v, before = prod.prev, w.index
	}
	return out
}

// resolveBarriers computes the transitions pass p needs. A transition whose
// previous user ran on the other queue is kept apart and replayed right
// after p's fence wait.
func (g *Graph) resolveBarriers(p *Pass) {
	for _, r := range g.resources {
		if r.firstPass == p.index && r.aliasPrev.IsValid() {
			p.aliasing = append(p.aliasing, device.Barrier{
				Kind:        device.BarrierAliasing,
				Resource:    r.Physical(),
				Subresource: device.AllSubresources,
				AliasBefore: r.aliasPrev,
			})
		}
	}

	for _, e := range g.dag.IncomingEdges(p.node.ID) {
		if !g.dag.IsEdgeValid(e) {
			continue
		}
		r := g.resources[e.resource]
		g.addTransitions(p, e, g.priorStates(r, e.from, p.index, r.subresources(e.sub)))
	}
}

// addTransitions records the barriers that move states into e's access.
// Subresources sharing a previous state and queue side collapse into e's
// whole range, or else into one barrier per mip level.
func (g *Graph) addTransitions(p *Pass, e edge, states []priorState) {
	id := g.resources[e.resource].Physical()
	emit := func(sub device.Subresource, s priorState) {
		if s.access == e.access {
			return
		}
		b := device.Barrier{
			Kind:        device.BarrierTransition,
			Resource:    id,
			Subresource: sub,
			Before:      s.access,
			After:       e.access,
		}
		if s.crosses(p) {
			p.crossing = appendBarrier(p.crossing, b)
		} else {
			p.barriers = appendBarrier(p.barriers, b)
		}
	}
	uniform := func(states []priorState) bool {
		for _, s := range states[1:] {
			if s.access != states[0].access || s.crosses(p) != states[0].crosses(p) {
				return false
			}
		}
		return true
	}

	if len(states) == 0 {
		return
	}
	if uniform(states) {
		emit(e.sub, states[0])
		return
	}
	slices.SortFunc(states, func(a, b priorState) int {
		return cmp.Or(cmp.Compare(a.sub.Mip, b.sub.Mip), cmp.Compare(a.sub.Layer, b.sub.Layer))
	})
	for len(states) > 0 {
		n := 1
		for n < len(states) && states[n].sub.Mip == states[0].sub.Mip {
			n++
		}
		level := states[:n]
		if uniform(level) {
			emit(device.Subresource{Mip: level[0].sub.Mip, Layer: e.sub.Layer}, level[0])
		} else {
			for _, s := range level {
				emit(s.sub, s)
			}
		}
		states = states[n:]
	}
}

func appendBarrier(list []device.Barrier, b device.Barrier) []device.Barrier {
	if slices.Contains(list, b) {
		return list
	}
	return append(list, b)
}

func (g *Graph) ensureFences() error {
	for q := range g.fences {
		if g.fences[q] != 0 {
			continue
		}
		f, err := g.dev.CreateFence(fmt.Sprintf("framegraph_%s", device.QueueKind(q)))
		if err != nil {
			return fmt.Errorf("framegraph: create %s fence: %w", device.QueueKind(q), err)
		}
		g.fences[q] = f
	}
	return nil
}
