package framegraph

import (
	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/internal/lifetime"
)

// asyncResolver threads fence bookkeeping through one walk over the
// surviving passes in declaration order.
//
// Consecutive async-compute passes form a batch. The first pass of a batch
// waits, once, for a primary-queue signal placed after the latest primary
// pass any member depends on. A primary pass that depends on async work
// waits for the value signalled after the last pass of the producing batch.
// Waits already covered by an earlier wait on the same queue are dropped.
type asyncResolver struct {
	g *Graph

	// next is the last value handed out per queue fence.
	next [device.QueueCount]uint64
	// waited is the highest value of the other queue's fence each queue has
	// already waited for this frame.
	waited [device.QueueCount]uint64

	batch []*Pass
	// batchDep is the latest primary-queue pass the open batch depends on.
	batchDep *Pass
}

// resolveAsync assigns wait and signal values. It does nothing when no
// surviving pass runs on the async-compute queue.
func (g *Graph) resolveAsync() error {
	var alive []*Pass
	async := false
	for _, p := range g.passes {
		if p.Culled() {
			continue
		}
		alive = append(alive, p)
		async = async || p.queue == device.QueueAsyncCompute
	}
	if !async {
		return nil
	}
	if err := g.ensureFences(); err != nil {
		return err
	}

	r := &asyncResolver{g: g, next: g.fenceValues}
	for _, p := range alive {
		if p.queue == device.QueueAsyncCompute {
			r.batchDep = latest(r.batchDep, g.crossQueueDependency(p))
			r.batch = append(r.batch, p)
			continue
		}

		r.closeBatch()
		if d := g.crossQueueDependency(p); d != nil {
			r.wait(p, r.signalFor(d, p.index))
		}
	}
	r.closeBatch()

	// Outputs last touched on the async queue must be complete before the
	// primary queue moves them to their final state.
	var last *Pass
	for _, res := range g.resources {
		if !res.output || !res.Used() {
			continue
		}
		if p := g.passes[res.lastPass]; p.queue == device.QueueAsyncCompute {
			last = latest(last, p)
		}
	}
	if last != nil {
		if v := r.signalFor(last, len(g.passes)); v > r.waited[device.QueuePrimary] {
			g.frameEndWait = v
			r.waited[device.QueuePrimary] = v
		}
	}

	g.fenceValues = r.next
	return nil
}

func (r *asyncResolver) wait(p *Pass, value uint64) {
	if value > r.waited[p.queue] {
		p.waitValue = value
		r.waited[p.queue] = value
	}
}

func (r *asyncResolver) closeBatch() {
	if len(r.batch) == 0 {
		return
	}
	if r.batchDep != nil {
		r.wait(r.batch[0], r.signalFor(r.batchDep, r.batch[0].index))
	}
	clear(r.batch)
	r.batch = r.batch[:0]
	r.batchDep = nil
}

func latest(a, b *Pass) *Pass {
	if a == nil || (b != nil && b.index > a.index) {
		return b
	}
	return a
}

// signalFor returns a fence value on d's queue that is signalled after d
// completes and before the pass at index before runs. An existing signal
// between the two is reused; otherwise d signals, or for async work the
// last pass of d's batch does. Values therefore grow with declaration
// order on each queue.
func (r *asyncResolver) signalFor(d *Pass, before int) uint64 {
	passes := r.g.passes
	q := d.queue
	for i := d.index; i < before; i++ {
		s := passes[i]
		if !s.Culled() && s.queue == q && s.signalValue != 0 {
			return s.signalValue
		}
	}

	s := d
	if q == device.QueueAsyncCompute {
		for i := d.index + 1; i < before; i++ {
			n := passes[i]
			if n.Culled() {
				continue
			}
			if n.queue != q {
				break
			}
			s = n
		}
	}
	r.next[q]++
	s.signalValue = r.next[q]
	return s.signalValue
}

// crossQueueDependency returns the latest pass on the other queue that p
// depends on, or nil. Work on one queue runs in order, so waiting for the
// latest one covers the rest.
func (g *Graph) crossQueueDependency(p *Pass) *Pass {
	var d *Pass
	for _, q := range g.dependencies(p) {
		if q.queue != p.queue {
			d = latest(d, q)
		}
	}
	return d
}

// dependencies returns the surviving passes p must run after: the producer
// of every version p reads or writes, the earlier readers of every version
// p replaces, and the other-queue passes whose state transitions p relies
// on or undoes.
func (g *Graph) dependencies(p *Pass) []*Pass {
	var out []*Pass
	add := func(q *Pass) {
		if q != nil && q != p {
			for _, have := range out {
				if have == q {
					return
				}
			}
			out = append(out, q)
		}
	}
	for _, e := range g.dag.IncomingEdges(p.node.ID) {
		if !g.dag.IsEdgeValid(e) {
			continue
		}
		if prod, ok := g.producerOf(e.from); ok {
			add(g.passAt(prod.from))
		}
		r := g.resources[e.resource]
		for _, s := range g.priorStates(r, e.from, p.index, r.subresources(e.sub)) {
			add(g.transitionSource(p, e.access, r, s))
		}
		if e.kind != edgeWrite {
			continue
		}
		for _, u := range g.usesOf(e.from) {
			if q := g.passAt(u.to); q.index < p.index {
				add(q)
			}
		}
	}
	return out
}

// transitionSource returns the pass on the other queue that p has to wait
// for before it finds s's subresource in a usable state, or nil. That is
// the previous user when p moves the subresource to a new state, and
// otherwise the other-queue pass that moved it into the state p finds it
// in. Passes on p's own queue run in order and need no fence.
func (g *Graph) transitionSource(p *Pass, access device.Access, r *VirtualResource, s priorState) *Pass {
	for s.crosses(p) {
		if s.access != access {
			return s.pass
		}
		prev := g.priorStates(r, s.from, s.before, []device.Subresource{s.sub})[0]
		if prev.access != s.access {
			return s.pass
		}
		s = prev
	}
	return nil
}

// resolveSpans places every used resource's lifetime on the queues once
// fence values are known, so the allocator shares memory across queues
// only where a fence wait orders the uses.
func (g *Graph) resolveSpans() {
	for _, r := range g.resources {
		if !r.Used() {
			continue
		}
		for q := range r.span.Start {
			r.span.Start[q], r.span.Free[q] = lifetime.Never, 0
			if r.firstOn[q] != unusedPass {
				r.span.Start[q] = r.firstOn[q]
			}
		}
		for from, last := range r.lastOn {
			if last == unusedPass {
				continue
			}
			for q := range r.span.Free {
				free := g.firstOrderedAfter(device.QueueKind(from), last, device.QueueKind(q))
				r.span.Free[q] = max(r.span.Free[q], free)
			}
		}
	}
}

// firstOrderedAfter returns the index of the first surviving pass on queue
// q that runs after pass i of queue from has completed, or lifetime.Never.
// On the other queue that is the first pass waiting for a value signalled
// at or after i.
func (g *Graph) firstOrderedAfter(from device.QueueKind, i int, q device.QueueKind) int {
	if q == from {
		return i + 1
	}
	var signal uint64
	for _, s := range g.passes[i:] {
		if !s.Culled() && s.queue == from && s.signalValue != 0 {
			signal = s.signalValue
			break
		}
	}
	if signal == 0 {
		return lifetime.Never
	}
	for _, w := range g.passes[i+1:] {
		if !w.Culled() && w.queue == q && w.waitValue >= signal {
			return w.index
		}
	}
	return lifetime.Never
}
