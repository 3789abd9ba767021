// Package dag is the bookkeeping core of the frame graph: numbered nodes,
// directed edges and reference-counted culling.
//
// Node ids are dense and equal to registration order, so node lookups are
// slice indexing. Edge queries are linear scans; a frame holds a few hundred
// nodes at most and the graph is rebuilt every frame.
//
// The package knows nothing about GPUs. Edges carry whatever payload the
// caller needs through the [Edge] interface.
package dag

import (
	"fmt"
)

// NodeID identifies a node. Ids start at zero and increase by one per
// registered node.
type NodeID int

// InvalidNode is never assigned to a registered node.
const InvalidNode NodeID = -1

// Node is the graph-side state of a pass or resource version.
type Node struct {
	// ID is assigned by RegisterNode.
	ID NodeID

	// Name is used by the DOT export.
	Name string

	// RefCount is the number of live consumers after Cull.
	RefCount int

	// Target pins the node: it survives culling and keeps everything it
	// depends on alive.
	Target bool

	registered bool
}

// Culled reports whether the node was removed by the last Cull.
func (n *Node) Culled() bool {
	return n.RefCount == 0 && !n.Target
}

// Edge is a directed arc between two registered nodes.
type Edge interface {
	From() NodeID
	To() NodeID
}

// Graph owns nodes and edges for one frame.
type Graph[E Edge] struct {
	nodes []*Node
	edges []E
}

// New returns an empty graph.
func New[E Edge]() *Graph[E] {
	return &Graph[E]{}
}

// RegisterNode assigns n the next id and adds it to the graph.
// It panics if n is already registered or carries a preassigned id that is
// not the next one.
func (g *Graph[E]) RegisterNode(n *Node) NodeID {
	next := NodeID(len(g.nodes))
	if n.registered || (n.ID != 0 && n.ID != next) {
		panic(fmt.Sprintf("dag: node %q registered out of order: has id %d, next is %d", n.Name, n.ID, next))
	}
	n.ID = next
	n.registered = true
	g.nodes = append(g.nodes, n)
	return next
}

// RegisterEdge appends e. It panics if either endpoint is not registered.
func (g *Graph[E]) RegisterEdge(e E) {
	if !g.has(e.From()) || !g.has(e.To()) {
		panic(fmt.Sprintf("dag: dangling edge %d -> %d (%d nodes)", e.From(), e.To(), len(g.nodes)))
	}
	g.edges = append(g.edges, e)
}

func (g *Graph[E]) has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Node returns the node with the given id. It panics on an unknown id.
func (g *Graph[E]) Node(id NodeID) *Node {
	if !g.has(id) {
		panic(fmt.Sprintf("dag: unknown node %d", id))
	}
	return g.nodes[id]
}

// Nodes returns every node in id order. The slice is owned by the graph.
func (g *Graph[E]) Nodes() []*Node { return g.nodes }

// Edges returns every edge in registration order. The slice is owned by the
// graph.
func (g *Graph[E]) Edges() []E { return g.edges }

// Len returns the number of nodes.
func (g *Graph[E]) Len() int { return len(g.nodes) }

// Cull recomputes reference counts and marks every node that does not
// contribute to a target.
//
// A node's count is the number of edges leaving it. Nodes at zero are
// released one at a time; releasing a node decrements every node that feeds
// it, and producers that reach zero are released in turn. Targets never
// reach zero. Cull starts from scratch on every call, so repeated calls give
// the same result.
func (g *Graph[E]) Cull() {
	for _, n := range g.nodes {
		n.RefCount = 0
	}
	for _, e := range g.edges {
		g.nodes[e.From()].RefCount++
	}

	work := make([]NodeID, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n.RefCount == 0 && !n.Target {
			work = append(work, n.ID)
		}
	}

	// Incoming edges per node, built once so the sweep stays linear.
	producers := make([][]NodeID, len(g.nodes))
	for _, e := range g.edges {
		producers[e.To()] = append(producers[e.To()], e.From())
	}

	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range producers[id] {
			prod := g.nodes[p]
			if prod.Target {
				continue
			}
			prod.RefCount--
			if prod.RefCount == 0 {
				work = append(work, p)
			}
		}
	}
}

// IncomingEdges returns the edges that end at id, in registration order.
func (g *Graph[E]) IncomingEdges(id NodeID) []E {
	var out []E
	for _, e := range g.edges {
		if e.To() == id {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges that start at id, in registration order.
func (g *Graph[E]) OutgoingEdges(id NodeID) []E {
	var out []E
	for _, e := range g.edges {
		if e.From() == id {
			out = append(out, e)
		}
	}
	return out
}

// IsEdgeValid reports whether both endpoints of e survived culling.
func (g *Graph[E]) IsEdgeValid(e E) bool {
	return !g.nodes[e.From()].Culled() && !g.nodes[e.To()].Culled()
}

// Reset drops every node and edge but keeps the backing storage.
func (g *Graph[E]) Reset() {
	clear(g.nodes)
	g.nodes = g.nodes[:0]
	clear(g.edges)
	g.edges = g.edges[:0]
}
