package framegraph

import (
	"log/slog"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/internal/lifetime"
)

type phase uint8

const (
	phaseDeclare phase = iota
	phaseCompiled
	phaseExecuted
)

func (p phase) String() string {
	switch p {
	case phaseDeclare:
		return "declare"
	case phaseCompiled:
		return "compiled"
	}
	return "executed"
}

// nodeInfo maps a dag node back to the pass or resource version it stands
// for. pass is nil for version nodes.
type nodeInfo struct {
	pass     *Pass
	resource int
	version  int
}

type importedView struct {
	id   device.ResourceID
	desc device.ViewDesc
}

// Graph is the per-renderer frame graph. It is reused every frame through
// Clear and is not safe for concurrent use.
type Graph struct {
	dev    device.Device
	cfg    Config
	reopen func(device.CommandBuffer)
	logger *slog.Logger

	alloc *lifetime.Allocator
	dag   *dag.Graph[edge]
	nodes []nodeInfo

	passes    []*Pass
	resources []*VirtualResource
	scratch   arena

	frame uint64
	phase phase

	fences       [device.QueueCount]device.FenceID
	fenceValues  [device.QueueCount]uint64
	frameEndWait uint64

	importViews map[importedView]device.ViewID
	submits     int
}

// New creates a graph on dev. The package logger at the time of the call
// is used for the graph's lifetime.
//
// A configuration that fails Config.Validate is logged at warn level and
// its unusable fields are replaced by their DefaultConfig values; Config
// reports the settings actually in effect.
func New(dev device.Device, opts ...Option) *Graph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := Logger()
	if err := o.config.Validate(); err != nil {
		o.config = o.config.withDefaults()
		logger.Warn("framegraph: invalid config, using defaults for unusable fields",
			"err", err,
			"config", o.config)
	}
	return &Graph{
		dev:         dev,
		cfg:         o.config,
		reopen:      o.reopen,
		logger:      logger,
		alloc:       lifetime.New(dev, o.config.allocatorConfig(), logger),
		dag:         dag.New[edge](),
		frame:       1,
		importViews: make(map[importedView]device.ViewID),
	}
}

// Config returns the configuration the graph was created with.
func (g *Graph) Config() Config { return g.cfg }

// Device returns the device the graph allocates from.
func (g *Graph) Device() device.Device { return g.dev }

// Passes returns every declared pass in declaration order, culled ones
// included.
func (g *Graph) Passes() []*Pass { return g.passes }

// Resources returns every logical resource of the frame.
func (g *Graph) Resources() []*VirtualResource { return g.resources }

// Resource returns the logical resource h refers to. Any version of the
// current frame is accepted.
func (g *Graph) Resource(h Handle) *VirtualResource {
	return g.lookup(h)
}

func (g *Graph) requireDeclare(op string) {
	if g.phase != phaseDeclare {
		fail(ErrWrongPhase, "%s after Compile; call Clear first", op)
	}
}

// AddPass declares a pass. setup runs immediately with a builder bound to
// the new pass and a zeroed *D taken from the frame's scratch storage; exec
// is stored and invoked by Execute unless the pass is culled. Either
// function may be nil.
//
// If *D implements Finalizer, Finalize is called on Clear.
func AddPass[D any](g *Graph, name string, kind PassKind, setup func(*PassBuilder, *D), exec func(*ExecContext, *D)) *PassOf[D] {
	g.requireDeclare("AddPass")

	data := allocScratch[D](&g.scratch)
	p := &Pass{
		name:  name,
		kind:  kind,
		index: len(g.passes),
		node:  &dag.Node{Name: name},
		queue: device.QueuePrimary,
	}
	if kind == KindAsyncCompute && g.cfg.AsyncCompute {
		p.queue = device.QueueAsyncCompute
	}
	g.register(p.node, nodeInfo{pass: p, resource: -1})
	g.passes = append(g.passes, p)

	if setup != nil {
		b := &PassBuilder{graph: g, pass: p}
		setup(b, data)
		b.done = true
	}
	if exec != nil {
		p.exec = func(ctx *ExecContext) { exec(ctx, data) }
	}
	return &PassOf[D]{Pass: p, Data: data}
}

func (g *Graph) register(n *dag.Node, info nodeInfo) dag.NodeID {
	id := g.dag.RegisterNode(n)
	g.nodes = append(g.nodes, info)
	return id
}

func (g *Graph) newResource(name string, kind device.ResourceKind) *VirtualResource {
	r := newVirtualResource(name, len(g.resources), kind)
	g.resources = append(g.resources, r)
	g.newVersion(r)
	return r
}

func (g *Graph) newVersion(r *VirtualResource) dag.NodeID {
	n := &dag.Node{Name: r.name}
	id := g.register(n, nodeInfo{resource: r.index, version: len(r.versions)})
	r.versions = append(r.versions, id)
	return id
}

func (g *Graph) handle(r *VirtualResource) Handle {
	return Handle{frame: g.frame, resource: r.index, node: r.versions[len(r.versions)-1]}
}

// CreateTexture declares a transient texture and returns its version-0
// handle. Memory is assigned by Compile. Usage flags required by the
// declared accesses are added to desc.Usage automatically.
func (g *Graph) CreateTexture(name string, desc device.TextureDesc) Handle {
	g.requireDeclare("CreateTexture")
	r := g.newResource(name, device.KindTexture)
	r.texture = desc.Normalized()
	return g.handle(r)
}

// CreateBuffer declares a transient buffer.
func (g *Graph) CreateBuffer(name string, desc device.BufferDesc) Handle {
	g.requireDeclare("CreateBuffer")
	r := g.newResource(name, device.KindBuffer)
	r.buffer = desc
	return g.handle(r)
}

// ImportTexture wraps a texture owned elsewhere, currently in state. The
// graph never allocates, aliases or destroys it.
func (g *Graph) ImportTexture(name string, tex device.ResourceID, desc device.TextureDesc, state device.Access) Handle {
	g.requireDeclare("ImportTexture")
	r := g.newResource(name, device.KindTexture)
	r.texture = desc.Normalized()
	r.imported, r.external = true, tex
	r.initial, r.state = state, state
	return g.handle(r)
}

// ImportBuffer wraps a buffer owned elsewhere, currently in state.
func (g *Graph) ImportBuffer(name string, buf device.ResourceID, desc device.BufferDesc, state device.Access) Handle {
	g.requireDeclare("ImportBuffer")
	r := g.newResource(name, device.KindBuffer)
	r.buffer = desc
	r.imported, r.external = true, buf
	r.initial, r.state = state, state
	return g.handle(r)
}

// Present marks the version h as a graph output. It survives culling along
// with everything it depends on, its memory is never aliased, and Execute
// leaves it in finalState.
func (g *Graph) Present(h Handle, finalState device.Access) {
	g.requireDeclare("Present")
	r := g.current(h)
	g.dag.Node(h.node).Target = true
	r.output = true
	r.final = finalState
}

// lookup validates h against the current frame.
func (g *Graph) lookup(h Handle) *VirtualResource {
	if !h.IsValid() {
		fail(ErrInvalidHandle, "zero handle")
	}
	if h.frame != g.frame {
		fail(ErrStaleHandle, "%s belongs to an earlier frame", h)
	}
	if h.resource < 0 || h.resource >= len(g.resources) {
		fail(ErrInvalidHandle, "%s names no resource", h)
	}
	r := g.resources[h.resource]
	if h.node < 0 || int(h.node) >= len(g.nodes) || g.nodes[h.node].pass != nil || g.nodes[h.node].resource != r.index {
		fail(ErrInvalidHandle, "%s names no version of %s", h, r)
	}
	return r
}

// current validates h and requires it to name the latest version.
func (g *Graph) current(h Handle) *VirtualResource {
	r := g.lookup(h)
	if latest := r.versions[len(r.versions)-1]; h.node != latest {
		fail(ErrStaleHandle, "%s is version %d of %s, latest is %d",
			h, g.nodes[h.node].version, r, len(r.versions)-1)
	}
	return r
}

func (g *Graph) read(p *Pass, h Handle, access device.Access, sub device.Subresource) Handle {
	r := g.current(h)
	g.dag.RegisterEdge(edge{from: h.node, to: p.node.ID, kind: edgeRead, resource: r.index, access: access, sub: sub})
	return h
}

func (g *Graph) write(p *Pass, h Handle, access device.Access, sub device.Subresource) Handle {
	r := g.current(h)
	for _, w := range p.writes {
		if w.resource == r.index && w.sub.Overlaps(sub) {
			fail(ErrDoubleWrite, "pass %q writes %s %s twice", p.name, r, sub)
		}
	}
	in := edge{from: h.node, to: p.node.ID, kind: edgeWrite, resource: r.index, access: access, sub: sub}
	g.dag.RegisterEdge(in)
	p.writes = append(p.writes, in)

	v := g.newVersion(r)
	g.dag.RegisterEdge(edge{from: p.node.ID, to: v, kind: edgeProduce, resource: r.index, access: access, sub: sub, prev: h.node})
	return g.handle(r)
}

// Clear ends the frame: pass data finalizers run, physical resources are
// returned to the allocator, and every pass, resource and handle of the
// frame becomes invalid. Heaps and pooled resources are kept for reuse.
func (g *Graph) Clear() {
	g.scratch.reset()
	for _, r := range g.resources {
		if r.physical != nil {
			g.alloc.Free(r.physical)
		}
	}
	for k, v := range g.importViews {
		g.dev.DestroyShaderView(v)
		delete(g.importViews, k)
	}

	g.dag.Reset()
	clear(g.nodes)
	g.nodes = g.nodes[:0]
	clear(g.passes)
	g.passes = g.passes[:0]
	clear(g.resources)
	g.resources = g.resources[:0]

	g.frame++
	g.phase = phaseDeclare
	g.frameEndWait = 0
	g.submits = 0
}

// Release destroys every physical resource, heap and fence the graph owns.
// The graph must not be used afterwards.
func (g *Graph) Release() {
	g.Clear()
	g.alloc.Release()
	for q, f := range g.fences {
		if f != 0 {
			g.dev.DestroyFence(f)
			g.fences[q] = 0
		}
	}
}

// HeapSnapshot returns the heap layout after Compile.
func (g *Graph) HeapSnapshot() []HeapInfo {
	return g.alloc.Snapshot()
}
