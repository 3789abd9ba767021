package framegraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/device"
)

// Submission holds the command buffers still open after Execute. The caller
// submits them; the graph has already submitted everything recorded before
// its last fence operation on each queue. Async is nil when nothing is left
// to submit on the async-compute queue.
type Submission struct {
	Primary device.CommandBuffer
	Async   device.CommandBuffer
}

// ExecContext is handed to pass callbacks.
type ExecContext struct {
	graph *Graph
	pass  *Pass
	cmd   device.CommandBuffer
}

// Cmd returns the command buffer to record into.
func (c *ExecContext) Cmd() device.CommandBuffer { return c.cmd }

// Device returns the graph's device.
func (c *ExecContext) Device() device.Device { return c.graph.dev }

// Pass returns the running pass.
func (c *ExecContext) Pass() *Pass { return c.pass }

// Queue returns the queue the pass runs on.
func (c *ExecContext) Queue() device.QueueKind { return c.pass.queue }

// Logger returns the graph's logger.
func (c *ExecContext) Logger() *slog.Logger { return c.graph.logger }

// Resource returns the physical resource behind h. Any version of the
// current frame is accepted.
func (c *ExecContext) Resource(h Handle) device.ResourceID {
	return c.graph.lookup(h).Physical()
}

// View returns a shader view of h, created on first use and reused while
// the physical resource lives.
func (c *ExecContext) View(h Handle, desc device.ViewDesc) (device.ViewID, error) {
	return c.graph.view(c.graph.lookup(h), desc)
}

func (g *Graph) view(r *VirtualResource, desc device.ViewDesc) (device.ViewID, error) {
	if r.physical != nil {
		return r.physical.View(g.dev, desc)
	}
	if !r.imported {
		return 0, fmt.Errorf("framegraph: %s has no memory; it was culled or never used", r)
	}
	key := importedView{r.external, desc}
	if v, ok := g.importViews[key]; ok {
		return v, nil
	}
	v, err := g.dev.CreateShaderView(r.external, desc)
	if err != nil {
		return 0, fmt.Errorf("framegraph: create view for %s: %w", r, err)
	}
	g.importViews[key] = v
	return v, nil
}

// executor holds the open command buffer of each queue during Execute.
// fresh marks buffers the graph opened that nothing has been recorded into
// yet; a wait can be issued on them without splitting first.
type executor struct {
	g     *Graph
	cmds  [device.QueueCount]device.CommandBuffer
	fresh [device.QueueCount]bool
}

func (x *executor) current(q device.QueueKind) (device.CommandBuffer, error) {
	if x.cmds[q] != nil {
		return x.cmds[q], nil
	}
	cmd, err := x.g.dev.OpenCommandBuffer(q)
	if err != nil {
		return nil, fmt.Errorf("framegraph: open %s command buffer: %w", q, err)
	}
	x.cmds[q], x.fresh[q] = cmd, true
	if x.g.reopen != nil {
		x.g.reopen(cmd)
	}
	return cmd, nil
}

// submit closes the open command buffer of q, signalling fence to value
// when fence is non-zero. The next use of q opens a new one.
func (x *executor) submit(q device.QueueKind, fence device.FenceID, value uint64) error {
	cmd, err := x.current(q)
	if err != nil {
		return err
	}
	if err := x.g.dev.SubmitAndSignal(cmd, fence, value); err != nil {
		return fmt.Errorf("framegraph: submit %s command buffer: %w", q, err)
	}
	x.g.submits++
	x.cmds[q], x.fresh[q] = nil, false
	return nil
}

// waitOn returns a command buffer of q that starts with a wait for value on
// the other queue's fence. Work already recorded on q is submitted first so
// it does not wait too.
func (x *executor) waitOn(q device.QueueKind, value uint64) (device.CommandBuffer, error) {
	if x.cmds[q] != nil && !x.fresh[q] {
		if err := x.submit(q, 0, 0); err != nil {
			return nil, err
		}
	}
	cmd, err := x.current(q)
	if err != nil {
		return nil, err
	}
	x.g.dev.WaitOnFence(cmd, x.g.fences[q.Other()], value)
	return cmd, nil
}

func (x *executor) emit(cmd device.CommandBuffer, barriers []device.Barrier) {
	for _, b := range barriers {
		x.g.dev.EmitResourceBarrier(cmd, b)
	}
}

// Execute replays the compiled frame. Passes run in declaration order on
// their queue. Before each pass its fence wait is issued, then its
// queue-crossing, aliasing and ordinary barriers are recorded; graphics
// passes with attachments get a render pass around their callback; a pass
// carrying a signal value submits its command buffer. Finally every presented
// resource is moved to its final state on the primary queue.
//
// gfx and async may be nil, in which case command buffers are opened on
// demand.
func (g *Graph) Execute(gfx, async device.CommandBuffer) (Submission, error) {
	if g.phase != phaseCompiled {
		if g.phase == phaseDeclare {
			fail(ErrNotCompiled, "Execute before Compile")
		}
		fail(ErrWrongPhase, "Execute called twice in one frame")
	}
	g.phase = phaseExecuted

	x := &executor{g: g}
	x.cmds[device.QueuePrimary] = gfx
	x.cmds[device.QueueAsyncCompute] = async

	for _, p := range g.passes {
		if p.Culled() {
			continue
		}
		if err := x.run(p); err != nil {
			return x.submission(), err
		}
	}

	if err := x.finish(); err != nil {
		return x.submission(), err
	}
	if g.logger.Enabled(context.Background(), slog.LevelDebug) {
		g.logger.Debug("framegraph: executed", "frame", g.frame, "submits", g.submits)
	}
	return x.submission(), nil
}

func (x *executor) submission() Submission {
	return Submission{Primary: x.cmds[device.QueuePrimary], Async: x.cmds[device.QueueAsyncCompute]}
}

func (x *executor) run(p *Pass) error {
	g := x.g
	q := p.queue
	var (
		cmd device.CommandBuffer
		err error
	)
	if p.waitValue != 0 {
		cmd, err = x.waitOn(q, p.waitValue)
	} else {
		cmd, err = x.current(q)
	}
	if err != nil {
		return err
	}
	x.fresh[q] = false

	x.emit(cmd, p.crossing)
	x.emit(cmd, p.aliasing)
	x.emit(cmd, p.barriers)
	for _, list := range [][]device.Barrier{p.crossing, p.barriers} {
		for _, b := range list {
			g.trackBarrier(b)
		}
	}

	attached := p.HasAttachments()
	if attached {
		colors, depth, err := g.attachments(p)
		if err != nil {
			return err
		}
		g.dev.BeginRenderPass(cmd, colors, depth)
	}
	if p.exec != nil {
		p.exec(&ExecContext{graph: g, pass: p, cmd: cmd})
	}
	if attached {
		g.dev.EndRenderPass(cmd)
	}

	if p.signalValue != 0 {
		return x.submit(q, g.fences[q], p.signalValue)
	}
	return nil
}

// finish waits for async work feeding outputs and records the final
// transitions of presented resources.
func (x *executor) finish() error {
	g := x.g
	var (
		cmd device.CommandBuffer
		err error
	)
	if g.frameEndWait != 0 {
		cmd, err = x.waitOn(device.QueuePrimary, g.frameEndWait)
	} else {
		cmd, err = x.current(device.QueuePrimary)
	}
	if err != nil {
		return err
	}

	for _, r := range g.resources {
		id := r.Physical()
		if !r.output || !id.IsValid() {
			continue
		}
		states := r.last
		if len(states) == 0 {
			states = []subresourceState{{device.AllSubresources, r.initial}}
		}
		for _, s := range states {
			if s.access != r.final {
				g.dev.EmitResourceBarrier(cmd, device.Barrier{
					Kind:        device.BarrierTransition,
					Resource:    id,
					Subresource: s.sub,
					Before:      s.access,
					After:       r.final,
				})
			}
		}
	}
	for _, r := range g.resources {
		if r.Used() || r.output {
			r.state = r.endState()
		}
	}
	return nil
}

func (g *Graph) trackBarrier(b device.Barrier) {
	if !b.Subresource.IsAll() {
		return
	}
	for _, r := range g.resources {
		if r.Physical() == b.Resource {
			r.state = b.After
		}
	}
}

func (g *Graph) attachments(p *Pass) ([]device.ColorTarget, *device.DepthTarget, error) {
	slots := 0
	for _, c := range p.colors {
		slots = max(slots, c.index+1)
	}
	colors := make([]device.ColorTarget, 0, slots)
	byIndex := make([]*colorBinding, slots)
	for i := range p.colors {
		byIndex[p.colors[i].index] = &p.colors[i]
	}
	for _, c := range byIndex {
		if c == nil {
			colors = append(colors, device.ColorTarget{})
			continue
		}
		r := g.resources[c.resource]
		v, err := g.view(r, g.attachmentView(r, c.sub))
		if err != nil {
			return nil, nil, err
		}
		colors = append(colors, device.ColorTarget{
			Resource:   r.Physical(),
			View:       v,
			LoadOp:     c.LoadOp,
			StoreOp:    c.StoreOp,
			ClearValue: c.ClearValue,
		})
	}

	var depth *device.DepthTarget
	if d := p.depth; d != nil {
		r := g.resources[d.resource]
		v, err := g.view(r, g.attachmentView(r, d.sub))
		if err != nil {
			return nil, nil, err
		}
		depth = &device.DepthTarget{
			Resource:          r.Physical(),
			View:              v,
			ReadOnly:          d.ReadOnly,
			DepthLoadOp:       d.DepthLoadOp,
			DepthStoreOp:      d.DepthStoreOp,
			DepthClearValue:   d.DepthClearValue,
			StencilLoadOp:     d.StencilLoadOp,
			StencilStoreOp:    d.StencilStoreOp,
			StencilClearValue: d.StencilClearValue,
		}
	}
	return colors, depth, nil
}

func (g *Graph) attachmentView(r *VirtualResource, sub device.Subresource) device.ViewDesc {
	desc := device.ViewFor(sub)
	desc.Format = r.texture.Format
	desc.Dimension = gputypes.TextureViewDimension2D
	return desc
}
