package framegraph

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/device/devicetest"
)

type noData struct{}

var clearStore = Attachment{LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}

func rgba(w, h uint32) device.TextureDesc {
	return device.TextureDesc{Width: w, Height: h, Format: gputypes.TextureFormatRGBA8Unorm}
}

func buffer(size uint64) device.BufferDesc {
	return device.BufferDesc{Size: size}
}

// markExec records the pass name into the command buffer it runs on.
func markExec(ctx *ExecContext, _ *noData) {
	ctx.Cmd().(*devicetest.CommandBuffer).Mark(ctx.Pass().Name())
}

func newTestGraph(t *testing.T, opts ...Option) (*Graph, *devicetest.Device) {
	t.Helper()
	dev := devicetest.New()
	dev.Frame = 1
	return New(dev, opts...), dev
}

func mustCompile(t *testing.T, g *Graph) {
	t.Helper()
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
}

func mustExecute(t *testing.T, g *Graph) Submission {
	t.Helper()
	sub, err := g.Execute(nil, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return sub
}

// expectPanic runs fn and requires it to panic with an error wrapping target.
func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Errorf("panic = %v, want error wrapping %v", r, target)
		}
	}()
	fn()
}

type roundTripScene struct {
	a, b    *Pass
	t0, t0w Handle
	t1, t1w Handle
}

// roundTrip declares A writing T0 as a color target and B sampling T0 while
// rendering T1, which is presented.
func roundTrip(g *Graph) roundTripScene {
	var s roundTripScene
	s.a = AddPass(g, "A", KindGraphics, func(b *PassBuilder, _ *noData) {
		s.t0 = b.CreateTexture("T0", rgba(256, 256))
		s.t0w = b.WriteColor(s.t0, 0, clearStore)
	}, markExec).Pass
	s.b = AddPass(g, "B", KindGraphics, func(b *PassBuilder, _ *noData) {
		b.Read(s.t0w, device.AccessShaderRead)
		s.t1 = b.CreateTexture("T1", rgba(256, 256))
		s.t1w = b.WriteColor(s.t1, 0, clearStore)
	}, markExec).Pass
	g.Present(s.t1w, device.AccessPresent)
	return s
}

func transitionsOf(list []device.Barrier, id device.ResourceID) []device.Barrier {
	var out []device.Barrier
	for _, b := range list {
		if b.Kind == device.BarrierTransition && b.Resource == id {
			out = append(out, b)
		}
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	g, dev := newTestGraph(t)
	s := roundTrip(g)
	mustCompile(t, g)

	for _, p := range g.Passes() {
		if p.Culled() {
			t.Errorf("pass %q culled", p.Name())
		}
	}

	t0 := g.Resource(s.t0)
	t1 := g.Resource(s.t1)
	if got := transitionsOf(s.b.Barriers(), t0.Physical()); len(got) != 1 ||
		got[0].Before != device.AccessRenderTarget || got[0].After != device.AccessShaderRead {
		t.Errorf("B transitions of T0 = %v, want one RenderTarget -> ShaderRead", got)
	}
	if t0.Placement() == nil || t0.Placement().Heap() == nil {
		t.Error("T0 should be placed in a heap")
	}
	if t1.Placement() == nil || t1.Placement().Heap() != nil {
		t.Error("T1 should be a dedicated allocation")
	}
	if !t1.Output() || t0.Output() {
		t.Errorf("Output() = (T0 %v, T1 %v), want (false, true)", t0.Output(), t1.Output())
	}
	if first, last := t0.Lifetime(); first != 0 || last != 1 {
		t.Errorf("T0 lifetime = [%d,%d], want [0,1]", first, last)
	}

	sub := mustExecute(t, g)
	if sub.Primary == nil || sub.Async != nil {
		t.Errorf("Submission = %+v, want primary only", sub)
	}
	if got := dev.Markers(device.QueuePrimary); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("markers = %v, want [A B]", got)
	}

	barriers := dev.Barriers(device.QueuePrimary)
	want := device.Barrier{
		Kind:        device.BarrierTransition,
		Resource:    t1.Physical(),
		Subresource: device.AllSubresources,
		Before:      device.AccessRenderTarget,
		After:       device.AccessPresent,
	}
	if len(barriers) == 0 || barriers[len(barriers)-1] != want {
		t.Errorf("last barrier = %v, want %v", barriers, want)
	}
	if t1.State() != device.AccessPresent {
		t.Errorf("T1 state = %v, want Present", t1.State())
	}
	if t0.State() != device.AccessShaderRead {
		t.Errorf("T0 state = %v, want ShaderRead", t0.State())
	}

	var passes int
	for _, ev := range dev.Events(device.QueuePrimary) {
		if ev.Kind == devicetest.EventBeginRenderPass {
			passes++
			if len(ev.Colors) != 1 || ev.Colors[0].LoadOp != gputypes.LoadOpClear {
				t.Errorf("render pass colors = %+v", ev.Colors)
			}
		}
	}
	if passes != 2 {
		t.Errorf("render passes = %d, want 2", passes)
	}
}

func TestDeadBranchIsCulled(t *testing.T) {
	g, dev := newTestGraph(t)
	var t0, t0w Handle
	ran := false
	a := AddPass(g, "A", KindCompute, func(b *PassBuilder, _ *noData) {
		t0 = b.CreateBuffer("T0", buffer(1024))
		t0w = b.Write(t0, device.AccessUnorderedAccess)
	}, func(*ExecContext, *noData) { ran = true })
	mustCompile(t, g)

	if !a.Culled() {
		t.Error("A should be culled")
	}
	if !g.dag.Node(t0.node).Culled() || !g.dag.Node(t0w.node).Culled() {
		t.Error("T0 versions should be culled")
	}
	r := g.Resource(t0)
	if r.Used() || r.Placement() != nil {
		t.Error("T0 should not be realized")
	}
	if len(dev.Buffers) != 0 || len(dev.Heaps) != 0 {
		t.Errorf("device allocations = %d buffers, %d heaps, want none", len(dev.Buffers), len(dev.Heaps))
	}

	mustExecute(t, g)
	if ran {
		t.Error("culled pass callback ran")
	}
}

// survivors computes, independently of Cull, which nodes reach a target.
func survivors(g *Graph) []bool {
	alive := make([]bool, g.dag.Len())
	var visit func(id dag.NodeID)
	visit = func(id dag.NodeID) {
		if alive[id] {
			return
		}
		alive[id] = true
		for _, e := range g.dag.IncomingEdges(id) {
			visit(e.from)
		}
	}
	for _, n := range g.dag.Nodes() {
		if n.Target {
			visit(n.ID)
		}
	}
	return alive
}

func TestCullingKeepsExactlyTargetAncestors(t *testing.T) {
	g, _ := newTestGraph(t)
	var x, y, z, out Handle
	AddPass(g, "P0", KindCompute, func(b *PassBuilder, _ *noData) {
		x = b.Write(b.CreateBuffer("X", buffer(256)), device.AccessUnorderedAccess)
	}, nil)
	p1 := AddPass(g, "P1", KindCompute, func(b *PassBuilder, _ *noData) {
		b.Read(x, device.AccessShaderRead)
		y = b.Write(b.CreateBuffer("Y", buffer(256)), device.AccessUnorderedAccess)
	}, nil)
	p2 := AddPass(g, "P2", KindCompute, func(b *PassBuilder, _ *noData) {
		b.Read(x, device.AccessShaderRead)
		z = b.Write(b.CreateBuffer("Z", buffer(256)), device.AccessUnorderedAccess)
	}, nil)
	p3 := AddPass(g, "P3", KindCompute, func(b *PassBuilder, _ *noData) {
		b.Read(z, device.AccessShaderRead)
		b.Write(b.CreateBuffer("W", buffer(256)), device.AccessUnorderedAccess)
	}, nil)
	p4 := AddPass(g, "P4", KindGraphics, func(b *PassBuilder, _ *noData) {
		b.Read(y, device.AccessShaderRead)
		out = b.WriteColor(b.CreateTexture("Out", rgba(64, 64)), 0, clearStore)
	}, nil)
	g.Present(out, device.AccessPresent)
	mustCompile(t, g)

	want := survivors(g)
	for _, n := range g.dag.Nodes() {
		if n.Culled() == want[n.ID] {
			t.Errorf("node %d (%s): culled = %v, reaches target = %v", n.ID, n.Name, n.Culled(), want[n.ID])
		}
	}
	if p1.Culled() || p4.Culled() || !p2.Culled() || !p3.Culled() {
		t.Errorf("culled = P1 %v P2 %v P3 %v P4 %v, want false true true false",
			p1.Culled(), p2.Culled(), p3.Culled(), p4.Culled())
	}
	if g.Resource(z).Used() {
		t.Error("Z should be unused")
	}

	before := make([]bool, g.dag.Len())
	for i, n := range g.dag.Nodes() {
		before[i] = n.Culled()
	}
	g.dag.Cull()
	g.dag.Cull()
	for i, n := range g.dag.Nodes() {
		if n.Culled() != before[i] {
			t.Errorf("node %d changed after repeated Cull", i)
		}
	}
}

func TestSideEffectPassSurvives(t *testing.T) {
	g, _ := newTestGraph(t)
	var x Handle
	p0 := AddPass(g, "upload", KindCopy, func(b *PassBuilder, _ *noData) {
		x = b.Write(b.CreateBuffer("staging", buffer(256)), device.AccessCopyDst)
	}, nil)
	p1 := AddPass(g, "readback", KindCopy, func(b *PassBuilder, _ *noData) {
		b.Read(x, device.AccessCopySrc)
		b.SideEffect()
	}, nil)
	mustCompile(t, g)
	if p0.Culled() || p1.Culled() {
		t.Errorf("culled = (%v, %v), want both kept", p0.Culled(), p1.Culled())
	}
}

func TestVersionChain(t *testing.T) {
	g, _ := newTestGraph(t)
	h := make([]Handle, 4)
	h[0] = g.CreateBuffer("B", buffer(4096))
	passes := make([]*Pass, 3)
	accesses := []device.Access{device.AccessUnorderedAccess, device.AccessCopyDst, device.AccessUnorderedAccess}
	for i, access := range accesses {
		passes[i] = AddPass(g, "W", KindCompute, func(b *PassBuilder, _ *noData) {
			h[i+1] = b.Write(h[i], access)
			if i == len(accesses)-1 {
				b.SideEffect()
			}
		}, nil).Pass
	}
	mustCompile(t, g)

	r := g.Resource(h[0])
	if r.Versions() != 4 {
		t.Fatalf("Versions() = %d, want 4", r.Versions())
	}
	if _, ok := g.producerOf(r.versions[0]); ok {
		t.Error("version 0 has a producer")
	}
	for i := 1; i < 4; i++ {
		if h[i].node != r.versions[i] {
			t.Errorf("handle %d names node %d, want %d", i, h[i].node, r.versions[i])
		}
		prod, ok := g.producerOf(r.versions[i])
		if !ok {
			t.Fatalf("version %d has no producer", i)
		}
		if prod.prev != r.versions[i-1] {
			t.Errorf("version %d replaces node %d, want %d", i, prod.prev, r.versions[i-1])
		}
		if g.passAt(prod.from) != passes[i-1] {
			t.Errorf("version %d produced by %q", i, g.passAt(prod.from).Name())
		}
	}

	var writes int
	for _, e := range g.dag.Edges() {
		if e.kind == edgeWrite && e.resource == r.index {
			writes++
		}
	}
	if writes != 3 {
		t.Errorf("write edges = %d, want 3", writes)
	}
}

func TestProgrammerErrorsPanic(t *testing.T) {
	tests := []struct {
		name   string
		target error
		run    func(g *Graph)
	}{
		{"zero handle", ErrInvalidHandle, func(g *Graph) {
			AddPass(g, "p", KindCompute, func(b *PassBuilder, _ *noData) {
				b.Read(Handle{}, device.AccessShaderRead)
			}, nil)
		}},
		{"superseded version", ErrStaleHandle, func(g *Graph) {
			h := g.CreateBuffer("b", buffer(64))
			AddPass(g, "w", KindCompute, func(b *PassBuilder, _ *noData) {
				b.Write(h, device.AccessUnorderedAccess)
			}, nil)
			AddPass(g, "r", KindCompute, func(b *PassBuilder, _ *noData) {
				b.Read(h, device.AccessShaderRead)
			}, nil)
		}},
		{"handle from an earlier frame", ErrStaleHandle, func(g *Graph) {
			h := g.CreateBuffer("b", buffer(64))
			g.Clear()
			g.Present(h, device.AccessCommon)
		}},
		{"double write", ErrDoubleWrite, func(g *Graph) {
			h := g.CreateBuffer("b", buffer(64))
			AddPass(g, "w", KindCompute, func(b *PassBuilder, _ *noData) {
				h = b.Write(h, device.AccessUnorderedAccess)
				b.Write(h, device.AccessUnorderedAccess)
			}, nil)
		}},
		{"color and depth", ErrAttachmentConflict, func(g *Graph) {
			h := g.CreateTexture("t", rgba(64, 64))
			AddPass(g, "g", KindGraphics, func(b *PassBuilder, _ *noData) {
				h = b.WriteColor(h, 0, clearStore)
				b.WriteDepth(h, DepthAttachment{})
			}, nil)
		}},
		{"color slot twice", ErrAttachmentConflict, func(g *Graph) {
			a := g.CreateTexture("a", rgba(64, 64))
			c := g.CreateTexture("c", rgba(64, 64))
			AddPass(g, "g", KindGraphics, func(b *PassBuilder, _ *noData) {
				b.WriteColor(a, 0, clearStore)
				b.WriteColor(c, 0, clearStore)
			}, nil)
		}},
		{"negative color slot", ErrAttachmentConflict, func(g *Graph) {
			a := g.CreateTexture("a", rgba(64, 64))
			AddPass(g, "g", KindGraphics, func(b *PassBuilder, _ *noData) {
				b.WriteColor(a, -1, clearStore)
			}, nil)
		}},
		{"attachment on compute pass", ErrAttachmentConflict, func(g *Graph) {
			a := g.CreateTexture("a", rgba(64, 64))
			AddPass(g, "c", KindCompute, func(b *PassBuilder, _ *noData) {
				b.WriteColor(a, 0, clearStore)
			}, nil)
		}},
		{"execute before compile", ErrNotCompiled, func(g *Graph) {
			_, _ = g.Execute(nil, nil)
		}},
		{"execute twice", ErrWrongPhase, func(g *Graph) {
			_ = g.Compile()
			_, _ = g.Execute(nil, nil)
			_, _ = g.Execute(nil, nil)
		}},
		{"compile twice", ErrWrongPhase, func(g *Graph) {
			_ = g.Compile()
			_ = g.Compile()
		}},
		{"declare after compile", ErrWrongPhase, func(g *Graph) {
			_ = g.Compile()
			AddPass[noData](g, "late", KindCompute, nil, nil)
		}},
		{"builder used after setup", ErrWrongPhase, func(g *Graph) {
			var saved *PassBuilder
			AddPass(g, "p", KindCompute, func(b *PassBuilder, _ *noData) { saved = b }, nil)
			saved.SideEffect()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGraph(t)
			expectPanic(t, tt.target, func() { tt.run(g) })
		})
	}
}

func TestPassDataReachesCallback(t *testing.T) {
	type blurData struct {
		src    Handle
		radius int
	}
	g, _ := newTestGraph(t)
	src := g.CreateTexture("src", rgba(64, 64))
	var got int
	var gotRes device.ResourceID
	p := AddPass(g, "blur", KindCompute, func(b *PassBuilder, d *blurData) {
		d.src = b.Read(src, device.AccessShaderRead)
		d.radius = 3
		b.Write(b.CreateBuffer("out", buffer(64)), device.AccessUnorderedAccess)
		b.SideEffect()
	}, func(ctx *ExecContext, d *blurData) {
		got = d.radius
		gotRes = ctx.Resource(d.src)
	})
	if p.Data.radius != 3 {
		t.Errorf("Data.radius = %d after setup", p.Data.radius)
	}
	mustCompile(t, g)
	mustExecute(t, g)
	if got != 3 {
		t.Errorf("callback saw radius %d, want 3", got)
	}
	if gotRes != g.Resource(src).Physical() || !gotRes.IsValid() {
		t.Errorf("ctx.Resource = %v, want %v", gotRes, g.Resource(src).Physical())
	}
}

func TestImportedSwapchain(t *testing.T) {
	g, dev := newTestGraph(t)
	backbuffer := device.ResourceID{Kind: device.KindTexture, Handle: 999}
	back := g.ImportTexture("backbuffer", backbuffer, rgba(800, 600), device.AccessPresent)
	var out Handle
	p := AddPass(g, "draw", KindGraphics, func(b *PassBuilder, _ *noData) {
		out = b.WriteColor(back, 0, clearStore)
	}, nil)
	g.Present(out, device.AccessPresent)
	mustCompile(t, g)

	r := g.Resource(back)
	if !r.Imported() || r.Placement() != nil || r.Physical() != backbuffer {
		t.Errorf("imported resource = %v placement %v", r.Physical(), r.Placement())
	}
	want := []device.Barrier{{
		Kind:        device.BarrierTransition,
		Resource:    backbuffer,
		Subresource: device.AllSubresources,
		Before:      device.AccessPresent,
		After:       device.AccessRenderTarget,
	}}
	if got := p.Barriers(); !slices.Equal(got, want) {
		t.Errorf("barriers = %v, want %v", got, want)
	}

	mustExecute(t, g)
	if len(dev.Textures) != 0 {
		t.Errorf("created %d textures for an imported target", len(dev.Textures))
	}
	barriers := dev.Barriers(device.QueuePrimary)
	if last := barriers[len(barriers)-1]; last.Before != device.AccessRenderTarget || last.After != device.AccessPresent {
		t.Errorf("final barrier = %v", last)
	}
	if r.State() != device.AccessPresent {
		t.Errorf("State() = %v, want Present", r.State())
	}

	g.Clear()
	if len(dev.Views) != 0 {
		t.Errorf("%d imported views left after Clear", len(dev.Views))
	}
}

func TestAttachments(t *testing.T) {
	g, dev := newTestGraph(t)
	var c0, c2, depth Handle
	AddPass(g, "gbuffer", KindGraphics, func(b *PassBuilder, _ *noData) {
		c0 = b.WriteColor(b.CreateTexture("albedo", rgba(128, 128)), 0, clearStore)
		c2 = b.WriteColor(b.CreateTexture("normal", rgba(128, 128)), 2,
			Attachment{LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpDiscard})
		depth = b.WriteDepth(b.CreateTexture("depth", device.TextureDesc{
			Width: 128, Height: 128, Format: gputypes.TextureFormatDepth24PlusStencil8,
		}), DepthAttachment{DepthLoadOp: gputypes.LoadOpClear, DepthStoreOp: gputypes.StoreOpStore, DepthClearValue: 1})
		b.SideEffect()
	}, nil)
	mustCompile(t, g)
	mustExecute(t, g)

	var begin *devicetest.Event
	for _, ev := range dev.Events(device.QueuePrimary) {
		if ev.Kind == devicetest.EventBeginRenderPass {
			begin = &ev
			break
		}
	}
	if begin == nil {
		t.Fatal("no render pass recorded")
	}
	if len(begin.Colors) != 3 {
		t.Fatalf("color slots = %d, want 3", len(begin.Colors))
	}
	if begin.Colors[0].Resource != g.Resource(c0).Physical() || begin.Colors[2].Resource != g.Resource(c2).Physical() {
		t.Error("color attachments bound to the wrong resources")
	}
	if begin.Colors[1] != (device.ColorTarget{}) {
		t.Errorf("unused slot = %+v, want empty", begin.Colors[1])
	}
	if begin.Colors[2].StoreOp != gputypes.StoreOpDiscard {
		t.Errorf("slot 2 StoreOp = %v", begin.Colors[2].StoreOp)
	}
	if begin.Depth == nil || begin.Depth.Resource != g.Resource(depth).Physical() || begin.Depth.DepthClearValue != 1 {
		t.Errorf("depth target = %+v", begin.Depth)
	}
	if v, ok := dev.Views[begin.Colors[0].View]; !ok || v.Desc.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("color view = %+v", v)
	}
}

func TestReadOnlyDepthIsARead(t *testing.T) {
	g, _ := newTestGraph(t)
	var depth Handle
	AddPass(g, "prepass", KindGraphics, func(b *PassBuilder, _ *noData) {
		depth = b.WriteDepth(b.CreateTexture("depth", rgba(64, 64)), DepthAttachment{DepthLoadOp: gputypes.LoadOpClear})
	}, nil)
	var out Handle
	p := AddPass(g, "shade", KindGraphics, func(b *PassBuilder, _ *noData) {
		if got := b.WriteDepth(depth, DepthAttachment{ReadOnly: true}); got != depth {
			t.Error("read-only depth created a version")
		}
		out = b.WriteColor(b.CreateTexture("color", rgba(64, 64)), 0, clearStore)
	}, nil)
	g.Present(out, device.AccessShaderRead)
	mustCompile(t, g)

	got := transitionsOf(p.Barriers(), g.Resource(depth).Physical())
	if len(got) != 1 || got[0].Before != device.AccessDepthWrite || got[0].After != device.AccessDepthRead {
		t.Errorf("depth transitions = %v, want DepthWrite -> DepthRead", got)
	}
}

func TestMultiFrameReuse(t *testing.T) {
	g, dev := newTestGraph(t)
	roundTrip(g)
	mustCompile(t, g)
	mustExecute(t, g)
	textures := len(dev.Textures)

	g.Clear()
	dev.Frame++
	s := roundTrip(g)
	mustCompile(t, g)

	if len(dev.Textures) != textures || len(dev.Heaps) != 1 {
		t.Errorf("frame 2 device objects = %d textures, %d heaps; want %d, 1", len(dev.Textures), len(dev.Heaps), textures)
	}
	t0 := transitionsOf(s.a.Barriers(), g.Resource(s.t0).Physical())
	if len(t0) != 1 || t0[0].Before != device.AccessShaderRead {
		t.Errorf("A transitions of T0 = %v, want from ShaderRead", t0)
	}
	t1 := transitionsOf(s.b.Barriers(), g.Resource(s.t1).Physical())
	if len(t1) != 1 || t1[0].Before != device.AccessPresent {
		t.Errorf("B transitions of T1 = %v, want from Present", t1)
	}
}

func TestIdleResourcesAreEvicted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvictionFrames = 2
	g, dev := newTestGraph(t, WithConfig(cfg))
	roundTrip(g)
	mustCompile(t, g)
	g.Clear()

	for frame := uint64(2); frame <= 4; frame++ {
		dev.Frame = frame
		mustCompile(t, g)
		g.Clear()
	}
	if len(dev.Textures) != 0 || len(dev.Heaps) != 0 {
		t.Errorf("after idle frames: %d textures, %d heaps, want none", len(dev.Textures), len(dev.Heaps))
	}
	if got := g.Stats().Allocator.Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestCompilePropagatesDeviceErrors(t *testing.T) {
	g, dev := newTestGraph(t)
	errOOM := errors.New("out of memory")
	dev.FailCreate = errOOM
	roundTrip(g)
	if err := g.Compile(); !errors.Is(err, errOOM) {
		t.Errorf("Compile() error = %v, want %v", err, errOOM)
	}
}

func TestRelease(t *testing.T) {
	g, dev := newTestGraph(t)
	asyncChain(g)
	mustCompile(t, g)
	mustExecute(t, g)
	g.Release()
	if len(dev.Textures)+len(dev.Buffers) != 0 || len(dev.Heaps) != 0 || len(dev.Fences) != 0 {
		t.Errorf("after Release: %d textures, %d buffers, %d heaps, %d fences",
			len(dev.Textures), len(dev.Buffers), len(dev.Heaps), len(dev.Fences))
	}
}

func TestExecContextView(t *testing.T) {
	g, dev := newTestGraph(t)
	src := g.CreateTexture("src", rgba(64, 64))
	var first, second device.ViewID
	AddPass(g, "sample", KindCompute, func(b *PassBuilder, d *Handle) {
		*d = b.Write(src, device.AccessUnorderedAccess)
		b.SideEffect()
	}, func(ctx *ExecContext, d *Handle) {
		var err error
		if first, err = ctx.View(*d, device.ViewDesc{Writable: true}); err != nil {
			t.Errorf("View() error = %v", err)
		}
		second, _ = ctx.View(src, device.ViewDesc{Writable: true})
	})
	mustCompile(t, g)
	mustExecute(t, g)
	if first == 0 || first != second {
		t.Errorf("views = %d, %d; want the same non-zero view", first, second)
	}
	if dev.Views[first].Resource != g.Resource(src).Physical() {
		t.Error("view created on the wrong resource")
	}
}
