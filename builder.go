package framegraph

import (
	"github.com/gogpu/framegraph/device"
)

// PassBuilder declares the resource accesses of one pass. It is only valid
// inside the setup function given to AddPass.
type PassBuilder struct {
	graph *Graph
	pass  *Pass
	done  bool
}

func (b *PassBuilder) check() {
	if b.done {
		fail(ErrWrongPhase, "builder of pass %q used after setup returned", b.pass.name)
	}
}

// Pass returns the pass being declared.
func (b *PassBuilder) Pass() *Pass { return b.pass }

// CreateTexture declares a transient texture. It is a shorthand for
// Graph.CreateTexture.
func (b *PassBuilder) CreateTexture(name string, desc device.TextureDesc) Handle {
	b.check()
	return b.graph.CreateTexture(name, desc)
}

// CreateBuffer declares a transient buffer. It is a shorthand for
// Graph.CreateBuffer.
func (b *PassBuilder) CreateBuffer(name string, desc device.BufferDesc) Handle {
	b.check()
	return b.graph.CreateBuffer(name, desc)
}

// Read declares that the pass reads the whole resource in the given state.
// Reads do not create versions; the returned handle equals h.
func (b *PassBuilder) Read(h Handle, access device.Access) Handle {
	return b.ReadSubresource(h, access, device.AllSubresources)
}

// ReadSubresource declares a read of one subresource.
func (b *PassBuilder) ReadSubresource(h Handle, access device.Access, sub device.Subresource) Handle {
	b.check()
	return b.graph.read(b.pass, h, access, sub)
}

// Write declares that the pass writes the whole resource in the given state
// and returns the handle of the new version. Later passes must use the
// returned handle.
func (b *PassBuilder) Write(h Handle, access device.Access) Handle {
	return b.WriteSubresource(h, access, device.AllSubresources)
}

// WriteSubresource declares a write of one subresource.
func (b *PassBuilder) WriteSubresource(h Handle, access device.Access, sub device.Subresource) Handle {
	b.check()
	return b.graph.write(b.pass, h, access, sub)
}

// WriteColor binds h as color attachment index and declares a render target
// write. Only graphics passes may declare attachments.
func (b *PassBuilder) WriteColor(h Handle, index int, att Attachment) Handle {
	b.check()
	p := b.pass
	b.requireGraphics()
	r := b.graph.current(h)
	if index < 0 {
		fail(ErrAttachmentConflict, "pass %q binds negative color slot %d", p.name, index)
	}
	for _, c := range p.colors {
		if c.index == index {
			fail(ErrAttachmentConflict, "pass %q binds color slot %d twice", p.name, index)
		}
	}
	if p.depth != nil && p.depth.resource == r.index {
		fail(ErrAttachmentConflict, "pass %q binds %s as color and depth", p.name, r)
	}
	out := b.graph.write(p, h, device.AccessRenderTarget, device.AllSubresources)
	p.colors = append(p.colors, colorBinding{resource: r.index, index: index, sub: device.AllSubresources, Attachment: att})
	return out
}

// WriteDepth binds h as the depth/stencil attachment. A read-only attachment
// is declared as a read and returns h unchanged.
func (b *PassBuilder) WriteDepth(h Handle, att DepthAttachment) Handle {
	b.check()
	p := b.pass
	b.requireGraphics()
	r := b.graph.current(h)
	if p.depth != nil {
		fail(ErrAttachmentConflict, "pass %q binds two depth attachments", p.name)
	}
	for _, c := range p.colors {
		if c.resource == r.index {
			fail(ErrAttachmentConflict, "pass %q binds %s as color and depth", p.name, r)
		}
	}
	var out Handle
	if att.ReadOnly {
		out = b.graph.read(p, h, device.AccessDepthRead, device.AllSubresources)
	} else {
		out = b.graph.write(p, h, device.AccessDepthWrite, device.AllSubresources)
	}
	p.depth = &depthBinding{resource: r.index, sub: device.AllSubresources, DepthAttachment: att}
	return out
}

func (b *PassBuilder) requireGraphics() {
	if b.pass.kind != KindGraphics {
		fail(ErrAttachmentConflict, "%s pass %q cannot declare attachments", b.pass.kind, b.pass.name)
	}
}

// SideEffect pins the pass: it survives culling even when nothing reads its
// outputs, and so do the passes it depends on.
func (b *PassBuilder) SideEffect() {
	b.check()
	b.pass.node.Target = true
}
