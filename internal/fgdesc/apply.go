package fgdesc

import (
	"fmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/device"
)

// ExecFunc is the callback of a described pass.
type ExecFunc func(ctx *framegraph.ExecContext)

// Frame is one application of a Description to a graph.
type Frame struct {
	// Handles maps every resource to its latest version.
	Handles map[string]framegraph.Handle

	// Passes maps pass names to the declared passes.
	Passes map[string]*framegraph.Pass

	imports []device.ResourceID
}

// Release destroys the physical resources created to stand in for imported
// ones.
func (f *Frame) Release(dev device.Device) {
	for _, id := range f.imports {
		dev.DestroyResource(id)
	}
	f.imports = nil
}

type passData struct{}

// Apply declares the description on g, which must be accepting
// declarations. Imported resources are created on the graph's device as
// dedicated allocations; release them with Frame.Release once the frame has
// executed. exec supplies callbacks by pass name; passes without one record
// only their barriers.
//
// Builder misuse the description could not rule out, such as two color
// targets in one slot, is returned as an error.
func (d *Description) Apply(g *framegraph.Graph, exec map[string]ExecFunc) (f *Frame, err error) {
	f = &Frame{
		Handles: make(map[string]framegraph.Handle),
		Passes:  make(map[string]*framegraph.Pass),
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		perr, ok := r.(error)
		if !ok {
			panic(r)
		}
		f.Release(g.Device())
		f, err = nil, fmt.Errorf("fgdesc: apply: %w", perr)
	}()

	dev := g.Device()
	for _, t := range d.Textures {
		if !t.Imported {
			f.Handles[t.Name] = g.CreateTexture(t.Name, t.Desc)
			continue
		}
		id, err := dev.CreateTexture(&t.Desc, nil)
		if err != nil {
			f.Release(dev)
			return nil, fmt.Errorf("fgdesc: import %q: %w", t.Name, err)
		}
		f.imports = append(f.imports, id)
		f.Handles[t.Name] = g.ImportTexture(t.Name, id, t.Desc, t.State)
	}
	for _, b := range d.Buffers {
		if !b.Imported {
			f.Handles[b.Name] = g.CreateBuffer(b.Name, b.Desc)
			continue
		}
		id, err := dev.CreateBuffer(&b.Desc, nil)
		if err != nil {
			f.Release(dev)
			return nil, fmt.Errorf("fgdesc: import %q: %w", b.Name, err)
		}
		f.imports = append(f.imports, id)
		f.Handles[b.Name] = g.ImportBuffer(b.Name, id, b.Desc, b.State)
	}

	for i := range d.Passes {
		p := &d.Passes[i]
		var run func(*framegraph.ExecContext, *passData)
		if fn := exec[p.Name]; fn != nil {
			run = func(ctx *framegraph.ExecContext, _ *passData) { fn(ctx) }
		}
		added := framegraph.AddPass(g, p.Name, p.Kind, func(b *framegraph.PassBuilder, _ *passData) {
			f.declare(b, p)
		}, run)
		f.Passes[p.Name] = added.Pass
	}

	for _, pr := range d.Presents {
		g.Present(f.Handles[pr.Resource], pr.State)
	}
	return f, nil
}

// declare records p's reads before its writes, so a pass that reads and
// writes the same resource reads the incoming version.
func (f *Frame) declare(b *framegraph.PassBuilder, p *Pass) {
	for _, u := range p.Reads {
		b.ReadSubresource(f.Handles[u.Resource], u.Access, u.Sub)
	}
	if p.Depth != nil && p.Depth.Attachment.ReadOnly {
		b.WriteDepth(f.Handles[p.Depth.Resource], p.Depth.Attachment)
	}
	for _, u := range p.Writes {
		f.Handles[u.Resource] = b.WriteSubresource(f.Handles[u.Resource], u.Access, u.Sub)
	}
	for _, c := range p.Colors {
		f.Handles[c.Resource] = b.WriteColor(f.Handles[c.Resource], c.Slot, c.Attachment)
	}
	if p.Depth != nil && !p.Depth.Attachment.ReadOnly {
		f.Handles[p.Depth.Resource] = b.WriteDepth(f.Handles[p.Depth.Resource], p.Depth.Attachment)
	}
	if p.SideEffect {
		b.SideEffect()
	}
}
