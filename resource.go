package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/internal/lifetime"
)

// unusedPass marks a resource no surviving pass touches.
const unusedPass = -1

// VirtualResource is one logical texture or buffer of the current frame.
// Every write creates a new version node; the resource itself spans all
// versions.
type VirtualResource struct {
	name  string
	index int
	kind  device.ResourceKind

	texture device.TextureDesc
	buffer  device.BufferDesc

	versions []dag.NodeID

	firstPass int
	lastPass  int
	// firstOn and lastOn narrow firstPass and lastPass to each queue.
	firstOn [device.QueueCount]int
	lastOn  [device.QueueCount]int
	// span is the lifetime as ordered by queues and fences.
	span lifetime.Span

	// initial is the state the resource is in when the frame starts.
	initial device.Access
	// state is the tracked state after the last replayed barrier.
	state device.Access
	// last holds the access of the latest surviving use per subresource.
	last []subresourceState

	imported bool
	external device.ResourceID

	output bool
	final  device.Access

	physical  *lifetime.Physical
	aliasPrev device.ResourceID
}

type subresourceState struct {
	sub    device.Subresource
	access device.Access
}

func newVirtualResource(name string, index int, kind device.ResourceKind) *VirtualResource {
	return &VirtualResource{
		name:      name,
		index:     index,
		kind:      kind,
		firstPass: unusedPass,
		lastPass:  unusedPass,
	}
}

// Name returns the name given at creation.
func (r *VirtualResource) Name() string { return r.name }

// Kind reports whether the resource is a texture or a buffer.
func (r *VirtualResource) Kind() device.ResourceKind { return r.kind }

// TextureDesc returns the description with usage accumulated from the
// surviving edges. Only meaningful for textures.
func (r *VirtualResource) TextureDesc() device.TextureDesc { return r.texture }

// BufferDesc returns the description with usage accumulated from the
// surviving edges. Only meaningful for buffers.
func (r *VirtualResource) BufferDesc() device.BufferDesc { return r.buffer }

// Versions returns the number of version nodes, which is one more than the
// number of writes.
func (r *VirtualResource) Versions() int { return len(r.versions) }

// Lifetime returns the declaration indices of the first and last surviving
// passes that use the resource, or (-1, -1) when none does.
func (r *VirtualResource) Lifetime() (first, last int) { return r.firstPass, r.lastPass }

// Used reports whether any surviving pass touches the resource.
func (r *VirtualResource) Used() bool { return r.firstPass != unusedPass }

// Imported reports whether the resource is owned outside the graph.
func (r *VirtualResource) Imported() bool { return r.imported }

// Output reports whether the resource was presented and outlives the frame.
func (r *VirtualResource) Output() bool { return r.output }

// InitialState returns the access state the resource starts the frame in.
func (r *VirtualResource) InitialState() device.Access { return r.initial }

// State returns the tracked access state. After Execute it is the state the
// resource is left in.
func (r *VirtualResource) State() device.Access { return r.state }

// Physical returns the device resource backing r, or the zero ResourceID
// before realization.
func (r *VirtualResource) Physical() device.ResourceID {
	if r.imported {
		return r.external
	}
	if r.physical == nil {
		return device.ResourceID{}
	}
	return r.physical.ID
}

// Placement returns the physical allocation, or nil for imported or
// unrealized resources.
func (r *VirtualResource) Placement() *Allocation { return r.physical }

func (r *VirtualResource) String() string {
	return fmt.Sprintf("%s %q", r.kind, r.name)
}

// use records one surviving edge of pass p.
func (r *VirtualResource) use(p *Pass, access device.Access, sub device.Subresource) {
	i, q := p.index, p.queue
	if r.firstPass == unusedPass || i < r.firstPass {
		r.firstPass = i
	}
	if i >= r.lastPass {
		r.lastPass = i
	}
	if r.firstOn[q] == unusedPass || i < r.firstOn[q] {
		r.firstOn[q] = i
	}
	r.lastOn[q] = max(r.lastOn[q], i)
	if r.imported {
		return
	}
	switch r.kind {
	case device.KindTexture:
		r.texture.Usage |= access.TextureUsage()
	case device.KindBuffer:
		r.buffer.Usage |= access.BufferUsage()
	}
}

// subresources expands sub into the single mip levels and layers it covers.
// Buffers, single-subresource textures and ranges outside the texture stay
// one unit.
func (r *VirtualResource) subresources(sub device.Subresource) []device.Subresource {
	d := r.texture
	if r.kind != device.KindTexture || d.MipLevels*d.DepthOrLayers <= 1 {
		return []device.Subresource{sub}
	}
	var out []device.Subresource
	for mip := range int(d.MipLevels) {
		for layer := range int(d.DepthOrLayers) {
			if s := (device.Subresource{Mip: mip, Layer: layer}); s.Overlaps(sub) {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return []device.Subresource{sub}
	}
	return out
}

// track folds an access into the per-subresource final state. Calls must
// arrive in pass order.
func (r *VirtualResource) track(access device.Access, sub device.Subresource) {
	if sub.IsAll() {
		r.last = append(r.last[:0], subresourceState{sub, access})
		return
	}
	kept := r.last[:0]
	for _, s := range r.last {
		if s.sub != sub {
			kept = append(kept, s)
		}
	}
	r.last = append(kept, subresourceState{sub, access})
}

// endState is the single state the resource ends the frame in, or
// AccessUndefined when subresources diverge.
func (r *VirtualResource) endState() device.Access {
	if r.output {
		return r.final
	}
	if len(r.last) == 0 {
		return r.initial
	}
	a := r.last[0].access
	for _, s := range r.last[1:] {
		if s.access != a {
			return device.AccessUndefined
		}
	}
	return a
}

// realize obtains physical memory for a used, non-imported resource.
func (r *VirtualResource) realize(alloc *lifetime.Allocator) error {
	if r.imported || !r.Used() {
		return nil
	}
	req := lifetime.Request{
		Name:     r.name,
		Lifetime: lifetime.Interval{First: r.firstPass, Last: r.lastPass},
		Span:     &r.span,
	}
	if r.kind == device.KindTexture {
		desc := r.texture
		desc.Label = r.name
		req.Texture = &desc
	} else {
		desc := r.buffer
		desc.Label = r.name
		req.Buffer = &desc
	}

	var err error
	if r.output {
		r.physical, err = alloc.AllocateDedicated(req)
	} else {
		r.physical, err = alloc.AllocateAliased(req)
	}
	if err != nil {
		return fmt.Errorf("framegraph: realize %s: %w", r, err)
	}

	r.initial = r.physical.State
	if !r.output {
		if prev := alloc.AliasedPrev(r.physical, r.span); prev != nil {
			r.aliasPrev = prev.ID
			r.initial = device.AccessUndefined
		}
	}
	r.state = r.initial
	r.physical.State = r.endState()
	return nil
}
