package device

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Opaque handles. Zero is never a valid handle.
type (
	// HeapID identifies a block of device memory resources can be placed in.
	HeapID uint64

	// ViewID identifies a shader-visible descriptor or attachment view.
	ViewID uint64

	// FenceID identifies a GPU timeline fence.
	FenceID uint64
)

// ResourceKind distinguishes textures from buffers.
type ResourceKind uint8

// Resource kinds.
const (
	KindTexture ResourceKind = iota + 1
	KindBuffer
)

// String implements fmt.Stringer.
func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	}
	return fmt.Sprintf("ResourceKind(%d)", k)
}

// ResourceID identifies a physical texture or buffer.
type ResourceID struct {
	Kind   ResourceKind
	Handle uint64
}

// IsValid reports whether the id refers to a resource.
func (r ResourceID) IsValid() bool { return r.Handle != 0 }

// String implements fmt.Stringer.
func (r ResourceID) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.Handle)
}

// QueueKind selects one of the two hardware command streams.
type QueueKind uint8

// Queues.
const (
	// QueuePrimary executes graphics, compute and copy passes.
	QueuePrimary QueueKind = iota

	// QueueAsyncCompute executes compute work concurrently with the primary
	// queue.
	QueueAsyncCompute

	queueCount
)

// QueueCount is the number of queues the frame graph schedules onto.
const QueueCount = int(queueCount)

// String implements fmt.Stringer.
func (q QueueKind) String() string {
	switch q {
	case QueuePrimary:
		return "primary"
	case QueueAsyncCompute:
		return "async-compute"
	}
	return fmt.Sprintf("QueueKind(%d)", q)
}

// Other returns the opposite queue.
func (q QueueKind) Other() QueueKind {
	if q == QueuePrimary {
		return QueueAsyncCompute
	}
	return QueuePrimary
}

// TextureDesc describes a texture.
type TextureDesc struct {
	// Label is an optional debug label. It does not take part in
	// compatibility checks.
	Label string

	Width         uint32
	Height        uint32
	DepthOrLayers uint32
	MipLevels     uint32
	SampleCount   uint32

	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// Normalized returns a copy with zero counts replaced by 1.
func (d TextureDesc) Normalized() TextureDesc {
	if d.DepthOrLayers == 0 {
		d.DepthOrLayers = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

// Compatible reports whether a resource created from d can stand in for one
// created from o.
func (d TextureDesc) Compatible(o TextureDesc) bool {
	d, o = d.Normalized(), o.Normalized()
	d.Label, o.Label = "", ""
	return d == o
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label. It does not take part in
	// compatibility checks.
	Label string

	Size   uint64
	Stride uint32
	Usage  gputypes.BufferUsage
}

// Compatible reports whether a resource created from d can stand in for one
// created from o.
func (d BufferDesc) Compatible(o BufferDesc) bool {
	return d.Size == o.Size && d.Stride == o.Stride && d.Usage == o.Usage
}

// Placement positions a resource inside a heap. A nil *Placement asks the
// device for dedicated memory.
type Placement struct {
	Heap   HeapID
	Offset uint64
}

// ViewDesc describes a view into a resource. Zero counts mean "the rest of
// the resource". ViewDesc is comparable and used as a memoization key.
type ViewDesc struct {
	Format     gputypes.TextureFormat
	Dimension  gputypes.TextureViewDimension
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32

	// Offset and Size select a buffer range.
	Offset uint64
	Size   uint64

	// Writable requests an unordered-access view.
	Writable bool
}

// ViewFor returns the view covering a single subresource, or the whole
// resource for [AllSubresources].
func ViewFor(sub Subresource) ViewDesc {
	var v ViewDesc
	if sub.Mip >= 0 {
		v.BaseMip, v.MipCount = uint32(sub.Mip), 1 //nolint:gosec // non-negative
	}
	if sub.Layer >= 0 {
		v.BaseLayer, v.LayerCount = uint32(sub.Layer), 1 //nolint:gosec // non-negative
	}
	return v
}

// ColorTarget is one color attachment of a render pass.
type ColorTarget struct {
	Resource   ResourceID
	View       ViewID
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearValue gputypes.Color
}

// DepthTarget is the depth/stencil attachment of a render pass.
type DepthTarget struct {
	Resource          ResourceID
	View              ViewID
	ReadOnly          bool
	DepthLoadOp       gputypes.LoadOp
	DepthStoreOp      gputypes.StoreOp
	DepthClearValue   float32
	StencilLoadOp     gputypes.LoadOp
	StencilStoreOp    gputypes.StoreOp
	StencilClearValue uint32
}

// BarrierKind distinguishes state transitions from aliasing barriers.
type BarrierKind uint8

// Barrier kinds.
const (
	// BarrierTransition moves a subresource from Before to After.
	BarrierTransition BarrierKind = iota

	// BarrierAliasing hands heap memory from AliasBefore to Resource. The
	// previous occupant's contents are discarded.
	BarrierAliasing
)

// Barrier is one synchronization command.
type Barrier struct {
	Kind        BarrierKind
	Resource    ResourceID
	Subresource Subresource
	Before      Access
	After       Access

	// AliasBefore is the previous occupant for BarrierAliasing.
	AliasBefore ResourceID
}

// String implements fmt.Stringer.
func (b Barrier) String() string {
	if b.Kind == BarrierAliasing {
		return fmt.Sprintf("alias %s -> %s", b.AliasBefore, b.Resource)
	}
	return fmt.Sprintf("%s[%s] %s -> %s", b.Resource, b.Subresource, b.Before, b.After)
}
