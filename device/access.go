package device

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Access is the GPU access state a resource is in, or is about to be used in.
// A change of Access between two uses of the same subresource requires a
// barrier.
type Access uint8

// Access states.
const (
	// AccessUndefined means the contents are not needed. Freshly created or
	// aliased memory starts here.
	AccessUndefined Access = iota

	// AccessCommon is the generic state shared with other queues and the
	// presentation engine.
	AccessCommon

	// AccessVertexBuffer is a buffer bound as vertex input.
	AccessVertexBuffer

	// AccessIndexBuffer is a buffer bound as index input.
	AccessIndexBuffer

	// AccessConstantBuffer is a buffer bound as uniform data.
	AccessConstantBuffer

	// AccessShaderRead is a read-only shader resource (sampled texture or
	// read-only storage buffer).
	AccessShaderRead

	// AccessUnorderedAccess is read-write shader access (storage texture or
	// storage buffer).
	AccessUnorderedAccess

	// AccessRenderTarget is a color attachment.
	AccessRenderTarget

	// AccessDepthWrite is a writable depth/stencil attachment.
	AccessDepthWrite

	// AccessDepthRead is a read-only depth/stencil attachment.
	AccessDepthRead

	// AccessIndirectArgument is a buffer consumed by indirect draw/dispatch.
	AccessIndirectArgument

	// AccessCopySrc is the source of a copy.
	AccessCopySrc

	// AccessCopyDst is the destination of a copy.
	AccessCopyDst

	// AccessPresent is the state a swapchain image must be in to be shown.
	AccessPresent

	accessCount
)

var accessNames = [accessCount]string{
	AccessUndefined:        "Undefined",
	AccessCommon:           "Common",
	AccessVertexBuffer:     "VertexBuffer",
	AccessIndexBuffer:      "IndexBuffer",
	AccessConstantBuffer:   "ConstantBuffer",
	AccessShaderRead:       "ShaderRead",
	AccessUnorderedAccess:  "UnorderedAccess",
	AccessRenderTarget:     "RenderTarget",
	AccessDepthWrite:       "DepthWrite",
	AccessDepthRead:        "DepthRead",
	AccessIndirectArgument: "IndirectArgument",
	AccessCopySrc:          "CopySrc",
	AccessCopyDst:          "CopyDst",
	AccessPresent:          "Present",
}

// String returns the name of the access state.
func (a Access) String() string {
	if a < accessCount {
		return accessNames[a]
	}
	return fmt.Sprintf("Access(%d)", a)
}

// IsWrite reports whether the access modifies the resource.
func (a Access) IsWrite() bool {
	switch a {
	case AccessUnorderedAccess, AccessRenderTarget, AccessDepthWrite, AccessCopyDst:
		return true
	}
	return false
}

// ComputeCompatible reports whether the state can be used on a compute-only
// queue. Attachment and presentation states belong to the primary queue.
func (a Access) ComputeCompatible() bool {
	switch a {
	case AccessRenderTarget, AccessDepthWrite, AccessDepthRead, AccessPresent,
		AccessVertexBuffer, AccessIndexBuffer:
		return false
	}
	return true
}

// TextureUsage returns the texture capability a resource needs to be used
// in this state. Zero means the state implies no creation-time usage.
func (a Access) TextureUsage() gputypes.TextureUsage {
	switch a {
	case AccessShaderRead:
		return gputypes.TextureUsageTextureBinding
	case AccessUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case AccessRenderTarget, AccessDepthWrite, AccessDepthRead, AccessPresent:
		return gputypes.TextureUsageRenderAttachment
	case AccessCopySrc:
		return gputypes.TextureUsageCopySrc
	case AccessCopyDst:
		return gputypes.TextureUsageCopyDst
	}
	return 0
}

// BufferUsage returns the buffer capability a resource needs to be used in
// this state. Zero means the state implies no creation-time usage.
func (a Access) BufferUsage() gputypes.BufferUsage {
	switch a {
	case AccessVertexBuffer:
		return gputypes.BufferUsageVertex
	case AccessIndexBuffer:
		return gputypes.BufferUsageIndex
	case AccessConstantBuffer:
		return gputypes.BufferUsageUniform
	case AccessShaderRead, AccessUnorderedAccess:
		return gputypes.BufferUsageStorage
	case AccessIndirectArgument:
		return gputypes.BufferUsageIndirect
	case AccessCopySrc:
		return gputypes.BufferUsageCopySrc
	case AccessCopyDst:
		return gputypes.BufferUsageCopyDst
	}
	return 0
}

// Subresource addresses one mip level of one array layer. A negative field
// means "every" level or layer; [AllSubresources] addresses the whole
// resource.
type Subresource struct {
	Mip   int
	Layer int
}

// AllSubresources addresses every mip level and array layer.
var AllSubresources = Subresource{Mip: -1, Layer: -1}

// IsAll reports whether s addresses the whole resource.
func (s Subresource) IsAll() bool { return s.Mip < 0 && s.Layer < 0 }

// Overlaps reports whether two subresource ranges share any texel.
func (s Subresource) Overlaps(o Subresource) bool {
	mip := s.Mip < 0 || o.Mip < 0 || s.Mip == o.Mip
	layer := s.Layer < 0 || o.Layer < 0 || s.Layer == o.Layer
	return mip && layer
}

// String implements fmt.Stringer.
func (s Subresource) String() string {
	if s.IsAll() {
		return "all"
	}
	return fmt.Sprintf("mip%d/layer%d", s.Mip, s.Layer)
}
