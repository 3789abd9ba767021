// Package device defines the small capability surface the frame graph needs
// from a GPU backend.
//
// The frame graph never talks to a graphics API directly. Physical resource
// creation, memory heaps, shader-visible views, state transitions, render pass
// scopes and queue submission are all expressed through [Device]. Resources,
// heaps, views, fences and command buffers are opaque values owned by the
// implementation; the frame graph only stores and hands them back.
//
// Two implementations ship with this module:
//   - backend/native: gogpu/wgpu HAL (Vulkan, Metal, DX12, GLES, software)
//   - device/devicetest: an in-memory recorder used by tests
//
// Descriptions reuse the WebGPU vocabulary of github.com/gogpu/gputypes so a
// backend can forward formats and usages without translation.
package device
