package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/device"
)

// CommandBuffer is an open HAL command encoder for one queue kind.
type CommandBuffer struct {
	queue   device.QueueKind
	label   string
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
}

// Queue implements device.CommandBuffer.
func (c *CommandBuffer) Queue() device.QueueKind { return c.queue }

// Encoder returns the HAL encoder for copy and compute work.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.encoder }

// RenderPass returns the open render pass encoder, or nil outside
// BeginRenderPass/EndRenderPass.
func (c *CommandBuffer) RenderPass() hal.RenderPassEncoder { return c.pass }

func (d *Device) cmdOf(cmd device.CommandBuffer) *CommandBuffer {
	c, ok := cmd.(*CommandBuffer)
	if !ok {
		panic(fmt.Sprintf("native: foreign command buffer %T", cmd))
	}
	return c
}

// OpenCommandBuffer implements device.Device.
func (d *Device) OpenCommandBuffer(q device.QueueKind) (device.CommandBuffer, error) {
	if d.closed {
		return nil, ErrClosed
	}
	label := fmt.Sprintf("framegraph_%s_%d", q, d.submits.Load())
	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &CommandBuffer{queue: q, label: label, encoder: encoder}, nil
}

// EmitResourceBarrier implements device.Device.
func (d *Device) EmitResourceBarrier(cmd device.CommandBuffer, b device.Barrier) {
	c := d.cmdOf(cmd)
	if b.Kind != device.BarrierTransition || b.Resource.Kind != device.KindTexture {
		return
	}
	t, ok := d.textures[b.Resource.Handle]
	if !ok {
		return
	}
	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: b.Before.TextureUsage(),
			NewUsage: b.After.TextureUsage(),
		},
	}})
}

// BeginRenderPass implements device.Device.
func (d *Device) BeginRenderPass(cmd device.CommandBuffer, colors []device.ColorTarget, depth *device.DepthTarget) {
	c := d.cmdOf(cmd)
	desc := &hal.RenderPassDescriptor{
		Label:            c.label,
		ColorAttachments: make([]hal.RenderPassColorAttachment, len(colors)),
	}
	for i, ct := range colors {
		desc.ColorAttachments[i] = hal.RenderPassColorAttachment{
			View:       d.TextureView(ct.View),
			LoadOp:     ct.LoadOp,
			StoreOp:    ct.StoreOp,
			ClearValue: ct.ClearValue,
		}
	}
	if depth != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:              d.TextureView(depth.View),
			DepthLoadOp:       depth.DepthLoadOp,
			DepthStoreOp:      depth.DepthStoreOp,
			DepthClearValue:   depth.DepthClearValue,
			StencilLoadOp:     depth.StencilLoadOp,
			StencilStoreOp:    depth.StencilStoreOp,
			StencilClearValue: depth.StencilClearValue,
		}
		if depth.ReadOnly {
			// Read-only depth must keep what is there.
			ds.DepthLoadOp, ds.DepthStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
			ds.StencilLoadOp, ds.StencilStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
		}
		desc.DepthStencilAttachment = ds
	}
	c.pass = c.encoder.BeginRenderPass(desc)
}

// EndRenderPass implements device.Device.
func (d *Device) EndRenderPass(cmd device.CommandBuffer) {
	c := d.cmdOf(cmd)
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
}

// SubmitAndSignal implements device.Device. Work that signals no frame graph
// fence signals an internal one so its command buffer can be freed later.
func (d *Device) SubmitAndSignal(cmd device.CommandBuffer, fence device.FenceID, value uint64) error {
	c := d.cmdOf(cmd)
	if c.encoder == nil {
		return fmt.Errorf("native: command buffer %s submitted twice", c.label)
	}
	if c.pass != nil {
		c.encoder.DiscardEncoding()
		c.encoder = nil
		return fmt.Errorf("%w: %s", ErrRenderPassOpen, c.label)
	}
	cb, err := c.encoder.EndEncoding()
	c.encoder = nil
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}

	f := d.submitFence
	if fence != 0 {
		var ok bool
		if f, ok = d.fences[fence]; !ok {
			d.hal.FreeCommandBuffer(cb)
			return fmt.Errorf("%w: fence %d", ErrUnknownResource, fence)
		}
	} else {
		d.submitValue++
		value = d.submitValue
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cb}, f, value); err != nil {
		d.hal.FreeCommandBuffer(cb)
		return fmt.Errorf("native: submit %s: %w", c.label, err)
	}
	d.pending = append(d.pending, inflight{cmd: cb, fence: f, value: value})
	d.submits.Add(1)
	return nil
}

// WaitOnFence implements device.Device. Both queue kinds share one HAL queue
// and the waited-on work was submitted first, so there is nothing to record.
func (d *Device) WaitOnFence(cmd device.CommandBuffer, _ device.FenceID, _ uint64) {
	d.cmdOf(cmd)
}
