// Package devicetest provides an in-memory [device.Device] that records every
// call. It lets frame graph behaviour be verified without a GPU.
package devicetest

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/device"
)

// PlacementAlignment is the alignment reported for every placed resource.
const PlacementAlignment = 64 * 1024

// EventKind classifies a recorded call.
type EventKind uint8

// Recorded event kinds.
const (
	EventBarrier EventKind = iota
	EventBeginRenderPass
	EventEndRenderPass
	EventSubmit
	EventWait
	EventMarker
)

// Event is one call recorded into a command buffer.
type Event struct {
	Kind    EventKind
	Barrier device.Barrier
	Colors  []device.ColorTarget
	Depth   *device.DepthTarget
	Fence   device.FenceID
	Value   uint64
	Label   string
}

// CommandBuffer is the fake command buffer. Events holds everything recorded
// into it in order.
type CommandBuffer struct {
	ID        int
	queue     device.QueueKind
	Events    []Event
	Submitted bool
}

// Queue implements device.CommandBuffer.
func (c *CommandBuffer) Queue() device.QueueKind { return c.queue }

// Mark records a free-form marker. Pass callbacks in tests use it to prove
// they ran and on which command buffer.
func (c *CommandBuffer) Mark(label string) {
	c.Events = append(c.Events, Event{Kind: EventMarker, Label: label})
}

// Texture is a created texture.
type Texture struct {
	Desc      device.TextureDesc
	Placement *device.Placement
}

// Buffer is a created buffer.
type Buffer struct {
	Desc      device.BufferDesc
	Placement *device.Placement
}

// View is a created shader view.
type View struct {
	Resource device.ResourceID
	Desc     device.ViewDesc
}

// Submission is one SubmitAndSignal call.
type Submission struct {
	Queue  device.QueueKind
	Buffer *CommandBuffer
	Fence  device.FenceID
	Value  uint64
}

// Device records calls instead of talking to a GPU. The zero value is not
// usable; call New.
type Device struct {
	nextID uint64

	Textures map[uint64]*Texture
	Buffers  map[uint64]*Buffer
	Heaps    map[device.HeapID]uint64
	Views    map[device.ViewID]View
	Fences   map[device.FenceID]string

	// Destroyed counts DestroyResource calls.
	Destroyed int

	// CommandBuffers lists every buffer opened, in order.
	CommandBuffers []*CommandBuffer

	// Submissions lists every SubmitAndSignal call, in order.
	Submissions []Submission

	// Frame is returned by CurrentFrameIndex.
	Frame uint64

	// FailCreate makes the next resource or heap creation fail.
	FailCreate error
}

// New returns an empty recording device.
func New() *Device {
	return &Device{
		Textures: make(map[uint64]*Texture),
		Buffers:  make(map[uint64]*Buffer),
		Heaps:    make(map[device.HeapID]uint64),
		Views:    make(map[device.ViewID]View),
		Fences:   make(map[device.FenceID]string),
	}
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) takeFailure() error {
	err := d.FailCreate
	d.FailCreate = nil
	return err
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc *device.TextureDesc, at *device.Placement) (device.ResourceID, error) {
	if err := d.takeFailure(); err != nil {
		return device.ResourceID{}, err
	}
	if at != nil {
		if err := d.checkPlacement(at, d.textureSize(desc)); err != nil {
			return device.ResourceID{}, err
		}
		p := *at
		at = &p
	}
	id := d.newID()
	d.Textures[id] = &Texture{Desc: *desc, Placement: at}
	return device.ResourceID{Kind: device.KindTexture, Handle: id}, nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(desc *device.BufferDesc, at *device.Placement) (device.ResourceID, error) {
	if err := d.takeFailure(); err != nil {
		return device.ResourceID{}, err
	}
	if at != nil {
		if err := d.checkPlacement(at, alignUp(desc.Size, PlacementAlignment)); err != nil {
			return device.ResourceID{}, err
		}
		p := *at
		at = &p
	}
	id := d.newID()
	d.Buffers[id] = &Buffer{Desc: *desc, Placement: at}
	return device.ResourceID{Kind: device.KindBuffer, Handle: id}, nil
}

func (d *Device) checkPlacement(at *device.Placement, size uint64) error {
	heapSize, ok := d.Heaps[at.Heap]
	if !ok {
		return fmt.Errorf("devicetest: unknown heap %d", at.Heap)
	}
	if at.Offset%PlacementAlignment != 0 {
		return fmt.Errorf("devicetest: offset %d not aligned", at.Offset)
	}
	if at.Offset+size > heapSize {
		return fmt.Errorf("devicetest: placement [%d,%d) exceeds heap size %d", at.Offset, at.Offset+size, heapSize)
	}
	return nil
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(id device.ResourceID) {
	switch id.Kind {
	case device.KindTexture:
		delete(d.Textures, id.Handle)
	case device.KindBuffer:
		delete(d.Buffers, id.Handle)
	}
	d.Destroyed++
}

// TextureAllocation implements device.Device.
func (d *Device) TextureAllocation(desc *device.TextureDesc) (size, align uint64) {
	return d.textureSize(desc), PlacementAlignment
}

// BufferAllocation implements device.Device.
func (d *Device) BufferAllocation(desc *device.BufferDesc) (size, align uint64) {
	return alignUp(desc.Size, PlacementAlignment), PlacementAlignment
}

func (d *Device) textureSize(desc *device.TextureDesc) uint64 {
	n := desc.Normalized()
	texel := uint64(BytesPerTexel(n.Format))
	var total uint64
	w, h := uint64(n.Width), uint64(n.Height)
	for range n.MipLevels {
		total += max(w, 1) * max(h, 1) * texel
		w, h = w/2, h/2
	}
	total *= uint64(n.DepthOrLayers) * uint64(n.SampleCount)
	return alignUp(total, PlacementAlignment)
}

// CreateHeap implements device.Device.
func (d *Device) CreateHeap(size uint64, _ string) (device.HeapID, error) {
	if err := d.takeFailure(); err != nil {
		return 0, err
	}
	id := device.HeapID(d.newID())
	d.Heaps[id] = size
	return id, nil
}

// DestroyHeap implements device.Device.
func (d *Device) DestroyHeap(id device.HeapID) {
	delete(d.Heaps, id)
}

// CreateShaderView implements device.Device.
func (d *Device) CreateShaderView(res device.ResourceID, view device.ViewDesc) (device.ViewID, error) {
	id := device.ViewID(d.newID())
	d.Views[id] = View{Resource: res, Desc: view}
	return id, nil
}

// DestroyShaderView implements device.Device.
func (d *Device) DestroyShaderView(id device.ViewID) {
	delete(d.Views, id)
}

// CreateFence implements device.Device.
func (d *Device) CreateFence(label string) (device.FenceID, error) {
	id := device.FenceID(d.newID())
	d.Fences[id] = label
	return id, nil
}

// DestroyFence implements device.Device.
func (d *Device) DestroyFence(id device.FenceID) {
	delete(d.Fences, id)
}

// OpenCommandBuffer implements device.Device.
func (d *Device) OpenCommandBuffer(q device.QueueKind) (device.CommandBuffer, error) {
	cb := &CommandBuffer{ID: len(d.CommandBuffers), queue: q}
	d.CommandBuffers = append(d.CommandBuffers, cb)
	return cb, nil
}

// EmitResourceBarrier implements device.Device.
func (d *Device) EmitResourceBarrier(cmd device.CommandBuffer, b device.Barrier) {
	record(cmd, Event{Kind: EventBarrier, Barrier: b})
}

// BeginRenderPass implements device.Device.
func (d *Device) BeginRenderPass(cmd device.CommandBuffer, colors []device.ColorTarget, depth *device.DepthTarget) {
	record(cmd, Event{Kind: EventBeginRenderPass, Colors: append([]device.ColorTarget(nil), colors...), Depth: depth})
}

// EndRenderPass implements device.Device.
func (d *Device) EndRenderPass(cmd device.CommandBuffer) {
	record(cmd, Event{Kind: EventEndRenderPass})
}

// SubmitAndSignal implements device.Device.
func (d *Device) SubmitAndSignal(cmd device.CommandBuffer, fence device.FenceID, value uint64) error {
	cb := cmd.(*CommandBuffer)
	if cb.Submitted {
		return fmt.Errorf("devicetest: command buffer %d submitted twice", cb.ID)
	}
	cb.Submitted = true
	cb.Events = append(cb.Events, Event{Kind: EventSubmit, Fence: fence, Value: value})
	d.Submissions = append(d.Submissions, Submission{Queue: cb.queue, Buffer: cb, Fence: fence, Value: value})
	return nil
}

// WaitOnFence implements device.Device.
func (d *Device) WaitOnFence(cmd device.CommandBuffer, fence device.FenceID, value uint64) {
	record(cmd, Event{Kind: EventWait, Fence: fence, Value: value})
}

// CurrentFrameIndex implements device.Device.
func (d *Device) CurrentFrameIndex() uint64 { return d.Frame }

// Events returns every event recorded on q, across command buffers, in
// recording order.
func (d *Device) Events(q device.QueueKind) []Event {
	var out []Event
	for _, cb := range d.CommandBuffers {
		if cb.queue == q {
			out = append(out, cb.Events...)
		}
	}
	return out
}

// Barriers returns every barrier recorded on q.
func (d *Device) Barriers(q device.QueueKind) []device.Barrier {
	var out []device.Barrier
	for _, ev := range d.Events(q) {
		if ev.Kind == EventBarrier {
			out = append(out, ev.Barrier)
		}
	}
	return out
}

// Markers returns the labels of every marker recorded on q.
func (d *Device) Markers(q device.QueueKind) []string {
	var out []string
	for _, ev := range d.Events(q) {
		if ev.Kind == EventMarker {
			out = append(out, ev.Label)
		}
	}
	return out
}

func record(cmd device.CommandBuffer, ev Event) {
	cb := cmd.(*CommandBuffer)
	cb.Events = append(cb.Events, ev)
}

// BytesPerTexel returns the storage size of one texel of f. Unknown formats
// count as 4 bytes.
func BytesPerTexel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA32Float:
		return 16
	}
	return 4
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
