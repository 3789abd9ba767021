// Package native implements [device.Device] on the gogpu/wgpu HAL.
//
// The HAL exposes a single queue and dedicated allocations only, so the
// device maps the frame graph onto it as follows:
//
//   - Heaps are memory reservations charged against a budget. Placed
//     resources are validated against their heap range but get their own HAL
//     allocation, so aliasing barriers have nothing to do.
//   - Both queue kinds submit to the same hal.Queue. Submission order already
//     respects every cross-queue dependency the frame graph resolves, so
//     WaitOnFence records nothing.
//   - Texture transitions become hal.TextureBarrier usage transitions. The HAL
//     tracks buffer state itself, so buffer transitions are skipped.
//
// Pass callbacks reach the HAL encoder through [CommandBuffer.Encoder] and,
// inside a render pass, [CommandBuffer.RenderPass].
package native

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/device"
)

// PlacementAlignment is the alignment reported for placed resources.
const PlacementAlignment = 64 * 1024

// DefaultCollectTimeout bounds how long Close waits for in-flight work.
const DefaultCollectTimeout = 5 * time.Second

type texture struct {
	raw  hal.Texture
	desc device.TextureDesc
	heap device.HeapID
	size uint64
}

type buffer struct {
	raw  hal.Buffer
	desc device.BufferDesc
	heap device.HeapID
	size uint64
}

type heap struct {
	size      uint64
	label     string
	residents int
}

// view is a texture view, or a bare range record for buffers. The HAL binds
// buffers directly, so buffer views have no raw object.
type view struct {
	raw hal.TextureView
	res device.ResourceID
}

type inflight struct {
	cmd   hal.CommandBuffer
	fence hal.Fence
	value uint64
}

// Device is a [device.Device] backed by a hal.Device and hal.Queue.
//
// Like every device.Device, it is driven from the goroutine that owns the
// frame. Stats may be called concurrently.
type Device struct {
	name  string
	hal   hal.Device
	queue hal.Queue
	log   *slog.Logger

	// release tears down a HAL device this package opened itself.
	release func()

	nextID   uint64
	textures map[uint64]*texture
	buffers  map[uint64]*buffer
	heaps    map[device.HeapID]*heap
	views    map[device.ViewID]view
	fences   map[device.FenceID]hal.Fence

	// submitFence orders submissions that signal no frame graph fence, so
	// their command buffers can be freed.
	submitFence hal.Fence
	submitValue uint64
	pending     []inflight

	frame   uint64
	budget  *budget
	closed  bool
	nTex    atomic.Int64
	nBuf    atomic.Int64
	nHeap   atomic.Int64
	submits atomic.Uint64
}

// Option configures a Device.
type Option func(*options)

type options struct {
	budgetMB int
	logger   *slog.Logger
}

// WithBudget sets the memory budget in megabytes. Values below MinBudgetMB
// select DefaultBudgetMB.
func WithBudget(megabytes int) Option {
	return func(o *options) { o.budgetMB = megabytes }
}

// WithLogger overrides the logger. By default the device logs through
// framegraph.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wraps a HAL device and queue. The caller keeps ownership of both;
// Close releases only what the Device created.
func New(d hal.Device, q hal.Queue, opts ...Option) (*Device, error) {
	o := options{budgetMB: DefaultBudgetMB}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = framegraph.Logger()
	}
	fence, err := d.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create submit fence: %w", err)
	}
	dev := &Device{
		name:        backend.BackendNative,
		hal:         d,
		queue:       q,
		log:         o.logger,
		textures:    make(map[uint64]*texture),
		buffers:     make(map[uint64]*buffer),
		heaps:       make(map[device.HeapID]*heap),
		views:       make(map[device.ViewID]view),
		fences:      make(map[device.FenceID]hal.Fence),
		submitFence: fence,
		budget:      newBudget(o.budgetMB),
	}
	dev.log.Info("native: device ready", "budget_mb", o.budgetMB)
	return dev, nil
}

// NewFromProvider builds a Device on the HAL objects of a shared GPU context.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	d, ok := hp.HalDevice().(hal.Device)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(d, q, opts...)
}

// Name implements backend.Device.
func (d *Device) Name() string { return d.name }

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.hal, d.queue }

// AdvanceFrame moves CurrentFrameIndex forward. Call it once per frame before
// Compile.
func (d *Device) AdvanceFrame() uint64 {
	d.frame++
	return d.frame
}

// CurrentFrameIndex implements device.Device.
func (d *Device) CurrentFrameIndex() uint64 { return d.frame }

// Stats returns memory and submission counters.
func (d *Device) Stats() MemoryStats {
	limit, used, heaps := d.budget.snapshot()
	var utilization float64
	if limit > 0 {
		utilization = float64(used) / float64(limit)
	}
	return MemoryStats{
		TotalBytes:  limit,
		UsedBytes:   used,
		HeapBytes:   heaps,
		Heaps:       int(d.nHeap.Load()),
		Textures:    int(d.nTex.Load()),
		Buffers:     int(d.nBuf.Load()),
		Submits:     d.submits.Load(),
		Utilization: utilization,
	}
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// place validates a placement and returns the heap it charges, or zero for a
// dedicated allocation after reserving budget for it.
func (d *Device) place(at *device.Placement, size uint64) (device.HeapID, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if at == nil {
		return 0, d.budget.reserve(size, false)
	}
	h, ok := d.heaps[at.Heap]
	if !ok {
		return 0, fmt.Errorf("%w: heap %d", ErrUnknownResource, at.Heap)
	}
	if at.Offset+size > h.size {
		return 0, fmt.Errorf("%w: [%d, %d) in %q of %d bytes",
			ErrPlacementOutOfRange, at.Offset, at.Offset+size, h.label, h.size)
	}
	h.residents++
	return at.Heap, nil
}

func (d *Device) unplace(id device.HeapID, size uint64) {
	if id == 0 {
		d.budget.release(size, false)
		return
	}
	if h, ok := d.heaps[id]; ok {
		h.residents--
	}
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc *device.TextureDesc, at *device.Placement) (device.ResourceID, error) {
	n := desc.Normalized()
	size, _ := d.TextureAllocation(&n)
	heapID, err := d.place(at, size)
	if err != nil {
		return device.ResourceID{}, err
	}
	raw, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         n.Label,
		Size:          hal.Extent3D{Width: n.Width, Height: n.Height, DepthOrArrayLayers: n.DepthOrLayers},
		MipLevelCount: n.MipLevels,
		SampleCount:   n.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        n.Format,
		Usage:         n.Usage,
	})
	if err != nil {
		d.unplace(heapID, size)
		return device.ResourceID{}, fmt.Errorf("native: create texture %q: %w", n.Label, err)
	}
	id := d.newID()
	d.textures[id] = &texture{raw: raw, desc: n, heap: heapID, size: size}
	d.nTex.Add(1)
	return device.ResourceID{Kind: device.KindTexture, Handle: id}, nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(desc *device.BufferDesc, at *device.Placement) (device.ResourceID, error) {
	size, _ := d.BufferAllocation(desc)
	heapID, err := d.place(at, size)
	if err != nil {
		return device.ResourceID{}, err
	}
	raw, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		d.unplace(heapID, size)
		return device.ResourceID{}, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	id := d.newID()
	d.buffers[id] = &buffer{raw: raw, desc: *desc, heap: heapID, size: size}
	d.nBuf.Add(1)
	return device.ResourceID{Kind: device.KindBuffer, Handle: id}, nil
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(id device.ResourceID) {
	switch id.Kind {
	case device.KindTexture:
		t, ok := d.textures[id.Handle]
		if !ok {
			return
		}
		delete(d.textures, id.Handle)
		d.hal.DestroyTexture(t.raw)
		d.unplace(t.heap, t.size)
		d.nTex.Add(-1)
	case device.KindBuffer:
		b, ok := d.buffers[id.Handle]
		if !ok {
			return
		}
		delete(d.buffers, id.Handle)
		d.hal.DestroyBuffer(b.raw)
		d.unplace(b.heap, b.size)
		d.nBuf.Add(-1)
	}
}

// Texture returns the HAL texture behind id, or nil.
func (d *Device) Texture(id device.ResourceID) hal.Texture {
	if t, ok := d.textures[id.Handle]; ok && id.Kind == device.KindTexture {
		return t.raw
	}
	return nil
}

// Buffer returns the HAL buffer behind id, or nil.
func (d *Device) Buffer(id device.ResourceID) hal.Buffer {
	if b, ok := d.buffers[id.Handle]; ok && id.Kind == device.KindBuffer {
		return b.raw
	}
	return nil
}

// TextureAllocation implements device.Device.
func (d *Device) TextureAllocation(desc *device.TextureDesc) (size, align uint64) {
	n := desc.Normalized()
	texel := uint64(bytesPerTexel(n.Format))
	w, h := uint64(n.Width), uint64(n.Height)
	var total uint64
	for range n.MipLevels {
		total += max(w, 1) * max(h, 1) * texel
		w, h = w/2, h/2
	}
	total *= uint64(n.DepthOrLayers) * uint64(n.SampleCount)
	return alignUp(total, PlacementAlignment), PlacementAlignment
}

// BufferAllocation implements device.Device.
func (d *Device) BufferAllocation(desc *device.BufferDesc) (size, align uint64) {
	return alignUp(max(desc.Size, 1), PlacementAlignment), PlacementAlignment
}

// CreateHeap implements device.Device.
func (d *Device) CreateHeap(size uint64, label string) (device.HeapID, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if err := d.budget.reserve(size, true); err != nil {
		return 0, fmt.Errorf("native: create heap %q: %w", label, err)
	}
	id := device.HeapID(d.newID())
	d.heaps[id] = &heap{size: size, label: label}
	d.nHeap.Add(1)
	return id, nil
}

// DestroyHeap implements device.Device.
func (d *Device) DestroyHeap(id device.HeapID) {
	h, ok := d.heaps[id]
	if !ok {
		return
	}
	if h.residents > 0 {
		d.log.Warn("native: heap destroyed with live resources", "heap", h.label, "residents", h.residents)
	}
	delete(d.heaps, id)
	d.budget.release(h.size, true)
	d.nHeap.Add(-1)
}

// CreateShaderView implements device.Device.
func (d *Device) CreateShaderView(res device.ResourceID, v device.ViewDesc) (device.ViewID, error) {
	if d.closed {
		return 0, ErrClosed
	}
	switch res.Kind {
	case device.KindTexture:
		t, ok := d.textures[res.Handle]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownResource, res)
		}
		format := v.Format
		if format == gputypes.TextureFormatUndefined {
			format = t.desc.Format
		}
		raw, err := d.hal.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
			Label:           t.desc.Label,
			Format:          format,
			Dimension:       v.Dimension,
			Aspect:          gputypes.TextureAspectAll,
			BaseMipLevel:    v.BaseMip,
			MipLevelCount:   v.MipCount,
			BaseArrayLayer:  v.BaseLayer,
			ArrayLayerCount: v.LayerCount,
		})
		if err != nil {
			return 0, fmt.Errorf("native: create view of %q: %w", t.desc.Label, err)
		}
		id := device.ViewID(d.newID())
		d.views[id] = view{raw: raw, res: res}
		return id, nil
	case device.KindBuffer:
		if _, ok := d.buffers[res.Handle]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownResource, res)
		}
		id := device.ViewID(d.newID())
		d.views[id] = view{res: res}
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownResource, res)
}

// DestroyShaderView implements device.Device.
func (d *Device) DestroyShaderView(id device.ViewID) {
	v, ok := d.views[id]
	if !ok {
		return
	}
	delete(d.views, id)
	if v.raw != nil {
		d.hal.DestroyTextureView(v.raw)
	}
}

// TextureView returns the HAL view behind id, or nil for buffer views and
// unknown ids.
func (d *Device) TextureView(id device.ViewID) hal.TextureView {
	return d.views[id].raw
}

// CreateFence implements device.Device.
func (d *Device) CreateFence(label string) (device.FenceID, error) {
	if d.closed {
		return 0, ErrClosed
	}
	f, err := d.hal.CreateFence()
	if err != nil {
		return 0, fmt.Errorf("native: create fence %q: %w", label, err)
	}
	id := device.FenceID(d.newID())
	d.fences[id] = f
	return id, nil
}

// DestroyFence implements device.Device.
func (d *Device) DestroyFence(id device.FenceID) {
	f, ok := d.fences[id]
	if !ok {
		return
	}
	d.collectFence(f)
	delete(d.fences, id)
	d.hal.DestroyFence(f)
}

// Collect frees command buffers whose work has completed, waiting at most
// timeout for each. It returns the number still in flight.
func (d *Device) Collect(timeout time.Duration) (int, error) {
	kept := d.pending[:0]
	var firstErr error
	for _, p := range d.pending {
		done, err := d.hal.Wait(p.fence, p.value, timeout)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("native: wait for GPU: %w", err)
		}
		if done {
			d.hal.FreeCommandBuffer(p.cmd)
			continue
		}
		kept = append(kept, p)
	}
	clear(d.pending[len(kept):])
	d.pending = kept
	return len(kept), firstErr
}

// collectFence retires everything signalled by f before it is destroyed.
func (d *Device) collectFence(f hal.Fence) {
	kept := d.pending[:0]
	for _, p := range d.pending {
		if p.fence != f {
			kept = append(kept, p)
			continue
		}
		if ok, err := d.hal.Wait(p.fence, p.value, DefaultCollectTimeout); err != nil || !ok {
			d.log.Warn("native: fence destroyed with work in flight", "value", p.value, "err", err)
		}
		d.hal.FreeCommandBuffer(p.cmd)
	}
	clear(d.pending[len(kept):])
	d.pending = kept
}

// Close waits for in-flight work and releases every object the Device
// created. A HAL device opened by OpenNoop is destroyed too.
func (d *Device) Close() {
	if d.closed {
		return
	}
	if n, err := d.Collect(DefaultCollectTimeout); err != nil || n > 0 {
		d.log.Warn("native: closing with work in flight", "pending", n, "err", err)
	}
	for id := range d.views {
		d.DestroyShaderView(id)
	}
	for id := range d.textures {
		d.DestroyResource(device.ResourceID{Kind: device.KindTexture, Handle: id})
	}
	for id := range d.buffers {
		d.DestroyResource(device.ResourceID{Kind: device.KindBuffer, Handle: id})
	}
	for id := range d.heaps {
		d.DestroyHeap(id)
	}
	for id := range d.fences {
		d.DestroyFence(id)
	}
	d.hal.DestroyFence(d.submitFence)
	d.closed = true
	if d.release != nil {
		d.release()
	}
	d.log.Info("native: device closed")
}

// bytesPerTexel returns the storage size of one texel of f. Unknown formats
// count as 4 bytes.
func bytesPerTexel(f gputypes.TextureFormat) uint32 {
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
