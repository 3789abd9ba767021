// Package lifetime turns "resource R is used from pass A to pass B" into
// physical GPU memory.
//
// Transient resources are placed in heaps and share memory with resources
// whose lifetimes do not overlap. Resources that must survive the frame are
// served from a pool of dedicated allocations. Nothing is destroyed when a
// frame ends: resources are stamped with the frame index and evicted by
// Reset once they have been idle for Config.EvictionFrames frames.
package lifetime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/framegraph/device"
)

// Default allocator settings.
const (
	// DefaultEvictionFrames is how long an idle resource is kept.
	DefaultEvictionFrames = 30

	// DefaultMinHeapSize is the smallest heap the allocator creates (64 MB).
	DefaultMinHeapSize = 64 << 20
)

// ErrInvalidRequest is returned for requests without a description or with
// an inverted lifetime.
var ErrInvalidRequest = errors.New("lifetime: invalid request")

// Config holds allocator settings. Zero fields take defaults.
type Config struct {
	EvictionFrames uint64
	MinHeapSize    uint64

	// Alignment is the minimum placement alignment. The device may demand
	// more.
	Alignment uint64
}

func (c Config) withDefaults() Config {
	if c.EvictionFrames == 0 {
		c.EvictionFrames = DefaultEvictionFrames
	}
	if c.MinHeapSize == 0 {
		c.MinHeapSize = DefaultMinHeapSize
	}
	if c.Alignment == 0 {
		c.Alignment = 1
	}
	return c
}

// Request asks for memory for one logical resource. Exactly one of Texture
// and Buffer is set.
type Request struct {
	Name     string
	Texture  *device.TextureDesc
	Buffer   *device.BufferDesc
	Lifetime Interval

	// Span decides which occupants the request may share memory with. Nil
	// means Serial(Lifetime).
	Span *Span
}

func (r *Request) span() Span {
	if r.Span != nil {
		return *r.Span
	}
	return Serial(r.Lifetime)
}

func (r *Request) validate() error {
	if (r.Texture == nil) == (r.Buffer == nil) {
		return fmt.Errorf("%w: %q needs exactly one description", ErrInvalidRequest, r.Name)
	}
	if r.Lifetime.First < 0 || r.Lifetime.Last < r.Lifetime.First {
		return fmt.Errorf("%w: %q has lifetime %s", ErrInvalidRequest, r.Name, r.Lifetime)
	}
	if r.Span != nil && !r.Span.valid() {
		return fmt.Errorf("%w: %q has span %+v", ErrInvalidRequest, r.Name, *r.Span)
	}
	return nil
}

// Allocator owns heaps, placed resources and the dedicated pool.
//
// Allocator is not safe for concurrent use; it belongs to the goroutine that
// builds frames.
type Allocator struct {
	dev    device.Device
	cfg    Config
	logger *slog.Logger

	heaps []*Heap
	pool  []*Physical

	evictions uint64
}

// New creates an allocator on dev. A nil logger discards output.
func New(dev device.Device, cfg Config, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Allocator{dev: dev, cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective settings.
func (a *Allocator) Config() Config { return a.cfg }

// Reset evicts resources idle for more than Config.EvictionFrames frames,
// then heaps left without resources, then stale dedicated allocations. Call
// it once per frame before allocating.
func (a *Allocator) Reset() {
	frame := a.dev.CurrentFrameIndex()

	heaps := a.heaps[:0]
	for _, h := range a.heaps {
		kept := h.resources[:0]
		for _, p := range h.resources {
			if a.expired(p, frame) {
				a.evict(p)
				continue
			}
			kept = append(kept, p)
		}
		clear(h.resources[len(kept):])
		h.resources = kept

		if len(h.resources) == 0 {
			a.logger.Debug("lifetime: releasing empty heap", "heap", h.ID, "size", h.Size)
			a.dev.DestroyHeap(h.ID)
			continue
		}
		heaps = append(heaps, h)
	}
	clear(a.heaps[len(heaps):])
	a.heaps = heaps

	pool := a.pool[:0]
	for _, p := range a.pool {
		if !p.inUse && a.expired(p, frame) {
			a.evict(p)
			continue
		}
		pool = append(pool, p)
	}
	clear(a.pool[len(pool):])
	a.pool = pool
}

func (a *Allocator) expired(p *Physical, frame uint64) bool {
	return len(p.occupants) == 0 && !p.inUse && frame > p.lastUsed+a.cfg.EvictionFrames
}

func (a *Allocator) evict(p *Physical) {
	a.logger.Debug("lifetime: evicting idle resource", "resource", p.ID, "label", p.Label(), "lastUsed", p.lastUsed)
	p.destroy(a.dev)
	a.evictions++
}

// AllocateAliased returns a placed resource for a transient request.
//
// Heaps are scanned in creation order. Inside a heap that is large enough, a
// compatible resource whose memory is free for the whole span is reused
// outright; otherwise a new resource is placed at the lowest free offset.
// When no heap fits, a new one of at least Config.MinHeapSize is created.
//
// Memory is shared only with occupants whose spans are ordered before or
// after the request's; declaration order alone does not order two queues.
func (a *Allocator) AllocateAliased(req Request) (*Physical, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	size, align := a.allocation(&req)
	span := req.span()

	for _, h := range a.heaps {
		if h.Size < size {
			continue
		}
		for _, p := range h.resources {
			if p.matches(&req) && h.regionFree(p.offset, p.size, span) {
				a.occupy(p, &req)
				return p, nil
			}
		}
		if off, ok := h.findOffset(size, align, span); ok {
			return a.place(h, off, size, &req)
		}
	}

	heapSize := max(size, a.cfg.MinHeapSize)
	id, err := a.dev.CreateHeap(heapSize, fmt.Sprintf("framegraph_heap_%d", len(a.heaps)))
	if err != nil {
		return nil, fmt.Errorf("lifetime: create heap of %d bytes: %w", heapSize, err)
	}
	a.logger.Debug("lifetime: created heap", "heap", id, "size", heapSize, "for", req.Name)
	a.heaps = append(a.heaps, &Heap{ID: id, Size: heapSize})
	return a.AllocateAliased(req)
}

func (a *Allocator) allocation(req *Request) (size, align uint64) {
	if req.Texture != nil {
		size, align = a.dev.TextureAllocation(req.Texture)
	} else {
		size, align = a.dev.BufferAllocation(req.Buffer)
	}
	return alignUp(size, max(align, a.cfg.Alignment)), max(align, a.cfg.Alignment)
}

func (a *Allocator) place(h *Heap, off, size uint64, req *Request) (*Physical, error) {
	at := &device.Placement{Heap: h.ID, Offset: off}
	p := &Physical{heap: h, offset: off, size: size, State: device.AccessUndefined}
	var err error
	if req.Texture != nil {
		p.Texture = *req.Texture
		p.ID, err = a.dev.CreateTexture(req.Texture, at)
	} else {
		p.Buffer = *req.Buffer
		p.ID, err = a.dev.CreateBuffer(req.Buffer, at)
	}
	if err != nil {
		return nil, fmt.Errorf("lifetime: place %q in heap %d at %d: %w", req.Name, h.ID, off, err)
	}
	h.resources = append(h.resources, p)
	a.occupy(p, req)
	return p, nil
}

func (a *Allocator) occupy(p *Physical, req *Request) {
	p.occupants = append(p.occupants, Occupancy{Owner: req.Name, Lifetime: req.Lifetime, Span: req.span()})
	p.inUse = true
}

// AllocateDedicated returns a resource that never shares memory. A pooled
// resource with a compatible description is reused when one is idle; its
// State carries over from its previous owner.
func (a *Allocator) AllocateDedicated(req Request) (*Physical, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	for _, p := range a.pool {
		if !p.inUse && p.matches(&req) {
			a.occupy(p, &req)
			return p, nil
		}
	}

	size, _ := a.allocation(&req)
	p := &Physical{size: size, State: device.AccessUndefined}
	var err error
	if req.Texture != nil {
		p.Texture = *req.Texture
		p.ID, err = a.dev.CreateTexture(req.Texture, nil)
	} else {
		p.Buffer = *req.Buffer
		p.ID, err = a.dev.CreateBuffer(req.Buffer, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lifetime: create dedicated %q: %w", req.Name, err)
	}
	a.pool = append(a.pool, p)
	a.occupy(p, &req)
	return p, nil
}

// AliasedPrev returns the resource that most recently occupied p's memory
// before span begins, if it is a different resource, or nil. The returned
// resource is marked discarded: its contents and state are undefined from
// now on.
func (a *Allocator) AliasedPrev(p *Physical, span Span) *Physical {
	if p.heap == nil {
		return nil
	}
	var (
		prev     *Physical
		prevLast = -1
	)
	for _, q := range p.heap.resources {
		if !q.memoryOverlaps(p.offset, p.size) {
			continue
		}
		for _, o := range q.occupants {
			if o.Span.Before(span) && o.Lifetime.Last > prevLast {
				prev, prevLast = q, o.Lifetime.Last
			}
		}
	}
	if prev == nil || prev == p {
		return nil
	}
	prev.State = device.AccessUndefined
	return prev
}

// Free releases every occupancy of p and stamps it with the current frame.
// The resource stays alive until Reset evicts it.
func (a *Allocator) Free(p *Physical) {
	clear(p.occupants)
	p.occupants = p.occupants[:0]
	p.inUse = false
	p.lastUsed = a.dev.CurrentFrameIndex()
}

// Release destroys every resource and heap regardless of age.
func (a *Allocator) Release() {
	for _, h := range a.heaps {
		for _, p := range h.resources {
			p.destroy(a.dev)
		}
		a.dev.DestroyHeap(h.ID)
	}
	for _, p := range a.pool {
		p.destroy(a.dev)
	}
	a.heaps, a.pool = nil, nil
}
