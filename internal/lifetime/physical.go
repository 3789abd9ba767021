package lifetime

import (
	"fmt"
	"math"

	"github.com/gogpu/framegraph/device"
)

// Interval is an inclusive range of pass indices during which a resource is
// live.
type Interval struct {
	First int
	Last  int
}

// String implements fmt.Stringer.
func (i Interval) String() string {
	return fmt.Sprintf("[%d,%d]", i.First, i.Last)
}

// Never is a Span pass index for "no pass": a queue the resource is not
// used on in Start, and a queue none of whose passes is ordered after every
// use in Free.
const Never = math.MaxInt

// Span places a lifetime on the queues of a frame. Pass indices are
// declaration indices, but work on different queues only runs in that order
// where a fence says so.
type Span struct {
	// Start is the first pass using the resource on each queue.
	Start [device.QueueCount]int
	// Free is the first pass on each queue that runs after every use has
	// completed, through queue order or a fence wait.
	Free [device.QueueCount]int
}

// Serial returns the span of i when every pass runs on the primary queue.
func Serial(i Interval) Span {
	var s Span
	for q := range s.Start {
		s.Start[q], s.Free[q] = Never, Never
	}
	s.Start[device.QueuePrimary] = i.First
	s.Free[device.QueuePrimary] = i.Last + 1
	return s
}

// Before reports whether every use of s has completed before any use of o
// starts.
func (s Span) Before(o Span) bool {
	for q := range s.Start {
		if o.Start[q] != Never && s.Free[q] > o.Start[q] {
			return false
		}
	}
	return true
}

// Overlaps reports whether uses of s and o may run at the same time.
func (s Span) Overlaps(o Span) bool {
	return !s.Before(o) && !o.Before(s)
}

func (s Span) valid() bool {
	used := false
	for q := range s.Start {
		if s.Start[q] == Never {
			continue
		}
		if s.Start[q] < 0 || s.Free[q] <= s.Start[q] {
			return false
		}
		used = true
	}
	return used
}

// Occupancy records one logical resource living in a physical resource.
type Occupancy struct {
	Owner    string
	Lifetime Interval
	Span     Span
}

// Physical is a device resource owned by the allocator. It outlives the
// frame graph's per-frame state and is handed to a new logical resource when
// descriptions match and lifetimes allow.
type Physical struct {
	ID      device.ResourceID
	Texture device.TextureDesc
	Buffer  device.BufferDesc

	// State is the access state the resource is left in by its latest
	// occupant.
	State device.Access

	heap   *Heap
	offset uint64
	size   uint64

	occupants []Occupancy
	lastUsed  uint64
	inUse     bool
	views     map[device.ViewDesc]device.ViewID
}

// Heap returns the heap the resource is placed in, or nil for dedicated
// memory.
func (p *Physical) Heap() *Heap { return p.heap }

// Offset returns the byte offset inside the heap.
func (p *Physical) Offset() uint64 { return p.offset }

// Size returns the byte size the resource occupies.
func (p *Physical) Size() uint64 { return p.size }

// Occupants returns the logical resources placed in p this frame.
func (p *Physical) Occupants() []Occupancy { return p.occupants }

// Label returns the debug label of the description.
func (p *Physical) Label() string {
	if p.ID.Kind == device.KindBuffer {
		return p.Buffer.Label
	}
	return p.Texture.Label
}

// View returns the memoized view for desc, creating it on first use. Views
// are destroyed together with the resource.
func (p *Physical) View(dev device.Device, desc device.ViewDesc) (device.ViewID, error) {
	if v, ok := p.views[desc]; ok {
		return v, nil
	}
	v, err := dev.CreateShaderView(p.ID, desc)
	if err != nil {
		return 0, fmt.Errorf("lifetime: create view for %s: %w", p.ID, err)
	}
	if p.views == nil {
		p.views = make(map[device.ViewDesc]device.ViewID)
	}
	p.views[desc] = v
	return v, nil
}

// ViewCount returns how many views are memoized.
func (p *Physical) ViewCount() int { return len(p.views) }

func (p *Physical) matches(req *Request) bool {
	if req.Texture != nil {
		return p.ID.Kind == device.KindTexture && p.Texture.Compatible(*req.Texture)
	}
	return p.ID.Kind == device.KindBuffer && p.Buffer.Compatible(*req.Buffer)
}

func (p *Physical) liveDuring(s Span) bool {
	for _, o := range p.occupants {
		if o.Span.Overlaps(s) {
			return true
		}
	}
	return false
}

func (p *Physical) memoryOverlaps(offset, size uint64) bool {
	return p.offset < offset+size && offset < p.offset+p.size
}

func (p *Physical) destroy(dev device.Device) {
	for _, v := range p.views {
		dev.DestroyShaderView(v)
	}
	p.views = nil
	dev.DestroyResource(p.ID)
}

// Heap is a block of device memory shared by placed resources with disjoint
// lifetimes.
type Heap struct {
	ID        device.HeapID
	Size      uint64
	resources []*Physical
}

// Resources returns the resources currently placed in the heap.
func (h *Heap) Resources() []*Physical { return h.resources }

// regionFree reports whether [offset, offset+size) is unused by every
// resource whose span overlaps s.
func (h *Heap) regionFree(offset, size uint64, s Span) bool {
	for _, r := range h.resources {
		if r.memoryOverlaps(offset, size) && r.liveDuring(s) {
			return false
		}
	}
	return true
}

// findOffset returns the lowest aligned offset where size bytes are free for
// the whole span. Candidate offsets are the heap start and the end of every
// placed resource.
func (h *Heap) findOffset(size, align uint64, s Span) (uint64, bool) {
	best, found := uint64(0), false
	try := func(off uint64) {
		off = alignUp(off, align)
		if off+size > h.Size || (found && off >= best) {
			return
		}
		if h.regionFree(off, size, s) {
			best, found = off, true
		}
	}
	try(0)
	for _, r := range h.resources {
		try(r.offset + r.size)
	}
	return best, found
}

func alignUp(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}
