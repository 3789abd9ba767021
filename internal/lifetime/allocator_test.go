package lifetime

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/device"
	"github.com/gogpu/framegraph/device/devicetest"
)

const testHeapSize = 1 << 20

func newTestAllocator(t *testing.T) (*Allocator, *devicetest.Device) {
	t.Helper()
	dev := devicetest.New()
	return New(dev, Config{MinHeapSize: testHeapSize, EvictionFrames: 2}, nil), dev
}

// rgba256 is 256 KiB on the test device.
func rgba256(label string) *device.TextureDesc {
	return &device.TextureDesc{
		Label:  label,
		Width:  256,
		Height: 256,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	}
}

func texRequest(name string, first, last int) Request {
	return Request{Name: name, Texture: rgba256(name), Lifetime: Interval{first, last}}
}

// span builds a two-queue span from per-queue start and free indices.
func span(start, free [device.QueueCount]int) *Span {
	return &Span{Start: start, Free: free}
}

func TestSpanOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"same pass", Serial(Interval{0, 0}), Serial(Interval{0, 0}), true},
		{"shared last pass", Serial(Interval{0, 2}), Serial(Interval{2, 4}), true},
		{"adjacent", Serial(Interval{0, 1}), Serial(Interval{2, 4}), false},
		{"later", Serial(Interval{5, 5}), Serial(Interval{0, 4}), false},
		{"nested", Serial(Interval{1, 9}), Serial(Interval{3, 4}), true},
		{
			"other queue without fence",
			Span{Start: [2]int{0, Never}, Free: [2]int{1, Never}},
			Span{Start: [2]int{Never, 1}, Free: [2]int{Never, 2}},
			true,
		},
		{
			"other queue after fence wait",
			Span{Start: [2]int{0, Never}, Free: [2]int{1, 3}},
			Span{Start: [2]int{Never, 3}, Free: [2]int{Never, 4}},
			false,
		},
		{
			"other queue before its fence wait",
			Span{Start: [2]int{0, Never}, Free: [2]int{1, 3}},
			Span{Start: [2]int{Never, 2}, Free: [2]int{Never, 3}},
			true,
		},
		{
			"both queues",
			Span{Start: [2]int{0, 1}, Free: [2]int{4, 2}},
			Span{Start: [2]int{4, Never}, Free: [2]int{5, Never}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("%+v.Overlaps(%+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("%+v.Overlaps(%+v) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestAllocateAliasedOrdersQueues(t *testing.T) {
	a, _ := newTestAllocator(t)

	primary := texRequest("primary", 0, 0)
	primary.Span = span([2]int{0, Never}, [2]int{1, Never})
	p, err := a.AllocateAliased(primary)
	if err != nil {
		t.Fatal(err)
	}

	// Declared later but on the async queue, whose only fence wait on the
	// primary side comes at pass 3: it runs alongside the primary pass.
	async := texRequest("async", 1, 1)
	async.Span = span([2]int{Never, 1}, [2]int{3, 2})
	q, err := a.AllocateAliased(async)
	if err != nil {
		t.Fatal(err)
	}
	if q == p || q.Offset() < p.Offset()+p.Size() && p.Offset() < q.Offset()+q.Size() {
		t.Errorf("async at %d shares memory with primary at %d", q.Offset(), p.Offset())
	}
	if prev := a.AliasedPrev(q, *async.Span); prev != nil {
		t.Errorf("AliasedPrev(async) = %v, want nil", prev)
	}

	fenced := texRequest("fenced", 3, 3)
	fenced.Span = span([2]int{3, Never}, [2]int{4, Never})
	r, err := a.AllocateAliased(fenced)
	if err != nil {
		t.Fatal(err)
	}
	if r != p {
		t.Errorf("fenced request got a new resource at %d, want reuse of primary", r.Offset())
	}

	bad := texRequest("bad", 0, 0)
	bad.Span = span([2]int{Never, Never}, [2]int{Never, Never})
	if _, err := a.AllocateAliased(bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("span without uses: error = %v, want ErrInvalidRequest", err)
	}
}

func TestAllocateAliasedReusesDisjointLifetimes(t *testing.T) {
	a, dev := newTestAllocator(t)

	t0, err := a.AllocateAliased(texRequest("T0", 0, 0))
	if err != nil {
		t.Fatalf("AllocateAliased(T0): %v", err)
	}
	t1, err := a.AllocateAliased(texRequest("T1", 5, 5))
	if err != nil {
		t.Fatalf("AllocateAliased(T1): %v", err)
	}

	if t0 != t1 {
		t.Fatalf("T1 got a new resource, want reuse of T0's")
	}
	if t0.Heap() != t1.Heap() || t0.Offset() != t1.Offset() {
		t.Errorf("T1 at heap %v offset %d, want heap %v offset %d", t1.Heap(), t1.Offset(), t0.Heap(), t0.Offset())
	}
	if len(dev.Heaps) != 1 || len(dev.Textures) != 1 {
		t.Errorf("device has %d heaps and %d textures, want 1 and 1", len(dev.Heaps), len(dev.Textures))
	}
	if got := len(t0.Occupants()); got != 2 {
		t.Errorf("occupants = %d, want 2", got)
	}
}

func TestAllocateAliasedNeverOverlapsLiveMemory(t *testing.T) {
	a, _ := newTestAllocator(t)

	reqs := []Request{
		texRequest("a", 0, 3),
		texRequest("b", 2, 5),
		texRequest("c", 4, 4),
		texRequest("d", 0, 9),
		texRequest("e", 6, 8),
		{Name: "buf", Buffer: &device.BufferDesc{Size: 100_000}, Lifetime: Interval{1, 7}},
	}
	type placed struct {
		p *Physical
		r Request
	}
	var all []placed
	for _, r := range reqs {
		p, err := a.AllocateAliased(r)
		if err != nil {
			t.Fatalf("AllocateAliased(%s): %v", r.Name, err)
		}
		all = append(all, placed{p, r})
	}

	for i := range all {
		for j := i + 1; j < len(all); j++ {
			x, y := all[i], all[j]
			if x.p.Heap() != y.p.Heap() || !x.r.span().Overlaps(y.r.span()) {
				continue
			}
			if x.p.memoryOverlaps(y.p.Offset(), y.p.Size()) {
				t.Errorf("%s %s and %s %s share memory [%d,+%d) / [%d,+%d)",
					x.r.Name, x.r.Lifetime, y.r.Name, y.r.Lifetime,
					x.p.Offset(), x.p.Size(), y.p.Offset(), y.p.Size())
			}
		}
	}
}

func TestAllocateAliasedPlacesFirstFit(t *testing.T) {
	a, _ := newTestAllocator(t)

	first, _ := a.AllocateAliased(texRequest("first", 0, 4))
	second, _ := a.AllocateAliased(texRequest("second", 1, 2))

	if first.Offset() != 0 {
		t.Errorf("first offset = %d, want 0", first.Offset())
	}
	if second.Offset() != first.Size() {
		t.Errorf("second offset = %d, want %d", second.Offset(), first.Size())
	}
}

func TestAllocateAliasedGrowsHeaps(t *testing.T) {
	a, dev := newTestAllocator(t)

	// Four 256 KiB textures fill the 1 MiB heap.
	for i := range 4 {
		if _, err := a.AllocateAliased(texRequest("fill", i, 9)); err != nil {
			t.Fatal(err)
		}
	}
	if len(dev.Heaps) != 1 {
		t.Fatalf("heaps = %d, want 1", len(dev.Heaps))
	}

	p, err := a.AllocateAliased(texRequest("overflow", 5, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(dev.Heaps) != 2 {
		t.Errorf("heaps = %d, want 2", len(dev.Heaps))
	}
	if p.Heap() == a.heaps[0] {
		t.Error("overflow placed in the full heap")
	}

	big := &device.TextureDesc{Width: 1024, Height: 1024, Format: gputypes.TextureFormatRGBA8Unorm}
	p, err = a.AllocateAliased(Request{Name: "big", Texture: big, Lifetime: Interval{0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if p.Heap().Size < 4<<20 {
		t.Errorf("big heap size = %d, want at least 4 MiB", p.Heap().Size)
	}
}

func TestAliasedPrev(t *testing.T) {
	a, _ := newTestAllocator(t)

	early, _ := a.AllocateAliased(texRequest("early", 0, 1))
	early.State = device.AccessShaderRead

	// A different description cannot reuse the resource but can take its
	// memory.
	other := &device.TextureDesc{Width: 128, Height: 128, Format: gputypes.TextureFormatRGBA8Unorm}
	late, err := a.AllocateAliased(Request{Name: "late", Texture: other, Lifetime: Interval{3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	if late == early || late.Offset() != early.Offset() {
		t.Fatalf("late not aliased over early: offset %d vs %d", late.Offset(), early.Offset())
	}

	if prev := a.AliasedPrev(late, Serial(Interval{3, 4})); prev != early {
		t.Errorf("AliasedPrev = %v, want early", prev)
	}
	if early.State != device.AccessUndefined {
		t.Errorf("early state = %v, want undefined after alias hand-off", early.State)
	}
	if prev := a.AliasedPrev(early, Serial(Interval{0, 1})); prev != nil {
		t.Errorf("AliasedPrev(early) = %v, want nil", prev)
	}
}

func TestAllocateDedicatedPoolsAndCarriesState(t *testing.T) {
	a, dev := newTestAllocator(t)

	out, err := a.AllocateDedicated(texRequest("out", 0, 3))
	if err != nil {
		t.Fatal(err)
	}
	if out.Heap() != nil {
		t.Error("dedicated resource placed in a heap")
	}
	if tex := dev.Textures[out.ID.Handle]; tex == nil || tex.Placement != nil {
		t.Errorf("device texture = %+v, want dedicated", tex)
	}

	// Busy this frame: a second request gets its own resource.
	other, _ := a.AllocateDedicated(texRequest("other", 0, 1))
	if other == out {
		t.Fatal("pool handed out a busy resource")
	}

	out.State = device.AccessShaderRead
	a.Free(out)
	again, _ := a.AllocateDedicated(texRequest("out", 0, 3))
	if again != out {
		t.Fatal("pool did not reuse the freed resource")
	}
	if again.State != device.AccessShaderRead {
		t.Errorf("state = %v, want carried over", again.State)
	}
}

func TestResetEvictsIdleResources(t *testing.T) {
	a, dev := newTestAllocator(t)

	placed, _ := a.AllocateAliased(texRequest("placed", 0, 0))
	if _, err := placed.View(dev, device.ViewDesc{}); err != nil {
		t.Fatal(err)
	}
	pooled, _ := a.AllocateDedicated(texRequest("pooled", 0, 0))
	a.Free(placed)
	a.Free(pooled)

	dev.Frame = 2
	a.Reset()
	if s := a.Stats(); s.PlacedResources != 1 || s.PooledResources != 1 || s.Evictions != 0 {
		t.Fatalf("after 2 idle frames: %s, want nothing evicted", s)
	}

	dev.Frame = 3
	a.Reset()
	s := a.Stats()
	if s.Heaps != 0 || s.PlacedResources != 0 || s.PooledResources != 0 {
		t.Errorf("after 3 idle frames: %s, want empty", s)
	}
	if s.Evictions != 2 {
		t.Errorf("evictions = %d, want 2", s.Evictions)
	}
	if len(dev.Textures) != 0 || len(dev.Heaps) != 0 || len(dev.Views) != 0 {
		t.Errorf("device still holds %d textures, %d heaps, %d views", len(dev.Textures), len(dev.Heaps), len(dev.Views))
	}
}

func TestResetKeepsResourcesInUse(t *testing.T) {
	a, dev := newTestAllocator(t)
	if _, err := a.AllocateAliased(texRequest("live", 0, 0)); err != nil {
		t.Fatal(err)
	}
	dev.Frame = 100
	a.Reset()
	if s := a.Stats(); s.PlacedResources != 1 || s.InUse != 1 {
		t.Errorf("stats = %s, want the live resource kept", s)
	}
}

func TestViewMemoization(t *testing.T) {
	a, dev := newTestAllocator(t)
	p, _ := a.AllocateAliased(texRequest("t", 0, 0))

	whole := device.ViewFor(device.AllSubresources)
	mip1 := device.ViewFor(device.Subresource{Mip: 1, Layer: -1})

	v1, _ := p.View(dev, whole)
	v2, _ := p.View(dev, whole)
	v3, _ := p.View(dev, mip1)
	if v1 != v2 {
		t.Errorf("same description gave views %d and %d", v1, v2)
	}
	if v1 == v3 {
		t.Error("different descriptions share a view")
	}
	if p.ViewCount() != 2 || len(dev.Views) != 2 {
		t.Errorf("views = %d memoized, %d on device, want 2", p.ViewCount(), len(dev.Views))
	}
}

func TestAllocateErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no description", Request{Name: "x", Lifetime: Interval{0, 0}}},
		{"both descriptions", Request{Name: "x", Texture: rgba256("x"), Buffer: &device.BufferDesc{Size: 4}}},
		{"inverted lifetime", Request{Name: "x", Texture: rgba256("x"), Lifetime: Interval{3, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAllocator(t)
			if _, err := a.AllocateAliased(tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("AllocateAliased() error = %v, want ErrInvalidRequest", err)
			}
			if _, err := a.AllocateDedicated(tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("AllocateDedicated() error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	t.Run("device failure", func(t *testing.T) {
		a, dev := newTestAllocator(t)
		boom := errors.New("out of memory")
		dev.FailCreate = boom
		if _, err := a.AllocateAliased(texRequest("t", 0, 0)); !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped device error", err)
		}
	})
}

func TestSnapshotAndRelease(t *testing.T) {
	a, dev := newTestAllocator(t)
	_, _ = a.AllocateAliased(texRequest("a", 0, 1))
	_, _ = a.AllocateAliased(texRequest("b", 1, 2))
	_, _ = a.AllocateDedicated(texRequest("out", 0, 2))

	snap := a.Snapshot()
	if len(snap) != 1 || len(snap[0].Resources) != 2 {
		t.Fatalf("snapshot = %+v, want one heap with two resources", snap)
	}
	if snap[0].Resources[0].Label != "a" || snap[0].Resources[1].Occupants[0].Owner != "b" {
		t.Errorf("snapshot labels = %+v", snap[0].Resources)
	}
	if s := a.Stats().String(); !strings.Contains(s, "2 placed") || !strings.Contains(s, "1 pooled") {
		t.Errorf("Stats().String() = %q", s)
	}

	a.Release()
	if len(dev.Textures) != 0 || len(dev.Heaps) != 0 {
		t.Errorf("after Release: %d textures, %d heaps", len(dev.Textures), len(dev.Heaps))
	}
}
