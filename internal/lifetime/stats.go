package lifetime

import (
	"fmt"
)

// Stats summarises allocator state.
type Stats struct {
	// Heaps is the number of live heaps.
	Heaps int

	// HeapBytes is the total size of live heaps.
	HeapBytes uint64

	// PlacedResources is the number of resources placed in heaps.
	PlacedResources int

	// PooledResources is the number of dedicated resources in the pool.
	PooledResources int

	// InUse counts placed and pooled resources occupied this frame.
	InUse int

	// Evictions is the total number of resources destroyed for being idle.
	Evictions uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Lifetime[%d heaps, %d MB, %d placed, %d pooled, %d in use, %d evictions]",
		s.Heaps,
		s.HeapBytes/(1024*1024),
		s.PlacedResources,
		s.PooledResources,
		s.InUse,
		s.Evictions)
}

// Stats returns current allocator statistics.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Heaps:           len(a.heaps),
		PooledResources: len(a.pool),
		Evictions:       a.evictions,
	}
	for _, h := range a.heaps {
		s.HeapBytes += h.Size
		s.PlacedResources += len(h.resources)
		for _, p := range h.resources {
			if p.inUse {
				s.InUse++
			}
		}
	}
	for _, p := range a.pool {
		if p.inUse {
			s.InUse++
		}
	}
	return s
}

// ResourceInfo describes one placed resource in a HeapInfo.
type ResourceInfo struct {
	Label     string
	Offset    uint64
	Size      uint64
	Occupants []Occupancy
}

// HeapInfo is a copy of one heap's layout for the current frame.
type HeapInfo struct {
	ID        uint64
	Size      uint64
	Resources []ResourceInfo
}

// Snapshot copies the layout of every heap. Resources without occupants this
// frame are included with an empty occupant list.
func (a *Allocator) Snapshot() []HeapInfo {
	out := make([]HeapInfo, 0, len(a.heaps))
	for _, h := range a.heaps {
		info := HeapInfo{ID: uint64(h.ID), Size: h.Size}
		for _, p := range h.resources {
			info.Resources = append(info.Resources, ResourceInfo{
				Label:     p.Label(),
				Offset:    p.offset,
				Size:      p.size,
				Occupants: append([]Occupancy(nil), p.occupants...),
			})
		}
		out = append(out, info)
	}
	return out
}
