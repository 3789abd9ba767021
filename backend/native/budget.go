package native

import (
	"fmt"
	"sync"
)

// Default memory limits.
const (
	// DefaultBudgetMB is the default device memory budget (1 GB).
	DefaultBudgetMB = 1024

	// MinBudgetMB is the smallest accepted budget (16 MB).
	MinBudgetMB = 16
)

// MemoryStats reports device memory accounted by the frame graph backend.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the memory reserved by heaps and dedicated resources.
	UsedBytes uint64

	// HeapBytes is the part of UsedBytes reserved by heaps.
	HeapBytes uint64

	// Heaps is the number of live heaps.
	Heaps int

	// Textures and Buffers count live resources, placed or dedicated.
	Textures int
	Buffers  int

	// Submits is the number of command buffers submitted.
	Submits uint64

	// Utilization is UsedBytes over TotalBytes (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable summary.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, %d heaps, %d textures, %d buffers]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.Heaps,
		s.Textures,
		s.Buffers)
}

// budget tracks reserved bytes against a limit. Placed resources live inside
// heap reservations and are not charged again.
//
// budget is safe for concurrent use so Stats can be read from a metrics
// scrape while a frame records.
type budget struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
	heaps uint64
}

func newBudget(megabytes int) *budget {
	if megabytes < MinBudgetMB {
		megabytes = DefaultBudgetMB
	}
	//nolint:gosec // G115: megabytes bounded below by MinBudgetMB
	return &budget{limit: uint64(megabytes) * 1024 * 1024}
}

// reserve charges size bytes, or fails without charging anything.
func (b *budget) reserve(size uint64, heap bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+size > b.limit {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrMemoryBudgetExceeded, size, b.used, b.limit)
	}
	b.used += size
	if heap {
		b.heaps += size
	}
	return nil
}

func (b *budget) release(size uint64, heap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= min(size, b.used)
	if heap {
		b.heaps -= min(size, b.heaps)
	}
}

func (b *budget) snapshot() (limit, used, heaps uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit, b.used, b.heaps
}
