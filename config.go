package framegraph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/framegraph/internal/lifetime"
)

// Config holds the tunables of a Graph.
type Config struct {
	// EvictionFrames is how many frames a physical resource may stay unused
	// before the allocator destroys it.
	EvictionFrames uint64 `yaml:"eviction_frames"`

	// MinHeapSize is the smallest heap the allocator creates, in bytes.
	MinHeapSize uint64 `yaml:"min_heap_size"`

	// HeapAlignment is the minimum placement alignment inside heaps. The
	// device may require more. Must be zero or a power of two.
	HeapAlignment uint64 `yaml:"heap_alignment"`

	// AsyncCompute schedules KindAsyncCompute passes on the async-compute
	// queue. When false they run on the primary queue and no fences are
	// used.
	AsyncCompute bool `yaml:"async_compute"`
}

// DefaultConfig returns the settings used when no Config is given.
func DefaultConfig() Config {
	return Config{
		EvictionFrames: lifetime.DefaultEvictionFrames,
		MinHeapSize:    lifetime.DefaultMinHeapSize,
		HeapAlignment:  64 * 1024,
		AsyncCompute:   true,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.EvictionFrames < 1 {
		return fmt.Errorf("eviction_frames must be >= 1")
	}
	if c.MinHeapSize < 1 {
		return fmt.Errorf("min_heap_size must be >= 1")
	}
	if c.HeapAlignment&(c.HeapAlignment-1) != 0 {
		return fmt.Errorf("heap_alignment must be a power of two, got %d", c.HeapAlignment)
	}
	return nil
}

// withDefaults replaces every field Validate rejects with its DefaultConfig
// value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EvictionFrames < 1 {
		c.EvictionFrames = d.EvictionFrames
	}
	if c.MinHeapSize < 1 {
		c.MinHeapSize = d.MinHeapSize
	}
	if c.HeapAlignment&(c.HeapAlignment-1) != 0 {
		c.HeapAlignment = d.HeapAlignment
	}
	return c
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Keys that are absent keep their default.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("framegraph: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("framegraph: invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file. An empty path yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("framegraph: load config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) allocatorConfig() lifetime.Config {
	return lifetime.Config{
		EvictionFrames: c.EvictionFrames,
		MinHeapSize:    c.MinHeapSize,
		Alignment:      c.HeapAlignment,
	}
}
