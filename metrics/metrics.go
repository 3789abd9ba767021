// Package metrics exports frame graph statistics to Prometheus.
//
// A Recorder holds one set of collectors. Call ObserveFrame after Execute
// with the graph's Stats; gauges describe the last frame and counters
// accumulate across frames.
//
//	rec, err := metrics.New(metrics.Config{Namespace: "engine"})
//	...
//	rec.ObserveFrame(g.Stats())
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/framegraph"
)

// ErrRegistrationFailed is returned when a collector cannot be registered.
var ErrRegistrationFailed = errors.New("metrics: collector registration failed")

// Config selects metric names and the registry.
type Config struct {
	// Namespace prefixes every metric name. Defaults to "framegraph".
	Namespace string

	// Subsystem is an optional second name component.
	Subsystem string

	// Registry receives the collectors. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// CompileBuckets are the histogram buckets for compile durations in
	// seconds. If nil, uses DefaultCompileBuckets.
	CompileBuckets []float64
}

// DefaultCompileBuckets spans 10µs to about 80ms.
var DefaultCompileBuckets = prometheus.ExponentialBuckets(10e-6, 2, 14)

// Recorder turns per-frame Stats into Prometheus metrics.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	passes        *prometheus.GaugeVec
	resources     *prometheus.GaugeVec
	barriers      *prometheus.GaugeVec
	barriersTotal *prometheus.CounterVec
	fences        *prometheus.GaugeVec
	submits       prometheus.Counter
	frames        prometheus.Counter
	heaps         prometheus.Gauge
	heapBytes     prometheus.Gauge
	physical      *prometheus.GaugeVec
	inUse         prometheus.Gauge
	evictions     prometheus.Counter
	compile       prometheus.Histogram
	deviceMemory  *prometheus.GaugeVec

	// lastEvictions turns the allocator's running total into counter
	// increments.
	lastEvictions uint64
}

// New creates a Recorder and registers its collectors. Collectors that are
// already registered with an identical description are reused.
func New(cfg Config) (*Recorder, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "framegraph"
	}
	if cfg.CompileBuckets == nil {
		cfg.CompileBuckets = DefaultCompileBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}
	scalar := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	r := &Recorder{
		passes:    gauge("passes", "Passes declared in the last frame", "state"),
		resources: gauge("resources", "Virtual resources declared in the last frame", "state"),
		barriers:  gauge("barriers", "Barriers recorded in the last frame", "kind"),
		barriersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "barriers_total",
			Help:      "Barriers recorded across frames",
		}, []string{"kind"}),
		fences:    gauge("fence_operations", "Cross-queue fence operations in the last frame", "op"),
		submits:   counter("submits_total", "Command buffers submitted by the frame graph"),
		frames:    counter("frames_total", "Frames observed"),
		heaps:     scalar("heaps", "Live memory heaps"),
		heapBytes: scalar("heap_bytes", "Bytes reserved by live heaps"),
		physical:  gauge("physical_resources", "Physical resources owned by the allocator", "placement"),
		inUse:     scalar("physical_resources_in_use", "Physical resources occupied in the last frame"),
		evictions: counter("evictions_total", "Physical resources destroyed for being idle"),
		compile: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "compile_duration_seconds",
			Help:      "Time spent in Compile",
			Buckets:   cfg.CompileBuckets,
		}),
		deviceMemory: gauge("device_memory_bytes", "Device memory reported by the backend", "kind"),
	}

	collectors := []prometheus.Collector{
		r.passes, r.resources, r.barriers, r.barriersTotal, r.fences,
		r.submits, r.frames, r.heaps, r.heapBytes, r.physical, r.inUse,
		r.evictions, r.compile, r.deviceMemory,
	}
	for i, c := range collectors {
		if err := registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
			collectors[i] = already.ExistingCollector
		}
	}
	r.adopt(collectors)
	return r, nil
}

// adopt swaps in collectors that were already registered so a second
// Recorder on the same registry updates the same series.
func (r *Recorder) adopt(c []prometheus.Collector) {
	r.passes = c[0].(*prometheus.GaugeVec)
	r.resources = c[1].(*prometheus.GaugeVec)
	r.barriers = c[2].(*prometheus.GaugeVec)
	r.barriersTotal = c[3].(*prometheus.CounterVec)
	r.fences = c[4].(*prometheus.GaugeVec)
	r.submits = c[5].(prometheus.Counter)
	r.frames = c[6].(prometheus.Counter)
	r.heaps = c[7].(prometheus.Gauge)
	r.heapBytes = c[8].(prometheus.Gauge)
	r.physical = c[9].(*prometheus.GaugeVec)
	r.inUse = c[10].(prometheus.Gauge)
	r.evictions = c[11].(prometheus.Counter)
	r.compile = c[12].(prometheus.Histogram)
	r.deviceMemory = c[13].(*prometheus.GaugeVec)
}

// ObserveFrame records one frame's statistics.
func (r *Recorder) ObserveFrame(s framegraph.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames.Inc()
	r.passes.WithLabelValues("live").Set(float64(s.Passes - s.CulledPasses))
	r.passes.WithLabelValues("culled").Set(float64(s.CulledPasses))
	r.resources.WithLabelValues("live").Set(float64(s.Resources - s.CulledResources))
	r.resources.WithLabelValues("culled").Set(float64(s.CulledResources))

	kinds := [...]struct {
		name string
		n    int
	}{
		{"transition", s.Barriers - s.CrossQueue},
		{"cross_queue", s.CrossQueue},
		{"aliasing", s.AliasingBarriers},
	}
	for _, k := range kinds {
		r.barriers.WithLabelValues(k.name).Set(float64(k.n))
		r.barriersTotal.WithLabelValues(k.name).Add(float64(k.n))
	}
	r.fences.WithLabelValues("wait").Set(float64(s.FenceWaits))
	r.fences.WithLabelValues("signal").Set(float64(s.FenceSignals))
	r.submits.Add(float64(s.Submits))

	a := s.Allocator
	r.heaps.Set(float64(a.Heaps))
	r.heapBytes.Set(float64(a.HeapBytes))
	r.physical.WithLabelValues("placed").Set(float64(a.PlacedResources))
	r.physical.WithLabelValues("pooled").Set(float64(a.PooledResources))
	r.inUse.Set(float64(a.InUse))
	if a.Evictions > r.lastEvictions {
		r.evictions.Add(float64(a.Evictions - r.lastEvictions))
	}
	r.lastEvictions = a.Evictions
}

// ObserveCompile records how long one Compile took.
func (r *Recorder) ObserveCompile(d time.Duration) {
	r.compile.Observe(d.Seconds())
}

// ObserveDeviceMemory records backend memory accounting.
func (r *Recorder) ObserveDeviceMemory(used, total uint64) {
	r.deviceMemory.WithLabelValues("used").Set(float64(used))
	r.deviceMemory.WithLabelValues("budget").Set(float64(total))
}
