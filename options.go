package framegraph

import (
	"github.com/gogpu/framegraph/device"
)

// Option configures a Graph during creation.
//
// Example:
//
//	cfg, _ := framegraph.LoadConfig("framegraph.yaml")
//	g := framegraph.New(dev,
//	    framegraph.WithConfig(cfg),
//	    framegraph.WithReopenHook(bindGlobals))
type Option func(*options)

type options struct {
	config Config
	reopen func(device.CommandBuffer)
}

func defaultOptions() options {
	return options{config: DefaultConfig()}
}

// WithConfig replaces the default configuration. Fields are taken as
// given, so a Config built by hand should start from DefaultConfig. New
// logs a warning for a config that fails Config.Validate and falls back to
// the defaults for the offending fields; ParseConfig and LoadConfig reject
// such a config instead.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithAsyncCompute overrides Config.AsyncCompute. Use false for devices
// without an async-compute queue.
func WithAsyncCompute(enabled bool) Option {
	return func(o *options) {
		o.config.AsyncCompute = enabled
	}
}

// WithReopenHook registers a function called every time the graph opens a
// command buffer itself, which happens after every fence submit. Use it to
// rebind per-frame state such as global descriptor heaps. Buffers passed to
// Execute are not reported.
func WithReopenHook(fn func(device.CommandBuffer)) Option {
	return func(o *options) {
		o.reopen = fn
	}
}
