// Package backend selects the device a frame graph runs on.
//
// Backends register a factory from an init() function and are opened by
// name at runtime. The recording backend is always registered; importing
// backend/native adds the HAL backends:
//
//	import _ "github.com/gogpu/framegraph/backend/native"
//
// # Backend Selection
//
// Use Default() to open the best available backend, or Open() to request
// a specific backend by name:
//
//	// Open the default (best available) backend
//	d, err := backend.Default()
//
//	// Or request a specific backend
//	d, err := backend.Open(backend.BackendNoop)
//
// # Usage with a Frame Graph
//
// Every backend implements device.Device:
//
//	d, err := backend.Open("noop")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	g := framegraph.New(d)
//
// # Available Backends
//
//   - record: in-memory call recorder, used for planning and tests
//   - noop: wgpu HAL noop device, exercises the HAL path without a GPU
//   - native: wgpu HAL device from a shared gpucontext provider
package backend
