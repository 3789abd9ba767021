package backend

import (
	"errors"

	"github.com/gogpu/framegraph/device"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend names.
const (
	// BackendNative is a gogpu/wgpu HAL device shared from a GPU context.
	BackendNative = "native"

	// BackendNoop is the HAL device of the wgpu noop backend. It validates
	// every HAL call without a GPU.
	BackendNoop = "noop"

	// BackendRecord records device calls in memory.
	BackendRecord = "record"
)

// Device is an opened frame graph device that can be released.
//
// Devices are created through Register()ed factories and selected via
// Open() or Default().
type Device interface {
	device.Device

	// Name returns the backend identifier (e.g., "noop", "record").
	Name() string

	// Close releases everything the device created.
	// The device should not be used after Close is called.
	Close()
}
