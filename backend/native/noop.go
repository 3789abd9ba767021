package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/backend"
)

func init() {
	backend.Register(backend.BackendNoop, func() (backend.Device, error) {
		return OpenNoop()
	})
}

// OpenNoop opens the wgpu noop HAL device and wraps it. Close destroys the
// HAL device and instance as well.
func OpenNoop(opts ...Option) (*Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("native: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("native: noop instance has no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open noop adapter: %w", err)
	}
	d, err := New(open.Device, open.Queue, opts...)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.name = backend.BackendNoop
	d.release = func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return d, nil
}

// RegisterProvider registers the native backend on a shared GPU context.
// Each Open of backend.BackendNative wraps the provider's HAL device.
func RegisterProvider(provider gpucontext.DeviceProvider, opts ...Option) {
	backend.Register(backend.BackendNative, func() (backend.Device, error) {
		return NewFromProvider(provider, opts...)
	})
}
