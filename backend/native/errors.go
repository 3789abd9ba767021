package native

import "errors"

// Package errors for the HAL device.
var (
	// ErrNoHAL is returned when a provider does not expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrClosed is returned when the device is used after Close.
	ErrClosed = errors.New("native: device closed")

	// ErrMemoryBudgetExceeded is returned when a heap or dedicated resource
	// would exceed the memory budget.
	ErrMemoryBudgetExceeded = errors.New("native: memory budget exceeded")

	// ErrUnknownResource is returned for ids this device did not create.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrPlacementOutOfRange is returned when a placed resource does not fit
	// inside its heap.
	ErrPlacementOutOfRange = errors.New("native: placement outside heap")

	// ErrRenderPassOpen is returned when a command buffer is submitted with a
	// render pass still open.
	ErrRenderPassOpen = errors.New("native: render pass still open")
)
