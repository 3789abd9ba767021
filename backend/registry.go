package backend

import (
	"fmt"
	"slices"
	"sync"
)

// Factory opens a new device.
type Factory func() (Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Native > Noop > Record (Record is the fallback).
	backendPriority = []string{BackendNative, BackendNoop, BackendRecord}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device by name.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	return d, nil
}

// Default opens the best available backend based on priority. Backends that
// fail to open are skipped.
func Default() (Device, error) {
	registryMu.RLock()
	order := slices.Clone(backendPriority)
	for name := range backends {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	registryMu.RUnlock()

	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		if d, err := Open(name); err == nil {
			return d, nil
		}
	}
	return nil, ErrBackendNotAvailable
}

// MustDefault returns the default backend or panics.
func MustDefault() Device {
	d, err := Default()
	if err != nil {
		panic("backend: no backend available")
	}
	return d
}
