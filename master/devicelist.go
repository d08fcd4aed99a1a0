package master

import "sync"

// deviceRegistry tracks every Device created via Register, mirroring the
// process-wide device list spec.md §4.G describes so a supervisory loop
// can walk all known devices without the caller threading its own slice
// through every layer.
type deviceRegistry struct {
	mu      sync.Mutex
	devices []*Device
}

var defaultRegistry deviceRegistry

// Register adds d to the process-wide device list and returns d
// unchanged, so it composes with NewDevice at the call site:
//
//	dev := master.Register(master.NewDevice(...))
func Register(d *Device) *Device {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.devices = append(defaultRegistry.devices, d)
	return d
}

// Devices returns a snapshot of every registered Device.
func Devices() []*Device {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	out := make([]*Device, len(defaultRegistry.devices))
	copy(out, defaultRegistry.devices)
	return out
}

// Unregister removes d from the process-wide device list, if present.
func Unregister(d *Device) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	for i, existing := range defaultRegistry.devices {
		if existing == d {
			defaultRegistry.devices = append(defaultRegistry.devices[:i], defaultRegistry.devices[i+1:]...)
			return
		}
	}
}
