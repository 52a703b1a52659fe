//go:build !nogpu

// Package gpu registers the compute-shader tone-map driver.
//
// The driver runs pixel passes through wgpu/hal on a Vulkan device. If no
// hardware adapter is present, opening the driver fails and callers fall
// back to the "software" driver.
//
// Usage:
//
//	import _ "github.com/gogpu/drmcolor/gpu" // register the "wgpu" tone-map driver
package gpu

import (
	"github.com/gogpu/gpucontext"

	gpuimpl "github.com/gogpu/drmcolor/internal/gpu"
	"github.com/gogpu/drmcolor/tonemap"
)

// DriverName is the name the driver is registered under.
const DriverName = gpuimpl.DriverName

func init() {
	tonemap.Register(DriverName, gpuimpl.NewDriver)
}

// SetDeviceProvider makes the driver use a GPU device shared by the host
// application (e.g., gogpu) instead of opening its own. Call it before
// opening a session.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return gpuimpl.SetDeviceProvider(provider)
}
