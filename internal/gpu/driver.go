//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/drmcolor/tonemap"
)

var shared struct {
	mu       sync.Mutex
	provider gpucontext.DeviceProvider
}

// SetDeviceProvider makes drivers opened from now on share the provider's
// device instead of opening their own. A nil provider restores that.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	if provider != nil && provider.AdapterInfo().Type == gpucontext.AdapterTypeSoftware {
		return fmt.Errorf("%w: %s", ErrSoftwareAdapter, provider.AdapterInfo().Name)
	}
	shared.mu.Lock()
	shared.provider = provider
	shared.mu.Unlock()
	return nil
}

// NewDriver opens a tone-map driver whose pixel passes run on the GPU.
// Surfaces stay in host memory.
func NewDriver() (tonemap.Driver, error) {
	shared.mu.Lock()
	provider := shared.provider
	shared.mu.Unlock()

	a := &ToneMapAccelerator{}
	var err error
	if provider != nil {
		err = a.SetDeviceProvider(provider)
	} else {
		err = a.Init()
	}
	if err != nil {
		return nil, err
	}
	return tonemap.NewPassDriver(DriverName, tonemap.SystemMemory{}, a), nil
}
