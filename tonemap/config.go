package tonemap

import "fmt"

// Defaults for Config.
const (
	DefaultDevicePath     = "/dev/dri/renderD128"
	DefaultMaxWidth       = 3840
	DefaultMaxHeight      = 2160
	DefaultOutputSurfaces = 2
)

// PrimeExporter converts a GEM handle on the KMS device into a dma-buf
// file descriptor the caller owns.
type PrimeExporter interface {
	PrimeHandleToFD(handle uint32) (int, error)
}

// Config configures a Session.
type Config struct {
	// DevicePath is the render node the driver opens.
	DevicePath string
	// MaxWidth and MaxHeight size the output surfaces. Larger buffers are
	// refused.
	MaxWidth, MaxHeight int
	// OutputSurfaces is the number of output surfaces used round-robin.
	OutputSurfaces int
	// Exporter turns handle-only buffers into dma-bufs. Optional.
	Exporter PrimeExporter
	// Memory closes the file descriptors the session creates and is
	// attached to exported buffers. Defaults to SystemMemory.
	Memory Memory
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		DevicePath:     DefaultDevicePath,
		MaxWidth:       DefaultMaxWidth,
		MaxHeight:      DefaultMaxHeight,
		OutputSurfaces: DefaultOutputSurfaces,
		Memory:         SystemMemory{},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DevicePath == "" {
		c.DevicePath = d.DevicePath
	}
	if c.MaxWidth == 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxHeight == 0 {
		c.MaxHeight = d.MaxHeight
	}
	if c.OutputSurfaces == 0 {
		c.OutputSurfaces = d.OutputSurfaces
	}
	if c.Memory == nil {
		c.Memory = d.Memory
	}
	return c
}

func (c Config) validate() error {
	if c.MaxWidth < 0 || c.MaxHeight < 0 {
		return fmt.Errorf("tonemap: invalid maximum size %dx%d", c.MaxWidth, c.MaxHeight)
	}
	if c.OutputSurfaces < 0 {
		return fmt.Errorf("tonemap: invalid output surface count %d", c.OutputSurfaces)
	}
	return nil
}
