package tonemap

import (
	"fmt"
	"slices"
	"sync"
)

// Handles a driver hands out. Zero is never a valid handle.
type (
	ConfigID  uint32
	ContextID uint32
	SurfaceID uint32
	BufferID  uint32
)

// Entrypoint is a class of acceleration a driver offers.
type Entrypoint uint8

const (
	EntrypointVLD Entrypoint = iota + 1
	EntrypointEncode
	// EntrypointVideoProc is video post-processing, which includes HDR tone
	// mapping.
	EntrypointVideoProc
)

func (e Entrypoint) String() string {
	switch e {
	case EntrypointVLD:
		return "VLD"
	case EntrypointEncode:
		return "Encode"
	case EntrypointVideoProc:
		return "VideoProc"
	default:
		return fmt.Sprintf("Entrypoint(%d)", uint8(e))
	}
}

// RTFormat is a set of render target formats.
type RTFormat uint32

const (
	RTFormatYUV420 RTFormat = 1 << iota
	RTFormatYUV420_10
	RTFormatRGB32
	// RTFormatRGB32_10 is 32-bit RGB with 10 bits per channel.
	RTFormatRGB32_10
)

// ToneMapFlags is the set of tone-mapping cases a driver supports.
type ToneMapFlags uint16

const (
	ToneMapH2H ToneMapFlags = 1 << iota
	ToneMapH2S
	ToneMapS2H
)

// MetadataHDR10 is the only metadata type a tone-map filter takes here.
const MetadataHDR10 uint8 = 1

// ToneMapCap is one tone-mapping capability a driver reports.
type ToneMapCap struct {
	MetadataType uint8
	Flags        ToneMapFlags
}

// SurfaceDescriptor describes a dma-buf backed surface for import and
// export. The descriptor does not transfer ownership of Fd on import; an
// exported descriptor's Fd belongs to the caller.
type SurfaceDescriptor struct {
	Format   Format
	Width    int
	Height   int
	DataSize int
	Fd       int
	Modifier uint64
	Pitch    uint32
	Offset   uint32
}

// Rect is a region in pixels.
type Rect struct {
	X, Y          int
	Width, Height int
}

// FilterParams configures an HDR tone-mapping filter.
type FilterParams struct {
	Mode  Mode
	Input HDR10
}

// PipelineParams configures one processing pass.
type PipelineParams struct {
	Surface       SurfaceID
	SurfaceRegion Rect
	OutputRegion  Rect
	Filters       []BufferID
	InputColor    ColorProperties
	OutputColor   ColorProperties
	// Output describes the target signal.
	Output HDR10
}

// Driver is a video post-processing accelerator, staged the way VA-API
// exposes one. Methods are called from one goroutine at a time.
type Driver interface {
	Name() string

	Initialize(devicePath string) error
	Terminate() error

	Entrypoints() ([]Entrypoint, error)
	RTFormats(Entrypoint) (RTFormat, error)

	CreateConfig(Entrypoint, RTFormat) (ConfigID, error)
	DestroyConfig(ConfigID) error

	CreateSurfaces(format RTFormat, width, height, n int) ([]SurfaceID, error)
	DestroySurfaces(...SurfaceID) error

	CreateContext(cfg ConfigID, width, height int, targets []SurfaceID) (ContextID, error)
	DestroyContext(ContextID) error

	// ImportSurface wraps an external dma-buf. The driver must not use
	// desc.Fd after DestroySurfaces.
	ImportSurface(desc SurfaceDescriptor) (SurfaceID, error)
	// ExportSurface returns a new dma-buf fd for the surface's content.
	ExportSurface(SurfaceID) (SurfaceDescriptor, error)

	QueryToneMapCaps(ContextID) ([]ToneMapCap, error)

	CreateFilterBuffer(ContextID, FilterParams) (BufferID, error)
	CreatePipelineBuffer(ContextID, PipelineParams) (BufferID, error)
	DestroyBuffer(BufferID) error

	BeginPicture(ctx ContextID, target SurfaceID) error
	RenderPicture(ctx ContextID, buffers ...BufferID) error
	EndPicture(ContextID) error

	// SyncSurface blocks until all work targeting the surface is done.
	SyncSurface(SurfaceID) error
}

// Factory creates a driver instance.
type Factory func() (Driver, error)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
	live      map[Driver]struct{}
}{
	factories: make(map[string]Factory),
	live:      make(map[Driver]struct{}),
}

// Register makes a driver available by name. Registering a name twice
// panics.
func Register(name string, f Factory) {
	registry.Lock()
	defer registry.Unlock()
	if f == nil {
		panic("tonemap: Register factory is nil")
	}
	if _, dup := registry.factories[name]; dup {
		panic("tonemap: Register called twice for driver " + name)
	}
	registry.factories[name] = f
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for n := range registry.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Open creates an instance of the named driver.
func Open(name string) (Driver, error) {
	registry.RLock()
	f, ok := registry.factories[name]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tonemap: unknown driver %q: %w", name, ErrCapabilityUnsupported)
	}
	d, err := f()
	if err != nil {
		return nil, fmt.Errorf("tonemap: open %s: %w", name, err)
	}
	registry.Lock()
	registry.live[d] = struct{}{}
	registry.Unlock()
	propagateLogger(d, slogger())
	return d, nil
}

// forget drops d from the set of drivers receiving logger updates.
func forget(d Driver) {
	registry.Lock()
	delete(registry.live, d)
	registry.Unlock()
}
