//go:build !nogpu

package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/drmcolor/tonemap"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

//go:embed shaders/tonemap.wgsl
var toneMapShaderSource string

// DriverName is the tone-map registry name of the compute driver.
const DriverName = "wgpu"

// submitTimeout bounds the wait for one dispatch.
const submitTimeout = 5 * time.Second

var (
	// ErrNotReady is returned by Run before a device is available.
	ErrNotReady = errors.New("gpu: tone-map accelerator has no device")

	// ErrSoftwareAdapter is returned when the only device on offer is a CPU
	// emulation, which the software tone-map driver outperforms.
	ErrSoftwareAdapter = errors.New("gpu: software adapter refused")
)

// ToneMapAccelerator runs tone-map passes as a wgpu/hal compute shader. It
// implements tonemap.PixelPass.
//
// Thread safety: ToneMapAccelerator is safe for concurrent use.
type ToneMapAccelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	adapter        string
	ready          bool
	externalDevice bool // true when using a shared device (don't destroy on Close)

	log atomic.Pointer[slog.Logger]
}

var _ tonemap.PixelPass = (*ToneMapAccelerator)(nil)

// Init opens the first hardware Vulkan adapter.
func (a *ToneMapAccelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return errors.New("gpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu: create instance: %w", err)
	}
	selected, err := pickAdapter(instance.EnumerateAdapters(nil))
	if err != nil {
		instance.Destroy()
		return err
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("gpu: open device: %w", err)
	}
	a.instance = instance
	a.device = openDev.Device
	a.queue = openDev.Queue
	a.adapter = selected.Info.Name
	if err := a.createPipeline(); err != nil {
		a.releaseLocked()
		return fmt.Errorf("gpu: create pipeline: %w", err)
	}
	a.ready = true
	a.logger().Info("gpu: tone-map accelerator initialized", "adapter", a.adapter)
	return nil
}

// pickAdapter prefers a discrete GPU, then an integrated one, and never a
// CPU emulation.
func pickAdapter(adapters []hal.ExposedAdapter) (*hal.ExposedAdapter, error) {
	if len(adapters) == 0 {
		return nil, errors.New("gpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU:
			return &adapters[i], nil
		case gputypes.DeviceTypeIntegratedGPU, gputypes.DeviceTypeVirtualGPU:
			if selected == nil {
				selected = &adapters[i]
			}
		}
	}
	if selected == nil {
		return nil, ErrSoftwareAdapter
	}
	return selected, nil
}

// halProvider is implemented by providers that expose their wgpu/hal
// device and queue.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// SetDeviceProvider switches the accelerator to a device shared by the
// host application. Software adapters are refused.
func (a *ToneMapAccelerator) SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return errors.New("gpu: nil device provider")
	}
	if info := provider.AdapterInfo(); info.Type == gpucontext.AdapterTypeSoftware {
		return fmt.Errorf("%w: %s", ErrSoftwareAdapter, info.Name)
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return errors.New("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return errors.New("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return errors.New("gpu: provider HalQueue is not hal.Queue")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
	a.device = device
	a.queue = queue
	a.externalDevice = true
	a.adapter = provider.AdapterInfo().Name
	if err := a.createPipeline(); err != nil {
		a.releaseLocked()
		return fmt.Errorf("gpu: create pipeline with shared device: %w", err)
	}
	a.ready = true
	a.logger().Info("gpu: tone-map accelerator switched to shared device", "adapter", a.adapter)
	return nil
}

// Close releases the pipeline and, unless shared, the device.
func (a *ToneMapAccelerator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
	return nil
}

func (a *ToneMapAccelerator) releaseLocked() {
	a.destroyPipeline()
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device, a.queue, a.instance = nil, nil, nil
	a.ready, a.externalDevice = false, false
}

func compileShader(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile tonemap shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

func (a *ToneMapAccelerator) createPipeline() error {
	code, err := compileShader(toneMapShaderSource)
	if err != nil {
		return err
	}
	a.shader, err = a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "tonemap",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	a.bindLayout, err = a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tonemap_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	a.pipeLayout, err = a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "tonemap_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{a.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	a.pipeline, err = a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "tonemap_pipeline", Layout: a.pipeLayout,
		Compute: hal.ComputeState{Module: a.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

func (a *ToneMapAccelerator) destroyPipeline() {
	if a.device == nil {
		return
	}
	if a.pipeline != nil {
		a.device.DestroyComputePipeline(a.pipeline)
	}
	if a.pipeLayout != nil {
		a.device.DestroyPipelineLayout(a.pipeLayout)
	}
	if a.bindLayout != nil {
		a.device.DestroyBindGroupLayout(a.bindLayout)
	}
	if a.shader != nil {
		a.device.DestroyShaderModule(a.shader)
	}
	a.pipeline, a.pipeLayout, a.bindLayout, a.shader = nil, nil, nil, nil
}

// Run implements tonemap.PixelPass.
func (a *ToneMapAccelerator) Run(p *tonemap.Pass) error {
	params, err := packParams(p)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return ErrNotReady
	}
	return a.dispatch(p, params)
}

// gpuBuffers are the per-pass buffers, destroyed together.
type gpuBuffers struct {
	device                     hal.Device
	uniform, src, dst, staging hal.Buffer
	bindGroup                  hal.BindGroup
}

func (b *gpuBuffers) destroy() {
	if b.bindGroup != nil {
		b.device.DestroyBindGroup(b.bindGroup)
	}
	for _, buf := range []hal.Buffer{b.uniform, b.src, b.dst, b.staging} {
		if buf != nil {
			b.device.DestroyBuffer(buf)
		}
	}
}

func (a *ToneMapAccelerator) createBuffers(pixelBytes uint64) (*gpuBuffers, error) {
	b := &gpuBuffers{device: a.device}
	var err error
	create := func(label string, size uint64, usage gputypes.BufferUsage) hal.Buffer {
		if err != nil {
			return nil
		}
		var buf hal.Buffer
		buf, err = a.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			err = fmt.Errorf("create %s buffer: %w", label, err)
		}
		return buf
	}
	b.uniform = create("tonemap_params", paramsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	b.src = create("tonemap_src", pixelBytes, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	b.dst = create("tonemap_dst", pixelBytes, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	b.staging = create("tonemap_staging", pixelBytes, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		b.destroy()
		return nil, err
	}

	b.bindGroup, err = a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "tonemap_bind", Layout: a.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.uniform.NativeHandle(), Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: b.src.NativeHandle(), Size: pixelBytes}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: b.dst.NativeHandle(), Size: pixelBytes}},
		},
	})
	if err != nil {
		b.destroy()
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return b, nil
}

func (a *ToneMapAccelerator) dispatch(p *tonemap.Pass, params []byte) error {
	w, h := uint32(p.Width), uint32(p.Height) //nolint:gosec // bounded by the session's maximum size
	pixelBytes := uint64(w) * uint64(h) * tonemap.BytesPerPixel
	if pixelBytes == 0 {
		return nil
	}

	bufs, err := a.createBuffers(pixelBytes)
	if err != nil {
		return err
	}
	defer bufs.destroy()

	if err := a.queue.WriteBuffer(bufs.uniform, 0, params); err != nil {
		return fmt.Errorf("upload params: %w", err)
	}
	if err := a.queue.WriteBuffer(bufs.src, 0, packRows(p)); err != nil {
		return fmt.Errorf("upload pixels: %w", err)
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "tonemap_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("tonemap"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "tonemap_pass"})
	pass.SetPipeline(a.pipeline)
	pass.SetBindGroup(0, bufs.bindGroup, nil)
	pass.Dispatch((w+7)/8, (h+7)/8, 1)
	pass.End()
	encoder.CopyBufferToBuffer(bufs.dst, bufs.staging, []hal.BufferCopy{{Size: pixelBytes}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := a.waitFor(index); err != nil {
		return err
	}

	mapping, err := a.device.MapBuffer(bufs.staging, 0, pixelBytes)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	unpackRows(p, unsafe.Slice((*byte)(mapping.Ptr), pixelBytes))
	if err := a.device.UnmapBuffer(bufs.staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// waitFor polls the queue until submission index completes.
func (a *ToneMapAccelerator) waitFor(index uint64) error {
	deadline := time.Now().Add(submitTimeout)
	for a.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("gpu: submission %d not complete after %v", index, submitTimeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// SetLogger sets the logger for this accelerator's lifecycle events. The
// tone-map driver forwards its logger here; nil silences it.
func (a *ToneMapAccelerator) SetLogger(l *slog.Logger) {
	if l == nil {
		a.log.Store(nil)
		return
	}
	a.log.Store(l.With("driver", DriverName))
}

// logger returns the accelerator's logger, discarding records until
// SetLogger is called.
func (a *ToneMapAccelerator) logger() *slog.Logger {
	if l := a.log.Load(); l != nil {
		return l
	}
	return discard
}

var discard = slog.New(slog.DiscardHandler)
