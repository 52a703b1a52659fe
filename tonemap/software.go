package tonemap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kovidgoyal/go-parallel"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/internal/color"
)

// SoftwareName is the registry name of the CPU driver.
const SoftwareName = "software"

func init() {
	Register(SoftwareName, func() (Driver, error) {
		return NewSoftwareDriver(SystemMemory{}), nil
	})
}

// ReferenceWhiteNits is the luminance SDR white maps to in an HDR signal.
const ReferenceWhiteNits = 203

// defaultContentPeak is assumed for HDR content that declares no levels.
const defaultContentPeak = 1000

var errNotInitialized = errors.New("tonemap: driver not initialized")

// SoftwareDriver tone maps on the CPU. Surfaces are dma-bufs mapped through
// a Memory; output surfaces are allocated from it. Built with NewPassDriver,
// the pixel work is handed to a PixelPass instead.
type SoftwareDriver struct {
	name string
	mem  Memory
	pass PixelPass

	initialized bool
	device      string
	nextID      uint32

	configs  map[ConfigID]struct{}
	contexts map[ContextID]*swContext
	surfaces map[SurfaceID]*swSurface
	buffers  map[BufferID]any
}

type swSurface struct {
	fd    int
	owned bool
	data  []byte
	// width and height are the allocated extent; content is the part the
	// last picture wrote.
	width, height int
	content       Rect
	pitch, offset int
	format        Format
}

type swContext struct {
	targets []SurfaceID
	target  SurfaceID
	active  bool
	pending []BufferID
}

// NewSoftwareDriver returns a CPU driver using mem for surface memory.
func NewSoftwareDriver(mem Memory) *SoftwareDriver {
	return &SoftwareDriver{name: SoftwareName, mem: mem}
}

// NewPassDriver returns a driver named name that keeps its surfaces in mem
// and runs pixel work through pass. If pass implements io.Closer it is
// closed on Terminate.
func NewPassDriver(name string, mem Memory, pass PixelPass) *SoftwareDriver {
	return &SoftwareDriver{name: name, mem: mem, pass: pass}
}

// Name implements Driver.
func (d *SoftwareDriver) Name() string { return d.name }

// SetLogger forwards l to the pixel pass.
func (d *SoftwareDriver) SetLogger(l *slog.Logger) {
	if ls, ok := d.pass.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func (d *SoftwareDriver) id() uint32 {
	d.nextID++
	return d.nextID
}

// Initialize implements Driver. The software driver needs no device node;
// the path is only recorded.
func (d *SoftwareDriver) Initialize(devicePath string) error {
	if d.initialized {
		return errors.New("tonemap: software driver already initialized")
	}
	d.initialized = true
	d.device = devicePath
	d.configs = make(map[ConfigID]struct{})
	d.contexts = make(map[ContextID]*swContext)
	d.surfaces = make(map[SurfaceID]*swSurface)
	d.buffers = make(map[BufferID]any)
	slogger().Debug("tonemap: software driver initialized", slog.String("device", devicePath))
	return nil
}

// Terminate implements Driver. Surfaces still alive are released.
func (d *SoftwareDriver) Terminate() error {
	if !d.initialized {
		return errNotInitialized
	}
	var errs []error
	for id := range d.surfaces {
		errs = append(errs, d.destroySurface(id))
	}
	if n := len(d.buffers) + len(d.contexts) + len(d.configs); n > 0 {
		slogger().Warn("tonemap: software driver terminated with live objects", "count", n)
	}
	if c, ok := d.pass.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	d.initialized = false
	d.configs, d.contexts, d.surfaces, d.buffers = nil, nil, nil, nil
	return errors.Join(errs...)
}

// Entrypoints implements Driver.
func (d *SoftwareDriver) Entrypoints() ([]Entrypoint, error) {
	if !d.initialized {
		return nil, errNotInitialized
	}
	return []Entrypoint{EntrypointVideoProc}, nil
}

// RTFormats implements Driver.
func (d *SoftwareDriver) RTFormats(e Entrypoint) (RTFormat, error) {
	if !d.initialized {
		return 0, errNotInitialized
	}
	if e != EntrypointVideoProc {
		return 0, nil
	}
	return RTFormatRGB32 | RTFormatRGB32_10, nil
}

// CreateConfig implements Driver.
func (d *SoftwareDriver) CreateConfig(e Entrypoint, rt RTFormat) (ConfigID, error) {
	if !d.initialized {
		return 0, errNotInitialized
	}
	if e != EntrypointVideoProc || rt&RTFormatRGB32_10 == 0 {
		return 0, fmt.Errorf("%w: %v config with formats %#x", ErrCapabilityUnsupported, e, uint32(rt))
	}
	id := ConfigID(d.id())
	d.configs[id] = struct{}{}
	return id, nil
}

// DestroyConfig implements Driver.
func (d *SoftwareDriver) DestroyConfig(id ConfigID) error {
	if _, ok := d.configs[id]; !ok {
		return fmt.Errorf("tonemap: unknown config %d", id)
	}
	delete(d.configs, id)
	return nil
}

// CreateSurfaces implements Driver.
func (d *SoftwareDriver) CreateSurfaces(rt RTFormat, width, height, n int) ([]SurfaceID, error) {
	if !d.initialized {
		return nil, errNotInitialized
	}
	if rt != RTFormatRGB32_10 {
		return nil, fmt.Errorf("%w: render target %#x", ErrCapabilityUnsupported, uint32(rt))
	}
	size := width * height * BytesPerPixel
	ids := make([]SurfaceID, 0, n)
	for range n {
		fd, err := d.mem.Alloc("tonemap-output", size)
		if err != nil {
			return nil, errors.Join(err, d.DestroySurfaces(ids...))
		}
		data, err := d.mem.Map(fd, size)
		if err != nil {
			return nil, errors.Join(err, d.mem.Close(fd), d.DestroySurfaces(ids...))
		}
		id := SurfaceID(d.id())
		d.surfaces[id] = &swSurface{
			fd:     fd,
			owned:  true,
			data:   data,
			width:  width,
			height: height,
			pitch:  width * BytesPerPixel,
			format: FormatXRGB2101010,
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DestroySurfaces implements Driver.
func (d *SoftwareDriver) DestroySurfaces(ids ...SurfaceID) error {
	var errs []error
	for _, id := range ids {
		errs = append(errs, d.destroySurface(id))
	}
	return errors.Join(errs...)
}

func (d *SoftwareDriver) destroySurface(id SurfaceID) error {
	s, ok := d.surfaces[id]
	if !ok {
		return fmt.Errorf("tonemap: unknown surface %d", id)
	}
	delete(d.surfaces, id)
	var errs []error
	if s.data != nil {
		errs = append(errs, d.mem.Unmap(s.data))
	}
	if s.owned {
		errs = append(errs, d.mem.Close(s.fd))
	}
	return errors.Join(errs...)
}

// CreateContext implements Driver.
func (d *SoftwareDriver) CreateContext(cfg ConfigID, width, height int, targets []SurfaceID) (ContextID, error) {
	if !d.initialized {
		return 0, errNotInitialized
	}
	if _, ok := d.configs[cfg]; !ok {
		return 0, fmt.Errorf("tonemap: unknown config %d", cfg)
	}
	for _, t := range targets {
		if _, ok := d.surfaces[t]; !ok {
			return 0, fmt.Errorf("tonemap: unknown target surface %d", t)
		}
	}
	id := ContextID(d.id())
	d.contexts[id] = &swContext{targets: append([]SurfaceID(nil), targets...)}
	return id, nil
}

// DestroyContext implements Driver.
func (d *SoftwareDriver) DestroyContext(id ContextID) error {
	if _, ok := d.contexts[id]; !ok {
		return fmt.Errorf("tonemap: unknown context %d", id)
	}
	delete(d.contexts, id)
	return nil
}

// ImportSurface implements Driver. Only linear 2:10:10:10 buffers can be
// read by the CPU.
func (d *SoftwareDriver) ImportSurface(desc SurfaceDescriptor) (SurfaceID, error) {
	if !d.initialized {
		return 0, errNotInitialized
	}
	if !desc.Format.Is2101010() {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	if desc.Modifier != ModifierLinear {
		return 0, fmt.Errorf("%w: modifier %#x", ErrUnsupportedFormat, desc.Modifier)
	}
	pitch := int(desc.Pitch)
	if pitch == 0 {
		pitch = desc.Width * BytesPerPixel
	}
	if pitch < desc.Width*BytesPerPixel {
		return 0, fmt.Errorf("tonemap: pitch %d too small for width %d", pitch, desc.Width)
	}
	size := int(desc.Offset) + pitch*desc.Height
	data, err := d.mem.Map(desc.Fd, size)
	if err != nil {
		return 0, err
	}
	id := SurfaceID(d.id())
	d.surfaces[id] = &swSurface{
		fd:      desc.Fd,
		data:    data,
		width:   desc.Width,
		height:  desc.Height,
		content: Rect{Width: desc.Width, Height: desc.Height},
		pitch:   pitch,
		offset:  int(desc.Offset),
		format:  desc.Format,
	}
	return id, nil
}

// ExportSurface implements Driver.
func (d *SoftwareDriver) ExportSurface(id SurfaceID) (SurfaceDescriptor, error) {
	s, ok := d.surfaces[id]
	if !ok {
		return SurfaceDescriptor{}, fmt.Errorf("tonemap: unknown surface %d", id)
	}
	fd, err := d.mem.Dup(s.fd)
	if err != nil {
		return SurfaceDescriptor{}, fmt.Errorf("tonemap: dup surface fd: %w", err)
	}
	return SurfaceDescriptor{
		Format:   s.format,
		Width:    s.content.Width,
		Height:   s.content.Height,
		DataSize: s.pitch * s.content.Height,
		Fd:       fd,
		Modifier: ModifierLinear,
		Pitch:    uint32(s.pitch),
		Offset:   uint32(s.offset),
	}, nil
}

// QueryToneMapCaps implements Driver.
func (d *SoftwareDriver) QueryToneMapCaps(id ContextID) ([]ToneMapCap, error) {
	if _, ok := d.contexts[id]; !ok {
		return nil, fmt.Errorf("tonemap: unknown context %d", id)
	}
	return []ToneMapCap{{MetadataType: MetadataHDR10, Flags: ToneMapH2H | ToneMapH2S | ToneMapS2H}}, nil
}

// CreateFilterBuffer implements Driver.
func (d *SoftwareDriver) CreateFilterBuffer(ctx ContextID, p FilterParams) (BufferID, error) {
	if _, ok := d.contexts[ctx]; !ok {
		return 0, fmt.Errorf("tonemap: unknown context %d", ctx)
	}
	id := BufferID(d.id())
	d.buffers[id] = p
	return id, nil
}

// CreatePipelineBuffer implements Driver.
func (d *SoftwareDriver) CreatePipelineBuffer(ctx ContextID, p PipelineParams) (BufferID, error) {
	if _, ok := d.contexts[ctx]; !ok {
		return 0, fmt.Errorf("tonemap: unknown context %d", ctx)
	}
	p.Filters = append([]BufferID(nil), p.Filters...)
	id := BufferID(d.id())
	d.buffers[id] = p
	return id, nil
}

// DestroyBuffer implements Driver.
func (d *SoftwareDriver) DestroyBuffer(id BufferID) error {
	if _, ok := d.buffers[id]; !ok {
		return fmt.Errorf("tonemap: unknown buffer %d", id)
	}
	delete(d.buffers, id)
	return nil
}

// BeginPicture implements Driver.
func (d *SoftwareDriver) BeginPicture(ctx ContextID, target SurfaceID) error {
	c, ok := d.contexts[ctx]
	if !ok {
		return fmt.Errorf("tonemap: unknown context %d", ctx)
	}
	if c.active {
		return errors.New("tonemap: picture already begun")
	}
	if _, ok := d.surfaces[target]; !ok {
		return fmt.Errorf("tonemap: unknown target surface %d", target)
	}
	c.active, c.target, c.pending = true, target, c.pending[:0]
	return nil
}

// RenderPicture implements Driver.
func (d *SoftwareDriver) RenderPicture(ctx ContextID, buffers ...BufferID) error {
	c, ok := d.contexts[ctx]
	if !ok || !c.active {
		return errors.New("tonemap: render outside picture")
	}
	for _, b := range buffers {
		if _, ok := d.buffers[b].(PipelineParams); !ok {
			return fmt.Errorf("tonemap: buffer %d is not a pipeline buffer", b)
		}
	}
	c.pending = append(c.pending, buffers...)
	return nil
}

// EndPicture implements Driver. The software driver does all its work here.
func (d *SoftwareDriver) EndPicture(ctx ContextID) error {
	c, ok := d.contexts[ctx]
	if !ok || !c.active {
		return errors.New("tonemap: end without begin")
	}
	c.active = false
	out := d.surfaces[c.target]
	for _, b := range c.pending {
		if err := d.process(d.buffers[b].(PipelineParams), out); err != nil {
			return err
		}
	}
	c.pending = c.pending[:0]
	return nil
}

// SyncSurface implements Driver. Work finishes in EndPicture.
func (d *SoftwareDriver) SyncSurface(id SurfaceID) error {
	if _, ok := d.surfaces[id]; !ok {
		return fmt.Errorf("tonemap: unknown surface %d", id)
	}
	return nil
}

func (d *SoftwareDriver) process(p PipelineParams, out *swSurface) error {
	in, ok := d.surfaces[p.Surface]
	if !ok {
		return fmt.Errorf("tonemap: unknown input surface %d", p.Surface)
	}
	if len(p.Filters) != 1 {
		return fmt.Errorf("tonemap: want one filter, got %d", len(p.Filters))
	}
	f, ok := d.buffers[p.Filters[0]].(FilterParams)
	if !ok {
		return fmt.Errorf("tonemap: buffer %d is not a filter", p.Filters[0])
	}
	r := p.SurfaceRegion
	if r.X < 0 || r.Y < 0 || r.X+r.Width > in.width || r.Y+r.Height > in.height {
		return fmt.Errorf("tonemap: region %+v outside %dx%d input", r, in.width, in.height)
	}
	if r.Width > out.width || r.Height > out.height {
		return fmt.Errorf("tonemap: %dx%d does not fit %dx%d output", r.Width, r.Height, out.width, out.height)
	}

	op, err := newPixelOp(f, p)
	if err != nil {
		return err
	}
	slogger().Debug("tonemap: pixel pass", "driver", d.name,
		"mode", f.Mode, "size", fmt.Sprintf("%dx%d", r.Width, r.Height),
		"src_peak", op.SrcPeak, "dst_peak", op.DstPeak)

	format := in.format
	out.format = format
	out.content = Rect{Width: r.Width, Height: r.Height}
	if d.pass != nil {
		err := d.pass.Run(&Pass{
			Format:   format,
			Width:    r.Width,
			Height:   r.Height,
			Src:      in.data[in.offset+r.Y*in.pitch+r.X*BytesPerPixel:],
			SrcPitch: in.pitch,
			Dst:      out.data,
			DstPitch: out.pitch,
			Curve:    op.Curve,
		})
		if err == nil {
			return nil
		}
		slogger().Warn("tonemap: pixel pass failed, using CPU", "driver", d.name, "err", err)
	}

	ne := binary.LittleEndian
	rows := func(start, limit int) {
		for y := start; y < limit; y++ {
			src := in.data[in.offset+(r.Y+y)*in.pitch+r.X*BytesPerPixel:]
			dst := out.data[y*out.pitch:]
			for x := range r.Width {
				px := ne.Uint32(src[x*BytesPerPixel:])
				ne.PutUint32(dst[x*BytesPerPixel:], op.apply(format, px))
			}
		}
	}
	if err := parallel.Run_in_parallel_over_range(0, rows, 0, r.Height); err != nil {
		return fmt.Errorf("tonemap: software pass: %w", err)
	}
	return nil
}

// pixelOp converts one 2:10:10:10 pixel between signals: decode to light,
// convert gamut, compress the luminance range, re-encode.
type pixelOp struct {
	Curve
	decode *color.Decode10
	encode func(float64) float64
}

func newPixelOp(f FilterParams, p PipelineParams) (*pixelOp, error) {
	op := &pixelOp{Curve: Curve{Input: p.InputColor.Transfer, Output: p.OutputColor.Transfer}}
	switch p.InputColor.Transfer {
	case gamut.TransferSMPTE2084:
		op.decode, op.InputScale = color.PQDecode10(), color.PQMaxNits
		op.SrcPeak = f.Input.PeakNits(defaultContentPeak)
	case gamut.TransferSRGB:
		op.decode, op.InputScale = color.SRGBDecode10(), ReferenceWhiteNits
		op.SrcPeak = ReferenceWhiteNits
	default:
		return nil, fmt.Errorf("%w: input transfer %d", ErrCapabilityUnsupported, p.InputColor.Transfer)
	}
	switch p.OutputColor.Transfer {
	case gamut.TransferSMPTE2084:
		op.encode, op.OutputScale = color.PQInverseEOTF, color.PQMaxNits
		op.DstPeak = p.Output.PeakNits(color.PQMaxNits)
	case gamut.TransferSRGB:
		op.encode, op.OutputScale = color.SRGBEncode, ReferenceWhiteNits
		op.DstPeak = ReferenceWhiteNits
	default:
		return nil, fmt.Errorf("%w: output transfer %d", ErrCapabilityUnsupported, p.OutputColor.Transfer)
	}

	src, dst := p.InputColor.Primaries.Gamut(), p.OutputColor.Primaries.Gamut()
	if src != dst {
		m, err := color.GamutMatrix(src, dst)
		if err != nil {
			return nil, fmt.Errorf("tonemap: %v to %v: %w", src, dst, err)
		}
		op.Matrix, op.Convert = m, true
	}
	return op, nil
}

func (op *pixelOp) apply(f Format, px uint32) uint32 {
	r, g, b, a := f.Unpack(px)
	c := color.Vec3{
		float64(op.decode[r]) * op.InputScale,
		float64(op.decode[g]) * op.InputScale,
		float64(op.decode[b]) * op.InputScale,
	}
	if op.Convert {
		c = op.Matrix.MulVec(c)
	}
	peak := max(c[0], c[1], c[2])
	if peak > 0 {
		scale := op.Compress(peak) / peak
		c[0], c[1], c[2] = c[0]*scale, c[1]*scale, c[2]*scale
	}
	return f.Pack(
		color.Encode10(op.encode, c[0]/op.OutputScale),
		color.Encode10(op.encode, c[1]/op.OutputScale),
		color.Encode10(op.encode, c[2]/op.OutputScale),
		a,
	)
}
