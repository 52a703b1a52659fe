package tonemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// State is the persistent state of a Session.
type State uint8

const (
	StateUninitialized State = iota
	StateDisplayOpen
	StateConfigReady
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisplayOpen:
		return "display-open"
	case StateConfigReady:
		return "config-ready"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Phase is how far a single ToneMap invocation got.
type Phase uint8

const (
	PhaseReady Phase = iota
	PhaseSurfaceImported
	PhaseFilterBuilt
	PhasePipelineBuilt
	PhaseExecuted
	PhaseSurfaceExported
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseSurfaceImported:
		return "surface-imported"
	case PhaseFilterBuilt:
		return "filter-built"
	case PhasePipelineBuilt:
		return "pipeline-built"
	case PhaseExecuted:
		return "executed"
	case PhaseSurfaceExported:
		return "surface-exported"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Session is a tone-mapping context on one render device. It owns a driver
// config, a processing context and a ring of output surfaces. A Session is
// safe for concurrent use; invocations are serialized.
type Session struct {
	mu  sync.Mutex
	drv Driver
	cfg Config

	state    State
	config   ConfigID
	context  ContextID
	surfaces []SurfaceID
	next     int
	caps     ToneMapFlags

	lastPhase Phase
}

// NewSession opens drv on cfg.DevicePath and prepares it for tone mapping.
// On failure everything created so far is released.
func NewSession(drv Driver, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Session{drv: drv, cfg: cfg}

	var stack unwindStack
	if err := s.setup(&stack); err != nil {
		if uerr := stack.unwind(); uerr != nil {
			slogger().Warn("tonemap: session setup unwind", "driver", drv.Name(), "err", uerr)
			err = errors.Join(err, uerr)
		}
		forget(drv)
		return nil, err
	}
	stack.keep()

	slogger().Info("tonemap: session ready",
		slog.String("driver", drv.Name()),
		slog.String("device", cfg.DevicePath),
		slog.Int("surfaces", len(s.surfaces)),
		slog.Int("max_width", cfg.MaxWidth),
		slog.Int("max_height", cfg.MaxHeight))
	return s, nil
}

func (s *Session) setup(stack *unwindStack) error {
	drv := s.drv
	if err := drv.Initialize(s.cfg.DevicePath); err != nil {
		return fmt.Errorf("tonemap: initialize %s: %w", s.cfg.DevicePath, err)
	}
	stack.push("display", drv.Terminate)
	s.state = StateDisplayOpen

	eps, err := drv.Entrypoints()
	if err != nil {
		return fmt.Errorf("tonemap: query entrypoints: %w", err)
	}
	if !slices.Contains(eps, EntrypointVideoProc) {
		return fmt.Errorf("%w: no %v entrypoint", ErrCapabilityUnsupported, EntrypointVideoProc)
	}

	rt, err := drv.RTFormats(EntrypointVideoProc)
	if err != nil {
		return fmt.Errorf("tonemap: query render target formats: %w", err)
	}
	if rt&RTFormatRGB32_10 == 0 {
		return fmt.Errorf("%w: no 10-bit RGB render target", ErrCapabilityUnsupported)
	}

	s.config, err = drv.CreateConfig(EntrypointVideoProc, RTFormatRGB32_10)
	if err != nil {
		return fmt.Errorf("tonemap: create config: %w", err)
	}
	cfgID := s.config
	stack.push("config", func() error { return drv.DestroyConfig(cfgID) })
	s.state = StateConfigReady

	if s.cfg.OutputSurfaces > 0 {
		s.surfaces, err = drv.CreateSurfaces(RTFormatRGB32_10, s.cfg.MaxWidth, s.cfg.MaxHeight, s.cfg.OutputSurfaces)
		if err != nil {
			return fmt.Errorf("tonemap: create %d output surfaces: %w", s.cfg.OutputSurfaces, err)
		}
		surfaces := s.surfaces
		stack.push("output surfaces", func() error { return drv.DestroySurfaces(surfaces...) })
	}

	s.context, err = drv.CreateContext(s.config, s.cfg.MaxWidth, s.cfg.MaxHeight, s.surfaces)
	if err != nil {
		return fmt.Errorf("tonemap: create context: %w", err)
	}
	ctxID := s.context
	stack.push("context", func() error { return drv.DestroyContext(ctxID) })

	caps, err := drv.QueryToneMapCaps(s.context)
	if err != nil {
		return fmt.Errorf("tonemap: query tone-map caps: %w", err)
	}
	for _, c := range caps {
		if c.MetadataType == MetadataHDR10 {
			s.caps |= c.Flags
		}
	}
	if s.caps == 0 {
		return fmt.Errorf("%w: no HDR10 tone mapping", ErrCapabilityUnsupported)
	}
	for _, c := range caps {
		slogger().Debug("tonemap: caps", "metadata_type", c.MetadataType, "flags", c.Flags)
	}

	s.state = StateReady
	return nil
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastPhase returns the phase the most recent invocation ended in.
func (s *Session) LastPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPhase
}

// Supports reports whether the driver can tone map in mode m.
func (s *Session) Supports(m Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps&m.flag() != 0
}

// ToneMap runs one tone-map pass over buf and returns a new buffer holding
// the result, with buf's size and format. The caller owns the result and
// must Close it. buf itself is not modified. The call blocks until the
// hardware finishes; ctx is only checked before work starts.
func (s *Session) ToneMap(ctx context.Context, buf *Buffer, req Request) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(buf, req); err != nil {
		return nil, err
	}

	var stack unwindStack
	phase := PhaseReady
	out, err := s.run(&stack, &phase, buf, req)
	if uerr := stack.unwind(); uerr != nil {
		slogger().Warn("tonemap: release invocation resources", "err", uerr)
		if err != nil {
			err = errors.Join(err, uerr)
		}
	}
	if err != nil {
		slogger().Debug("tonemap: invocation failed", "mode", req.Mode, "phase", phase, "err", err)
		s.lastPhase = PhaseFailed
		return nil, err
	}
	s.lastPhase = phase
	return out, nil
}

func (s *Session) check(buf *Buffer, req Request) error {
	if buf == nil || buf.NumPlanes < 1 {
		return fmt.Errorf("%w: no planes", ErrUnsupportedFormat)
	}
	if !buf.Format.Is2101010() {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, buf.Format)
	}
	if buf.Width <= 0 || buf.Height <= 0 || buf.Width > s.cfg.MaxWidth || buf.Height > s.cfg.MaxHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrUnsupportedFormat,
			buf.Width, buf.Height, s.cfg.MaxWidth, s.cfg.MaxHeight)
	}
	if len(s.surfaces) == 0 {
		return fmt.Errorf("%w: no output surfaces", ErrCapabilityUnsupported)
	}
	if err := req.validate(); err != nil {
		return err
	}
	if s.caps&req.Mode.flag() == 0 {
		return fmt.Errorf("tonemap: %v: %w: %w", req.Mode, ErrToneMapFailed, ErrCapabilityUnsupported)
	}
	return nil
}

func (s *Session) run(stack *unwindStack, phase *Phase, buf *Buffer, req Request) (*Buffer, error) {
	drv := s.drv
	mem := s.cfg.Memory

	// Primary plane import.
	p := buf.Planes[0]
	fd := p.Fd
	if fd < 0 {
		if p.Handle == 0 {
			return nil, stepError("import surface", errors.New("plane has neither fd nor handle"))
		}
		if s.cfg.Exporter == nil {
			return nil, stepError("import surface", errors.New("handle-only buffer and no PRIME exporter"))
		}
		var err error
		fd, err = s.cfg.Exporter.PrimeHandleToFD(p.Handle)
		if err != nil {
			return nil, stepError("export GEM handle", err)
		}
		primeFd := fd
		stack.push("prime fd", func() error { return mem.Close(primeFd) })
	}
	in, err := drv.ImportSurface(SurfaceDescriptor{
		Format:   buf.Format,
		Width:    buf.Width,
		Height:   buf.Height,
		DataSize: buf.Size(),
		Fd:       fd,
		Modifier: buf.Modifier,
		Pitch:    p.Stride,
		Offset:   p.Offset,
	})
	if err != nil {
		return nil, stepError("import surface", err)
	}
	stack.push("input surface", func() error { return drv.DestroySurfaces(in) })
	*phase = PhaseSurfaceImported

	filter, err := drv.CreateFilterBuffer(s.context, FilterParams{
		Mode:  req.Mode,
		Input: req.inputMetadata(),
	})
	if err != nil {
		return nil, stepError("create filter", err)
	}
	stack.push("filter buffer", func() error { return drv.DestroyBuffer(filter) })
	*phase = PhaseFilterBuilt

	full := Rect{Width: buf.Width, Height: buf.Height}
	pipeline, err := drv.CreatePipelineBuffer(s.context, PipelineParams{
		Surface:       in,
		SurfaceRegion: full,
		OutputRegion:  full,
		Filters:       []BufferID{filter},
		InputColor:    colorFor(req.Mode.InputHDR()),
		OutputColor:   colorFor(req.Mode.OutputHDR()),
		Output:        req.outputMetadata(),
	})
	if err != nil {
		return nil, stepError("create pipeline", err)
	}
	stack.push("pipeline buffer", func() error { return drv.DestroyBuffer(pipeline) })
	*phase = PhasePipelineBuilt

	target := s.surfaces[s.next]
	s.next = (s.next + 1) % len(s.surfaces)

	if err := drv.BeginPicture(s.context, target); err != nil {
		return nil, stepError("begin picture", err)
	}
	if err := drv.RenderPicture(s.context, pipeline); err != nil {
		// The picture must still be ended so the context is reusable.
		return nil, stepError("render picture", errors.Join(err, drv.EndPicture(s.context)))
	}
	if err := drv.EndPicture(s.context); err != nil {
		return nil, stepError("end picture", err)
	}
	if err := drv.SyncSurface(target); err != nil {
		return nil, stepError("sync surface", err)
	}
	*phase = PhaseExecuted

	desc, err := drv.ExportSurface(target)
	if err != nil {
		return nil, stepError("export surface", err)
	}
	*phase = PhaseSurfaceExported

	out := &Buffer{
		Width:     buf.Width,
		Height:    buf.Height,
		Format:    buf.Format,
		Modifier:  desc.Modifier,
		NumPlanes: 1,
		mem:       mem,
	}
	out.Planes[0] = Plane{Fd: desc.Fd, Stride: desc.Pitch, Offset: desc.Offset}
	for i := 1; i < len(out.Planes); i++ {
		out.Planes[i].Fd = NoFd
	}
	return out, nil
}

// Close releases the output surfaces, the context and the config, then
// terminates the driver. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	drv := s.drv
	var errs []error
	if len(s.surfaces) > 0 {
		if err := drv.DestroySurfaces(s.surfaces...); err != nil {
			errs = append(errs, fmt.Errorf("tonemap: destroy output surfaces: %w", err))
		}
	}
	if err := drv.DestroyContext(s.context); err != nil {
		errs = append(errs, fmt.Errorf("tonemap: destroy context: %w", err))
	}
	if err := drv.DestroyConfig(s.config); err != nil {
		errs = append(errs, fmt.Errorf("tonemap: destroy config: %w", err))
	}
	if err := drv.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("tonemap: terminate: %w", err))
	}
	s.surfaces = nil
	s.state = StateClosed
	forget(drv)

	err := errors.Join(errs...)
	if err != nil {
		slogger().Warn("tonemap: session close", "driver", drv.Name(), "err", err)
	} else {
		slogger().Info("tonemap: session closed", "driver", drv.Name())
	}
	return err
}
