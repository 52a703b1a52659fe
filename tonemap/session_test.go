package tonemap

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
)

func testConfig(mem *fakeMemory) Config {
	return Config{MaxWidth: 64, MaxHeight: 64, Memory: mem}
}

func hdrContent() *hdr.StaticMetadata {
	return &hdr.StaticMetadata{
		EOTF:                  hdr.EOTFSMPTEST2084,
		Primaries:             hdr.PrimariesOf(gamut.Rec2020),
		MaxMasteringLuminance: 1000,
		MinMasteringLuminance: 50,
		MaxCLL:                1000,
		MaxFALL:               400,
	}
}

// inputBuffer allocates a w×h XRGB2101010 buffer in mem.
func inputBuffer(t *testing.T, mem *fakeMemory, w, h int) *Buffer {
	t.Helper()
	fd, err := mem.Alloc("input", w*h*BytesPerPixel)
	if err != nil {
		t.Fatal(err)
	}
	b := &Buffer{Width: w, Height: h, Format: FormatXRGB2101010, NumPlanes: 1, mem: mem}
	b.Planes[0] = Plane{Fd: fd, Stride: uint32(w * BytesPerPixel)}
	return b
}

func TestNewSessionDefaults(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	s, err := NewSession(drv, Config{Memory: mem})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.State() != StateReady {
		t.Errorf("State() = %v, want %v", s.State(), StateReady)
	}
	if got := drv.live("surface"); got != DefaultOutputSurfaces {
		t.Errorf("output surfaces = %d, want %d", got, DefaultOutputSurfaces)
	}
	if s.cfg.DevicePath != DefaultDevicePath || s.cfg.MaxWidth != 3840 || s.cfg.MaxHeight != 2160 {
		t.Errorf("config defaults not applied: %+v", s.cfg)
	}
	for _, m := range []Mode{ModeH2H, ModeH2S, ModeS2H} {
		if !s.Supports(m) {
			t.Errorf("Supports(%v) = false", m)
		}
	}
}

func TestNewSessionUnwind(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeDriver)
		wantErr error
	}{
		{"initialize", func(d *fakeDriver) { d.failAt = "Initialize" }, nil},
		{"entrypoints", func(d *fakeDriver) { d.failAt = "Entrypoints" }, nil},
		{"no videoproc", func(d *fakeDriver) { d.noVideoProc = true }, ErrCapabilityUnsupported},
		{"rt formats", func(d *fakeDriver) { d.failAt = "RTFormats" }, nil},
		{"no rgb10", func(d *fakeDriver) { d.noRGB10 = true }, ErrCapabilityUnsupported},
		{"config", func(d *fakeDriver) { d.failAt = "CreateConfig" }, nil},
		{"surfaces", func(d *fakeDriver) { d.failAt = "CreateSurfaces" }, nil},
		{"context", func(d *fakeDriver) { d.failAt = "CreateContext" }, nil},
		{"caps query", func(d *fakeDriver) { d.failAt = "QueryToneMapCaps" }, nil},
		{"no caps", func(d *fakeDriver) { d.noCaps = true }, ErrCapabilityUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newFakeMemory()
			drv := newFakeDriver(mem)
			tt.setup(drv)

			s, err := NewSession(drv, testConfig(mem))
			if err == nil {
				s.Close()
				t.Fatal("NewSession succeeded")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			for _, kind := range []string{"config", "context", "surface", "buffer"} {
				if n := drv.live(kind); n != 0 {
					t.Errorf("%d %s objects leaked", n, kind)
				}
			}
			if drv.initialized {
				t.Error("driver left initialized")
			}
		})
	}
}

func TestToneMapUnwind(t *testing.T) {
	stages := []string{
		"ImportSurface",
		"CreateFilterBuffer",
		"CreatePipelineBuffer",
		"BeginPicture",
		"RenderPicture",
		"EndPicture",
		"SyncSurface",
		"ExportSurface",
	}
	for _, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			mem := newFakeMemory()
			drv := newFakeDriver(mem)
			exp := &fakeExporter{mem: mem}
			cfg := testConfig(mem)
			cfg.Exporter = exp
			s, err := NewSession(drv, cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()

			// Handle-only buffer, so the PRIME fd is part of the unwind too.
			buf := &Buffer{Width: 32, Height: 16, Format: FormatXRGB2101010, NumPlanes: 1}
			buf.Planes[0] = Plane{Fd: NoFd, Handle: 7, Stride: 128}
			openBefore := mem.open()

			drv.failAt = stage
			out, err := s.ToneMap(context.Background(), buf, Request{Mode: ModeH2S, Content: hdrContent()})
			if err == nil {
				out.Close()
				t.Fatal("ToneMap succeeded")
			}
			if !errors.Is(err, ErrToneMapFailed) {
				t.Errorf("err = %v, want ErrToneMapFailed", err)
			}
			if n := drv.live("buffer"); n != 0 {
				t.Errorf("%d buffers leaked", n)
			}
			if n := drv.live("surface"); n != DefaultOutputSurfaces {
				t.Errorf("surfaces = %d, want only the %d output surfaces", n, DefaultOutputSurfaces)
			}
			if n := mem.open(); n != openBefore {
				t.Errorf("open fds = %d, want %d", n, openBefore)
			}
			if s.State() != StateReady || s.LastPhase() != PhaseFailed {
				t.Errorf("state %v phase %v after failure", s.State(), s.LastPhase())
			}

			// The session survives.
			drv.failAt = ""
			out, err = s.ToneMap(context.Background(), buf, Request{Mode: ModeH2S, Content: hdrContent()})
			if err != nil {
				t.Fatalf("ToneMap after failure: %v", err)
			}
			if err := out.Close(); err != nil {
				t.Error(err)
			}
			if n := mem.open(); n != openBefore {
				t.Errorf("open fds after success = %d, want %d", n, openBefore)
			}
		})
	}
}

func TestToneMapRejects(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	s, err := NewSession(drv, testConfig(mem))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	good := inputBuffer(t, mem, 8, 8)
	tests := []struct {
		name    string
		buf     *Buffer
		req     Request
		wantErr error
	}{
		{"8-bit", &Buffer{Width: 8, Height: 8, Format: FormatXRGB8888, NumPlanes: 1}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrUnsupportedFormat},
		{"nv12", &Buffer{Width: 8, Height: 8, Format: FormatNV12, NumPlanes: 2}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrUnsupportedFormat},
		{"too wide", &Buffer{Width: 65, Height: 8, Format: FormatARGB2101010, NumPlanes: 1}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrUnsupportedFormat},
		{"no planes", &Buffer{Width: 8, Height: 8, Format: FormatARGB2101010}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrUnsupportedFormat},
		{"mode none", good, Request{}, ErrUnsupportedFormat},
		{"no content", good, Request{Mode: ModeH2S}, ErrToneMapFailed},
		{"no target", good, Request{Mode: ModeS2H}, ErrToneMapFailed},
		{"no fd no handle", &Buffer{Width: 8, Height: 8, Format: FormatABGR2101010, NumPlanes: 1, Planes: [4]Plane{{Fd: NoFd}}}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrToneMapFailed},
		{"handle without exporter", &Buffer{Width: 8, Height: 8, Format: FormatABGR2101010, NumPlanes: 1, Planes: [4]Plane{{Fd: NoFd, Handle: 3}}}, Request{Mode: ModeS2H, Target: hdrContent()}, ErrToneMapFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ToneMap(context.Background(), tt.buf, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if slices.Contains(drv.calls, "ImportSurface") {
		t.Error("rejected requests reached the driver")
	}
}

func TestToneMapPipeline(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	s, err := NewSession(drv, testConfig(mem))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	buf := inputBuffer(t, mem, 16, 8)
	content := hdrContent()
	target := hdrContent()
	target.MaxCLL = 600

	var outs []*Buffer
	for _, req := range []Request{
		{Mode: ModeH2H, Content: content, Target: target},
		{Mode: ModeH2S, Content: content},
		{Mode: ModeS2H, Target: target},
	} {
		out, err := s.ToneMap(context.Background(), buf, req)
		if err != nil {
			t.Fatalf("%v: %v", req.Mode, err)
		}
		if out.Width != 16 || out.Height != 8 || out.Format != FormatXRGB2101010 || out.NumPlanes != 1 {
			t.Errorf("%v: result %+v", req.Mode, out)
		}
		if out.Planes[0].Fd == buf.Planes[0].Fd || out.Planes[1].Fd != NoFd {
			t.Errorf("%v: result planes %+v", req.Mode, out.Planes)
		}
		outs = append(outs, out)
	}
	for _, o := range outs {
		o.Close()
	}

	// Output surfaces rotate.
	if len(drv.targets) != 3 || drv.targets[0] == drv.targets[1] || drv.targets[0] != drv.targets[2] {
		t.Errorf("targets = %v, want round-robin over 2", drv.targets)
	}

	if got := drv.imported[0]; got.DataSize != 16*8*4 || got.Fd != buf.Planes[0].Fd || got.Pitch != 64 {
		t.Errorf("import descriptor = %+v", got)
	}

	h2h, h2s, s2h := drv.pipelines[0], drv.pipelines[1], drv.pipelines[2]
	if h2h.InputColor != hdrColor || h2h.OutputColor != hdrColor {
		t.Errorf("H2H colours %+v → %+v", h2h.InputColor, h2h.OutputColor)
	}
	if h2s.InputColor != hdrColor || h2s.OutputColor != sdrColor || h2s.Output != SDRReference {
		t.Errorf("H2S colours %+v → %+v, output %+v", h2s.InputColor, h2s.OutputColor, h2s.Output)
	}
	if s2h.InputColor != sdrColor || s2h.OutputColor != hdrColor || s2h.Output.MaxContentLightLevel != 600 {
		t.Errorf("S2H colours %+v → %+v, output %+v", s2h.InputColor, s2h.OutputColor, s2h.Output)
	}
	if drv.filters[2].Input != SDRReference || drv.filters[0].Input.MaxContentLightLevel != 1000 {
		t.Errorf("filter inputs %+v", drv.filters)
	}
	if r := h2h.SurfaceRegion; r != (Rect{Width: 16, Height: 8}) || h2h.OutputRegion != r {
		t.Errorf("regions %+v %+v", h2h.SurfaceRegion, h2h.OutputRegion)
	}
	if s.LastPhase() != PhaseSurfaceExported {
		t.Errorf("LastPhase() = %v", s.LastPhase())
	}
}

func TestToneMapPrimeExport(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	exp := &fakeExporter{mem: mem}
	cfg := testConfig(mem)
	cfg.Exporter = exp
	s, err := NewSession(drv, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	buf := &Buffer{Width: 8, Height: 8, Format: FormatXBGR2101010, NumPlanes: 1}
	buf.Planes[0] = Plane{Fd: NoFd, Handle: 42, Stride: 32}
	before := mem.open()
	out, err := s.ToneMap(context.Background(), buf, Request{Mode: ModeS2H, Target: hdrContent()})
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	if !slices.Equal(exp.handles, []uint32{42}) {
		t.Errorf("exported handles = %v", exp.handles)
	}
	if drv.imported[0].Fd == NoFd {
		t.Error("imported without the PRIME fd")
	}
	// Only the result's fd is new; the PRIME fd was closed.
	if n := mem.open(); n != before+1 {
		t.Errorf("open fds = %d, want %d", n, before+1)
	}
	if buf.Planes[0].Fd != NoFd {
		t.Error("input buffer was modified")
	}

	exp.fail = true
	if _, err := s.ToneMap(context.Background(), buf, Request{Mode: ModeS2H, Target: hdrContent()}); !errors.Is(err, ErrToneMapFailed) {
		t.Errorf("failed export: err = %v", err)
	}
}

func TestSessionClose(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	s, err := NewSession(drv, testConfig(mem))
	if err != nil {
		t.Fatal(err)
	}
	drv.calls = nil

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	want := []string{"DestroySurfaces", "DestroyContext", "DestroyConfig", "Terminate"}
	if !slices.Equal(drv.calls, want) {
		t.Errorf("teardown = %v, want %v", drv.calls, want)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if len(drv.calls) != len(want) {
		t.Error("second Close reached the driver")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v", s.State())
	}
	_, err = s.ToneMap(context.Background(), inputBuffer(t, mem, 4, 4), Request{Mode: ModeS2H, Target: hdrContent()})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("ToneMap after Close: %v", err)
	}
}

func TestToneMapCanceledContext(t *testing.T) {
	mem := newFakeMemory()
	drv := newFakeDriver(mem)
	s, err := NewSession(drv, testConfig(mem))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ToneMap(ctx, inputBuffer(t, mem, 4, 4), Request{Mode: ModeS2H, Target: hdrContent()}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestBufferClose(t *testing.T) {
	mem := newFakeMemory()
	fd, _ := mem.Alloc("nv12", 64)
	b := &Buffer{NumPlanes: 2, mem: mem}
	b.Planes[0] = Plane{Fd: fd}
	b.Planes[1] = Plane{Fd: fd, Offset: 32}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mem.open() != 0 {
		t.Error("fd not closed")
	}
	if b.Planes[0].Fd != NoFd || b.Planes[1].Fd != NoFd {
		t.Error("planes not reset")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	var nilBuf *Buffer
	if err := nilBuf.Close(); err != nil {
		t.Error(err)
	}
}

func TestUnwindStack(t *testing.T) {
	var order []string
	var u unwindStack
	u.push("a", func() error { order = append(order, "a"); return nil })
	u.push("b", func() error { order = append(order, "b"); return errors.New("boom") })
	u.push("c", func() error { order = append(order, "c"); return nil })

	err := u.unwind()
	if err == nil {
		t.Error("unwind lost the release error")
	}
	if !slices.Equal(order, []string{"c", "b", "a"}) {
		t.Errorf("order = %v", order)
	}
	if u.len() != 0 {
		t.Error("stack not emptied")
	}

	u.push("d", func() error { t.Error("kept resource released"); return nil })
	u.keep()
	if err := u.unwind(); err != nil {
		t.Error(err)
	}
}
