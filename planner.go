package drmcolor

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/drmcolor/edid"
	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
	"github.com/gogpu/drmcolor/internal/color"
	"github.com/gogpu/drmcolor/tonemap"
)

// sharedTables caches generated LUTs for every planner in the process.
var sharedTables = color.NewTables(color.DefaultTableLimit)

// Planner computes per-frame colour state for outputs. A Planner may serve
// several outputs, but each output must be planned by one goroutine at a
// time.
type Planner struct {
	installer   BlobInstaller
	toneMapper  ToneMapper
	degammaSize int
	gammaSize   int
	tables      *color.Tables
}

// NewPlanner returns a planner that installs blobs through installer.
func NewPlanner(installer BlobInstaller, opts ...Option) *Planner {
	p := &Planner{
		installer:   installer,
		degammaSize: DefaultDegammaSize,
		gammaSize:   DefaultGammaSize,
		tables:      sharedTables,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// displayInfo is the display side of a plan.
type displayInfo struct {
	target gamut.Gamut
	hdr    *hdr.DisplayMetadata
}

func displayOf(profile *edid.Profile) displayInfo {
	if profile == nil {
		return displayInfo{target: gamut.Rec709}
	}
	return displayInfo{target: profile.Gamut.Resolve(), hdr: profile.HDR}
}

// Plan computes the colour state of out for one frame and installs the
// blobs it needs. Per-plane failures are reported on the plane states; a
// blob that cannot be installed fails the whole output with an error
// wrapping ErrBlobInstallFailure.
func (p *Planner) Plan(ctx context.Context, out *Output, profile *edid.Profile) (*OutputColorState, error) {
	out.ensureSlots()
	disp := displayOf(profile)
	state := &OutputColorState{
		Target: disp.target,
		Planes: make([]PlaneColorState, 0, len(out.Planes)),
	}

	var content *hdr.StaticMetadata
	for _, pl := range out.Planes {
		if pl == nil || pl.Type == PlaneTypeCursor || pl.View == nil {
			continue
		}
		ps, err := p.planPlane(ctx, pl, disp)
		state.Planes = append(state.Planes, ps)
		if err != nil {
			_ = state.CloseBuffers()
			return nil, err
		}
		if ps.Mode.OutputHDR() {
			state.HDR = true
			if s, ok := pl.View.Content.Static(); ok && content == nil {
				content = s
			}
		}
	}

	if err := p.planOutput(out, disp, content, state); err != nil {
		_ = state.CloseBuffers()
		return nil, err
	}
	Logger().Debug("drmcolor: output planned",
		"crtc", out.CRTC,
		"target", disp.target.String(),
		"hdr", state.HDR,
		"planes", len(state.Planes))
	return state, nil
}

func (p *Planner) planPlane(ctx context.Context, pl *Plane, disp displayInfo) (PlaneColorState, error) {
	view := pl.View
	ps := PlaneColorState{
		Plane:   pl.ID,
		Content: view.Content.Gamut(),
		Target:  disp.target,
		Buffer:  view.Buffer,
	}

	if err := p.planGamut(pl, &ps); err != nil {
		return ps, err
	}
	// After a skipped setup the slots still hold the previous frame's
	// blobs, and those stay programmed.
	ps.DegammaBlob = pl.degamma.id
	ps.CTMBlob = pl.ctm.id

	static, contentHDR := view.Content.Static()
	ps.Mode = tonemap.SelectMode(contentHDR, disp.hdr != nil)
	if ps.Mode == tonemap.ModeNone {
		return ps, nil
	}
	if p.toneMapper == nil || view.Buffer == nil {
		Logger().Debug("drmcolor: tone mapping unavailable", "plane", pl.ID, "mode", ps.Mode.String())
		return ps, nil
	}

	req := tonemap.Request{Mode: ps.Mode, Content: static}
	if disp.hdr != nil {
		req.Target = disp.hdr.Static()
	}
	buf, err := p.toneMapper.ToneMap(ctx, view.Buffer, req)
	if err != nil {
		if !errors.Is(err, ErrToneMapFailed) {
			err = fmt.Errorf("%w: %w", ErrToneMapFailed, err)
		}
		ps.Err = errors.Join(ps.Err, fmt.Errorf("drmcolor: plane %d: %w", pl.ID, err))
		Logger().Warn("drmcolor: tone mapping failed, keeping original buffer", "plane", pl.ID, "err", err)
		return ps, nil
	}
	ps.Buffer = buf
	ps.ToneMapped = true
	Logger().Debug("drmcolor: plane tone mapped", "plane", pl.ID, "mode", ps.Mode.String())
	return ps, nil
}

// planGamut programs degamma and CTM for a plane whose content gamut
// differs from the target, and clears them otherwise. Only blob failures
// are returned.
func (p *Planner) planGamut(pl *Plane, ps *PlaneColorState) error {
	if ps.Content == ps.Target {
		return p.clearGamut(pl)
	}
	m, err := color.GamutMatrix(ps.Content, ps.Target)
	if err != nil {
		Logger().Warn("drmcolor: no gamut conversion, showing content unconverted",
			"plane", pl.ID, "content", ps.Content.String(), "target", ps.Target.String(), "err", err)
		return p.clearGamut(pl)
	}

	curve := color.CurveSRGBDegamma
	if pl.View.Content.IsHDR() {
		curve = color.CurvePQEOTF
	}
	size := pl.DegammaSize
	if size == 0 {
		size = p.degammaSize
	}
	lut, err := p.tables.Get(color.TableKey{Curve: curve, Size: size, Max: lutMax})
	if err != nil {
		ps.Err = fmt.Errorf("drmcolor: plane %d degamma: %w", pl.ID, err)
		Logger().Warn("drmcolor: skipping plane colour setup", "plane", pl.ID, "err", err)
		return nil
	}

	if err := pl.degamma.set(p.installer, color.EncodeLUT(lut)); err != nil {
		return err
	}
	return pl.ctm.set(p.installer, color.EncodeCTM(m))
}

func (p *Planner) clearGamut(pl *Plane) error {
	return errors.Join(pl.degamma.clear(p.installer), pl.ctm.clear(p.installer))
}

// planOutput programs the connector metadata and CRTC gamma.
func (p *Planner) planOutput(out *Output, disp displayInfo, content *hdr.StaticMetadata, state *OutputColorState) error {
	state.Color = tonemap.ColorProperties{Primaries: gamut.ColorPrimariesBT709, Transfer: gamut.TransferSRGB}
	curve := color.CurveSRGBGamma

	if state.HDR {
		state.Color = tonemap.ColorProperties{Primaries: gamut.ColorPrimariesBT2020, Transfer: gamut.TransferSMPTE2084}
		curve = color.CurvePQOETF
		md := hdr.Negotiate(content, disp.hdr)
		b, err := md.MarshalBinary()
		if err != nil {
			return fmt.Errorf("drmcolor: encode HDR output metadata: %w", err)
		}
		if err := out.metadata.set(p.installer, b); err != nil {
			return err
		}
	} else if err := out.metadata.clear(p.installer); err != nil {
		return err
	}
	state.MetadataBlob = out.metadata.id

	size := out.GammaSize
	if size == 0 {
		size = p.gammaSize
	}
	lut, err := p.tables.Get(color.TableKey{Curve: curve, Size: size, Max: lutMax})
	if err != nil {
		return fmt.Errorf("drmcolor: CRTC %d gamma: %w", out.CRTC, err)
	}
	if err := out.gamma.set(p.installer, color.EncodeLUT(lut)); err != nil {
		return err
	}
	state.GammaBlob = out.gamma.id
	return nil
}

// Release destroys every blob owned by out and its planes. It keeps going
// after a failure and returns all errors joined.
func (p *Planner) Release(out *Output) error {
	var errs []error
	for _, pl := range out.Planes {
		if pl == nil {
			continue
		}
		errs = append(errs, pl.degamma.clear(p.installer), pl.ctm.clear(p.installer))
	}
	errs = append(errs, out.gamma.clear(p.installer), out.metadata.clear(p.installer))
	err := errors.Join(errs...)
	if err != nil {
		Logger().Warn("drmcolor: output release incomplete", "crtc", out.CRTC, "err", err)
	}
	return err
}

// ensureSlots names the blob slots of outputs and planes built as
// literals.
func (o *Output) ensureSlots() {
	o.gamma.prop = PropGammaLUT
	o.metadata.prop = PropHDROutputMetadata
	for _, pl := range o.Planes {
		if pl != nil {
			pl.degamma.prop = PropPlaneDegammaLUT
			pl.ctm.prop = PropPlaneCTM
		}
	}
}
