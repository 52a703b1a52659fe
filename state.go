package drmcolor

import (
	"errors"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
	"github.com/gogpu/drmcolor/tonemap"
)

// PlaneType is the KMS plane type.
type PlaneType uint8

// Plane types.
const (
	PlaneTypePrimary PlaneType = iota
	PlaneTypeOverlay
	PlaneTypeCursor
)

// String returns the KMS name of the plane type.
func (t PlaneType) String() string {
	switch t {
	case PlaneTypePrimary:
		return "Primary"
	case PlaneTypeOverlay:
		return "Overlay"
	case PlaneTypeCursor:
		return "Cursor"
	}
	return "Unknown"
}

// View is what a plane shows in the frame being planned.
type View struct {
	Buffer *tonemap.Buffer
	// Content is the producer's colour description. Nil is SDR Rec709.
	Content *hdr.ContentMetadata
}

// Plane is a KMS plane. It outlives frames and owns the plane's colour
// blobs.
type Plane struct {
	ID   uint32
	Type PlaneType
	// DegammaSize is the plane's degamma LUT size. Zero uses the planner
	// default.
	DegammaSize int
	// View is set by the caller per frame. Nil planes are skipped.
	View *View

	degamma blobSlot
	ctm     blobSlot
}

// NewPlane returns a plane with no colour blobs.
func NewPlane(id uint32, typ PlaneType) *Plane {
	return &Plane{ID: id, Type: typ}
}

// Output is a CRTC and connector pair with its planes. It owns the output
// colour blobs.
type Output struct {
	CRTC      uint32
	Connector uint32
	// GammaSize is the CRTC gamma LUT size. Zero uses the planner default.
	GammaSize int
	Planes    []*Plane

	gamma    blobSlot
	metadata blobSlot
}

// NewOutput returns an output with no colour blobs.
func NewOutput(crtc, connector uint32, planes ...*Plane) *Output {
	return &Output{CRTC: crtc, Connector: connector, Planes: planes}
}

// PlaneColorState is the colour setup of one plane for one frame.
type PlaneColorState struct {
	Plane   uint32
	Content gamut.Gamut
	Target  gamut.Gamut
	Mode    tonemap.Mode

	// DegammaBlob and CTMBlob are the blob ids to commit; 0 clears the
	// property. When Err reports a skipped setup they are the blobs left
	// from an earlier frame.
	DegammaBlob uint32
	CTMBlob     uint32

	// Buffer is the buffer to scan out: the tone-mapped replacement when
	// ToneMapped is set, otherwise the view's own buffer.
	Buffer     *tonemap.Buffer
	ToneMapped bool

	// Err collects failures isolated to this plane.
	Err error
}

// OutputColorState is the colour setup of one output for one frame.
type OutputColorState struct {
	Target gamut.Gamut
	// HDR reports whether the output signal is PQ encoded this frame.
	HDR bool
	// Color is the output signal's colour standard.
	Color tonemap.ColorProperties

	GammaBlob    uint32
	MetadataBlob uint32

	Planes []PlaneColorState
}

// CloseBuffers closes the tone-mapped buffers of the frame. Call it once
// the frame is no longer scanned out.
func (s *OutputColorState) CloseBuffers() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := range s.Planes {
		ps := &s.Planes[i]
		if ps.ToneMapped {
			errs = append(errs, ps.Buffer.Close())
			ps.ToneMapped = false
		}
	}
	return errors.Join(errs...)
}
