package tonemap

import (
	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
)

// HDR10 is mastering display and content light level metadata in the
// shape video-processing filters take it. Chromaticities are in units of
// 0.00002 and ordered green, blue, red.
type HDR10 struct {
	DisplayPrimariesX [3]uint16
	DisplayPrimariesY [3]uint16
	WhitePointX       uint16
	WhitePointY       uint16
	// MaxDisplayMasteringLuminance is in cd/m².
	MaxDisplayMasteringLuminance uint32
	// MinDisplayMasteringLuminance is in units of 0.0001 cd/m².
	MinDisplayMasteringLuminance uint32
	MaxContentLightLevel         uint16
	MaxPicAverageLightLevel      uint16
}

// SDRReference describes a standard dynamic range signal. It stands in for
// the missing side of S2H and H2S.
var SDRReference = HDR10{
	DisplayPrimariesX:            [3]uint16{15000, 7500, 32000},
	DisplayPrimariesY:            [3]uint16{30000, 3000, 16500},
	WhitePointX:                  15635,
	WhitePointY:                  16450,
	MaxDisplayMasteringLuminance: 500,
	MinDisplayMasteringLuminance: 1,
	MaxContentLightLevel:         4000,
}

// HDR10From converts static metadata, decoding its 10-bit chromaticities.
func HDR10From(s *hdr.StaticMetadata) HDR10 {
	p := s.Primaries
	return HDR10{
		DisplayPrimariesX: [3]uint16{p.Green.X.Fixed(), p.Blue.X.Fixed(), p.Red.X.Fixed()},
		DisplayPrimariesY: [3]uint16{p.Green.Y.Fixed(), p.Blue.Y.Fixed(), p.Red.Y.Fixed()},
		WhitePointX:       p.White.X.Fixed(),
		WhitePointY:       p.White.Y.Fixed(),

		MaxDisplayMasteringLuminance: uint32(s.MaxMasteringLuminance),
		MinDisplayMasteringLuminance: uint32(s.MinMasteringLuminance),
		MaxContentLightLevel:         s.MaxCLL,
		MaxPicAverageLightLevel:      s.MaxFALL,
	}
}

// PeakNits returns the brightest level the metadata declares, preferring
// the content light level over the mastering display, or fallback when
// neither is set.
func (h HDR10) PeakNits(fallback float64) float64 {
	switch {
	case h.MaxContentLightLevel != 0:
		return float64(h.MaxContentLightLevel)
	case h.MaxDisplayMasteringLuminance != 0:
		return float64(h.MaxDisplayMasteringLuminance)
	}
	return fallback
}

// ColorProperties names a signal's colour standard by H.273 code points.
type ColorProperties struct {
	Primaries gamut.ColorPrimaries
	Transfer  gamut.TransferCharacteristics
}

var (
	hdrColor = ColorProperties{gamut.ColorPrimariesBT2020, gamut.TransferSMPTE2084}
	sdrColor = ColorProperties{gamut.ColorPrimariesBT709, gamut.TransferSRGB}
)

func colorFor(isHDR bool) ColorProperties {
	if isHDR {
		return hdrColor
	}
	return sdrColor
}

// inputMetadata is the filter's view of the source.
func (r Request) inputMetadata() HDR10 {
	if r.Mode.InputHDR() {
		return HDR10From(r.Content)
	}
	return SDRReference
}

// outputMetadata is the pipeline's view of the destination.
func (r Request) outputMetadata() HDR10 {
	if r.Mode.OutputHDR() {
		return HDR10From(r.Target)
	}
	return SDRReference
}
